package compiler

import (
	"fmt"
	"regexp"

	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

var stepRefPattern = regexp.MustCompile(`\$\{steps\.([a-zA-Z_][a-zA-Z0-9_]*)\.`)

// checkStepOutputReferences scans every string value in step params,
// step outputs, and workflow_outputs for ${steps.N...} references and
// errors if N names no step in the compiled graph (spec §4.7 step 9).
// Resolver passes 1-3 already consume most such references at compile
// time; this is a safety net over whatever is left for runtime
// resolution (params referencing a not-yet-completed step's outputs).
func checkStepOutputReferences(wf *store.Workflow, graph *dag.Graph) error {
	var violations []string

	check := func(contextPath, value string) {
		for _, m := range stepRefPattern.FindAllStringSubmatch(value, -1) {
			stepName := m[1]
			if graph.Node(stepName) == nil {
				violations = append(violations, fmt.Sprintf(
					"%s references unknown step %q", contextPath, stepName,
				))
			}
		}
	}

	for _, s := range wf.Steps {
		walkStrings(s.Params, fmt.Sprintf("step %q.params", s.StepName), check)
		for k, v := range s.Outputs {
			check(fmt.Sprintf("step %q.outputs.%s", s.StepName, k), v)
		}
	}
	for i, v := range wf.WorkflowOutputs {
		check(fmt.Sprintf("workflow_outputs[%d]", i), v)
	}

	if len(violations) > 0 {
		return wferrors.Batch(violations)
	}
	return nil
}

// walkStrings recursively visits every string value reachable from value,
// calling visit with a dotted context path for each.
func walkStrings(value interface{}, contextPath string, visit func(contextPath, value string)) {
	switch v := value.(type) {
	case string:
		visit(contextPath, v)
	case map[string]interface{}:
		for k, child := range v {
			walkStrings(child, contextPath+"."+k, visit)
		}
	case []interface{}:
		for i, child := range v {
			walkStrings(child, fmt.Sprintf("%s[%d]", contextPath, i), visit)
		}
	}
}
