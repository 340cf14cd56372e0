// Package resolver implements the Variable Resolver (spec §4.6): three
// compile-time passes over a workflow document, plus a separate
// dispatch-time runtime resolution operation.
package resolver

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bvbrc/workflow-conductor/internal/store"
)

var (
	varPattern        = regexp.MustCompile(`\$\{([^}]+)\}`)
	simpleVarPattern  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	stepOutputPattern = regexp.MustCompile(`^\$\{steps\.([a-zA-Z_][a-zA-Z0-9_]*)\.outputs\.([a-zA-Z_][a-zA-Z0-9_]*)\}$`)
	runtimeRefPattern = regexp.MustCompile(`\$\{steps\.([a-zA-Z_][a-zA-Z0-9_]*)\.(outputs|params)\.([a-zA-Z_][a-zA-Z0-9_]*)\}`)
)

// ResolveCompileTime runs the three compile-time passes over wf in place:
// base-context substitution, per-step params-in-outputs substitution, and
// workflow_outputs step-output substitution (spec §4.6). It returns the
// first unresolved-reference error encountered, matching the source's
// fail-fast behavior for these passes.
func ResolveCompileTime(wf *store.Workflow) error {
	if err := resolveBaseContext(wf); err != nil {
		return err
	}
	if err := resolveParamsInOutputs(wf); err != nil {
		return err
	}
	if err := resolveWorkflowOutputs(wf); err != nil {
		return err
	}
	return nil
}

// resolveBaseContext is pass 1: substitute ${NAME} where NAME is a single
// identifier, from base_context or the environment, everywhere in the
// document except within base_context itself.
func resolveBaseContext(wf *store.Workflow) error {
	variables := make(map[string]string, len(wf.BaseContext))
	for k, v := range wf.BaseContext {
		variables[k] = v
	}

	for i := range wf.Steps {
		resolved, err := resolveSimpleInStep(&wf.Steps[i], variables)
		if err != nil {
			return err
		}
		wf.Steps[i] = resolved
	}

	if wf.WorkflowOutputs != nil {
		out := make([]string, len(wf.WorkflowOutputs))
		for i, s := range wf.WorkflowOutputs {
			resolved, err := resolveSimpleInString(s, variables, fmt.Sprintf("workflow_outputs[%d]", i))
			if err != nil {
				return err
			}
			out[i] = resolved
		}
		wf.WorkflowOutputs = out
	}

	return nil
}

func resolveSimpleInStep(step *store.Step, variables map[string]string) (store.Step, error) {
	out := *step

	params, err := resolveSimpleDeep(step.Params, variables, fmt.Sprintf("step %q.params", step.StepName))
	if err != nil {
		return out, err
	}
	out.Params, _ = params.(map[string]interface{})

	if step.Outputs != nil {
		outputs := make(map[string]string, len(step.Outputs))
		for k, v := range step.Outputs {
			resolved, err := resolveSimpleInString(v, variables, fmt.Sprintf("step %q.outputs.%s", step.StepName, k))
			if err != nil {
				return out, err
			}
			outputs[k] = resolved
		}
		out.Outputs = outputs
	}

	return out, nil
}

// resolveSimpleDeep walks an arbitrary JSON-shaped value (map, slice,
// string, or primitive) substituting simple variable references.
func resolveSimpleDeep(value interface{}, variables map[string]string, contextPath string) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveSimpleInString(v, variables, contextPath)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			resolved, err := resolveSimpleDeep(child, variables, contextPath+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			resolved, err := resolveSimpleDeep(child, variables, fmt.Sprintf("%s[%d]", contextPath, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveSimpleInString substitutes every ${NAME} where NAME is a single
// identifier; complex references (dotted/bracketed) are left untouched
// for later passes. Unresolved simple references are a hard error.
func resolveSimpleInString(value string, variables map[string]string, contextPath string) (string, error) {
	matches := varPattern.FindAllStringSubmatch(value, -1)
	if matches == nil {
		return value, nil
	}

	resolved := value
	for _, m := range matches {
		name := m[1]
		if !simpleVarPattern.MatchString(name) {
			continue
		}

		if v, ok := variables[name]; ok {
			resolved = replaceAll(resolved, "${"+name+"}", v)
			continue
		}
		if v, ok := os.LookupEnv(name); ok && v != "" {
			resolved = replaceAll(resolved, "${"+name+"}", v)
			continue
		}
		return "", fmt.Errorf("cannot resolve variable ${%s} in %s: not found in base_context or environment", name, contextPath)
	}
	return resolved, nil
}

// resolveParamsInOutputs is pass 2: within each step's outputs only,
// substitute ${params.KEY} with that step's own params[KEY].
func resolveParamsInOutputs(wf *store.Workflow) error {
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if len(step.Outputs) == 0 {
			continue
		}
		resolved := make(map[string]string, len(step.Outputs))
		for k, v := range step.Outputs {
			r, err := resolveParamsInString(v, step.Params, fmt.Sprintf("step %q.outputs.%s", step.StepName, k))
			if err != nil {
				return err
			}
			resolved[k] = r
		}
		step.Outputs = resolved
	}
	return nil
}

func resolveParamsInString(value string, params map[string]interface{}, contextPath string) (string, error) {
	matches := varPattern.FindAllStringSubmatch(value, -1)
	if matches == nil {
		return value, nil
	}

	resolved := value
	for _, m := range matches {
		ref := m[1]
		if len(ref) < 7 || ref[:7] != "params." {
			continue
		}
		paramName := ref[7:]
		v, ok := params[paramName]
		if !ok {
			return "", fmt.Errorf("cannot resolve ${%s} in %s: parameter %q not found in step params", ref, contextPath, paramName)
		}
		resolved = replaceAll(resolved, "${"+ref+"}", fmt.Sprintf("%v", v))
	}
	return resolved, nil
}

// resolveWorkflowOutputs is pass 3: substitute
// ${steps.NAME.outputs.OUTPUT} in workflow_outputs with the referenced
// step's declared output value.
func resolveWorkflowOutputs(wf *store.Workflow) error {
	if len(wf.WorkflowOutputs) == 0 {
		return nil
	}

	outputsByStep := make(map[string]map[string]string, len(wf.Steps))
	for _, s := range wf.Steps {
		outputsByStep[s.StepName] = s.Outputs
	}

	resolved := make([]string, len(wf.WorkflowOutputs))
	for i, ref := range wf.WorkflowOutputs {
		r, err := resolveStepOutputRef(ref, outputsByStep, fmt.Sprintf("workflow_outputs[%d]", i))
		if err != nil {
			return err
		}
		resolved[i] = r
	}
	wf.WorkflowOutputs = resolved
	return nil
}

func resolveStepOutputRef(value string, outputsByStep map[string]map[string]string, contextPath string) (string, error) {
	m := stepOutputPattern.FindStringSubmatch(value)
	if m == nil {
		return value, nil
	}
	stepName, outputName := m[1], m[2]

	outputs, ok := outputsByStep[stepName]
	if !ok {
		return "", fmt.Errorf("cannot resolve %s in %s: step %q not found", value, contextPath, stepName)
	}
	out, ok := outputs[outputName]
	if !ok {
		return "", fmt.Errorf("cannot resolve %s in %s: output %q not declared on step %q", value, contextPath, outputName, stepName)
	}
	return out, nil
}

func replaceAll(s, token, value string) string {
	return strings.ReplaceAll(s, token, value)
}

// ResolveRuntime expands ${steps.N.outputs.O} and ${steps.N.params.O}
// references within params against the current document state (spec
// §4.6). Unlike the compile-time passes, unresolved references are left
// as-is and reported as warnings, not errors — they are legal when the
// referenced step has not completed yet.
func ResolveRuntime(params map[string]interface{}, steps []store.Step) (resolved map[string]interface{}, warnings []string) {
	byName := make(map[string]*store.Step, len(steps))
	for i := range steps {
		byName[steps[i].StepName] = &steps[i]
	}

	out, warns := resolveRuntimeDeep(params, byName, "params")
	resolved, _ = out.(map[string]interface{})
	if resolved == nil {
		resolved = map[string]interface{}{}
	}
	return resolved, warns
}

func resolveRuntimeDeep(value interface{}, byName map[string]*store.Step, contextPath string) (interface{}, []string) {
	switch v := value.(type) {
	case string:
		return resolveRuntimeInString(v, byName, contextPath)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		var warnings []string
		for k, child := range v {
			resolvedChild, w := resolveRuntimeDeep(child, byName, contextPath+"."+k)
			out[k] = resolvedChild
			warnings = append(warnings, w...)
		}
		return out, warnings
	case []interface{}:
		out := make([]interface{}, len(v))
		var warnings []string
		for i, child := range v {
			resolvedChild, w := resolveRuntimeDeep(child, byName, fmt.Sprintf("%s[%d]", contextPath, i))
			out[i] = resolvedChild
			warnings = append(warnings, w...)
		}
		return out, warnings
	default:
		return value, nil
	}
}

func resolveRuntimeInString(value string, byName map[string]*store.Step, contextPath string) (string, []string) {
	matches := runtimeRefPattern.FindAllStringSubmatch(value, -1)
	if matches == nil {
		return value, nil
	}

	var warnings []string
	resolved := value
	for _, m := range matches {
		fullRef, stepName, kind, field := m[0], m[1], m[2], m[3]

		step, ok := byName[stepName]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: referenced step %q not found, leaving %s unresolved", contextPath, stepName, fullRef))
			continue
		}

		var literal string
		var found bool
		switch kind {
		case "outputs":
			literal, found = step.Outputs[field]
		case "params":
			if pv, ok := step.Params[field]; ok {
				literal = fmt.Sprintf("%v", pv)
				found = true
			}
		}

		if !found {
			warnings = append(warnings, fmt.Sprintf("%s: step %q has no %s.%s yet, leaving %s unresolved", contextPath, stepName, kind, field, fullRef))
			continue
		}

		resolved = replaceAll(resolved, fullRef, literal)
	}
	return resolved, warnings
}
