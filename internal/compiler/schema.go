package compiler

import (
	"fmt"

	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

// validateSchema checks the top-level shape spec §4.7 step 6 requires
// before per-step defaults/validators run: a non-empty steps array, a
// non-empty step_name and app per step, and step_name uniqueness.
func validateSchema(wf *store.Workflow) error {
	var violations []string

	if len(wf.Steps) == 0 {
		violations = append(violations, "workflow must contain at least one step")
	}

	seen := make(map[string]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		if s.StepName == "" {
			violations = append(violations, fmt.Sprintf("step at index %d is missing step_name", i))
			continue
		}
		if s.App == "" {
			violations = append(violations, fmt.Sprintf("step %q is missing app", s.StepName))
		}
		if seen[s.StepName] {
			violations = append(violations, fmt.Sprintf("duplicate step_name %q", s.StepName))
		}
		seen[s.StepName] = true
	}

	if len(violations) > 0 {
		return wferrors.Batch(violations)
	}
	return nil
}
