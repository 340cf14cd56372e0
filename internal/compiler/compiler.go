// Package compiler implements the Workflow Compiler (spec §4.7): the
// end-to-end compile pipeline shared by the register, validate, and
// submit_planned paths of the Workflow Manager façade.
package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/bvbrc/workflow-conductor/internal/coercion"
	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/resolver"
	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/validators"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
	"github.com/bvbrc/workflow-conductor/internal/workspace"
)

// Options configures one call to Compile: the registries and workspace
// access it needs, drawn from the caller's config and process-wide
// singletons.
type Options struct {
	Registry  *validators.Registry
	Prober    workspace.Prober
	Workspace config.WorkspaceConfig
	// AuthToken is the workspace credential carried on the workflow, used
	// to gate step 10 ("if a workspace credential is present").
	AuthToken string
}

// Result is a successful compile: the fully resolved, coerced, validated
// workflow document plus any non-fatal warnings (validator warnings,
// output-deconflict renames).
type Result struct {
	Workflow *store.Workflow
	Warnings []string
}

// Compile runs the ten-step pipeline of spec §4.7 over a raw input
// document. raw is the wire-format JSON object as received by the HTTP
// surface, still possibly wrapped (`workflow_json`, planner metadata) and
// still containing a caller-supplied `workflow_id` that this stage does
// not use — id assignment is the Manager's job, run before or after
// Compile depending on the path (register adopts a well-formed
// caller-supplied id; submit_planned already has one).
//
// On error the caller must not persist anything: compile errors are never
// partial (spec §7). raw's top-level map is never modified, but
// stripEmptyOptionalArrays deletes empty optional-array params in place
// from the step params maps raw shares, whether or not Compile succeeds.
func Compile(raw map[string]interface{}, opts Options) (*Result, error) {
	cleaned := stripWrapper(raw)
	cleaned = stripEmptyOptionalArrays(cleaned)

	wf, err := decodeWorkflow(cleaned)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeValidation, err, "invalid workflow document")
	}

	if err := resolveCompileTime(wf); err != nil {
		return nil, err
	}

	if err := coerceAndApplyRules(wf, opts.Registry); err != nil {
		return nil, err
	}

	if err := validateSchema(wf); err != nil {
		return nil, err
	}

	warnings, err := applyDefaultsAndValidators(wf, opts.Registry)
	if err != nil {
		return nil, err
	}

	graph, err := buildAndValidateGraph(wf)
	if err != nil {
		return nil, err
	}

	if err := checkStepOutputReferences(wf, graph); err != nil {
		return nil, err
	}

	if opts.AuthToken != "" && opts.Workspace.CheckOutputFileConflicts && opts.Prober != nil {
		deconflictWarnings, err := deconflictOutputs(wf, opts)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, deconflictWarnings...)
	}

	return &Result{Workflow: wf, Warnings: warnings}, nil
}

// Plan runs the lightweight subset of the pipeline used by the Workflow
// Manager's plan operation (spec §4.11): wrapper/empty-array cleanup,
// decoding, and compile-time variable resolution only. It deliberately
// skips coercion, schema validation, defaults/validators, and graph
// construction — planning persists the caller's intent as-is so validation
// can remain a separate, explicit stage.
func Plan(raw map[string]interface{}) (*store.Workflow, error) {
	cleaned := stripWrapper(raw)
	cleaned = stripEmptyOptionalArrays(cleaned)

	wf, err := decodeWorkflow(cleaned)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeValidation, err, "invalid workflow document")
	}

	if err := resolveCompileTime(wf); err != nil {
		return nil, err
	}

	return wf, nil
}

// decodeWorkflow re-marshals the cleaned raw map into a *store.Workflow,
// matching the teacher's convention of decoding wire JSON through a single
// typed struct rather than hand-walking maps past this point.
func decodeWorkflow(raw map[string]interface{}) (*store.Workflow, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling cleaned workflow: %w", err)
	}
	wf := &store.Workflow{}
	if err := json.Unmarshal(body, wf); err != nil {
		return nil, fmt.Errorf("decoding workflow document: %w", err)
	}
	return wf, nil
}

func coerceAndApplyRules(wf *store.Workflow, registry *validators.Registry) error {
	var violations []string

	for i := range wf.Steps {
		step := &wf.Steps[i]

		step.App = coercion.NormalizeAppName(step.App, registry)

		coerced, errs := coercion.CoerceStep(step.App, step.Params)
		step.Params = coerced
		for _, e := range errs {
			violations = append(violations, fmt.Sprintf("step %q: %s", step.StepName, e))
		}
	}

	if len(violations) > 0 {
		return wferrors.Batch(violations)
	}
	return nil
}

func applyDefaultsAndValidators(wf *store.Workflow, registry *validators.Registry) ([]string, error) {
	if registry == nil {
		registry = validators.Default
	}

	var warnings, errs []string

	for i := range wf.Steps {
		step := &wf.Steps[i]

		if d, ok := registry.GetDefaults(step.App); ok {
			step.Params = d.Apply(step.Params)
		}

		v, ok := registry.GetValidator(step.App)
		if !ok {
			continue
		}
		result := v.ValidateStep(validators.Step{App: step.App, Params: step.Params, Outputs: step.Outputs})
		step.Params = result.Params
		for _, w := range result.Warnings {
			warnings = append(warnings, fmt.Sprintf("step %q: %s", step.StepName, w))
		}
		for _, e := range result.Errors {
			errs = append(errs, fmt.Sprintf("step %q: %s", step.StepName, e))
		}
	}

	if len(errs) > 0 {
		return nil, wferrors.Batch(errs)
	}
	return warnings, nil
}

func resolveCompileTime(wf *store.Workflow) error {
	if err := resolver.ResolveCompileTime(wf); err != nil {
		return wferrors.Wrap(wferrors.TypeValidation, err, "variable resolution failed")
	}
	return nil
}

func buildAndValidateGraph(wf *store.Workflow) (*dag.Graph, error) {
	if err := checkDependencyNamesExist(wf); err != nil {
		return nil, err
	}

	steps := make([]dag.StepLike, len(wf.Steps))
	for i := range wf.Steps {
		steps[i] = wf.Steps[i]
	}
	graph := dag.Build(steps)

	if err := graph.Validate(); err != nil {
		return nil, wferrors.Wrap(wferrors.TypeValidation, err, "dependency graph validation failed")
	}
	return graph, nil
}

func checkDependencyNamesExist(wf *store.Workflow) error {
	names := make(map[string]bool, len(wf.Steps))
	ids := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		names[s.StepName] = true
		if s.StepID != "" {
			ids[s.StepID] = true
		}
	}

	var violations []string
	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			if !names[dep] && !ids[dep] {
				violations = append(violations, fmt.Sprintf(
					"step %q depends on unknown step %q", s.StepName, dep,
				))
			}
		}
	}
	if len(violations) > 0 {
		return wferrors.Batch(violations)
	}
	return nil
}
