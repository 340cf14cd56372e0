package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

const defaultMaxOutputFileAttempts = 100

// deconflictOutputs runs the Output Deconflict pass (spec §4.7.1) over
// every step that declares both params.output_path and params.output_file
// as strings. It returns one warning per rename performed.
func deconflictOutputs(wf *store.Workflow, opts Options) ([]string, error) {
	maxAttempts := opts.Workspace.MaxOutputFileAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxOutputFileAttempts
	}

	var warnings []string
	ctx := context.Background()

	for i := range wf.Steps {
		step := &wf.Steps[i]

		outputPath, ok1 := step.Params["output_path"].(string)
		outputFile, ok2 := step.Params["output_file"].(string)
		if !ok1 || !ok2 || outputPath == "" || outputFile == "" {
			continue
		}

		// A still-unresolved complex reference (${steps...}) means this
		// path component cannot be determined at compile time; skip this
		// step rather than guess (spec §4.7.1: "if any component cannot
		// be resolved ... skip this step").
		if strings.Contains(outputPath, "${") {
			continue
		}

		renamed, newName, err := resolveFreeName(ctx, opts, outputPath, outputFile, maxAttempts)
		if err != nil {
			return nil, err
		}
		if !renamed {
			continue
		}

		step.Params["output_file"] = newName
		for k, v := range step.Outputs {
			step.Outputs[k] = strings.ReplaceAll(v, outputFile, newName)
		}
		warnings = append(warnings, fmt.Sprintf(
			"step %q: output_file %q already exists at %q, renamed to %q",
			step.StepName, outputFile, outputPath, newName,
		))
	}

	return warnings, nil
}

// resolveFreeName finds the smallest free name for outputFile at
// outputPath, trying <file>, then <file>_2, <file>_3, ... up to maxAttempts
// (spec §4.7.1's deterministic smallest-k tie-break).
func resolveFreeName(ctx context.Context, opts Options, outputPath, outputFile string, maxAttempts int) (renamed bool, newName string, err error) {
	exists := func(name string) bool {
		path := outputPath + "/" + name
		return opts.Prober.Exists(ctx, opts.AuthToken, path)
	}

	if !exists(outputFile) {
		return false, outputFile, nil
	}

	for k := 2; k <= maxAttempts; k++ {
		candidate := fmt.Sprintf("%s_%d", outputFile, k)
		if !exists(candidate) {
			return true, candidate, nil
		}
	}

	return false, "", wferrors.Newf(
		wferrors.TypeValidation,
		"output deconflict: no free name for %q at %q within %d attempts", outputFile, outputPath, maxAttempts,
	)
}
