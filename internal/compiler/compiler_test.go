package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
	"github.com/bvbrc/workflow-conductor/internal/workspace"
)

func minimalWorkflow() map[string]interface{} {
	return map[string]interface{}{
		"workflow_name": "test workflow",
		"steps": []interface{}{
			map[string]interface{}{
				"step_name": "blast_it",
				"app":       "Homology",
				"params": map[string]interface{}{
					"input_source": "id_list",
					"input_id_list": []interface{}{
						"GCF_000.1",
					},
					"db_source":               "precomputed_database",
					"db_precomputed_database": "patric",
				},
			},
		},
	}
}

func TestCompileHappyPathSingleStep(t *testing.T) {
	result, err := Compile(minimalWorkflow(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Workflow.Steps, 1)
	assert.Equal(t, "bacteria-archaea", result.Workflow.Steps[0].Params["db_precomputed_database"])
}

func TestCompileRejectsEmptySteps(t *testing.T) {
	raw := map[string]interface{}{
		"workflow_name": "empty",
		"steps":         []interface{}{},
	}
	_, err := Compile(raw, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestCompileRejectsDuplicateStepNames(t *testing.T) {
	raw := minimalWorkflow()
	steps := raw["steps"].([]interface{})
	dup := steps[0].(map[string]interface{})
	raw["steps"] = []interface{}{dup, dup}

	_, err := Compile(raw, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step_name")
}

func TestCompileRejectsUnknownDependency(t *testing.T) {
	raw := minimalWorkflow()
	steps := raw["steps"].([]interface{})
	step := steps[0].(map[string]interface{})
	step["depends_on"] = []interface{}{"nonexistent"}

	_, err := Compile(raw, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestCompileRejectsCycle(t *testing.T) {
	raw := map[string]interface{}{
		"workflow_name": "cycle",
		"steps": []interface{}{
			map[string]interface{}{
				"step_name":  "A",
				"app":        "Homology",
				"depends_on": []interface{}{"B"},
				"params": map[string]interface{}{
					"input_source": "fasta",
					"db_source":    "workspace",
				},
			},
			map[string]interface{}{
				"step_name":  "B",
				"app":        "Homology",
				"depends_on": []interface{}{"A"},
				"params": map[string]interface{}{
					"input_source": "fasta",
					"db_source":    "workspace",
				},
			},
		},
	}

	_, err := Compile(raw, Options{})
	require.Error(t, err)
	var wfErr *wferrors.Error
	require.True(t, wferrors.As(err, &wfErr))
	assert.Equal(t, wferrors.TypeValidation, wfErr.Type)
}

func TestCompileRejectsConditionalRuleViolation(t *testing.T) {
	raw := minimalWorkflow()
	steps := raw["steps"].([]interface{})
	step := steps[0].(map[string]interface{})
	step["params"].(map[string]interface{})["db_precomputed_database"] = "unknown-db"

	_, err := Compile(raw, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bacteria-archaea")
}

func TestCompileStripsEmptyOptionalCGAFields(t *testing.T) {
	raw := map[string]interface{}{
		"workflow_name": "cga",
		"steps": []interface{}{
			map[string]interface{}{
				"step_name": "assemble",
				"app":       "ComprehensiveGenomeAnalysis",
				"params": map[string]interface{}{
					"input_type":      "contigs",
					"contigs":         "my_contigs.fasta",
					"paired_end_libs": []interface{}{},
				},
			},
		},
	}

	result, err := Compile(raw, Options{})
	require.NoError(t, err)
	_, stillPresent := result.Workflow.Steps[0].Params["paired_end_libs"]
	assert.False(t, stillPresent)
}

type fakeProber struct {
	existing map[string]bool
}

func (p fakeProber) Exists(_ context.Context, _ string, path string) bool {
	return p.existing[path]
}

var _ workspace.Prober = fakeProber{}

func TestDeconflictRewritesConflictingOutputFile(t *testing.T) {
	raw := minimalWorkflow()
	steps := raw["steps"].([]interface{})
	step := steps[0].(map[string]interface{})
	params := step["params"].(map[string]interface{})
	params["output_path"] = "/users/me/results"
	params["output_file"] = "report"
	step["outputs"] = map[string]interface{}{
		"result": "${params.output_path}/${params.output_file}",
	}

	prober := fakeProber{existing: map[string]bool{
		"/users/me/results/report": true,
	}}

	opts := Options{
		Prober:    prober,
		AuthToken: "tok",
		Workspace: config.WorkspaceConfig{CheckOutputFileConflicts: true, MaxOutputFileAttempts: 10},
	}

	result, err := Compile(raw, opts)
	require.NoError(t, err)
	assert.Equal(t, "report_2", result.Workflow.Steps[0].Params["output_file"])
	assert.Equal(t, "/users/me/results/report_2", result.Workflow.Steps[0].Outputs["result"])
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "renamed to")
}
