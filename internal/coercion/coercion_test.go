package coercion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bvbrc/workflow-conductor/internal/validators"
)

func TestNormalizeAppNameFriendlyAlias(t *testing.T) {
	assert.Equal(t, "Homology", NormalizeAppName("blast", validators.Default))
	assert.Equal(t, "CodonTree", NormalizeAppName("bacterial_genome_tree", validators.Default))
}

func TestNormalizeAppNameCaseInsensitiveExact(t *testing.T) {
	assert.Equal(t, "Homology", NormalizeAppName("homology", validators.Default))
}

func TestNormalizeAppNameKeepsAlreadyRegistered(t *testing.T) {
	assert.Equal(t, "ComprehensiveGenomeAnalysis", NormalizeAppName("ComprehensiveGenomeAnalysis", validators.Default))
}

func TestNormalizeAppNameUnknownPassesThrough(t *testing.T) {
	assert.Equal(t, "totally_unknown_app", NormalizeAppName("totally_unknown_app", validators.Default))
}

func TestNormalizeHomologyPrecomputedDBAliasing(t *testing.T) {
	assert.Equal(t, "bacteria-archaea", NormalizeHomologyPrecomputedDB("patric"))
	assert.Equal(t, "viral-reference", NormalizeHomologyPrecomputedDB("viral_reference"))
	assert.Equal(t, "unknown-db", NormalizeHomologyPrecomputedDB("unknown-db"))
}

func TestCoerceFieldsListification(t *testing.T) {
	out := CoerceFields("Homology", map[string]interface{}{
		"input_id_list": "GCF_000.1",
	})
	assert.Equal(t, []interface{}{"GCF_000.1"}, out["input_id_list"])
}

func TestCoerceFieldsNonDestructive(t *testing.T) {
	out := CoerceFields("Homology", map[string]interface{}{
		"input_id_list": []interface{}{"a", "b"},
	})
	assert.Equal(t, []interface{}{"a", "b"}, out["input_id_list"])
}

func TestEvaluateConditionalRulesPrecomputedAllowlist(t *testing.T) {
	_, errs := CoerceStep("Homology", map[string]interface{}{
		"db_source":               "precomputed_database",
		"db_precomputed_database": "patric",
	})
	assert.Empty(t, errs)
}

func TestEvaluateConditionalRulesRejectsUnknownDB(t *testing.T) {
	_, errs := CoerceStep("Homology", map[string]interface{}{
		"db_source":               "precomputed_database",
		"db_precomputed_database": "unknown-db",
	})
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "bacteria-archaea")
}

func TestEvaluateConditionalRulesRequiresIDList(t *testing.T) {
	_, errs := CoerceStep("Homology", map[string]interface{}{
		"input_source": "id_list",
	})
	assert.NotEmpty(t, errs)
}

func TestCoerceStepNormalizesCGAEnumsBeforeValidation(t *testing.T) {
	out, errs := CoerceStep("ComprehensiveGenomeAnalysis", map[string]interface{}{
		"input_type": "fastq",
		"recipe":     "meta_flye",
		"domain":     "bacterial",
		"srr_ids":    []interface{}{"SRR000001"},
	})
	assert.Empty(t, errs)
	assert.Equal(t, "reads", out["input_type"])
	assert.Equal(t, "flye", out["recipe"])
	assert.Equal(t, "Bacteria", out["domain"])
}

func TestCoerceStepNormalizesCGACodeAlias(t *testing.T) {
	out, errs := CoerceStep("ComprehensiveGenomeAnalysis", map[string]interface{}{
		"input_type": "contigs",
		"contigs":    "some-contigs-object",
		"code":       "Bacterial, Archaeal and Plant Plastid Code",
	})
	assert.Empty(t, errs)
	assert.Equal(t, 11, out["code"])
}

func TestEvaluateConditionalRulesCGARequiresInputFamily(t *testing.T) {
	_, errs := CoerceStep("ComprehensiveGenomeAnalysis", map[string]interface{}{
		"input_type": "reads",
	})
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "paired_end_libs")
}

func TestEvaluateConditionalRulesCGARejectsConflictingFamily(t *testing.T) {
	_, errs := CoerceStep("ComprehensiveGenomeAnalysis", map[string]interface{}{
		"input_type":   "reads",
		"srr_ids":      []interface{}{"SRR000001"},
		"contigs":      "some-contigs-object",
		"genbank_file": "some-genbank-object",
	})
	assert.Len(t, errs, 2)
}
