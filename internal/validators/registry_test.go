package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	assert.True(t, Default.IsRegistered("Homology"))
	assert.True(t, Default.IsRegistered("ComprehensiveGenomeAnalysis"))
	assert.True(t, Default.IsRegistered("CreateGroup"))
	assert.True(t, Default.IsRegistered("GenomeAnnotation"))
	assert.False(t, Default.IsRegistered("NotRegisteredApp"))
}

func TestHomologyValidatorRejectsUnknownSource(t *testing.T) {
	v, ok := Default.GetValidator("Homology")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "Homology",
		Params: map[string]interface{}{
			"input_source": "bogus",
			"db_source":    "id_list",
		},
	})
	assert.True(t, result.HasErrors())
}

func TestHomologyValidatorAcceptsValidParams(t *testing.T) {
	v, ok := Default.GetValidator("Homology")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "Homology",
		Params: map[string]interface{}{
			"input_source": "id_list",
			"db_source":    "precomputed_database",
		},
	})
	assert.False(t, result.HasErrors())
}

func TestValidateStepRejectsAppMismatch(t *testing.T) {
	v, ok := Default.GetValidator("Homology")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "SomethingElse",
		Params: map[string]interface{}{
			"input_source": "id_list",
			"db_source":    "id_list",
		},
	})
	assert.True(t, result.HasErrors())
}

func TestCGAValidatorRequiresOutputFieldsAndScientificName(t *testing.T) {
	v, ok := Default.GetValidator("ComprehensiveGenomeAnalysis")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App:    "ComprehensiveGenomeAnalysis",
		Params: map[string]interface{}{"input_type": "reads"},
	})
	assert.True(t, result.HasErrors())
}

func TestCGADefaultsNonDestructive(t *testing.T) {
	d, ok := Default.GetDefaults("ComprehensiveGenomeAnalysis")
	require.True(t, ok)

	out := d.Apply(map[string]interface{}{"recipe": "spades"})
	assert.Equal(t, "spades", out["recipe"])
	assert.Equal(t, "auto", out["domain"])
}

func TestCreateGroupValidatorRequiredFields(t *testing.T) {
	v, ok := Default.GetValidator("CreateGroup")
	require.True(t, ok)

	result := v.ValidateStep(Step{App: "CreateGroup", Params: map[string]interface{}{}})
	assert.True(t, result.HasErrors())
	assert.Len(t, result.Errors, 3)
}

func TestGenomeAnnotationValidatorRequiresContigsAndOutputPath(t *testing.T) {
	v, ok := Default.GetValidator("GenomeAnnotation")
	require.True(t, ok)

	result := v.ValidateStep(Step{App: "GenomeAnnotation", Params: map[string]interface{}{}})
	assert.True(t, result.HasErrors())
	assert.Len(t, result.Errors, 2)
}

func TestGenomeAnnotationValidatorAcceptsValidParams(t *testing.T) {
	v, ok := Default.GetValidator("GenomeAnnotation")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "GenomeAnnotation",
		Params: map[string]interface{}{
			"contigs":         "${steps.assemble.outputs.contigs_fasta}",
			"output_path":     "/user/home/output",
			"scientific_name": "Escherichia coli",
		},
	})
	assert.False(t, result.HasErrors())
}

func TestGenomeAnnotationValidatorRejectsBadTaxonomyID(t *testing.T) {
	v, ok := Default.GetValidator("GenomeAnnotation")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "GenomeAnnotation",
		Params: map[string]interface{}{
			"contigs":     "contigs.fasta",
			"output_path": "/user/home/output",
			"taxonomy_id": "not-a-number",
		},
	})
	assert.True(t, result.HasErrors())
}

func TestGenomeAnnotationValidatorWarnsWithoutNameOrTaxonomy(t *testing.T) {
	v, ok := Default.GetValidator("GenomeAnnotation")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "GenomeAnnotation",
		Params: map[string]interface{}{
			"contigs":     "contigs.fasta",
			"output_path": "/user/home/output",
		},
	})
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}

func TestGenomeAnnotationDefaultsSetsOutputFile(t *testing.T) {
	d, ok := Default.GetDefaults("GenomeAnnotation")
	require.True(t, ok)

	out := d.Apply(map[string]interface{}{})
	assert.Equal(t, "annotation_output", out["output_file"])
}

func TestValidateOutputsWarnsOnNonReferenceTemplate(t *testing.T) {
	v, ok := Default.GetValidator("Homology")
	require.True(t, ok)

	result := v.ValidateStep(Step{
		App: "Homology",
		Params: map[string]interface{}{
			"input_source": "id_list",
			"db_source":    "id_list",
		},
		Outputs: map[string]string{"report": "literal-value"},
	})
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}
