package cwl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCWLYAML = `
class: Workflow
cwlVersion: v1.2
label: genome-annotation-pipeline
inputs:
  contigs:
    type: File
  workspace_output_folder:
    type: string
    default: "/workspace/user/output"
steps:
  annotate:
    run: genome-annotation.cwl
    in:
      contigs: $(inputs.contigs)
      output_path: $(inputs.workspace_output_folder)
    out: [annotated_genome]
  summarize:
    run: annotation-summary.cwl
    in:
      genome: $(steps.annotate.annotated_genome)
    out: [summary]
outputs:
  - id: final_summary
    outputSource: steps.summarize.summary
`

func TestParseAcceptsYAML(t *testing.T) {
	doc, err := Parse([]byte(sampleCWLYAML))
	require.NoError(t, err)
	assert.Equal(t, "Workflow", doc["class"])
	assert.True(t, DetectFormat(doc))
}

func TestParseAcceptsJSON(t *testing.T) {
	doc, err := Parse([]byte(`{"class": "Workflow", "steps": {}}`))
	require.NoError(t, err)
	assert.True(t, DetectFormat(doc))
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := Parse([]byte(``))
	assert.Error(t, err)
}

func TestDetectFormatRejectsNonCWLDocument(t *testing.T) {
	doc, err := Parse([]byte(`{"workflow_name": "not cwl", "steps": []}`))
	require.NoError(t, err)
	assert.False(t, DetectFormat(doc))
}

func TestValidateWorkflowRejectsWrongClass(t *testing.T) {
	doc, err := Parse([]byte(`{"class": "CommandLineTool", "steps": {}}`))
	require.NoError(t, err)
	err = ValidateWorkflow(doc)
	assert.Error(t, err)
}

func TestValidateWorkflowRejectsListSteps(t *testing.T) {
	doc, err := Parse([]byte(`{"class": "Workflow", "steps": []}`))
	require.NoError(t, err)
	err = ValidateWorkflow(doc)
	assert.Error(t, err)
}

func TestConvertProducesWorkflowShape(t *testing.T) {
	doc, err := Parse([]byte(sampleCWLYAML))
	require.NoError(t, err)

	c := NewConverter(nil, nil)
	wf, err := c.Convert(doc)
	require.NoError(t, err)

	assert.Equal(t, "genome-annotation-pipeline", wf["workflow_name"])
	assert.Equal(t, "v1.2", wf["version"])

	baseContext, ok := wf["base_context"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "${contigs}", baseContext["contigs"])
	assert.Equal(t, "https://www.bv-brc.org", baseContext["base_url"])
	assert.Contains(t, baseContext, "workspace_output_folder")

	steps, ok := wf["steps"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, steps, 2)

	byName := map[string]map[string]interface{}{}
	for _, s := range steps {
		byName[s["step_name"].(string)] = s
	}

	annotate := byName["annotate"]
	require.NotNil(t, annotate)
	assert.Equal(t, "GenomeAnnotation", annotate["app"])
	assert.Empty(t, annotate["depends_on"])

	summarize := byName["summarize"]
	require.NotNil(t, summarize)
	assert.Equal(t, "AnnotationSummary", summarize["app"])
	assert.Equal(t, []string{"annotate"}, summarize["depends_on"])

	outputs, _ := wf["workflow_outputs"].([]string)
	require.Len(t, outputs, 1)
	assert.Equal(t, "${steps.summarize.outputs.summary}", outputs[0])
}

func TestConvertRejectsStepWithoutRun(t *testing.T) {
	doc, err := Parse([]byte(`
class: Workflow
steps:
  broken:
    in: {}
    out: []
`))
	require.NoError(t, err)

	c := NewConverter(nil, nil)
	_, err = c.Convert(doc)
	assert.Error(t, err)
}

func TestConvertUsesExplicitToolMapping(t *testing.T) {
	doc, err := Parse([]byte(`
class: Workflow
steps:
  blast:
    run: blastn-wrapper.cwl
    in: {}
    out: []
`))
	require.NoError(t, err)

	mapper := NewToolMapper(map[string]string{"blastn-wrapper.cwl": "Homology"}, nil)
	c := NewConverter(mapper, nil)
	wf, err := c.Convert(doc)
	require.NoError(t, err)

	steps := wf["steps"].([]map[string]interface{})
	require.Len(t, steps, 1)
	assert.Equal(t, "Homology", steps[0]["app"])
}

func TestMapToolToAppFallsBackToConvention(t *testing.T) {
	mapper := NewToolMapper(nil, nil)
	assert.Equal(t, "MetagenomeBinning", mapper.MapToolToApp("metagenome-binning.cwl"))
	assert.Equal(t, "GenomeAnnotation", mapper.MapToolToApp("path/to/genome_annotation.cwl"))
}

func TestTranslateExpressionHandlesStepOutputInputAndSelfReferences(t *testing.T) {
	assert.Equal(t, "${steps.annotate.outputs.summary}", translateExpression("$(steps.annotate.summary)"))
	assert.Equal(t, "${contigs}", translateExpression("$(inputs.contigs)"))
	assert.Equal(t, "${foo}", translateExpression("$(self.foo)"))
	assert.Equal(t, "unchanged", translateExpression("unchanged"))
}

func TestExtractStepDependenciesDeduplicatesAndSorts(t *testing.T) {
	deps := extractStepDependencies(map[string]interface{}{
		"a": "$(steps.zeta.out)",
		"b": "$(steps.alpha.out)",
		"c": "$(steps.alpha.out2)",
		"d": "literal",
	})
	assert.Equal(t, []string{"alpha", "zeta"}, deps)
}

func TestLoadToolMappingsParsesYAML(t *testing.T) {
	mappings, err := LoadToolMappings([]byte(`
tool_mappings:
  blastn-wrapper.cwl: Homology
  metagenome-binning.cwl: MetagenomeBinning
`))
	require.NoError(t, err)
	assert.Equal(t, "Homology", mappings["blastn-wrapper.cwl"])
	assert.Equal(t, "MetagenomeBinning", mappings["metagenome-binning.cwl"])
}
