package validators

import (
	"fmt"
	"strconv"
	"strings"
)

// genomeAnnotationFastaSuffixes is the set of extensions a contigs path is
// expected to end with when it isn't a variable reference.
var genomeAnnotationFastaSuffixes = []string{".fasta", ".fa", ".fna"}

// genomeAnnotationParamsValidator validates GenomeAnnotation step params.
type genomeAnnotationParamsValidator struct{}

func (genomeAnnotationParamsValidator) ValidateParams(params map[string]interface{}) Result {
	var errs, warnings []string
	out := params

	contigs, _ := out["contigs"].(string)
	if contigs == "" {
		errs = append(errs, "GenomeAnnotation: contigs is required and must be a non-empty string")
	}

	outputPath, _ := out["output_path"].(string)
	if outputPath == "" {
		errs = append(errs, "GenomeAnnotation: output_path is required and must be a non-empty string")
	}

	if taxonomyID, ok := out["taxonomy_id"]; ok && taxonomyID != nil {
		if n, ok := genomeAnnotationTaxonomyID(taxonomyID); !ok || n <= 0 {
			errs = append(errs, fmt.Sprintf("GenomeAnnotation: taxonomy_id must be a positive integer, got %v", taxonomyID))
		}
	}

	scientificName, _ := out["scientific_name"].(string)
	if scientificName == "" && !genomeAnnotationTaxonomyIDPresent(out) {
		warnings = append(warnings, "GenomeAnnotation: neither scientific_name nor taxonomy_id is provided; at least one is recommended for proper annotation")
	}

	if contigs != "" && !looksLikeTemplateRef(contigs) && !hasAnySuffix(contigs, genomeAnnotationFastaSuffixes) {
		warnings = append(warnings, fmt.Sprintf("GenomeAnnotation: contigs %q doesn't appear to be a FASTA file (should end with .fasta, .fa, or .fna) or a variable reference", contigs))
	}

	return Result{Params: out, Warnings: warnings, Errors: errs}
}

func genomeAnnotationTaxonomyIDPresent(params map[string]interface{}) bool {
	v, ok := params["taxonomy_id"]
	return ok && v != nil && v != ""
}

func genomeAnnotationTaxonomyID(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

type genomeAnnotationDefaults struct{}

func (genomeAnnotationDefaults) App() string { return "GenomeAnnotation" }

func (genomeAnnotationDefaults) Apply(params map[string]interface{}) map[string]interface{} {
	return mergeDefaults(params, map[string]interface{}{
		"output_file": "annotation_output",
	})
}

func init() {
	Default.RegisterValidator(&BaseValidator{AppID: "GenomeAnnotation", Params: genomeAnnotationParamsValidator{}})
	Default.RegisterDefaults(genomeAnnotationDefaults{})
}
