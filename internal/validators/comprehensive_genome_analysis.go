package validators

import "fmt"

// ComprehensiveGenomeAnalysis's enum allowlists and aliases, grounded on
// original_source/validators/comprehensive_genome_analysis_validator.py.
// internal/coercion owns normalizing these aliases before this validator
// runs; this validator only checks the already-normalized shape.
var cgaInputTypes = map[string]bool{"reads": true, "contigs": true, "genbank": true}
var cgaRecipes = map[string]bool{
	"auto": true, "unicycler": true, "canu": true, "spades": true,
	"meta-spades": true, "plasmid-spades": true, "single-cell": true, "flye": true,
}
var cgaDomains = map[string]bool{"Bacteria": true, "Archaea": true, "Viruses": true, "auto": true}
var cgaCodes = map[int]bool{0: true, 1: true, 4: true, 11: true, 25: true}

type cgaParamsValidator struct{}

func (cgaParamsValidator) ValidateParams(params map[string]interface{}) Result {
	var errs, warnings []string
	out := params

	inputType, _ := out["input_type"].(string)
	if inputType == "" {
		errs = append(errs, "ComprehensiveGenomeAnalysis: input_type is required")
	} else if !cgaInputTypes[inputType] {
		errs = append(errs, fmt.Sprintf("ComprehensiveGenomeAnalysis: input_type %q is not one of reads, contigs, genbank", inputType))
	}

	if recipe, ok := out["recipe"].(string); ok && recipe != "" && !cgaRecipes[recipe] {
		errs = append(errs, fmt.Sprintf("ComprehensiveGenomeAnalysis: recipe %q is not a known recipe", recipe))
	}

	if domain, ok := out["domain"].(string); ok && domain != "" && !cgaDomains[domain] {
		errs = append(errs, fmt.Sprintf("ComprehensiveGenomeAnalysis: domain %q is not one of Bacteria, Archaea, Viruses, auto", domain))
	}

	// Input-family exclusivity (exactly one of reads/contigs/genbank) is
	// enforced by internal/coercion.EvaluateConditionalRules, which runs
	// over every step's params before this validator does.

	for _, field := range []string{"output_path", "output_file", "scientific_name"} {
		v, _ := out[field].(string)
		if v == "" {
			errs = append(errs, fmt.Sprintf("ComprehensiveGenomeAnalysis: %s is required and must be a non-empty string", field))
		}
	}

	if code, ok := out["code"]; ok {
		if n, isInt := toInt(code); !isInt || !cgaCodes[n] {
			errs = append(errs, fmt.Sprintf("ComprehensiveGenomeAnalysis: code must be one of 0, 1, 4, 11, 25, got %v", code))
		}
	}

	return Result{Params: out, Warnings: warnings, Errors: errs}
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

type cgaDefaults struct{}

func (cgaDefaults) App() string { return "ComprehensiveGenomeAnalysis" }

func (cgaDefaults) Apply(params map[string]interface{}) map[string]interface{} {
	return mergeDefaults(params, map[string]interface{}{
		"recipe": "auto",
		"domain": "auto",
		"code":   0,
	})
}

func init() {
	Default.RegisterValidator(&BaseValidator{AppID: "ComprehensiveGenomeAnalysis", Params: cgaParamsValidator{}})
	Default.RegisterDefaults(cgaDefaults{})
}
