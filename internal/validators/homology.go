package validators

import "fmt"

// homologyInputSources and homologyDBSources are the allowlists for
// input_source and db_source. The db_precomputed_database allowlist
// (coercion.HomologyPrecomputedDatabases) and its conditional rule live in
// internal/coercion; this validator only checks param shape, not the
// cross-field allowlist.
var homologyInputSources = map[string]bool{"id_list": true, "fasta": true, "workspace": true}
var homologyDBSources = map[string]bool{"id_list": true, "precomputed_database": true, "workspace": true}

// homologyParamsValidator validates Homology/BLAST step params.
type homologyParamsValidator struct{}

func (homologyParamsValidator) ValidateParams(params map[string]interface{}) Result {
	var errs, warnings []string
	out := params

	inputSource, _ := out["input_source"].(string)
	if inputSource == "" {
		errs = append(errs, "Homology: input_source is required")
	} else if !homologyInputSources[inputSource] {
		errs = append(errs, fmt.Sprintf("Homology: input_source %q is not one of id_list, fasta, workspace", inputSource))
	}

	dbSource, _ := out["db_source"].(string)
	if dbSource == "" {
		errs = append(errs, "Homology: db_source is required")
	} else if !homologyDBSources[dbSource] {
		errs = append(errs, fmt.Sprintf("Homology: db_source %q is not one of id_list, precomputed_database, workspace", dbSource))
	}

	if outputPath, ok := out["output_path"].(string); ok && outputPath != "" {
		if !looksLikeTemplateRef(outputPath) && !isAbsolutePath(outputPath) {
			warnings = append(warnings, fmt.Sprintf("Homology: output_path %q is neither a template reference nor absolute", outputPath))
		}
	}

	return Result{Params: out, Warnings: warnings, Errors: errs}
}

func looksLikeTemplateRef(s string) bool {
	return len(s) > 3 && s[0] == '$' && s[1] == '{' && s[len(s)-1] == '}'
}

func isAbsolutePath(s string) bool {
	return len(s) > 0 && s[0] == '/'
}

func init() {
	Default.RegisterValidator(&BaseValidator{AppID: "Homology", Params: homologyParamsValidator{}})
}
