package coercion

// CoerceStep runs the Field-Coercion & Rule Registry's pipeline over one
// step's params for service app, in the order spec §4.7 step 5 names:
// enum normalization, then type coercion, then conditional-required
// validation (batched). Field aliasing (spec §4.4's {alias -> canonical}
// table) is intentionally a no-op here: the source's
// coerce_workflow_definition body that would have populated per-service
// alias tables was not present anywhere in the retrieved original
// implementation (see DESIGN.md), so there is no concrete alias data to
// carry forward beyond the enum tables in enum_normalization.go.
func CoerceStep(app string, params map[string]interface{}) (out map[string]interface{}, errs []string) {
	out = normalizeEnums(app, params)
	out = CoerceFields(app, out)
	errs = EvaluateConditionalRules(app, out)
	return out, errs
}

// normalizeEnums applies the per-app enum alias tables to a copy of
// params before type coercion and rule evaluation run.
func normalizeEnums(app string, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}

	switch app {
	case "Homology":
		if v, ok := out["db_precomputed_database"].(string); ok {
			out["db_precomputed_database"] = NormalizeHomologyPrecomputedDB(v)
		}
	case "ComprehensiveGenomeAnalysis":
		if v, ok := out["input_type"].(string); ok {
			out["input_type"] = NormalizeCGAInputType(v)
		}
		if v, ok := out["recipe"].(string); ok {
			out["recipe"] = NormalizeCGARecipe(v)
		}
		if v, ok := out["domain"].(string); ok {
			out["domain"] = NormalizeCGADomain(v)
		}
		if v, ok := out["code"].(string); ok {
			if code, matched := NormalizeCGACode(v); matched {
				out["code"] = code
			}
		}
	}

	return out
}
