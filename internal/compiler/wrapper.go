package compiler

import "strings"

// wrapperFields are top-level keys the HTTP surface or an upstream planner
// may send alongside (or instead of) the bare workflow document; they are
// discarded before decoding, matching the source's tolerance for a
// `workflow_json`-wrapped payload.
var wrapperFields = []string{"workflow_json", "planner_metadata", "plan_metadata"}

// stripWrapper unwraps a `{"workflow_json": {...}}`-shaped payload to its
// inner document (if present) and discards any remaining planner-metadata
// keys the compiler does not consume (spec §4.7 step 1).
func stripWrapper(raw map[string]interface{}) map[string]interface{} {
	if inner, ok := raw["workflow_json"].(map[string]interface{}); ok {
		raw = inner
	}

	cleaned := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		switch k {
		case "planner_metadata", "plan_metadata":
			continue
		default:
			cleaned[k] = v
		}
	}
	return cleaned
}

// cgaEmptyOptionalFields and taxonomicEmptyOptionalFields name the params
// fields that are optional but must not be present as empty lists, per
// app, grounded on original_source/utils/workflow_cleaner.py.
var cgaEmptyOptionalFields = []string{"paired_end_libs", "single_end_libs", "srr_ids"}
var taxonomicEmptyOptionalFields = []string{"paired_end_libs", "single_end_libs", "srr_libs"}

// stripEmptyOptionalArrays removes empty-list values for the app-specific
// optional fields above so that a present-but-empty field does not later
// trip a validator's "field is present but invalid" check — the validator
// should see an absent field and fall through to its input-family
// requirement instead (spec §4.7 step 3).
func stripEmptyOptionalArrays(raw map[string]interface{}) map[string]interface{} {
	stepsRaw, ok := raw["steps"].([]interface{})
	if !ok {
		return raw
	}

	for _, stepRaw := range stepsRaw {
		step, ok := stepRaw.(map[string]interface{})
		if !ok {
			continue
		}
		app, _ := step["app"].(string)
		params, ok := step["params"].(map[string]interface{})
		if !ok {
			continue
		}

		var fields []string
		switch normalizedAppKey(app) {
		case "comprehensivegenomeanalysis":
			fields = cgaEmptyOptionalFields
		case "taxonomicclassification":
			fields = taxonomicEmptyOptionalFields
		}

		for _, field := range fields {
			if list, ok := params[field].([]interface{}); ok && len(list) == 0 {
				delete(params, field)
			}
		}
	}

	return raw
}

var appKeyStripper = strings.NewReplacer("-", "", "_", "")

func normalizedAppKey(app string) string {
	return appKeyStripper.Replace(strings.ToLower(app))
}
