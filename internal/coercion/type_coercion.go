package coercion

import (
	"regexp"
	"strconv"
)

// ServiceFieldCoercers holds the service-specific coercer table
// ({service -> {field -> coercer kind}}), applied before the
// pattern-based layer (spec §4.4). Kinds: "list", "integer", "float",
// "bool".
var ServiceFieldCoercers = map[string]map[string]string{
	"Homology": {
		"input_id_list": "list",
	},
	"ComprehensiveGenomeAnalysis": {
		"srr_ids": "list",
		"code":    "integer",
	},
}

// patternRule is one entry of the fixed, ordered pattern-based coercion
// list: the first matching pattern for a field is applied, but only if no
// service-specific rule already fired for that field.
type patternRule struct {
	pattern *regexp.Regexp
	kind    string
}

var patternRules = []patternRule{
	{regexp.MustCompile(`_(id_list|ids|list)$`), "list"},
	{regexp.MustCompile(`_(count|num|number)$`), "integer"},
	{regexp.MustCompile(`^(num_|n_)`), "integer"},
	{regexp.MustCompile(`_(threshold|evalue|cutoff|fraction|ratio)$`), "float"},
	{regexp.MustCompile(`^(enable_|disable_|skip_|use_|include_|exclude_)`), "bool"},
}

// CoerceFields applies the two-layer type-coercion pass to params for the
// given service, mutating a copy and returning it. Coercion is
// non-destructive: a value already of the target type is left unchanged.
func CoerceFields(service string, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}

	serviceCoercers := ServiceFieldCoercers[service]

	for field, value := range out {
		if kind, ok := serviceCoercers[field]; ok {
			out[field] = coerceValue(value, kind)
			continue
		}
		for _, rule := range patternRules {
			if rule.pattern.MatchString(field) {
				out[field] = coerceValue(value, rule.kind)
				break
			}
		}
	}

	return out
}

func coerceValue(value interface{}, kind string) interface{} {
	switch kind {
	case "list":
		return coerceList(value)
	case "integer":
		return coerceInt(value)
	case "float":
		return coerceFloat(value)
	case "bool":
		return coerceBool(value)
	default:
		return value
	}
}

func coerceList(value interface{}) interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case nil:
		return v
	case string:
		if v == "" {
			return []interface{}{}
		}
		return []interface{}{v}
	default:
		return []interface{}{v}
	}
}

func coerceInt(value interface{}) interface{} {
	switch v := value.(type) {
	case int, int64:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return v
	default:
		return v
	}
}

func coerceFloat(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	default:
		return v
	}
}

func coerceBool(value interface{}) interface{} {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return v
	default:
		return v
	}
}
