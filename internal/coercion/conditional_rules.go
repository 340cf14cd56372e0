package coercion

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionalRule is one entry of the {service -> [rules]} table (spec
// §4.4): when condition_field == equals, every field in Required must be
// present (non-empty), and at least one of RequiredOneOf must be present.
type ConditionalRule struct {
	ConditionField string
	Equals         string
	Required       []string
	RequiredOneOf  []string
	Message        string
}

// ConditionalRules is the {service -> [rules]} table, seeded with the
// cross-service examples spec §4.4 calls out explicitly.
var ConditionalRules = map[string][]ConditionalRule{
	"Homology": {
		{
			ConditionField: "input_source",
			Equals:         "id_list",
			Required:       []string{"input_id_list"},
			Message:        "when input_source is id_list, input_id_list must be non-empty",
		},
		{
			ConditionField: "db_source",
			Equals:         "id_list",
			Required:       []string{"db_id_list"},
			Message:        "when db_source is id_list, db_id_list must be non-empty",
		},
	},
}

// conditionEvaluator compiles and caches condition expressions with
// expr-lang, mirroring the teacher's expression.Evaluator double-checked
// compile-cache shape.
type conditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

var conditions = &conditionEvaluator{cache: make(map[string]*vm.Program)}

func (c *conditionEvaluator) matches(field, equals string, params map[string]interface{}) (bool, error) {
	exprStr := fmt.Sprintf("%s == value", field)

	c.mu.RLock()
	program, ok := c.cache[exprStr]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if program, ok = c.cache[exprStr]; !ok {
			compiled, err := expr.Compile(exprStr, expr.AllowUndefinedVariables())
			if err != nil {
				c.mu.Unlock()
				return false, err
			}
			program = compiled
			c.cache[exprStr] = program
		}
		c.mu.Unlock()
	}

	env := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		env[k] = v
	}
	env["value"] = equals

	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	matched, _ := result.(bool)
	return matched, nil
}

// EvaluateConditionalRules checks every conditional rule registered for
// app against params, returning one message per violation (spec §4.4:
// "early errors ... reported as a batch").
func EvaluateConditionalRules(app string, params map[string]interface{}) []string {
	var violations []string

	for _, rule := range ConditionalRules[app] {
		matched, err := conditions.matches(rule.ConditionField, rule.Equals, params)
		if err != nil || !matched {
			continue
		}

		for _, field := range rule.Required {
			if !isNonEmpty(params[field]) {
				violations = append(violations, rule.Message)
				break
			}
		}

		if len(rule.RequiredOneOf) > 0 {
			anyPresent := false
			for _, field := range rule.RequiredOneOf {
				if isNonEmpty(params[field]) {
					anyPresent = true
					break
				}
			}
			if !anyPresent {
				violations = append(violations, rule.Message)
			}
		}
	}

	switch app {
	case "Homology":
		violations = append(violations, checkHomologyPrecomputedAllowlist(params)...)
	case "ComprehensiveGenomeAnalysis":
		violations = append(violations, checkCGAInputFamilyExclusivity(params)...)
	}

	return violations
}

// cgaInputFamilyFields groups ComprehensiveGenomeAnalysis's three mutually
// exclusive input families, mirroring has_reads/has_contigs/has_genbank in
// comprehensive_genome_analysis_validator.py.
var cgaInputFamilyFields = map[string][]string{
	"reads":   {"paired_end_libs", "single_end_libs", "srr_ids"},
	"contigs": {"contigs", "reference_assembly"},
	"genbank": {"genbank_file", "gto"},
}

// checkCGAInputFamilyExclusivity enforces spec §4.4's "exactly one
// corresponding input family must be provided; conflicting families must
// be absent" for ComprehensiveGenomeAnalysis's input_type.
func checkCGAInputFamilyExclusivity(params map[string]interface{}) []string {
	inputType, _ := params["input_type"].(string)
	if _, ok := cgaInputFamilyFields[inputType]; !ok {
		return nil
	}

	present := make(map[string]bool, len(cgaInputFamilyFields))
	for family, fields := range cgaInputFamilyFields {
		for _, field := range fields {
			if isNonEmpty(params[field]) {
				present[family] = true
				break
			}
		}
	}

	var violations []string
	if !present[inputType] {
		violations = append(violations, fmt.Sprintf(
			"when input_type is '%s', provide at least one of: %s",
			inputType, fieldList(cgaInputFamilyFields[inputType]),
		))
	}
	for family := range cgaInputFamilyFields {
		if family != inputType && present[family] {
			violations = append(violations, fmt.Sprintf(
				"when input_type is '%s', do not provide %s inputs", inputType, family,
			))
		}
	}
	return violations
}

func fieldList(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}

// checkHomologyPrecomputedAllowlist enforces the allowlist named in spec
// §4.4's example directly (the conditional-required check above only
// verifies presence, not allowlist membership).
func checkHomologyPrecomputedAllowlist(params map[string]interface{}) []string {
	dbSource, _ := params["db_source"].(string)
	if dbSource != "precomputed_database" {
		return nil
	}
	dbValue, _ := params["db_precomputed_database"].(string)
	normalized := NormalizeHomologyPrecomputedDB(dbValue)
	if !HomologyPrecomputedDatabases[normalized] {
		return []string{fmt.Sprintf(
			"db_precomputed_database %q is not one of bacteria-archaea, viral-reference", dbValue,
		)}
	}
	return nil
}

func isNonEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	default:
		return true
	}
}
