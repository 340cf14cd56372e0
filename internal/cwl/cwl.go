// Package cwl implements the CWL import adapter: a thin, deliberately
// shallow conversion from a Common Workflow Language Workflow document into
// this system's own workflow JSON shape. It is wired into the Workflow
// Manager façade (internal/manager) as ConvertCWL/SubmitCWL and does not
// attempt to support the full CWL specification — only the subset needed to
// map a CWL Workflow's steps, inputs, and outputs onto this system's steps,
// base_context, and workflow_outputs.
package cwl

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RawDocument is a decoded CWL document, still in its native map shape.
type RawDocument map[string]interface{}

// Parse decodes a CWL document from bytes. CWL documents are conventionally
// YAML, but YAML is a superset of JSON, so a single yaml.Unmarshal handles
// both; a YAML decoding error is returned as is, with no separate JSON
// attempt.
func Parse(data []byte) (RawDocument, error) {
	var doc RawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing CWL document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parsing CWL document: empty document")
	}
	return normalizeDoc(doc), nil
}

// normalizeDoc walks a yaml.v3-decoded map and flattens any
// map[string]interface{} nesting yaml.v3 already produces, present mainly so
// callers can rely on map[string]interface{} (not map[interface{}]interface{})
// throughout, matching the shapes encoding/json would have produced.
func normalizeDoc(doc RawDocument) RawDocument {
	out := make(RawDocument, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = normalizeValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
}

// DetectFormat reports whether doc looks like a CWL document: a declared
// class of Workflow/CommandLineTool, a cwlVersion field, or a dict-keyed
// steps field (CWL workflows key steps by name; this system's own workflow
// documents use a list of steps, so a dict-keyed steps field alone is
// enough to tell the two shapes apart).
func DetectFormat(doc RawDocument) bool {
	if class, ok := doc["class"].(string); ok {
		if class == "Workflow" || class == "CommandLineTool" {
			return true
		}
	}
	if _, ok := doc["cwlVersion"]; ok {
		return true
	}
	if steps, ok := doc["steps"]; ok {
		if _, ok := steps.(map[string]interface{}); ok {
			return true
		}
	}
	return false
}

// ValidateWorkflow checks that doc is a well-formed CWL Workflow: a
// class of "Workflow" and a dict-keyed steps field.
func ValidateWorkflow(doc RawDocument) error {
	class, _ := doc["class"].(string)
	if class != "Workflow" {
		return fmt.Errorf("not a CWL workflow: class is %q, expected \"Workflow\"", class)
	}
	if _, ok := doc["steps"].(map[string]interface{}); !ok {
		return fmt.Errorf("CWL workflow missing a dict-keyed steps field")
	}
	return nil
}

// ToolMapper maps CWL tool references (filenames, paths, or inline ids) to
// this system's app names, falling back to a kebab/snake_case-to-PascalCase
// convention when no explicit mapping is configured.
type ToolMapper struct {
	mappings map[string]string
	logger   *slog.Logger
}

// NewToolMapper builds a ToolMapper from an explicit mapping table (may be
// nil, in which case every lookup falls through to the naming convention).
func NewToolMapper(mappings map[string]string, logger *slog.Logger) *ToolMapper {
	if mappings == nil {
		mappings = map[string]string{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolMapper{mappings: mappings, logger: logger}
}

// LoadToolMappings parses a `tool_mappings:` YAML document of the kind
// config/tool_mappings.yaml held for the source converter.
func LoadToolMappings(data []byte) (map[string]string, error) {
	var doc struct {
		ToolMappings map[string]string `yaml:"tool_mappings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tool mappings: %w", err)
	}
	return doc.ToolMappings, nil
}

// MapToolToApp resolves a CWL tool reference to an app name.
func (m *ToolMapper) MapToolToApp(toolRef string) string {
	if app, ok := m.mappings[toolRef]; ok {
		return app
	}
	filename := path.Base(toolRef)
	if app, ok := m.mappings[filename]; ok {
		return app
	}
	base := strings.TrimSuffix(filename, ".cwl")
	if app, ok := m.mappings[base]; ok {
		return app
	}
	appName := convertToAppName(base)
	m.logger.Warn("no explicit tool mapping found, using convention-based name",
		"tool_ref", toolRef, "app_name", appName)
	return appName
}

// AddMapping registers an explicit tool_ref -> app_name mapping.
func (m *ToolMapper) AddMapping(toolRef, appName string) {
	m.mappings[toolRef] = appName
}

// convertToAppName converts kebab-case or snake_case to PascalCase, e.g.
// "metagenome-binning" -> "MetagenomeBinning".
func convertToAppName(toolName string) string {
	parts := strings.FieldsFunc(toolName, func(r rune) bool { return r == '-' || r == '_' })
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		if len(p) > 1 {
			b.WriteString(strings.ToLower(p[1:]))
		}
	}
	if b.Len() == 0 {
		return "UnknownApp"
	}
	return b.String()
}

var (
	cwlExpressionPattern = regexp.MustCompile(`\$\(([^)]+)\)`)
	stepOutputPattern    = regexp.MustCompile(`^steps\.([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)$`)
	inputRefPattern      = regexp.MustCompile(`^inputs\.([a-zA-Z_][a-zA-Z0-9_]*)$`)
	bareIdentPattern     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// translateExpression rewrites CWL `$(...)` expressions into this system's
// `${...}` template variables.
func translateExpression(expr string) string {
	matches := cwlExpressionPattern.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return expr
	}
	translated := expr
	for _, m := range matches {
		inner := m[1]
		translated = strings.ReplaceAll(translated, "$("+inner+")", translateSingleExpression(inner))
	}
	return translated
}

func translateSingleExpression(expr string) string {
	expr = strings.TrimSpace(expr)

	if m := stepOutputPattern.FindStringSubmatch(expr); m != nil {
		return fmt.Sprintf("${steps.%s.outputs.%s}", m[1], m[2])
	}
	if m := inputRefPattern.FindStringSubmatch(expr); m != nil {
		return fmt.Sprintf("${%s}", m[1])
	}
	if strings.HasPrefix(expr, "self.") {
		return fmt.Sprintf("${%s}", strings.TrimPrefix(expr, "self."))
	}
	if bareIdentPattern.MatchString(expr) {
		return fmt.Sprintf("${%s}", expr)
	}
	return fmt.Sprintf("${%s}", expr)
}

// extractStepDependencies scans a step's `in` inputs for step-output
// references ($(steps.name.output)) and returns the sorted, de-duplicated
// list of step names referenced.
func extractStepDependencies(stepInputs map[string]interface{}) []string {
	deps := make(map[string]bool)
	for _, v := range stepInputs {
		for _, d := range extractDepsFromValue(v) {
			deps[d] = true
		}
	}
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func extractDepsFromValue(value interface{}) []string {
	var deps []string
	switch v := value.(type) {
	case string:
		for _, m := range cwlExpressionPattern.FindAllStringSubmatch(v, -1) {
			inner := strings.TrimSpace(m[1])
			if sm := stepOutputPattern.FindStringSubmatch(inner); sm != nil {
				deps = append(deps, sm[1])
			}
		}
	case map[string]interface{}:
		for _, vv := range v {
			deps = append(deps, extractDepsFromValue(vv)...)
		}
	case []interface{}:
		for _, vv := range v {
			deps = append(deps, extractDepsFromValue(vv)...)
		}
	}
	return deps
}

// Converter converts a validated CWL Workflow RawDocument into this
// system's workflow JSON shape (a map ready to hand to the Compiler as the
// raw document of a register/submit call).
type Converter struct {
	toolMapper *ToolMapper
	logger     *slog.Logger
}

// NewConverter builds a Converter. A nil toolMapper falls through entirely
// to convention-based app naming.
func NewConverter(toolMapper *ToolMapper, logger *slog.Logger) *Converter {
	if toolMapper == nil {
		toolMapper = NewToolMapper(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{toolMapper: toolMapper, logger: logger}
}

// Convert turns a CWL Workflow document into this system's workflow format:
// workflow_name, version, base_context, steps, and (if present)
// workflow_outputs.
func (c *Converter) Convert(doc RawDocument) (map[string]interface{}, error) {
	if err := ValidateWorkflow(doc); err != nil {
		return nil, err
	}

	name := extractWorkflowName(doc)
	version := extractVersion(doc)
	baseContext := convertWorkflowInputs(asMap(doc["inputs"]))

	steps, err := c.convertSteps(asMap(doc["steps"]))
	if err != nil {
		return nil, err
	}

	workflow := map[string]interface{}{
		"workflow_name": name,
		"version":       version,
		"base_context":  baseContext,
		"steps":         steps,
	}

	if workflowOutputs := convertWorkflowOutputs(asSlice(doc["outputs"])); len(workflowOutputs) > 0 {
		workflow["workflow_outputs"] = workflowOutputs
	}

	c.logger.Info("converted CWL workflow", "workflow_name", name, "step_count", len(steps))
	return workflow, nil
}

func extractWorkflowName(doc RawDocument) string {
	if label, ok := doc["label"].(string); ok && label != "" {
		return label
	}
	if id, ok := doc["id"].(string); ok && id != "" {
		base := path.Base(id)
		return strings.TrimSuffix(base, path.Ext(base))
	}
	return "cwl-workflow"
}

func extractVersion(doc RawDocument) string {
	if v, ok := doc["cwlVersion"]; ok {
		return fmt.Sprintf("%v", v)
	}
	if v, ok := doc["version"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return "1.0"
}

// convertWorkflowInputs converts CWL workflow-level inputs to base_context,
// one template reference per input, and ensures base_url and
// workspace_output_folder are always present.
func convertWorkflowInputs(inputs map[string]interface{}) map[string]string {
	baseContext := make(map[string]string, len(inputs))

	names := make([]string, 0, len(inputs))
	for id := range inputs {
		names = append(names, id)
	}
	sort.Strings(names)

	for _, id := range names {
		def := inputs[id]
		if _, ok := def.(map[string]interface{}); ok {
			baseContext[id] = fmt.Sprintf("${%s}", id)
		} else {
			baseContext[id] = fmt.Sprintf("%v", def)
		}
	}

	if _, ok := baseContext["base_url"]; !ok {
		baseContext["base_url"] = "https://www.bv-brc.org"
	}

	if _, ok := baseContext["workspace_output_folder"]; !ok {
		baseContext["workspace_output_folder"] = "${workspace_output_folder}"
		for _, k := range names {
			lk := strings.ToLower(k)
			if strings.Contains(lk, "workspace") || strings.Contains(lk, "output") {
				baseContext["workspace_output_folder"] = baseContext[k]
				break
			}
		}
	}

	return baseContext
}

func (c *Converter) convertSteps(cwlSteps map[string]interface{}) ([]map[string]interface{}, error) {
	names := make([]string, 0, len(cwlSteps))
	for name := range cwlSteps {
		names = append(names, name)
	}
	sort.Strings(names)

	steps := make([]map[string]interface{}, 0, len(names))
	for _, stepName := range names {
		stepDef, ok := cwlSteps[stepName].(map[string]interface{})
		if !ok {
			c.logger.Warn("skipping invalid CWL step: not a mapping", "step_name", stepName)
			continue
		}

		toolRef, present := stepDef["run"]
		if !present || toolRef == nil {
			return nil, fmt.Errorf("step %q missing 'run' field (tool reference)", stepName)
		}

		var appName string
		switch t := toolRef.(type) {
		case string:
			appName = c.toolMapper.MapToolToApp(t)
		case map[string]interface{}:
			appName = c.extractAppFromInlineTool(t)
		default:
			return nil, fmt.Errorf("step %q has invalid tool reference: %v", stepName, toolRef)
		}

		stepInputs := asMap(stepDef["in"])
		params := convertStepInputs(stepInputs)
		stepOutputIDs := asStringSlice(stepDef["out"])
		outputs := convertStepOutputs(stepOutputIDs, params)
		dependsOn := extractStepDependencies(stepInputs)

		steps = append(steps, map[string]interface{}{
			"step_name":  stepName,
			"app":        appName,
			"params":     params,
			"outputs":    outputs,
			"depends_on": dependsOn,
		})
	}

	return steps, nil
}

func (c *Converter) extractAppFromInlineTool(tool map[string]interface{}) string {
	if label, ok := tool["label"].(string); ok {
		return c.toolMapper.MapToolToApp(label)
	}
	if id, ok := tool["id"].(string); ok {
		return c.toolMapper.MapToolToApp(id)
	}
	return "UnknownApp"
}

func convertStepInputs(stepInputs map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{}, len(stepInputs))
	for k, v := range stepInputs {
		params[k] = convertInputValue(v)
	}
	return params
}

func convertInputValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return translateExpression(v)
	case map[string]interface{}:
		if p, ok := v["path"]; ok {
			return p
		}
		if l, ok := v["location"]; ok {
			return l
		}
		out := make(map[string]interface{}, len(v))
		for k, vv := range v {
			out[k] = convertInputValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = convertInputValue(item)
		}
		return out
	default:
		return value
	}
}

// convertStepOutputs builds the outputs map for a step, one convention-based
// path per declared output id.
func convertStepOutputs(outputIDs []string, params map[string]interface{}) map[string]string {
	outputs := make(map[string]string, len(outputIDs))
	for _, id := range outputIDs {
		if basePath, ok := params["output_path"]; ok {
			if _, isString := basePath.(string); !isString {
				outputs[id] = fmt.Sprintf("%v/%s", basePath, id)
				continue
			}
		}
		outputs[id] = fmt.Sprintf("${params.output_path}/%s", id)
	}
	return outputs
}

func convertWorkflowOutputs(cwlOutputs []interface{}) []string {
	var workflowOutputs []string
	for _, def := range cwlOutputs {
		switch v := def.(type) {
		case string:
			workflowOutputs = append(workflowOutputs, v)
		case map[string]interface{}:
			source, _ := v["outputSource"].(string)
			if source != "" {
				workflowOutputs = append(workflowOutputs, translateExpression(fmt.Sprintf("$(%s)", source)))
			} else if id, ok := v["id"].(string); ok && id != "" {
				workflowOutputs = append(workflowOutputs, id)
			}
		}
	}
	return workflowOutputs
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asStringSlice(v interface{}) []string {
	s := asSlice(v)
	out := make([]string, 0, len(s))
	for _, item := range s {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
