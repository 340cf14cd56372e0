// Package validators implements the Step Validators and Defaults registry
// (spec §4.5): a pluggable, per-application map from app id to a strict
// parameter validator and/or a non-destructive defaults provider.
package validators

import (
	"fmt"
	"strings"
	"sync"
)

// Step is the minimal view of a workflow step a validator needs: its app,
// params, and declared outputs.
type Step struct {
	App     string
	Params  map[string]interface{}
	Outputs map[string]string
}

// Result is the outcome of validating one step (spec §4.5): the
// (possibly adjusted) params plus any warnings and errors. Errors are
// fatal to the step; warnings are informational only.
type Result struct {
	Params   map[string]interface{}
	Warnings []string
	Errors   []string
}

func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

// ParamsValidator is the per-application piece a concrete validator
// implements: strict checks over params alone.
type ParamsValidator interface {
	ValidateParams(params map[string]interface{}) Result
}

// Validator is a per-application strict step validator, registered by its
// canonical App() id.
type Validator interface {
	App() string
	// ValidateStep validates an entire step: confirms step.App matches
	// this validator's app, delegates to the app-specific params check,
	// then validates the declared outputs (spec §4.5 points 1, 2, 4).
	ValidateStep(step Step) Result
}

// BaseValidator implements the common ValidateStep template-method shape
// (app match, delegate to Params, then check outputs) so a concrete
// per-app validator only has to supply a ParamsValidator.
type BaseValidator struct {
	AppID  string
	Params ParamsValidator
}

func (b *BaseValidator) App() string { return b.AppID }

func (b *BaseValidator) ValidateStep(step Step) Result {
	var errs, warnings []string

	if step.App != b.AppID {
		errs = append(errs, fmt.Sprintf("step app %q does not match validator app %q", step.App, b.AppID))
	}

	paramResult := b.Params.ValidateParams(step.Params)
	errs = append(errs, paramResult.Errors...)
	warnings = append(warnings, paramResult.Warnings...)

	if len(step.Outputs) > 0 {
		outWarnings, outErrs := validateOutputs(step.Outputs, paramResult.Params)
		warnings = append(warnings, outWarnings...)
		errs = append(errs, outErrs...)
	}

	return Result{Params: paramResult.Params, Warnings: warnings, Errors: errs}
}

// validateOutputs checks that declared output templates reference either
// ${params.output_path} or ${params.output_file}; anything else is a
// warning, not an error (spec §4.5 point 4).
func validateOutputs(outputs map[string]string, params map[string]interface{}) (warnings, errs []string) {
	for name, tmpl := range outputs {
		if !strings.Contains(tmpl, "${params.output_path}") && !strings.Contains(tmpl, "${params.output_file}") {
			warnings = append(warnings, fmt.Sprintf("output %q does not reference ${params.output_path} or ${params.output_file}: %q", name, tmpl))
		}
	}
	return warnings, errs
}

// Defaults is a per-application non-destructive defaults provider.
type Defaults interface {
	// App is the canonical application id these defaults are for.
	App() string
	// Apply merges defaults into params: keys already present in params are
	// never overwritten, and nested objects are merged key-wise.
	Apply(params map[string]interface{}) map[string]interface{}
}

// Registry holds the app -> Validator and app -> Defaults maps. The zero
// value is usable; a package-level Default registry is populated by init()
// for every built-in app.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
	defaults   map[string]Defaults
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]Validator),
		defaults:   make(map[string]Defaults),
	}
}

// RegisterValidator registers v under its own App() id, replacing any
// previous registration for that app.
func (r *Registry) RegisterValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[v.App()] = v
}

// RegisterDefaults registers d under its own App() id, replacing any
// previous registration for that app.
func (r *Registry) RegisterDefaults(d Defaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[d.App()] = d
}

// GetValidator returns the validator registered for app, if any.
func (r *Registry) GetValidator(app string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[app]
	return v, ok
}

// GetDefaults returns the defaults provider registered for app, if any.
func (r *Registry) GetDefaults(app string) (Defaults, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defaults[app]
	return d, ok
}

// IsRegistered reports whether app has either a validator or a defaults
// provider — the test coercion's app-name normalization uses to decide
// whether a candidate name resolves to a known target (spec §4.4).
func (r *Registry) IsRegistered(app string) bool {
	_, hasV := r.GetValidator(app)
	_, hasD := r.GetDefaults(app)
	return hasV || hasD
}

// Default is the package-wide registry populated with every built-in
// app's validator/defaults by this package's init().
var Default = NewRegistry()

// mergeDefaults merges src into dst non-destructively: keys already in dst
// win; nested map[string]interface{} values are merged key-wise rather
// than overwritten wholesale.
func mergeDefaults(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		existing, present := dst[k]
		if !present {
			dst[k] = v
			continue
		}
		existingMap, eOK := existing.(map[string]interface{})
		srcMap, sOK := v.(map[string]interface{})
		if eOK && sOK {
			dst[k] = mergeDefaults(existingMap, srcMap)
		}
		// else: existing wins, non-destructive.
	}
	return dst
}
