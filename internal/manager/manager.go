// Package manager implements the Workflow Manager façade (spec §4.11): the
// single entry point for planning, registering, validating, submitting,
// cancelling, and querying workflows. It composes the Compiler and the
// State Store; the Execution Loop talks to the State Store directly and
// never goes through this package.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"time"

	"github.com/bvbrc/workflow-conductor/internal/compiler"
	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/cwl"
	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/validators"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
	"github.com/bvbrc/workflow-conductor/internal/workspace"
)

// stateStore is the slice of internal/store.Store's surface the Manager
// needs; internal/store.Store satisfies it without this package importing
// a concrete Mongo-backed type, which keeps it testable without a database.
type stateStore interface {
	Save(ctx context.Context, wf *store.Workflow) error
	Get(ctx context.Context, workflowID string) (*store.Workflow, error)
	UpdateWorkflowFields(ctx context.Context, workflowID string, updates map[string]interface{}) error
}

// Manager is the Workflow Manager façade.
type Manager struct {
	store            stateStore
	registry         *validators.Registry
	prober           workspace.Prober
	workspace        config.WorkspaceConfig
	logDir           string
	maxParallelSteps int
	cwlConverter     *cwl.Converter
	logger           *slog.Logger
}

// New constructs a Manager. registry/prober/wsCfg are forwarded verbatim
// into every compiler.Options this Manager builds; logDir and
// maxParallelSteps seed submit_planned's log_file_path and
// execution_metadata.max_parallel_steps (spec §4.11). toolMappings configures
// the CWL import adapter's tool-reference-to-app-name lookup (may be nil, in
// which case every CWL tool reference falls through to convention-based
// naming).
func New(st *store.Store, registry *validators.Registry, prober workspace.Prober, wsCfg config.WorkspaceConfig, logDir string, maxParallelSteps int, toolMappings map[string]string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallelSteps <= 0 {
		maxParallelSteps = 3
	}
	return &Manager{
		store:            st,
		registry:         registry,
		prober:           prober,
		workspace:        wsCfg,
		logDir:           logDir,
		maxParallelSteps: maxParallelSteps,
		cwlConverter:     cwl.NewConverter(cwl.NewToolMapper(toolMappings, logger), logger),
		logger:           logger,
	}
}

func (m *Manager) compileOptions(authToken string) compiler.Options {
	return compiler.Options{
		Registry:  m.registry,
		Prober:    m.prober,
		Workspace: m.workspace,
		AuthToken: authToken,
	}
}

var workflowIDPattern = regexp.MustCompile(`^wf_[0-9]+_[0-9]+$`)

// generateWorkflowID produces a locally-invented identifier in the
// documented `wf_<ms-since-epoch>_<rand>` shape (spec §3).
func generateWorkflowID() string {
	return fmt.Sprintf("wf_%d_%04d", time.Now().UTC().UnixMilli(), rand.Intn(9000)+1000)
}

// clearRuntimeFields strips the fields a planned-but-not-yet-submitted
// workflow must not carry (spec §4.11: "planned workflows should not have
// execution state initialized yet").
func clearRuntimeFields(wf *store.Workflow) {
	wf.ExecutionMetadata = nil
	wf.LogFilePath = ""
	wf.StartedAt = nil
	wf.CompletedAt = nil
}

// Plan persists raw as-is (after light cleanup and compile-time variable
// resolution only) with a freshly generated workflow_id and status=planned.
// No schema validation runs; validation is left to a later, explicit stage
// (spec §4.11 plan).
func (m *Manager) Plan(ctx context.Context, raw map[string]interface{}, authToken string) (*store.Workflow, error) {
	m.logger.Info("planning workflow")

	wf, err := compiler.Plan(raw)
	if err != nil {
		return nil, err
	}

	wf.WorkflowID = generateWorkflowID()
	wf.Status = store.StatusPlanned
	clearRuntimeFields(wf)
	if authToken != "" {
		wf.AuthToken = authToken
	}
	for i := range wf.Steps {
		if wf.Steps[i].Status == "" {
			wf.Steps[i].Status = "planned"
		}
	}

	if err := m.store.Save(ctx, wf); err != nil {
		return nil, err
	}

	m.logger.Info("workflow planned", "workflow_id", wf.WorkflowID, "step_count", len(wf.Steps))
	return wf, nil
}

// Register runs the full compile pipeline (§4.7) over raw and persists the
// result with status=planned. A well-formed caller-supplied workflow_id is
// adopted; otherwise one is generated.
func (m *Manager) Register(ctx context.Context, raw map[string]interface{}, authToken string) (*store.Workflow, []string, error) {
	m.logger.Info("registering workflow")

	result, err := compiler.Compile(raw, m.compileOptions(authToken))
	if err != nil {
		return nil, nil, err
	}
	wf := result.Workflow

	if id, ok := raw["workflow_id"].(string); ok && workflowIDPattern.MatchString(id) {
		wf.WorkflowID = id
		m.logger.Info("adopting caller-supplied workflow_id", "workflow_id", id)
	} else {
		wf.WorkflowID = generateWorkflowID()
		m.logger.Info("generated new workflow_id", "workflow_id", wf.WorkflowID)
	}

	wf.Status = store.StatusPlanned
	clearRuntimeFields(wf)
	if authToken != "" {
		wf.AuthToken = authToken
	}
	for i := range wf.Steps {
		if wf.Steps[i].Status == "" {
			wf.Steps[i].Status = "planned"
		}
	}

	if err := m.store.Save(ctx, wf); err != nil {
		return nil, nil, err
	}

	m.logger.Info("workflow registered", "workflow_id", wf.WorkflowID, "status", "planned", "step_count", len(wf.Steps))
	return wf, result.Warnings, nil
}

// ValidateResult is the outcome of a validate-only compile pass.
type ValidateResult struct {
	Workflow  *store.Workflow
	Warnings  []string
	AutoFixes []string
}

// Validate runs the same compile pipeline as Register but never assigns a
// workflow_id and never persists anything (spec §4.11 validate).
func (m *Manager) Validate(ctx context.Context, raw map[string]interface{}, authToken string) (*ValidateResult, error) {
	m.logger.Info("validating workflow (no persistence)")

	originalJSON, _ := json.Marshal(raw)

	result, err := compiler.Compile(raw, m.compileOptions(authToken))
	if err != nil {
		return nil, err
	}

	var autoFixes []string
	if containsTemplateRef(string(originalJSON)) {
		autoFixes = append(autoFixes, "Resolved template variables from base_context and step outputs")
	}
	if len(result.Warnings) > 0 {
		autoFixes = append(autoFixes, "Applied service defaults/normalization during validation")
	}

	return &ValidateResult{
		Workflow:  result.Workflow,
		Warnings:  result.Warnings,
		AutoFixes: autoFixes,
	}, nil
}

func containsTemplateRef(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '$' && s[i+1] == '{' {
			return true
		}
	}
	return false
}

// Submit is the single idempotent submission entry point (spec §4.11
// submit). A payload containing only workflow_id delegates to
// SubmitPlanned; anything else is registered first, then submitted.
func (m *Manager) Submit(ctx context.Context, payload map[string]interface{}, authToken string) (*store.Workflow, error) {
	if id, ok := payload["workflow_id"].(string); ok && id != "" {
		if _, hasSteps := payload["steps"]; !hasSteps {
			m.logger.Info("submit received workflow_id-only payload; delegating to planned submission", "workflow_id", id)
			return m.SubmitPlanned(ctx, id, authToken)
		}
	}

	wf, _, err := m.Register(ctx, payload, authToken)
	if err != nil {
		return nil, err
	}
	return m.SubmitPlanned(ctx, wf.WorkflowID, authToken)
}

// ConvertCWL parses and converts a CWL Workflow document into this system's
// workflow JSON shape without registering or persisting it, matching
// workflow_manager.py's convert_cwl_workflow — a supplemented operation not
// named in spec.md's component list but present in the source this system
// was distilled from (see SPEC_FULL.md's SUPPLEMENTED FEATURES).
func (m *Manager) ConvertCWL(cwlDocument []byte) (map[string]interface{}, error) {
	doc, err := cwl.Parse(cwlDocument)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeValidation, err, "parsing CWL document")
	}
	if !cwl.DetectFormat(doc) {
		return nil, wferrors.Newf(wferrors.TypeValidation, "document does not look like a CWL workflow")
	}
	converted, err := m.cwlConverter.Convert(doc)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeValidation, err, "converting CWL workflow")
	}
	return converted, nil
}

// SubmitCWL converts a CWL Workflow document and submits the result exactly
// as Submit would, matching workflow_manager.py's submit_cwl_workflow.
func (m *Manager) SubmitCWL(ctx context.Context, cwlDocument []byte, authToken string) (*store.Workflow, error) {
	converted, err := m.ConvertCWL(cwlDocument)
	if err != nil {
		return nil, err
	}
	return m.Submit(ctx, converted, authToken)
}

// SubmitPlanned validates and promotes a persisted planned workflow to
// pending execution (spec §4.11 submit_planned). Already-pending workflows
// are treated as an idempotent no-op rather than an error.
func (m *Manager) SubmitPlanned(ctx context.Context, workflowID string, authToken string) (*store.Workflow, error) {
	m.logger.Info("submitting planned workflow", "workflow_id", workflowID)

	wf, err := m.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf.Status == store.StatusPending {
		m.logger.Info("workflow already pending; submit is idempotent", "workflow_id", workflowID)
		return wf, nil
	}
	if wf.Status != store.StatusPlanned {
		return nil, wferrors.Newf(wferrors.TypeConflict, "workflow %s cannot be submitted from status %q", workflowID, wf.Status)
	}

	validationToken := authToken
	if validationToken == "" {
		validationToken = wf.AuthToken
	}

	raw, err := sanitizeForValidation(wf)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeInternal, err, "preparing workflow for late validation")
	}

	result, err := compiler.Compile(raw, m.compileOptions(validationToken))
	if err != nil {
		return nil, err
	}
	validated := result.Workflow

	for i := range validated.Steps {
		validated.Steps[i].Status = store.StatusPending
	}

	executionMetadata := &store.ExecutionMetadata{
		TotalSteps:       len(validated.Steps),
		PendingSteps:     len(validated.Steps),
		MaxParallelSteps: m.maxParallelSteps,
	}

	updates := map[string]interface{}{
		"steps":              validated.Steps,
		"status":             store.StatusPending,
		"execution_metadata": executionMetadata,
		"log_file_path":      fmt.Sprintf("%s/%s.log", m.logDir, workflowID),
	}
	if authToken != "" {
		updates["auth_token"] = authToken
	}

	if err := m.store.UpdateWorkflowFields(ctx, workflowID, updates); err != nil {
		return nil, err
	}

	wf.Steps = validated.Steps
	wf.Status = store.StatusPending
	wf.ExecutionMetadata = executionMetadata
	wf.LogFilePath = fmt.Sprintf("%s/%s.log", m.logDir, workflowID)
	if authToken != "" {
		wf.AuthToken = authToken
	}

	m.logger.Info("planned workflow promoted to pending", "workflow_id", workflowID)
	return wf, nil
}

// sanitizeForValidation strips persistence/runtime fields before handing a
// stored workflow back through the compile pipeline, mirroring
// workflow_manager.py's _sanitize_workflow_for_validation. workflow_id is
// intentionally preserved since the compile pipeline does not use it for
// identity (the Manager assigns identity separately).
func sanitizeForValidation(wf *store.Workflow) (map[string]interface{}, error) {
	body, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	for _, field := range []string{
		"status", "created_at", "updated_at", "started_at", "completed_at",
		"execution_metadata", "log_file_path", "auth_token",
	} {
		delete(raw, field)
	}

	if steps, ok := raw["steps"].([]interface{}); ok {
		for _, s := range steps {
			step, ok := s.(map[string]interface{})
			if !ok {
				continue
			}
			for _, field := range []string{
				"step_id", "status", "task_id", "submitted_at", "started_at",
				"completed_at", "elapsed_time", "error_message",
			} {
				delete(step, field)
			}
		}
	}

	return raw, nil
}

// Cancel marks a workflow cancelled unless it is already in a terminal
// state (spec §4.11 cancel). The Execution Loop observes the change on its
// next tick.
func (m *Manager) Cancel(ctx context.Context, workflowID string) error {
	wf, err := m.store.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	if store.IsTerminalWorkflowStatus(wf.Status) {
		return wferrors.Newf(wferrors.TypeConflict, "workflow %s is already in terminal status %q", workflowID, wf.Status)
	}

	if err := m.store.UpdateWorkflowFields(ctx, workflowID, map[string]interface{}{
		"status": store.StatusCancelled,
	}); err != nil {
		return err
	}
	m.logger.Info("workflow cancelled", "workflow_id", workflowID)
	return nil
}

// Status returns the stored workflow document for a read-only status
// projection (spec §4.11 status).
func (m *Manager) Status(ctx context.Context, workflowID string) (*store.Workflow, error) {
	return m.store.Get(ctx, workflowID)
}

// Get returns the full stored workflow document (spec §4.11 get).
func (m *Manager) Get(ctx context.Context, workflowID string) (*store.Workflow, error) {
	return m.store.Get(ctx, workflowID)
}

// UpdateWorkflowStatus is the low-level status setter the Execution Loop
// uses directly against the State Store; this wrapper exists so the
// façade's method set matches spec §4.11 for callers (the admin surface,
// tests) that want the Manager's validation of "workflow must exist".
func (m *Manager) UpdateWorkflowStatus(ctx context.Context, workflowID, status string) error {
	return m.store.UpdateWorkflowFields(ctx, workflowID, map[string]interface{}{
		"status": status,
	})
}
