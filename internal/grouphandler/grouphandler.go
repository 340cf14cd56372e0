// Package grouphandler implements the In-Process Step Handler for
// CreateGroup steps (spec §4.12): unlike every other app, these steps are
// executed synchronously inside the Executor instead of being dispatched
// to the Scheduler Gateway.
package grouphandler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bvbrc/workflow-conductor/internal/execontext"
	"github.com/bvbrc/workflow-conductor/internal/resolver"
	"github.com/bvbrc/workflow-conductor/internal/store"
)

// Result is the shape returned by the external group-creation library
// (spec §4.12 step 5): create_groups_from_job_results(paths, type, name,
// service_type?, token, output_group_path?).
type Result struct {
	Success       bool
	GroupPath     string
	IDsCount      int
	JobsProcessed int
	JobsSkipped   int
	Statistics    map[string]interface{}
	Error         string
}

// Creator is the external group-creation library's interface. Production
// deployments wire a real implementation backed by the BV-BRC groups
// service; it is not part of this module's dependency stack.
type Creator interface {
	CreateGroupsFromJobResults(ctx context.Context, jobResultPaths []string, groupType, groupName, serviceType, outputGroupPath, authToken string) (Result, error)
}

// UnavailableCreator is the default Creator: it fails every call, mirroring
// the source's GROUPS_MODULE_AVAILABLE=false fallback when the groups
// library is not installed.
type UnavailableCreator struct{}

func (UnavailableCreator) CreateGroupsFromJobResults(context.Context, []string, string, string, string, string, string) (Result, error) {
	return Result{}, fmt.Errorf("group creation backend is not available")
}

var validGroupTypes = map[string]bool{"genome": true, "feature": true}

// stateStore is the slice of internal/store.Store's mutators this handler
// needs; internal/store.Store satisfies it without this package importing
// a concrete Mongo-backed type, which keeps it testable without a database.
type stateStore interface {
	UpdateStepByName(ctx context.Context, workflowID, stepName string, updates map[string]interface{}) error
	UpdateStepFields(ctx context.Context, workflowID, stepID string, updates map[string]interface{}) error
	AddToCompletedSteps(ctx context.Context, workflowID, stepID string) error
	IncrementWorkflowField(ctx context.Context, workflowID, path string, delta int) error
}

// Handler dispatches CreateGroup steps directly against Creator, bypassing
// the Scheduler Gateway entirely.
type Handler struct {
	Creator Creator
	Store   stateStore
}

// New constructs a Handler. A nil creator falls back to UnavailableCreator.
func New(creator Creator, st *store.Store) *Handler {
	if creator == nil {
		creator = UnavailableCreator{}
	}
	return &Handler{Creator: creator, Store: st}
}

// HandleStep executes one CreateGroup step to completion, updating the
// store and the execution context exactly like a dispatched step would be
// updated on gateway completion (spec §4.12 steps 1-6).
func (h *Handler) HandleStep(ctx context.Context, wf *store.Workflow, step store.Step, execCtx *execontext.Context) {
	stepID := generateLocalStepID(step.StepName)

	if err := h.Store.UpdateStepByName(ctx, wf.WorkflowID, step.StepName, map[string]interface{}{
		"step_id":      stepID,
		"status":       "running",
		"submitted_at": time.Now().UTC(),
		"started_at":   time.Now().UTC(),
	}); err != nil {
		execCtx.Logger.Error("failed to mark CreateGroup step running", "step_name", step.StepName, "error", err)
		return
	}
	execCtx.MarkStepRunning(step.StepName, stepID)

	params, _ := resolver.ResolveRuntime(step.Params, wf.Steps)

	jobResultPaths, err := stringList(params["job_result_paths"])
	if err != nil || len(jobResultPaths) == 0 {
		h.fail(ctx, wf, step.StepName, stepID, "CreateGroup step missing 'job_result_paths' parameter", execCtx)
		return
	}

	groupType, _ := params["group_type"].(string)
	if !validGroupTypes[groupType] {
		h.fail(ctx, wf, step.StepName, stepID, fmt.Sprintf("CreateGroup step 'group_type' must be one of genome, feature, got %q", groupType), execCtx)
		return
	}

	groupName, _ := params["group_name"].(string)
	if groupName == "" {
		h.fail(ctx, wf, step.StepName, stepID, "CreateGroup step missing 'group_name' parameter", execCtx)
		return
	}

	serviceType, _ := params["service_type"].(string)
	outputGroupPath, _ := params["output_group_path"].(string)

	result, err := h.Creator.CreateGroupsFromJobResults(ctx, jobResultPaths, groupType, groupName, serviceType, outputGroupPath, wf.AuthToken)
	if err != nil {
		h.fail(ctx, wf, step.StepName, stepID, err.Error(), execCtx)
		return
	}
	if !result.Success {
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "unknown error from group creation backend"
		}
		h.fail(ctx, wf, step.StepName, stepID, errMsg, execCtx)
		return
	}

	outputs := map[string]string{"group_path": result.GroupPath}
	if err := h.Store.UpdateStepFields(ctx, wf.WorkflowID, stepID, map[string]interface{}{
		"status":       "succeeded",
		"completed_at": time.Now().UTC(),
		"outputs":      outputs,
	}); err != nil {
		execCtx.Logger.Error("failed to mark CreateGroup step succeeded", "step_name", step.StepName, "error", err)
		return
	}
	if err := h.Store.AddToCompletedSteps(ctx, wf.WorkflowID, stepID); err != nil {
		execCtx.Logger.Error("failed to record CreateGroup completion", "step_name", step.StepName, "error", err)
	}
	execCtx.MarkStepCompleted(step.StepName)
	execCtx.Logger.Info("CreateGroup step succeeded",
		"step_name", step.StepName, "group_path", result.GroupPath,
		"ids_count", result.IDsCount, "jobs_processed", result.JobsProcessed, "jobs_skipped", result.JobsSkipped,
	)
}

func (h *Handler) fail(ctx context.Context, wf *store.Workflow, stepName, stepID, errMsg string, execCtx *execontext.Context) {
	update := map[string]interface{}{
		"status":        "failed",
		"error_message": errMsg,
		"completed_at":  time.Now().UTC(),
	}
	var err error
	if stepID != "" {
		err = h.Store.UpdateStepFields(ctx, wf.WorkflowID, stepID, update)
	} else {
		err = h.Store.UpdateStepByName(ctx, wf.WorkflowID, stepName, update)
	}
	if err != nil {
		execCtx.Logger.Error("failed to mark CreateGroup step failed", "step_name", stepName, "error", err)
	}
	if incErr := h.Store.IncrementWorkflowField(ctx, wf.WorkflowID, "execution_metadata.failed_steps", 1); incErr != nil {
		execCtx.Logger.Error("failed to increment failed_steps", "error", incErr)
	}
	execCtx.MarkStepFailed(stepName)
	execCtx.Logger.Error("CreateGroup step failed", "step_name", stepName, "error", errMsg)
}

// generateLocalStepID produces a step_id for a step that never goes
// through the Scheduler Gateway and therefore never receives a task_id.
func generateLocalStepID(stepName string) string {
	return fmt.Sprintf("local_%s_%s", stepName, uuid.New().String())
}

func stringList(value interface{}) ([]string, error) {
	list, ok := value.([]interface{})
	if !ok {
		if s, ok := value.([]string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
