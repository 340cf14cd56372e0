// Package executor implements the Execution Loop (spec §4.10): a
// ticker-driven daemon that admits pending workflows, polls the Scheduler
// Gateway for the status of running steps, and dispatches newly-ready
// steps up to each workflow's parallelism budget.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bvbrc/workflow-conductor/internal/coercion"
	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/execontext"
	"github.com/bvbrc/workflow-conductor/internal/gateway"
	"github.com/bvbrc/workflow-conductor/internal/grouphandler"
	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/metrics"
	"github.com/bvbrc/workflow-conductor/internal/resolver"
	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

// stateStore is the slice of internal/store.Store's surface the loop
// needs; internal/store.Store satisfies it, which keeps this package
// testable without a MongoDB connection.
type stateStore interface {
	ListByStatus(ctx context.Context, status string) ([]*store.Workflow, error)
	Get(ctx context.Context, workflowID string) (*store.Workflow, error)
	UpdateWorkflowFields(ctx context.Context, workflowID string, updates map[string]interface{}) error
	UpdateStepByName(ctx context.Context, workflowID, stepName string, updates map[string]interface{}) error
	UpdateStepFields(ctx context.Context, workflowID, stepID string, updates map[string]interface{}) error
	AddToRunningSteps(ctx context.Context, workflowID, stepID string) error
	RemoveFromRunningSteps(ctx context.Context, workflowID, stepID string) error
	AddToCompletedSteps(ctx context.Context, workflowID, stepID string) error
	IncrementWorkflowField(ctx context.Context, workflowID, path string, delta int) error
}

// schedulerGateway is the slice of internal/gateway.Gateway's surface the
// loop needs.
type schedulerGateway interface {
	Submit(ctx context.Context, authToken, app string, params map[string]interface{}) (string, error)
	Query(ctx context.Context, authToken string, taskIDs []string) (map[string]gateway.TaskStatus, error)
}

// groupHandler is the In-Process Step Handler's surface (spec §4.12):
// internal/grouphandler.Handler satisfies it.
type groupHandler interface {
	HandleStep(ctx context.Context, wf *store.Workflow, step store.Step, execCtx *execontext.Context)
}

// Loop is the Execution Loop. A zero Loop is not usable; construct one
// with New.
type Loop struct {
	store        stateStore
	gateway      schedulerGateway
	groupHandler groupHandler
	logCfg       *log.Config
	pollInterval time.Duration
	autoResume   bool
	logger       *slog.Logger

	mu      sync.Mutex
	active  map[string]*execontext.Context
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Loop. pollInterval and autoResume normally come from
// config.ExecutorConfig; logCfg supplies the level/format per-workflow
// loggers are built with (spec §4.9).
func New(st *store.Store, gw *gateway.Gateway, gh *grouphandler.Handler, logCfg *log.Config, pollInterval time.Duration, autoResume bool, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		store:        st,
		gateway:      gw,
		groupHandler: gh,
		logCfg:       logCfg,
		pollInterval: pollInterval,
		autoResume:   autoResume,
		logger:       logger,
		active:       make(map[string]*execontext.Context),
	}
}

// Start launches the polling loop in a background goroutine. If
// autoResume is set, workflows already in a non-terminal status
// (queued/running) are re-admitted into the active set before the first
// tick, so a restart picks up where a crashed process left off.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("executor: already running")
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	if l.autoResume {
		l.resumeActiveWorkflows(ctx)
	}

	go l.run(ctx)
	return nil
}

// Stop signals the loop to exit and blocks until it has done so.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	running := l.running
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.mu.Unlock()

	if !running {
		return
	}
	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle: admit pending workflows, process every active
// workflow, then record poll metrics. It is exported so tests can drive
// the loop deterministically instead of waiting on the ticker.
func (l *Loop) Tick(ctx context.Context) {
	start := time.Now()

	l.admitPendingWorkflows(ctx)

	l.mu.Lock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.mu.Lock()
		ec := l.active[id]
		l.mu.Unlock()
		if ec == nil {
			continue
		}
		if err := l.processWorkflow(ctx, ec); err != nil {
			l.handleWorkflowError(ctx, id, err)
		}
	}

	l.mu.Lock()
	activeCount := len(l.active)
	l.mu.Unlock()

	metrics.UpdateActiveWorkflows(activeCount)
	metrics.RecordPollCycle()
	metrics.RecordPollDuration(time.Since(start).Seconds())
}

// resumeActiveWorkflows re-admits workflows left in 'queued' or 'running'
// by a previous process, so an Executor restart does not strand them
// (spec §7: "Recovery ... Restart rebuilds active contexts").
func (l *Loop) resumeActiveWorkflows(ctx context.Context) {
	for _, status := range []string{store.StatusQueued, store.StatusRunning} {
		wfs, err := l.store.ListByStatus(ctx, status)
		if err != nil {
			l.logger.Error("executor: failed to list workflows for resume", "status", status, "error", err)
			continue
		}
		for _, wf := range wfs {
			l.admitWorkflow(ctx, wf, false)
		}
	}
}

func (l *Loop) admitPendingWorkflows(ctx context.Context) {
	wfs, err := l.store.ListByStatus(ctx, store.StatusPending)
	if err != nil {
		l.logger.Error("executor: failed to list pending workflows", "error", err)
		metrics.RecordExecutorError("list_pending_failed")
		return
	}
	for _, wf := range wfs {
		l.mu.Lock()
		_, alreadyActive := l.active[wf.WorkflowID]
		l.mu.Unlock()
		if alreadyActive {
			continue
		}
		l.admitWorkflow(ctx, wf, true)
	}
}

// admitWorkflow builds an execution context for wf and adds it to the
// active set. When markQueued is set, the workflow's stored status is
// advanced pending -> queued; resumed workflows keep their existing
// status since they have already passed that transition.
func (l *Loop) admitWorkflow(ctx context.Context, wf *store.Workflow, markQueued bool) {
	ec, err := execontext.BuildFromWorkflow(wf, l.logCfg)
	if err != nil {
		l.logger.Error("executor: failed to build execution context", "workflow_id", wf.WorkflowID, "error", err)
		metrics.RecordExecutorError("context_build_failed")
		return
	}

	if markQueued {
		if err := l.store.UpdateWorkflowFields(ctx, wf.WorkflowID, map[string]interface{}{"status": store.StatusQueued}); err != nil {
			l.logger.Error("executor: failed to mark workflow queued", "workflow_id", wf.WorkflowID, "error", err)
		}
		ec.UpdateStatus(store.StatusQueued)
	}

	l.mu.Lock()
	l.active[wf.WorkflowID] = ec
	l.mu.Unlock()

	ec.Logger.Info("workflow admitted", "total_steps", ec.TotalSteps)
}

// processWorkflow advances one workflow by one tick: it re-reads the
// workflow document so externally-applied changes (most importantly
// cancellation, spec §4.11) become visible, then retires, transitions, or
// dispatches work as appropriate.
func (l *Loop) processWorkflow(ctx context.Context, ec *execontext.Context) error {
	ec.LastPollTime = time.Now().UTC()

	wf, err := l.store.Get(ctx, ec.WorkflowID)
	if err != nil {
		return fmt.Errorf("reloading workflow %s: %w", ec.WorkflowID, err)
	}
	if err := ec.RefreshFromWorkflow(wf); err != nil {
		return fmt.Errorf("refreshing workflow %s: %w", ec.WorkflowID, err)
	}

	if ec.Status == store.StatusCancelled {
		l.retireCancelled(ctx, ec)
		return nil
	}

	if ec.IsComplete() {
		final := store.StatusFailed
		if ec.HasSucceeded() {
			final = store.StatusSucceeded
		}
		l.retireWorkflow(ctx, ec, final)
		return nil
	}

	if ec.HasFailed() && ec.Status != store.StatusFailed {
		l.retireWorkflow(ctx, ec, store.StatusFailed)
		return nil
	}

	if ec.Status == store.StatusQueued {
		if err := l.store.UpdateWorkflowFields(ctx, ec.WorkflowID, map[string]interface{}{
			"status":     store.StatusRunning,
			"started_at": time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("transitioning workflow %s to running: %w", ec.WorkflowID, err)
		}
		ec.UpdateStatus(store.StatusRunning)
		ec.Logger.Info("workflow execution started")
	}

	runningIDs := ec.RunningStepIDs()
	if len(runningIDs) > 0 {
		l.checkRunningSteps(ctx, ec, runningIDs)
	}

	for ec.Capacity() > 0 {
		ready := ec.ReadySteps()
		if len(ready) == 0 {
			break
		}
		node := ready[0]
		step, ok := findStepByName(wf.Steps, node.StepName)
		if !ok {
			ec.Logger.Error("ready step missing from workflow document", "step_name", node.StepName)
			break
		}
		if err := l.submitStep(ctx, wf, step, ec); err != nil {
			l.handleStepSubmissionFailure(ctx, ec, step, err)
		}
	}

	return nil
}

func (l *Loop) checkRunningSteps(ctx context.Context, ec *execontext.Context, taskIDs []string) {
	queryStart := time.Now()
	statuses, err := l.gateway.Query(ctx, ec.AuthToken, taskIDs)
	metrics.RecordSchedulerQueryDuration(time.Since(queryStart).Seconds())
	if err != nil {
		ec.Logger.Error("failed to query scheduler for task status", "error", err)
		metrics.RecordSchedulerQueryError()
		return
	}

	for _, taskID := range taskIDs {
		info, ok := statuses[taskID]
		if !ok {
			continue
		}
		node := ec.NodeByStepID(taskID)
		if node == nil {
			continue
		}
		switch info.Status {
		case "completed":
			l.handleStepCompletion(ctx, ec, node, info)
		case "failed":
			l.handleStepFailure(ctx, ec, node, info)
		}
		// "running": no-op, keep polling.
	}
}

// submitStep dispatches one ready step. CreateGroup steps are executed
// in-process by the group handler (spec §4.12) instead of being sent to
// the Scheduler Gateway.
func (l *Loop) submitStep(ctx context.Context, wf *store.Workflow, step store.Step, ec *execontext.Context) error {
	if step.App == "CreateGroup" {
		l.groupHandler.HandleStep(ctx, wf, step, ec)
		return nil
	}

	params, warnings := resolver.ResolveRuntime(step.Params, wf.Steps)
	for _, w := range warnings {
		ec.Logger.Warn("runtime variable resolution warning", "step_name", step.StepName, "warning", w)
	}

	if violations := coercion.EvaluateConditionalRules(step.App, params); len(violations) > 0 {
		return wferrors.New(wferrors.TypeSubmission, strings.Join(violations, "; "))
	}

	taskID, err := l.gateway.Submit(ctx, wf.AuthToken, step.App, params)
	if err != nil {
		metrics.RecordSchedulerSubmitError(step.App)
		return err
	}

	if err := l.store.UpdateStepByName(ctx, wf.WorkflowID, step.StepName, map[string]interface{}{
		"step_id":      taskID,
		"task_id":      taskID,
		"status":       store.StatusRunning,
		"submitted_at": time.Now().UTC(),
	}); err != nil {
		ec.Logger.Error("failed to record step submission", "step_name", step.StepName, "error", err)
	}
	if err := l.store.AddToRunningSteps(ctx, wf.WorkflowID, taskID); err != nil {
		ec.Logger.Error("failed to add step to running set", "step_name", step.StepName, "error", err)
	}

	ec.MarkStepRunning(step.StepName, taskID)
	metrics.RecordStepSubmitted(step.App)
	ec.Logger.Info("step submitted", "step_name", step.StepName, "app", step.App, "task_id", taskID)
	return nil
}

func (l *Loop) handleStepSubmissionFailure(ctx context.Context, ec *execontext.Context, step store.Step, submitErr error) {
	errMsg := fmt.Sprintf("submission failed: %v", submitErr)

	if err := l.store.UpdateStepByName(ctx, ec.WorkflowID, step.StepName, map[string]interface{}{
		"status":        store.StatusFailed,
		"error_message": errMsg,
		"completed_at":  time.Now().UTC(),
	}); err != nil {
		ec.Logger.Error("failed to record step submission failure", "step_name", step.StepName, "error", err)
	}
	if err := l.store.IncrementWorkflowField(ctx, ec.WorkflowID, "execution_metadata.failed_steps", 1); err != nil {
		ec.Logger.Error("failed to increment failed_steps", "error", err)
	}

	ec.MarkStepFailed(step.StepName)
	metrics.RecordStepCompleted(step.App, "failed")
	ec.Logger.Error("step submission failed", "step_name", step.StepName, "error", submitErr)
}

func (l *Loop) handleStepCompletion(ctx context.Context, ec *execontext.Context, node *dag.Node, info gateway.TaskStatus) {
	if err := l.store.UpdateStepFields(ctx, ec.WorkflowID, node.StepID, map[string]interface{}{
		"status":       store.StatusSucceeded,
		"completed_at": time.Now().UTC(),
		"elapsed_time": info.ElapsedTime,
	}); err != nil {
		ec.Logger.Error("failed to record step completion", "step_name", node.StepName, "error", err)
	}
	if err := l.store.RemoveFromRunningSteps(ctx, ec.WorkflowID, node.StepID); err != nil {
		ec.Logger.Error("failed to remove step from running set", "step_name", node.StepName, "error", err)
	}
	if err := l.store.AddToCompletedSteps(ctx, ec.WorkflowID, node.StepID); err != nil {
		ec.Logger.Error("failed to add step to completed set", "step_name", node.StepName, "error", err)
	}

	ec.MarkStepCompleted(node.StepName)
	metrics.RecordStepCompleted(node.App, "succeeded")
	if info.ElapsedTime > 0 {
		metrics.RecordStepDuration(node.App, info.ElapsedTime)
	}
	ec.Logger.Info("step succeeded", "step_name", node.StepName, "elapsed_time", info.ElapsedTime)
}

func (l *Loop) handleStepFailure(ctx context.Context, ec *execontext.Context, node *dag.Node, info gateway.TaskStatus) {
	errMsg := info.Error
	if errMsg == "" {
		errMsg = "unknown error from scheduler"
	}

	if err := l.store.UpdateStepFields(ctx, ec.WorkflowID, node.StepID, map[string]interface{}{
		"status":        store.StatusFailed,
		"completed_at":  time.Now().UTC(),
		"error_message": errMsg,
	}); err != nil {
		ec.Logger.Error("failed to record step failure", "step_name", node.StepName, "error", err)
	}
	if err := l.store.RemoveFromRunningSteps(ctx, ec.WorkflowID, node.StepID); err != nil {
		ec.Logger.Error("failed to remove step from running set", "step_name", node.StepName, "error", err)
	}
	if err := l.store.IncrementWorkflowField(ctx, ec.WorkflowID, "execution_metadata.failed_steps", 1); err != nil {
		ec.Logger.Error("failed to increment failed_steps", "error", err)
	}

	ec.MarkStepFailed(node.StepName)
	metrics.RecordStepCompleted(node.App, "failed")
	ec.Logger.Error("step failed", "step_name", node.StepName, "error", errMsg)
}

func (l *Loop) retireWorkflow(ctx context.Context, ec *execontext.Context, final string) {
	if err := l.store.UpdateWorkflowFields(ctx, ec.WorkflowID, map[string]interface{}{
		"status":       final,
		"completed_at": time.Now().UTC(),
	}); err != nil {
		ec.Logger.Error("failed to record workflow retirement", "final_status", final, "error", err)
	}

	if !ec.StartedAt.IsZero() {
		metrics.RecordWorkflowDuration(time.Since(ec.StartedAt).Seconds())
	}
	metrics.RecordWorkflowCompleted(final)
	ec.Logger.Info("workflow retired", "final_status", final)

	l.forget(ec)
}

func (l *Loop) retireCancelled(ctx context.Context, ec *execontext.Context) {
	ec.Logger.Info("workflow cancelled")
	metrics.RecordWorkflowCompleted(store.StatusCancelled)
	l.forget(ec)
}

func (l *Loop) handleWorkflowError(ctx context.Context, workflowID string, procErr error) {
	l.logger.Error("executor: error processing workflow", "workflow_id", workflowID, "error", procErr)

	if err := l.store.UpdateWorkflowFields(ctx, workflowID, map[string]interface{}{
		"status":        store.StatusFailed,
		"error_message": fmt.Sprintf("executor error: %v", procErr),
		"completed_at":  time.Now().UTC(),
	}); err != nil {
		l.logger.Error("executor: failed to record workflow error", "workflow_id", workflowID, "error", err)
	}

	l.mu.Lock()
	ec := l.active[workflowID]
	delete(l.active, workflowID)
	l.mu.Unlock()

	if ec != nil {
		_ = ec.Close()
	}
	metrics.RecordWorkflowCompleted(store.StatusFailed)
	metrics.RecordExecutorError("workflow_processing_error")
}

func (l *Loop) forget(ec *execontext.Context) {
	l.mu.Lock()
	delete(l.active, ec.WorkflowID)
	l.mu.Unlock()
	_ = ec.Close()
}

func findStepByName(steps []store.Step, name string) (store.Step, bool) {
	for _, s := range steps {
		if s.StepName == name {
			return s, true
		}
	}
	return store.Step{}, false
}
