// Package execontext implements the Workflow Execution Context (spec §4.9):
// the in-memory, per-workflow projection the Execution Loop drives a tick
// against. It is never persisted — a crash loses nothing that cannot be
// rebuilt from the State Store document.
package execontext

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/store"
)

// defaultMaxParallelSteps is the fallback used when a stored workflow has
// no execution_metadata.max_parallel_steps recorded yet (spec §4.9).
const defaultMaxParallelSteps = 2

// Context is one active workflow's in-memory execution state.
type Context struct {
	WorkflowID   string
	WorkflowName string
	Status       string
	AuthToken    string

	Graph *dag.Graph

	MaxParallelSteps int
	Logger           *slog.Logger
	LastPollTime     time.Time
	StartedAt        time.Time
	TotalSteps       int

	logFile *os.File
}

// BuildFromWorkflow constructs an Execution Context from a stored workflow
// document: the DAG is built fresh from wf.Steps, and the logger is opened
// against wf.LogFilePath (spec §4.9). logCfg supplies the level/format the
// per-workflow logger should otherwise share with the rest of the process;
// its Output field is overwritten with the opened log file.
func BuildFromWorkflow(wf *store.Workflow, logCfg *log.Config) (*Context, error) {
	steps := make([]dag.StepLike, len(wf.Steps))
	for i := range wf.Steps {
		steps[i] = wf.Steps[i]
	}
	graph := dag.Build(steps)
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("rebuilding execution context for workflow %s: %w", wf.WorkflowID, err)
	}

	logger, logFile, err := openWorkflowLogger(wf.LogFilePath, logCfg)
	if err != nil {
		return nil, fmt.Errorf("opening workflow logger for %s: %w", wf.WorkflowID, err)
	}
	logger = log.WithWorkflowContext(logger, wf.WorkflowID, wf.WorkflowName)

	var startedAt time.Time
	if wf.StartedAt != nil {
		startedAt = *wf.StartedAt
	}

	maxParallel := defaultMaxParallelSteps
	if wf.ExecutionMetadata != nil && wf.ExecutionMetadata.MaxParallelSteps > 0 {
		maxParallel = wf.ExecutionMetadata.MaxParallelSteps
	}

	return &Context{
		WorkflowID:       wf.WorkflowID,
		WorkflowName:     wf.WorkflowName,
		Status:           wf.Status,
		AuthToken:        wf.AuthToken,
		Graph:            graph,
		MaxParallelSteps: maxParallel,
		Logger:           logger,
		LastPollTime:     time.Time{},
		StartedAt:        startedAt,
		TotalSteps:       len(wf.Steps),
		logFile:          logFile,
	}, nil
}

// openWorkflowLogger opens (creating if necessary) the per-workflow log
// file in append mode. A blank path falls back to discarding output rather
// than failing context construction over a missing log directory.
func openWorkflowLogger(path string, logCfg *log.Config) (*slog.Logger, *os.File, error) {
	if path == "" {
		cfg := *logCfg
		cfg.Output = io.Discard
		l := log.New(&cfg)
		return l, nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	cfg := *logCfg
	cfg.Output = f
	return log.New(&cfg), f, nil
}

// Close releases the per-workflow log file, if one was opened. Safe to call
// more than once.
func (c *Context) Close() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

// Capacity returns how many more steps may be submitted this tick
// (spec §4.9: max(0, max_parallel - |running|)).
func (c *Context) Capacity() int {
	remaining := c.MaxParallelSteps - len(c.Graph.Running())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsComplete reports whether every step has reached a terminal status.
func (c *Context) IsComplete() bool {
	return c.Graph.IsComplete()
}

// HasFailed reports whether any step is failed or upstream_failed.
func (c *Context) HasFailed() bool {
	return c.Graph.HasFailed()
}

// HasSucceeded reports whether every step succeeded.
func (c *Context) HasSucceeded() bool {
	return c.Graph.HasSucceeded()
}

// ReadySteps returns every step whose predecessors have all succeeded and
// which is itself still pending (spec §4.8's ready()). A step's completed
// predecessors are derived from the DAG's own node statuses rather than a
// separately-tracked set: the Graph is the single source of truth for step
// status within a Context.
func (c *Context) ReadySteps() []*dag.Node {
	completed := make(map[string]bool)
	for _, n := range c.Graph.Nodes() {
		if n.Status == dag.StatusSucceeded {
			completed[n.StepName] = true
		}
	}
	return c.Graph.Ready(completed)
}

// RunningStepIDs returns the step_id (== task_id for dispatched steps) of
// every currently running step, for the gateway.query call in the
// Execution Loop's tick step 2.5.
func (c *Context) RunningStepIDs() []string {
	running := c.Graph.Running()
	ids := make([]string, 0, len(running))
	for _, n := range running {
		if n.StepID != "" {
			ids = append(ids, n.StepID)
		}
	}
	return ids
}

// NodeByStepID finds the running (or any) node with the given step_id, or
// nil if none matches. Used to map a gateway.query disposition back to a
// step_name.
func (c *Context) NodeByStepID(stepID string) *dag.Node {
	for _, n := range c.Graph.Nodes() {
		if n.StepID == stepID {
			return n
		}
	}
	return nil
}

// MarkStepRunning transitions a step to running and records its dispatch
// identity (step_id, which doubles as the scheduler task_id once dispatched
// per spec §4.10 step 3), so the same tick's further ReadySteps calls do
// not re-select it (spec §4.10 submit_step step 5).
func (c *Context) MarkStepRunning(stepName, stepID string) {
	if n := c.Graph.Node(stepName); n != nil {
		n.Status = dag.StatusRunning
		n.StepID = stepID
	}
}

// MarkStepCompleted transitions a step to succeeded.
func (c *Context) MarkStepCompleted(stepName string) {
	if n := c.Graph.Node(stepName); n != nil {
		n.Status = dag.StatusSucceeded
	}
}

// MarkStepFailed transitions a step to failed.
func (c *Context) MarkStepFailed(stepName string) {
	if n := c.Graph.Node(stepName); n != nil {
		n.Status = dag.StatusFailed
	}
}

// UpdateStatus sets the workflow-level status tracked on this context
// (queued, running, cancelled, ...).
func (c *Context) UpdateStatus(status string) {
	c.Status = status
}

// RefreshFromWorkflow rebuilds the DAG from a freshly re-read workflow
// document and re-derives TotalSteps, mirroring the source's
// refresh_dag_from_workflow. The logger and auth token are left untouched.
func (c *Context) RefreshFromWorkflow(wf *store.Workflow) error {
	steps := make([]dag.StepLike, len(wf.Steps))
	for i := range wf.Steps {
		steps[i] = wf.Steps[i]
	}
	graph := dag.Build(steps)
	if err := graph.Validate(); err != nil {
		return fmt.Errorf("refreshing execution context for workflow %s: %w", wf.WorkflowID, err)
	}
	c.Graph = graph
	c.Status = wf.Status
	c.TotalSteps = len(wf.Steps)
	if wf.StartedAt != nil {
		c.StartedAt = *wf.StartedAt
	}
	return nil
}
