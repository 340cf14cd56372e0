package execontext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/store"
)

func testWorkflow(t *testing.T) *store.Workflow {
	t.Helper()
	return &store.Workflow{
		WorkflowID:   "wf-1",
		WorkflowName: "demo",
		Status:       store.StatusRunning,
		AuthToken:    "tok",
		LogFilePath:  filepath.Join(t.TempDir(), "wf-1.log"),
		ExecutionMetadata: &store.ExecutionMetadata{
			MaxParallelSteps: 2,
		},
		Steps: []store.Step{
			{StepName: "a", App: "Homology", Status: "succeeded"},
			{StepName: "b", App: "Homology", Status: "running", StepID: "task-1", DependsOn: []string{"a"}},
			{StepName: "c", App: "Homology", Status: "pending", DependsOn: []string{"a"}},
		},
	}
}

func buildTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := BuildFromWorkflow(testWorkflow(t), log.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func TestBuildFromWorkflowPopulatesStatusesFromSteps(t *testing.T) {
	ctx := buildTestContext(t)

	assert.Equal(t, "wf-1", ctx.WorkflowID)
	assert.Equal(t, 3, ctx.TotalSteps)
	assert.Equal(t, 2, ctx.MaxParallelSteps)
	assert.Equal(t, dag.StatusSucceeded, ctx.Graph.Node("a").Status)
	assert.Equal(t, dag.StatusRunning, ctx.Graph.Node("b").Status)
	assert.Equal(t, dag.StatusPending, ctx.Graph.Node("c").Status)
}

func TestBuildFromWorkflowDefaultsMaxParallelSteps(t *testing.T) {
	wf := testWorkflow(t)
	wf.ExecutionMetadata = nil

	ctx, err := BuildFromWorkflow(wf, log.DefaultConfig())
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, defaultMaxParallelSteps, ctx.MaxParallelSteps)
}

func TestCapacityAccountsForRunningSteps(t *testing.T) {
	ctx := buildTestContext(t)
	// one step ("b") already running out of max_parallel_steps=2.
	assert.Equal(t, 1, ctx.Capacity())
}

func TestReadyStepsOnlyIncludesStepsWithSatisfiedPredecessors(t *testing.T) {
	ctx := buildTestContext(t)
	ready := ctx.ReadySteps()
	require.Len(t, ready, 1)
	assert.Equal(t, "c", ready[0].StepName)
}

func TestIsCompleteFalseWhileAnyStepNonTerminal(t *testing.T) {
	ctx := buildTestContext(t)
	assert.False(t, ctx.IsComplete())

	ctx.MarkStepCompleted("b")
	ctx.MarkStepCompleted("c")
	assert.True(t, ctx.IsComplete())
	assert.True(t, ctx.HasSucceeded())
	assert.False(t, ctx.HasFailed())
}

func TestHasFailedTrueWhenAnyStepFailed(t *testing.T) {
	ctx := buildTestContext(t)
	ctx.MarkStepFailed("b")
	assert.True(t, ctx.HasFailed())
}

func TestMarkStepRunningPreventsReselectionWithinTick(t *testing.T) {
	ctx := buildTestContext(t)
	ready := ctx.ReadySteps()
	require.Len(t, ready, 1)

	ctx.MarkStepRunning("c", "task-2")
	assert.Empty(t, ctx.ReadySteps())
	assert.Equal(t, dag.StatusRunning, ctx.Graph.Node("c").Status)
	assert.Equal(t, "task-2", ctx.Graph.Node("c").StepID)
}

func TestRunningStepIDsReturnsDispatchedTaskIDs(t *testing.T) {
	ctx := buildTestContext(t)
	assert.ElementsMatch(t, []string{"task-1"}, ctx.RunningStepIDs())
}

func TestNodeByStepIDFindsRunningStep(t *testing.T) {
	ctx := buildTestContext(t)
	n := ctx.NodeByStepID("task-1")
	require.NotNil(t, n)
	assert.Equal(t, "b", n.StepName)

	assert.Nil(t, ctx.NodeByStepID("no-such-task"))
}

func TestRefreshFromWorkflowRebuildsGraphAndStatus(t *testing.T) {
	ctx := buildTestContext(t)

	wf := testWorkflow(t)
	wf.Status = store.StatusSucceeded
	wf.Steps[1].Status = "succeeded"
	wf.Steps[2].Status = "succeeded"

	require.NoError(t, ctx.RefreshFromWorkflow(wf))
	assert.Equal(t, store.StatusSucceeded, ctx.Status)
	assert.True(t, ctx.IsComplete())
}

func TestUpdateStatus(t *testing.T) {
	ctx := buildTestContext(t)
	ctx.UpdateStatus(store.StatusCancelled)
	assert.Equal(t, store.StatusCancelled, ctx.Status)
}
