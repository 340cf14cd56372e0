package grouphandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbrc/workflow-conductor/internal/dag"
	"github.com/bvbrc/workflow-conductor/internal/execontext"
	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/store"
)

type fakeStore struct {
	byStepName map[string]map[string]interface{}
	byStepID   map[string]map[string]interface{}
	completed  []string
	failedIncs int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byStepName: make(map[string]map[string]interface{}),
		byStepID:   make(map[string]map[string]interface{}),
	}
}

func (f *fakeStore) UpdateStepByName(_ context.Context, _, stepName string, updates map[string]interface{}) error {
	f.byStepName[stepName] = updates
	return nil
}

func (f *fakeStore) UpdateStepFields(_ context.Context, _, stepID string, updates map[string]interface{}) error {
	f.byStepID[stepID] = updates
	return nil
}

func (f *fakeStore) AddToCompletedSteps(_ context.Context, _, stepID string) error {
	f.completed = append(f.completed, stepID)
	return nil
}

func (f *fakeStore) IncrementWorkflowField(_ context.Context, _, _ string, _ int) error {
	f.failedIncs++
	return nil
}

type fakeCreator struct {
	result Result
	err    error
}

func (c fakeCreator) CreateGroupsFromJobResults(_ context.Context, _ []string, _, _, _, _, _ string) (Result, error) {
	return c.result, c.err
}

func testWorkflowAndContext(t *testing.T, step store.Step) (*store.Workflow, *execontext.Context) {
	t.Helper()
	wf := &store.Workflow{
		WorkflowID: "wf-1",
		AuthToken:  "tok",
		Steps:      []store.Step{step},
	}
	ctx, err := execontext.BuildFromWorkflow(wf, log.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return wf, ctx
}

func groupStep(params map[string]interface{}) store.Step {
	return store.Step{StepName: "make_group", App: "CreateGroup", Status: "pending", Params: params}
}

func TestHandleStepSuccessWritesGroupPathAndMarksSucceeded(t *testing.T) {
	step := groupStep(map[string]interface{}{
		"job_result_paths": []interface{}{"/jobs/1", "/jobs/2"},
		"group_type":       "genome",
		"group_name":       "my group",
	})
	wf, execCtx := testWorkflowAndContext(t, step)

	fs := newFakeStore()
	creator := fakeCreator{result: Result{Success: true, GroupPath: "/groups/my-group", IDsCount: 5}}
	h := &Handler{Creator: creator, Store: fs}

	h.HandleStep(context.Background(), wf, step, execCtx)

	assert.Equal(t, dag.StatusSucceeded, execCtx.Graph.Node("make_group").Status)
	require.Len(t, fs.completed, 1)

	var succeededUpdate map[string]interface{}
	for _, u := range fs.byStepID {
		succeededUpdate = u
	}
	require.NotNil(t, succeededUpdate)
	assert.Equal(t, "succeeded", succeededUpdate["status"])
	outputs, ok := succeededUpdate["outputs"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "/groups/my-group", outputs["group_path"])
}

func TestHandleStepMissingJobResultPathsFails(t *testing.T) {
	step := groupStep(map[string]interface{}{
		"group_type": "genome",
		"group_name": "my group",
	})
	wf, execCtx := testWorkflowAndContext(t, step)

	fs := newFakeStore()
	h := &Handler{Creator: fakeCreator{}, Store: fs}

	h.HandleStep(context.Background(), wf, step, execCtx)

	assert.Equal(t, dag.StatusFailed, execCtx.Graph.Node("make_group").Status)
	assert.Equal(t, 1, fs.failedIncs)
}

func TestHandleStepInvalidGroupTypeFails(t *testing.T) {
	step := groupStep(map[string]interface{}{
		"job_result_paths": []interface{}{"/jobs/1"},
		"group_type":       "protein",
		"group_name":       "my group",
	})
	wf, execCtx := testWorkflowAndContext(t, step)

	fs := newFakeStore()
	h := &Handler{Creator: fakeCreator{}, Store: fs}

	h.HandleStep(context.Background(), wf, step, execCtx)

	assert.Equal(t, dag.StatusFailed, execCtx.Graph.Node("make_group").Status)
}

func TestHandleStepBackendFailureMarksFailedWithError(t *testing.T) {
	step := groupStep(map[string]interface{}{
		"job_result_paths": []interface{}{"/jobs/1"},
		"group_type":       "feature",
		"group_name":       "my group",
	})
	wf, execCtx := testWorkflowAndContext(t, step)

	fs := newFakeStore()
	creator := fakeCreator{result: Result{Success: false, Error: "no valid ids found"}}
	h := &Handler{Creator: creator, Store: fs}

	h.HandleStep(context.Background(), wf, step, execCtx)

	assert.Equal(t, dag.StatusFailed, execCtx.Graph.Node("make_group").Status)
	var failedUpdate map[string]interface{}
	for _, u := range fs.byStepID {
		failedUpdate = u
	}
	require.NotNil(t, failedUpdate)
	assert.Equal(t, "no valid ids found", failedUpdate["error_message"])
}

func TestUnavailableCreatorAlwaysFails(t *testing.T) {
	_, err := UnavailableCreator{}.CreateGroupsFromJobResults(context.Background(), nil, "", "", "", "", "")
	require.Error(t, err)
}

func TestNewDefaultsNilCreatorToUnavailable(t *testing.T) {
	h := New(nil, nil)
	_, ok := h.Creator.(UnavailableCreator)
	assert.True(t, ok)
}
