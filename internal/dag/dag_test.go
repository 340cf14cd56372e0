package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear3() *Graph {
	g := New()
	g.AddNode(&Node{StepName: "A", Status: StatusPending})
	g.AddNode(&Node{StepName: "B", Status: StatusPending})
	g.AddNode(&Node{StepName: "C", Status: StatusPending})
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	return g
}

func TestValidateNoCycle(t *testing.T) {
	g := linear3()
	assert.NoError(t, g.Validate())
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New()
	g.AddNode(&Node{StepName: "A", Status: StatusPending})
	g.AddNode(&Node{StepName: "B", Status: StatusPending})
	g.AddEdge("A", "B")
	g.AddEdge("B", "A")

	err := g.Validate()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Error(), "A")
	assert.Contains(t, cycleErr.Error(), "B")
}

func TestReadyRespectsPredecessors(t *testing.T) {
	g := linear3()
	ready := g.Ready(map[string]bool{})
	require.Len(t, ready, 1)
	assert.Equal(t, "A", ready[0].StepName)

	ready = g.Ready(map[string]bool{"A": true})
	require.Len(t, ready, 1)
	assert.Equal(t, "B", ready[0].StepName)
}

func TestReadyIgnoresNonPendingSteps(t *testing.T) {
	g := linear3()
	g.Node("A").Status = StatusRunning
	ready := g.Ready(map[string]bool{})
	assert.Empty(t, ready)
}

func TestIsCompleteAndPredicates(t *testing.T) {
	g := linear3()
	assert.False(t, g.IsComplete())

	for _, n := range g.Nodes() {
		n.Status = StatusSucceeded
	}
	assert.True(t, g.IsComplete())
	assert.True(t, g.HasSucceeded())
	assert.False(t, g.HasFailed())
}

func TestHasFailed(t *testing.T) {
	g := linear3()
	g.Node("B").Status = StatusFailed
	assert.True(t, g.HasFailed())
}

func TestDescendants(t *testing.T) {
	g := New()
	g.AddNode(&Node{StepName: "root", Status: StatusPending})
	g.AddNode(&Node{StepName: "child1", Status: StatusPending})
	g.AddNode(&Node{StepName: "child2", Status: StatusPending})
	g.AddNode(&Node{StepName: "grandchild", Status: StatusPending})
	g.AddEdge("root", "child1")
	g.AddEdge("root", "child2")
	g.AddEdge("child1", "grandchild")

	assert.ElementsMatch(t, []string{"child1", "child2", "grandchild"}, g.Descendants("root"))
}

func TestTopologicalOrder(t *testing.T) {
	g := linear3()
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestTopologicalOrderDetectsCycle(t *testing.T) {
	g := New()
	g.AddNode(&Node{StepName: "A", Status: StatusPending})
	g.AddNode(&Node{StepName: "B", Status: StatusPending})
	g.AddEdge("A", "B")
	g.AddEdge("B", "A")

	_, err := g.TopologicalOrder()
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusSucceeded))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusSkipped))
	assert.True(t, IsTerminal(StatusUpstreamFailed))
	assert.False(t, IsTerminal(StatusRunning))
	assert.False(t, IsTerminal(StatusPending))
}
