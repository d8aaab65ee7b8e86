package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphOf(tasks ...Task) (map[string]Task, []string) {
	m := make(map[string]Task, len(tasks))
	var order []string
	for _, t := range tasks {
		m[t.ID] = t
		order = append(order, t.ID)
	}
	return m, order
}

func TestTopologicalOrder_Linear(t *testing.T) {
	m, declared := graphOf(
		Task{ID: "a"},
		Task{ID: "b", DependsOn: []string{"a"}},
		Task{ID: "c", DependsOn: []string{"b"}},
	)
	order, err := topologicalOrder(m, declared)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalOrder_Diamond(t *testing.T) {
	m, declared := graphOf(
		Task{ID: "root"},
		Task{ID: "left", DependsOn: []string{"root"}},
		Task{ID: "right", DependsOn: []string{"root"}},
		Task{ID: "join", DependsOn: []string{"left", "right"}},
	)
	order, err := topologicalOrder(m, declared)
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["root"], pos["left"])
	assert.Less(t, pos["root"], pos["right"])
	assert.Less(t, pos["left"], pos["join"])
	assert.Less(t, pos["right"], pos["join"])
}

func TestTopologicalOrder_DeterministicByDeclaration(t *testing.T) {
	m, declared := graphOf(Task{ID: "z"}, Task{ID: "a"}, Task{ID: "m"})
	order, err := topologicalOrder(m, declared)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, order,
		"independent tasks keep declaration order")
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	m, declared := graphOf(
		Task{ID: "a", DependsOn: []string{"b"}},
		Task{ID: "b", DependsOn: []string{"a"}},
	)
	_, err := topologicalOrder(m, declared)

	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Remaining)
}

func TestTopologicalOrder_PartialCycle(t *testing.T) {
	m, declared := graphOf(
		Task{ID: "ok"},
		Task{ID: "x", DependsOn: []string{"y"}},
		Task{ID: "y", DependsOn: []string{"x"}},
	)
	_, err := topologicalOrder(m, declared)

	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"x", "y"}, cycleErr.Remaining)
}
