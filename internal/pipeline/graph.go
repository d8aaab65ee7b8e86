package pipeline

import "sort"

// topologicalOrder computes a Kahn ordering over the declared tasks.
// declarationOrder fixes iteration so runs are deterministic. Residual
// in-degree after processing means a cycle; the leftover ids are reported.
func topologicalOrder(tasks map[string]Task, declarationOrder []string) ([]string, error) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, id := range declarationOrder {
		indegree[id] = len(tasks[id].DependsOn)
		for _, dep := range tasks[id].DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]string, 0, len(tasks))
	for _, id := range declarationOrder {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(tasks) {
		var remaining []string
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CyclicDependencyError{Remaining: remaining}
	}

	return order, nil
}
