// Package scheduler executes dependency-ordered task graphs for a change.
// Independent tasks run concurrently; dependents run only after every
// predecessor has succeeded.
package scheduler

import (
	"fmt"

	"github.com/dcastillo/docrelay/internal/domain"
)

// TaskSpec declares one task in a graph before execution.
type TaskSpec struct {
	ID    string            `json:"id"`
	Role  string            `json:"role"`
	Input map[string]string `json:"input,omitempty"`
}

// Dependency declares that task To runs only after task From succeeds.
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphSpec is the full task graph for one change, produced by a
// decomposition step. The edges must form a DAG.
type GraphSpec struct {
	Tasks []TaskSpec   `json:"tasks"`
	Edges []Dependency `json:"edges"`
}

// graph is the validated adjacency view of a GraphSpec.
type graph struct {
	preds      map[string][]string // task -> predecessor ids
	dependents map[string][]string // task -> dependent ids
	order      []string            // topological order (stable for specs)
}

// buildGraph validates the spec: unique ids, known edge endpoints, and no
// cycles. Cycle detection runs before any task is dispatched.
func buildGraph(spec GraphSpec) (*graph, error) {
	if len(spec.Tasks) == 0 {
		return nil, fmt.Errorf("graph spec has no tasks")
	}

	g := &graph{
		preds:      make(map[string][]string, len(spec.Tasks)),
		dependents: make(map[string][]string, len(spec.Tasks)),
	}

	for _, t := range spec.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("graph spec task with empty id")
		}
		if t.Role == "" {
			return nil, fmt.Errorf("task %s: empty role", t.ID)
		}
		if _, dup := g.preds[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		g.preds[t.ID] = nil
	}

	for _, e := range spec.Edges {
		if _, ok := g.preds[e.From]; !ok {
			return nil, fmt.Errorf("edge references unknown task %q", e.From)
		}
		if _, ok := g.preds[e.To]; !ok {
			return nil, fmt.Errorf("edge references unknown task %q", e.To)
		}
		if e.From == e.To {
			return nil, &domain.CycleError{TaskIDs: []string{e.From}}
		}
		g.preds[e.To] = append(g.preds[e.To], e.From)
		g.dependents[e.From] = append(g.dependents[e.From], e.To)
	}

	if err := g.topoSort(spec); err != nil {
		return nil, err
	}
	return g, nil
}

// topoSort runs Kahn's algorithm. Any node left with unresolved
// predecessors is part of a cycle.
func (g *graph) topoSort(spec GraphSpec) error {
	indegree := make(map[string]int, len(g.preds))
	for id, ps := range g.preds {
		indegree[id] = len(ps)
	}

	var queue []string
	for _, t := range spec.Tasks { // spec order keeps the sort stable
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		g.order = append(g.order, id)
		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(g.order) != len(g.preds) {
		var cyclic []string
		for _, t := range spec.Tasks {
			if indegree[t.ID] > 0 {
				cyclic = append(cyclic, t.ID)
			}
		}
		return &domain.CycleError{TaskIDs: cyclic}
	}
	return nil
}

// transitiveDependents returns every task reachable from id via dependent
// edges, in breadth-first order.
func (g *graph) transitiveDependents(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	queue := append([]string(nil), g.dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, g.dependents[next]...)
	}
	return out
}
