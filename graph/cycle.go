package graph

import (
	"errors"

	graphlib "github.com/dominikbraun/graph"
)

// FindCycle reports a parent-reference cycle reachable from p.
//
// The reachable subgraph is loaded breadth-first into a directed graph that
// refuses cycle-creating edges. The first refused edge closes a cycle; the
// returned path starts and ends with the same project, e.g. [a b c a].
// FindCycle returns nil when the reachable graph is acyclic.
func FindCycle(l Lookup, p *Project) []string {
	g := graphlib.New(graphlib.StringHash, graphlib.Directed(), graphlib.PreventCycles())

	root := p.Name()
	_ = g.AddVertex(root)
	seen := map[string]bool{root: true}

	queue := []*Project{p}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		from := current.Name()

		for _, ref := range current.References() {
			target, ok := l.Project(ref.Target)
			if !ok {
				continue
			}
			to := target.Name()
			if to == from {
				return []string{from, from}
			}
			if !seen[to] {
				seen[to] = true
				_ = g.AddVertex(to)
				queue = append(queue, target)
			}

			err := g.AddEdge(from, to)
			switch {
			case err == nil, errors.Is(err, graphlib.ErrEdgeAlreadyExists):
				continue
			case errors.Is(err, graphlib.ErrEdgeCreatesCycle):
				// to already reaches from; the refused edge closes the loop.
				back, pathErr := graphlib.ShortestPath(g, to, from)
				if pathErr != nil || len(back) == 0 {
					return []string{from, to, from}
				}
				return append([]string{from}, back...)
			}
		}
	}

	return nil
}

// CheckAcyclic returns a *CycleError if a cycle is reachable from p.
func CheckAcyclic(l Lookup, p *Project) error {
	if cycle := FindCycle(l, p); cycle != nil {
		return &CycleError{Path: cycle}
	}
	return nil
}
