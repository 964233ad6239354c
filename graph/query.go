package graph

import (
	"cmp"
	"slices"
)

// Scope returns the ordered list of p and every ancestor reachable through
// parent references, for domain d.
//
// For each project, parents whose priority in d is <= 0 are expanded before
// the project and the remaining parents after it, recursively. A visited set
// shared across the whole traversal drops later occurrences of a project
// already placed (diamond inheritance keeps the first occurrence). Within a
// bucket parents are ordered by ascending priority; equal priorities keep
// their declaration order.
//
// References that do not resolve are skipped; onUnresolved, if non-nil, is
// called with the owning project's name and the missing target.
//
// Scope assumes the reachable graph is acyclic. The visited set only
// deduplicates diamonds; callers must check FindCycle first.
func Scope(l Lookup, p *Project, d Domain, onUnresolved func(from, target string)) []*Project {
	if p == nil {
		return nil
	}
	visited := make(map[string]bool)
	return expandScope(l, p, d, visited, onUnresolved)
}

func expandScope(l Lookup, p *Project, d Domain, visited map[string]bool, onUnresolved func(from, target string)) []*Project {
	name := p.Name()
	if visited[name] {
		return nil
	}
	visited[name] = true

	// Lower priorities come first; ties keep declaration order.
	refs := p.References()
	slices.SortStableFunc(refs, func(a, b Reference) int {
		return cmp.Compare(a.Priorities.For(d), b.Priorities.For(d))
	})

	var prior, later []*Project
	for _, ref := range refs {
		target, ok := l.Project(ref.Target)
		if !ok {
			if onUnresolved != nil {
				onUnresolved(name, ref.Target)
			}
			continue
		}
		if ref.Prior(d) {
			prior = append(prior, target)
		} else {
			later = append(later, target)
		}
	}

	result := make([]*Project, 0, len(prior)+len(later)+1)
	for _, parent := range prior {
		result = append(result, expandScope(l, parent, d, visited, onUnresolved)...)
	}
	result = append(result, p)
	for _, parent := range later {
		result = append(result, expandScope(l, parent, d, visited, onUnresolved)...)
	}
	return result
}

// Names returns the names of the given projects, preserving order.
func Names(projects []*Project) []string {
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name()
	}
	return names
}

// DirectParents returns the resolved parents of p in declaration order.
// Unresolved references are omitted.
func DirectParents(l Lookup, p *Project) []*Project {
	refs := p.References()
	parents := make([]*Project, 0, len(refs))
	for _, ref := range refs {
		if target, ok := l.Project(ref.Target); ok {
			parents = append(parents, target)
		}
	}
	return parents
}

// Unresolved returns the reference targets of p that do not resolve.
func Unresolved(l Lookup, p *Project) []string {
	var missing []string
	for _, ref := range p.References() {
		if _, ok := l.Project(ref.Target); !ok {
			missing = append(missing, ref.Target)
		}
	}
	return missing
}

// Ancestors returns the names of all projects reachable from p through
// parent references, excluding p itself.
// The result is in breadth-first order (closest parents first).
func Ancestors(l Lookup, p *Project) []string {
	result := make([]string, 0)
	visited := map[string]bool{p.Name(): true}

	queue := []*Project{p}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, parent := range DirectParents(l, current) {
			name := parent.Name()
			if visited[name] {
				continue
			}
			visited[name] = true
			result = append(result, name)
			queue = append(queue, parent)
		}
	}

	return result
}
