// Package graph models the project reference graph that inheritance is
// resolved over.
//
// Nodes are projects; each project owns an ordered list of parent
// references. A reference carries one priority per inheritance domain
// (parameters, build wrappers, builders, publishers and everything else).
// A priority of zero or less places the parent's contributions before the
// owning project, a positive priority places them after it.
//
// # Building a Graph
//
// Projects are registered by name in a Registry, which is the authoritative
// name index:
//
//	reg := graph.NewRegistry()
//	base := graph.NewProject("base")
//	base.SetField("timeout", 30)
//	child := graph.NewProject("child")
//	child.AddReference(graph.Reference{Target: "base"})
//	_ = reg.Add(base)
//	_ = reg.Add(child)
//
// A Cache can sit in front of any Lookup. It is advisory only: stale entries
// (renamed or removed projects) are detected on hit and the authoritative
// lookup is consulted instead.
//
// # Traversal
//
// Scope computes the ordered list of a project and all its ancestors for one
// domain:
//
//	scope := graph.Scope(reg, child, graph.DomainMisc, nil)
//
// Scope assumes an acyclic graph. Callers check FindCycle first and refuse to
// resolve inheritance for projects that can reach a cycle.
//
// # Output Formats
//
//	dot := graph.ToDOT(reg, child)   // Graphviz view of reachable references
//	txt := graph.ScopeText(scope)    // one project per line, in scope order
package graph
