// Package vcontext carries the per-operation version context: which version
// of each project a resolution should read.
//
// A context is established with Begin and torn down with the returned
// EndFunc, which callers defer:
//
//	ctx, end := vcontext.Begin(ctx, vcontext.Versions{"Base": 1})
//	defer end()
//
// Layers live in context.Context, so concurrent operations never share
// them. Nested layers shadow outer ones key by key. After End a layer is
// inert even if a derived context is still referenced.
//
// Version lookup is layered: an explicit per-call map first, then ambient
// layers innermost first, then the project's stable version.
package vcontext

import (
	"context"
	"maps"
	"sync/atomic"
)

// Versions maps project names to requested version numbers.
type Versions map[string]int

// EndFunc tears down a layer established by Begin. It is safe to call more
// than once.
type EndFunc func()

type ctxKey struct{}

type layer struct {
	versions Versions
	parent   *layer
	ended    atomic.Bool
}

// Begin returns a derived context carrying versions as a new innermost
// layer. The map is copied.
func Begin(ctx context.Context, versions Versions) (context.Context, EndFunc) {
	parent, _ := ctx.Value(ctxKey{}).(*layer)
	l := &layer{versions: maps.Clone(versions), parent: parent}
	return context.WithValue(ctx, ctxKey{}, l), func() { l.ended.Store(true) }
}

// Active reports whether ctx carries at least one live layer.
func Active(ctx context.Context) bool {
	for l := innermost(ctx); l != nil; l = l.parent {
		if !l.ended.Load() {
			return true
		}
	}
	return false
}

// Current returns the effective ambient mapping of ctx: every live layer
// merged, inner layers winning.
func Current(ctx context.Context) Versions {
	var chain []*layer
	for l := innermost(ctx); l != nil; l = l.parent {
		if !l.ended.Load() {
			chain = append(chain, l)
		}
	}
	out := make(Versions)
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(out, chain[i].versions)
	}
	return out
}

// Lookup returns the requested version of project from pinned, then from
// the live ambient layers of ctx.
func Lookup(ctx context.Context, pinned Versions, project string) (int, bool) {
	if n, ok := pinned[project]; ok {
		return n, true
	}
	for l := innermost(ctx); l != nil; l = l.parent {
		if l.ended.Load() {
			continue
		}
		if n, ok := l.versions[project]; ok {
			return n, true
		}
	}
	return 0, false
}

// StableSource reports a project's stable version.
type StableSource interface {
	Stable(ctx context.Context, project string) (n int, ok bool, err error)
}

// Select resolves the version to read for project: explicit, ambient, then
// stable. ok is false when none applies (for instance a project without
// versions). A nil src skips the stable fallback.
func Select(ctx context.Context, pinned Versions, src StableSource, project string) (int, bool, error) {
	if n, ok := Lookup(ctx, pinned, project); ok {
		return n, true, nil
	}
	if src == nil {
		return 0, false, nil
	}
	return src.Stable(ctx, project)
}

func innermost(ctx context.Context) *layer {
	l, _ := ctx.Value(ctxKey{}).(*layer)
	return l
}
