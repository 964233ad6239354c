package governor

import (
	"context"
	"log/slog"
	"time"

	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/selector"
	"github.com/i-m-c/go-inheritance/vcontext"
	"github.com/i-m-c/go-inheritance/version"
)

// Path names the strategy a resolution took.
type Path int

const (
	// PathRaw returned the project's own in-memory value.
	PathRaw Path = iota

	// PathVersioned returned the project's value at a selected version.
	PathVersioned

	// PathInherited reduced the values of the whole scope.
	PathInherited
)

func (p Path) String() string {
	switch p {
	case PathRaw:
		return "raw"
	case PathVersioned:
		return "versioned"
	case PathInherited:
		return "inherited"
	}
	return "unknown"
}

// Observer receives resolution events. Implementations must be safe for
// concurrent use.
type Observer interface {
	// Resolved is called once per successful top-level resolution.
	Resolved(field string, mode Mode, path Path, elapsed time.Duration)

	// CycleSkipped is called when a cycle blocks inheritance.
	CycleSkipped(project, field string, cycle []string)

	// UnresolvedReference is called for every reference that names no
	// project during traversal.
	UnresolvedReference(project, target string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Resolved(string, Mode, Path, time.Duration) {}
func (NopObserver) CycleSkipped(string, string, []string)      {}
func (NopObserver) UnresolvedReference(string, string)         {}

// Env is everything a resolution consults. Only Projects is required.
type Env struct {
	// Projects resolves reference targets.
	Projects graph.Lookup

	// Store holds version histories. Nil means no project has versions.
	Store version.Store

	// Selectors combine list elements. Nil applies none.
	Selectors *selector.Registry

	// Predicates decide which request paths need inheritance.
	Predicates *operation.Predicates

	// Logger receives configuration warnings. Nil discards.
	Logger *slog.Logger

	// Observer receives resolution events. Nil discards.
	Observer Observer
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Env) observer() Observer {
	if e.Observer == nil {
		return NopObserver{}
	}
	return e.Observer
}

// values returns the snapshot of project at version n. Store failures are
// logged and reported as missing data.
func (e *Env) values(ctx context.Context, project string, n int) (version.ValueMap, bool) {
	if e.Store == nil {
		return nil, false
	}
	vm, ok, err := e.Store.Values(ctx, project, n)
	if err != nil {
		e.logger().WarnContext(ctx, "version data unavailable, using raw value",
			"project", project, "version", n, "error", err)
		return nil, false
	}
	return vm, ok
}

// selectVersion picks the version of project to read: pinned, ambient,
// then stable. Store failures are logged and treated as "no version".
func (e *Env) selectVersion(ctx context.Context, pinned vcontext.Versions, project string) (int, bool) {
	var src vcontext.StableSource
	if e.Store != nil {
		src = e.Store
	}
	n, ok, err := vcontext.Select(ctx, pinned, src, project)
	if err != nil {
		e.logger().WarnContext(ctx, "stable version unavailable, using raw value",
			"project", project, "error", err)
		return 0, false
	}
	return n, ok
}
