// Package governor resolves one inheritable field of a project across
// versioning and inheritance.
//
// A Governor knows how to read the field's raw value, its value at a
// recorded version, and how to reduce the values of a whole inheritance
// scope into one. Resolve picks the cheapest strategy the call needs:
//
//   - raw: the project's own value, returned as the stored object;
//   - versioned: the value at the version selected by the version context;
//   - inherited: every scope member's (versioned) value, reduced.
//
// Configuration errors such as cycles or unresolved references never fail
// a resolution. They are logged and the resolution degrades.
package governor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/vcontext"
)

// Mode is the resolution mode requested by the caller.
type Mode int

const (
	// Auto decides inheritance and versioning from the call context.
	Auto Mode = iota

	// ForceInherit always inherits and versions, unless a cycle is
	// reachable from the project.
	ForceInherit

	// LocalOnly never inherits but still reads the selected version.
	LocalOnly
)

var modeNames = [...]string{
	Auto:         "auto",
	ForceInherit: "force-inherit",
	LocalOnly:    "local-only",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode maps a mode name back to its Mode.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resolution mode %q", name)
}

// ErrCast indicates a stored value is not of the governor's type.
var ErrCast = errors.New("governor: value has unexpected type")

// As returns v as a T without copying or converting it. Values of any
// other dynamic type fail with ErrCast.
func As[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: have %T, want %s", ErrCast, v, reflect.TypeFor[T]())
	}
	return t, nil
}

// Reducer collapses the non-null values of a scope, in scope order, into
// one. ok is false for a null result.
type Reducer[T any] func(ctx context.Context, env *Env, values []T) (result T, ok bool, err error)

// Last is the default Reducer: the last value wins.
func Last[T any](_ context.Context, _ *Env, values []T) (T, bool, error) {
	if len(values) == 0 {
		var zero T
		return zero, false, nil
	}
	return values[len(values)-1], true, nil
}

// Governor resolves the field Field of type T in priority domain Domain.
// A Governor is immutable and safe for concurrent use.
type Governor[T any] struct {
	field  string
	domain graph.Domain
	reduce Reducer[T]
}

// New returns a governor using the Last reduction.
func New[T any](field string, domain graph.Domain) *Governor[T] {
	return &Governor[T]{field: field, domain: domain, reduce: Last[T]}
}

// WithReducer returns a copy of g using r.
func (g *Governor[T]) WithReducer(r Reducer[T]) *Governor[T] {
	c := *g
	c.reduce = r
	return &c
}

// Field returns the field name.
func (g *Governor[T]) Field() string { return g.field }

// Domain returns the priority domain used for traversal.
func (g *Governor[T]) Domain() graph.Domain { return g.domain }

// Reduce applies the governor's reduction to the non-null values of a
// scope, in scope order.
func (g *Governor[T]) Reduce(ctx context.Context, env *Env, values []T) (T, bool, error) {
	return g.reduce(ctx, env, values)
}

// RawValue returns the project's own current value, the stored object
// itself. ok is false when the field is unset or null.
func (g *Governor[T]) RawValue(p *graph.Project) (T, bool, error) {
	var zero T
	v, ok := p.Field(g.field)
	if !ok || v == nil {
		return zero, false, nil
	}
	t, err := As[T](v)
	if err != nil {
		return zero, false, fmt.Errorf("raw %s.%s: %w", p.Name(), g.field, err)
	}
	return t, true, nil
}

// VersionedValue returns the value recorded in version n. It falls back to
// RawValue when the project has no such version or the version does not
// track the field; an explicit null in the version resolves to null.
func (g *Governor[T]) VersionedValue(ctx context.Context, env *Env, p *graph.Project, n int) (T, bool, error) {
	var zero T
	vm, ok := env.values(ctx, p.Name(), n)
	if !ok {
		return g.RawValue(p)
	}
	v, tracked := vm.Lookup(g.field)
	if !tracked {
		return g.RawValue(p)
	}
	if v == nil {
		return zero, false, nil
	}
	t, err := As[T](v)
	if err != nil {
		return zero, false, fmt.Errorf("version %s@%d.%s: %w", p.Name(), n, g.field, err)
	}
	return t, true, nil
}

// Decision records which strategies a resolution needs.
type Decision struct {
	Inherit    bool `json:"inherit"`
	Versioning bool `json:"versioning"`

	// Reason names what made inheritance required, or why it was refused.
	Reason string `json:"reason,omitempty"`

	// Cycle is the cycle that blocked resolution, if any.
	Cycle []string `json:"cycle,omitempty"`
}

// Decide evaluates the inheritance and versioning heuristics.
//
// A cycle reachable from p refuses everything: the raw value is used even
// under ForceInherit.
func (g *Governor[T]) Decide(ctx context.Context, env *Env, p *graph.Project, mode Mode) Decision {
	if mode == LocalOnly {
		return Decision{Versioning: true, Reason: "local-only"}
	}

	if cycle := graph.FindCycle(env.Projects, p); cycle != nil {
		env.logger().WarnContext(ctx, "reference cycle, inheritance skipped",
			"project", p.Name(), "field", g.field, "cycle", cycle)
		env.observer().CycleSkipped(p.Name(), g.field, cycle)
		return Decision{Reason: "cycle", Cycle: cycle}
	}

	if mode == ForceInherit {
		return Decision{Inherit: true, Versioning: true, Reason: "forced"}
	}

	d := Decision{Versioning: operation.KindFrom(ctx) != operation.KindSubmit}
	d.Inherit, d.Reason = inheritanceRequired(ctx, env, p)
	return d
}

func inheritanceRequired(ctx context.Context, env *Env, p *graph.Project) (bool, string) {
	if p.Abstract() {
		return true, "abstract"
	}
	if operation.KindFrom(ctx) == operation.KindBuild {
		return true, "build"
	}
	if path, ok := operation.RequestPath(ctx); ok {
		if name, ok := env.Predicates.Match(path); ok {
			return true, "request:" + name
		}
	}
	return false, ""
}

// Resolve returns the fully derived value of the field for p.
//
// pinned holds explicit per-call versions and takes precedence over the
// ambient version context of ctx. The only errors are contract violations
// (ErrCast, selector.ErrUnmergeable); ok is false for a null result.
func (g *Governor[T]) Resolve(ctx context.Context, env *Env, p *graph.Project, mode Mode, pinned vcontext.Versions) (T, bool, error) {
	start := time.Now()
	d := g.Decide(ctx, env, p, mode)

	var (
		v    T
		ok   bool
		err  error
		path Path
	)
	switch {
	case d.Inherit:
		path = PathInherited
		v, ok, err = g.inherit(ctx, env, p, d.Versioning, pinned)
	case d.Versioning:
		path = PathVersioned
		v, ok, err = g.versioned(ctx, env, p, pinned)
	default:
		path = PathRaw
		v, ok, err = g.RawValue(p)
	}
	if err != nil {
		var zero T
		return zero, false, err
	}

	env.observer().Resolved(g.field, mode, path, time.Since(start))
	return v, ok, nil
}

func (g *Governor[T]) versioned(ctx context.Context, env *Env, p *graph.Project, pinned vcontext.Versions) (T, bool, error) {
	n, ok := env.selectVersion(ctx, pinned, p.Name())
	if !ok {
		return g.RawValue(p)
	}
	return g.VersionedValue(ctx, env, p, n)
}

func (g *Governor[T]) inherit(ctx context.Context, env *Env, p *graph.Project, versioning bool, pinned vcontext.Versions) (T, bool, error) {
	logger := env.logger()
	obs := env.observer()
	scope := graph.Scope(env.Projects, p, g.domain, func(from, target string) {
		logger.WarnContext(ctx, "unresolved project reference", "project", from, "target", target)
		obs.UnresolvedReference(from, target)
	})

	values := make([]T, 0, len(scope))
	for _, member := range scope {
		var (
			v   T
			ok  bool
			err error
		)
		if versioning {
			v, ok, err = g.versioned(ctx, env, member, pinned)
		} else {
			v, ok, err = g.RawValue(member)
		}
		if err != nil {
			var zero T
			return zero, false, err
		}
		if ok {
			values = append(values, v)
		}
	}

	return g.reduce(ctx, env, values)
}
