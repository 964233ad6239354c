// Package inheritance resolves the effective configuration of build-job
// definitions ("projects") that inherit from one another.
//
// A project names its parents through prioritised references. Resolving a
// field walks the acyclic reference graph in priority order, reads every
// ancestor at its selected version, and reduces the values through the
// field's merge policy.
//
// # Overview
//
// The package is a thin facade over its subpackages:
//
//   - graph: projects, references and scope traversal
//   - version: append-only version histories (memory or SQLite)
//   - vcontext: the scoped version context
//   - operation: call-context classification and request-path predicates
//   - selector: pluggable list merge policies
//   - governor: per-field resolution
//
// # Quick Start
//
//	engine, err := inheritance.New()
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	projects, err := inheritance.ParseProjectFile("jobs.star")
//	if err != nil {
//	    return err
//	}
//	if err := inheritance.LoadInto(engine.Registry(), projects); err != nil {
//	    return err
//	}
//
//	timeout, err := engine.ResolveField(ctx, "app/build", inheritance.Field("timeout"), governor.ForceInherit)
//
// # Version Context
//
// Version selection is carried in the context:
//
//	ctx, end := engine.BeginVersionContext(ctx, vcontext.Versions{"base": 1})
//	defer end()
//
// # Thread Safety
//
// All public types in this package are safe for concurrent use.
package inheritance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/i-m-c/go-inheritance/governor"
	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/model"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/selector"
	"github.com/i-m-c/go-inheritance/vcontext"
	"github.com/i-m-c/go-inheritance/version"
)

// Engine resolves fields of the projects in its registry.
type Engine struct {
	cfg        *engineConfig
	logger     *slog.Logger
	registry   *graph.Registry
	projects   *graph.Cache
	store      version.Store
	selectors  *selector.Registry
	predicates *operation.Predicates
	metrics    *Metrics
	env        *governor.Env

	governors sync.Map // FieldSpec -> fieldGovernor
	closed    atomic.Bool
}

// New creates an engine. Without options it uses an empty registry, an
// in-memory version store, the built-in selectors and predicates, and no
// logging. A store supplied with WithStore is closed if New fails.
func New(opts ...Option) (_ *Engine, err error) {
	cfg, err := newEngineConfig(opts...)
	if cfg.store != nil {
		defer func() {
			if err != nil {
				_ = cfg.store.Close()
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     cfg.log(),
		registry:   cfg.registry,
		store:      cfg.store,
		selectors:  selector.NewRegistry(),
		predicates: operation.NewPredicates(),
	}
	if e.registry == nil {
		e.registry = graph.NewRegistry()
	}
	if e.store == nil {
		e.store = version.NewMemoryStore()
	}

	e.projects, err = graph.NewCache(e.registry, cfg.projectCacheSize)
	if err != nil {
		return nil, err
	}

	if !cfg.noDefaultSels {
		e.selectors.Register(model.DefaultSelectors()...)
	}
	e.selectors.Register(cfg.selectors...)

	if !cfg.noDefaultPreds {
		e.predicates.Register(operation.DefaultPredicates()...)
	}
	e.predicates.Register(cfg.predicates...)

	if cfg.metricsRegistry != nil {
		e.metrics, err = NewMetrics(cfg.metricsRegistry)
		if err != nil {
			return nil, err
		}
	}

	e.env = &governor.Env{
		Projects:   e.projects,
		Store:      e.store,
		Selectors:  e.selectors,
		Predicates: e.predicates,
		Logger:     e.logger,
	}
	if e.metrics != nil {
		e.env.Observer = e.metrics
	}

	return e, nil
}

// Registry returns the authoritative project registry.
func (e *Engine) Registry() *graph.Registry { return e.registry }

// Selectors returns the selector registry. Selectors registered on it
// apply to every later resolution.
func (e *Engine) Selectors() *selector.Registry { return e.selectors }

// Predicates returns the request-path predicate registry.
func (e *Engine) Predicates() *operation.Predicates { return e.predicates }

// Store returns the version store.
func (e *Engine) Store() version.Store { return e.store }

// Metrics returns the engine's collectors, or nil without WithMetrics.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// RegisterSelectors appends selectors to the selector registry.
func (e *Engine) RegisterSelectors(s ...selector.Selector) {
	e.selectors.Register(s...)
}

// RegisterPredicates appends request-path predicates.
func (e *Engine) RegisterPredicates(p ...operation.Predicate) {
	e.predicates.Register(p...)
}

// Project returns the project registered under name.
func (e *Engine) Project(name string) (*graph.Project, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	p, ok := e.projects.Project(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	return p, nil
}

// RenameProject renames a project and moves its version history with it.
// References held by other projects are not rewritten.
//
// If the history cannot be moved the registry rename is undone.
func (e *Engine) RenameProject(ctx context.Context, oldName, newName string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.registry.Rename(oldName, newName); err != nil {
		if errors.Is(err, graph.ErrProjectNotFound) {
			return fmt.Errorf("%w: %q", ErrProjectNotFound, oldName)
		}
		return err
	}
	if err := e.store.Rename(ctx, oldName, newName); err != nil {
		err = fmt.Errorf("move history of %q to %q: %w", oldName, newName, err)
		if undoErr := e.registry.Rename(newName, oldName); undoErr != nil {
			return errors.Join(err, undoErr)
		}
		return err
	}
	e.projects.Purge()
	e.logger.InfoContext(ctx, "project renamed", "from", oldName, "to", newName)
	return nil
}

func (e *Engine) governor(spec FieldSpec) (fieldGovernor, error) {
	if g, ok := e.governors.Load(spec); ok {
		return g.(fieldGovernor), nil
	}
	g, err := newFieldGovernor(spec)
	if err != nil {
		return nil, err
	}
	actual, _ := e.governors.LoadOrStore(spec, g)
	return actual.(fieldGovernor), nil
}

// CallOption adjusts a single resolution.
type CallOption func(*callConfig)

type callConfig struct {
	pinned vcontext.Versions
	kind   operation.Kind
	path   string
}

// AtVersions pins project versions for this call. Pinned versions take
// precedence over the ambient version context.
func AtVersions(v vcontext.Versions) CallOption {
	return func(c *callConfig) { c.pinned = v }
}

// DuringOperation classifies the call as part of operation k.
func DuringOperation(k operation.Kind) CallOption {
	return func(c *callConfig) { c.kind = k }
}

// ForRequest marks the call as serving the given request path.
func ForRequest(path string) CallOption {
	return func(c *callConfig) { c.path = path }
}

func applyCallOptions(ctx context.Context, opts []CallOption) (context.Context, vcontext.Versions) {
	var c callConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.kind != operation.KindUnspecified {
		ctx = operation.WithKind(ctx, c.kind)
	}
	if c.path != "" {
		ctx = operation.WithRequestPath(ctx, c.path)
	}
	return ctx, c.pinned
}

// ResolveField returns the derived value of a field of the named project.
// A null result is returned as nil.
//
// Cycles and unresolved references degrade the result and are logged. The
// only resolution errors are contract violations (governor.ErrCast,
// selector.ErrUnmergeable).
func (e *Engine) ResolveField(ctx context.Context, project string, spec FieldSpec, mode governor.Mode, opts ...CallOption) (any, error) {
	p, err := e.Project(project)
	if err != nil {
		return nil, err
	}
	g, err := e.governor(spec)
	if err != nil {
		return nil, err
	}
	ctx, pinned := applyCallOptions(ctx, opts)

	v, ok, err := g.resolve(ctx, e.env, p, mode, pinned)
	if err != nil {
		return nil, fmt.Errorf("resolve %s of %q: %w", spec, project, err)
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Effective resolves every built-in list field and every scalar field set
// anywhere in the project's scope. Null results are omitted.
func (e *Engine) Effective(ctx context.Context, project string, mode governor.Mode, opts ...CallOption) (map[string]any, error) {
	p, err := e.Project(project)
	if err != nil {
		return nil, err
	}

	specs := ListFields()
	names := make(map[string]bool)
	for _, member := range graph.Scope(e.projects, p, graph.DomainMisc, nil) {
		for _, name := range member.FieldNames() {
			if !listFieldNames[name] && !names[name] {
				names[name] = true
				specs = append(specs, Field(name))
			}
		}
	}

	out := make(map[string]any, len(specs))
	for _, spec := range specs {
		v, err := e.ResolveField(ctx, project, spec, mode, opts...)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[spec.Name] = v
		}
	}
	return out, nil
}

// Contribution is one scope member's input to a resolution.
type Contribution struct {
	Project string `json:"project"`

	// Version is the version read, or 0 for the raw value.
	Version int `json:"version,omitempty"`

	// Value is the member's value; nil when Null.
	Value any  `json:"value,omitempty"`
	Null  bool `json:"null,omitempty"`
}

// Explanation describes how a field resolved.
type Explanation struct {
	Field         string            `json:"field"`
	Decision      governor.Decision `json:"decision"`
	Contributions []Contribution    `json:"contributions"`
	Result        any               `json:"result"`
}

// Explain resolves a field and reports which projects and versions
// contributed to the result.
func (e *Engine) Explain(ctx context.Context, project string, spec FieldSpec, mode governor.Mode, opts ...CallOption) (*Explanation, error) {
	p, err := e.Project(project)
	if err != nil {
		return nil, err
	}
	g, err := e.governor(spec)
	if err != nil {
		return nil, err
	}
	ctx, pinned := applyCallOptions(ctx, opts)

	d := g.decide(ctx, e.env, p, mode)
	members := []*graph.Project{p}
	if d.Inherit {
		members = graph.Scope(e.projects, p, g.domain(), nil)
	}

	ex := &Explanation{Field: spec.Name, Decision: d}
	values := make([]any, 0, len(members))
	for _, m := range members {
		c := Contribution{Project: m.Name()}
		var (
			v  any
			ok bool
		)
		if n, has := e.selectVersion(ctx, pinned, m.Name()); d.Versioning && has {
			c.Version = n
			v, ok, err = g.versioned(ctx, e.env, m, n)
		} else {
			v, ok, err = g.raw(m)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			c.Value = v
			values = append(values, v)
		} else {
			c.Null = true
		}
		ex.Contributions = append(ex.Contributions, c)
	}

	// Decide once: the result is reduced from the contributions.
	if !d.Inherit {
		ex.Result = ex.Contributions[0].Value
		return ex, nil
	}
	result, ok, err := g.reduce(ctx, e.env, values)
	if err != nil {
		return nil, fmt.Errorf("explain %s of %q: %w", spec, project, err)
	}
	if ok {
		ex.Result = result
	}
	return ex, nil
}

func (e *Engine) selectVersion(ctx context.Context, pinned vcontext.Versions, project string) (int, bool) {
	n, ok, err := vcontext.Select(ctx, pinned, e.store, project)
	if err != nil {
		return 0, false
	}
	return n, ok
}

// Scope returns the names of the project and its ancestors in traversal
// order for domain d. A reachable cycle is returned as a *graph.CycleError.
func (e *Engine) Scope(ctx context.Context, project string, d graph.Domain) ([]string, error) {
	p, err := e.Project(project)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckAcyclic(e.projects, p); err != nil {
		return nil, err
	}
	scope := graph.Scope(e.projects, p, d, func(from, target string) {
		e.logger.WarnContext(ctx, "unresolved project reference", "project", from, "target", target)
	})
	return graph.Names(scope), nil
}

// BeginVersionContext establishes a version context on ctx. The returned
// EndFunc must be called, typically deferred, when the operation ends.
func (e *Engine) BeginVersionContext(ctx context.Context, versions vcontext.Versions) (context.Context, vcontext.EndFunc) {
	return vcontext.Begin(ctx, versions)
}

// RecordVersion records the project's current fields as a new version.
// Unless disabled with WithStableOnRecord, the new version becomes stable.
func (e *Engine) RecordVersion(ctx context.Context, project string) (version.Info, error) {
	p, err := e.Project(project)
	if err != nil {
		return version.Info{}, err
	}
	info, err := e.store.Record(ctx, project, p.Snapshot())
	if err != nil {
		return version.Info{}, fmt.Errorf("record %q: %w", project, err)
	}
	if e.cfg.stableOnRecord {
		if err := e.store.SetStable(ctx, project, info.Number); err != nil {
			return info, fmt.Errorf("mark %q@%d stable: %w", project, info.Number, err)
		}
		info.Stable = true
	}
	if e.metrics != nil {
		e.metrics.versionRecorded()
	}
	e.logger.InfoContext(ctx, "version recorded",
		"project", project, "version", info.Number, "digest", info.Digest, "stable", info.Stable)
	return info, nil
}

// SetStableVersion marks version n of the project stable.
func (e *Engine) SetStableVersion(ctx context.Context, project string, n int) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.store.SetStable(ctx, project, n); err != nil {
		return fmt.Errorf("mark %q@%d stable: %w", project, n, err)
	}
	e.logger.InfoContext(ctx, "stable version set", "project", project, "version", n)
	return nil
}

// StableVersion returns the project's stable version. ok is false when
// the project has no versions.
func (e *Engine) StableVersion(ctx context.Context, project string) (int, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}
	return e.store.Stable(ctx, project)
}

// LatestVersion returns the project's newest version. ok is false when
// the project has no versions.
func (e *Engine) LatestVersion(ctx context.Context, project string) (int, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}
	return e.store.Latest(ctx, project)
}

// Versions lists the project's versions, oldest first.
func (e *Engine) Versions(ctx context.Context, project string) ([]version.Info, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.store.List(ctx, project)
}

// HasChanges reports whether the project's current fields differ from its
// latest version. A project without versions always has changes.
func (e *Engine) HasChanges(ctx context.Context, project string) (bool, error) {
	p, err := e.Project(project)
	if err != nil {
		return false, err
	}
	infos, err := e.store.List(ctx, project)
	if err != nil {
		return false, err
	}
	if len(infos) == 0 {
		return true, nil
	}
	digest, err := version.Digest(p.Snapshot())
	if err != nil {
		return false, err
	}
	return digest != infos[len(infos)-1].Digest, nil
}

// DiffVersions compares two versions of a project. Version 0 stands for
// the project's current fields.
func (e *Engine) DiffVersions(ctx context.Context, project string, from, to int) (version.Diff, error) {
	old, err := e.snapshotAt(ctx, project, from)
	if err != nil {
		return version.Diff{}, err
	}
	cur, err := e.snapshotAt(ctx, project, to)
	if err != nil {
		return version.Diff{}, err
	}
	return version.Compare(old, cur), nil
}

func (e *Engine) snapshotAt(ctx context.Context, project string, n int) (version.ValueMap, error) {
	if n == 0 {
		p, err := e.Project(project)
		if err != nil {
			return nil, err
		}
		return p.Snapshot(), nil
	}
	vm, ok, err := e.store.Values(ctx, project, n)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%q@%d: %w", project, n, version.ErrVersionNotFound)
	}
	return vm, nil
}

// ProjectNames returns the registered project names, sorted.
func (e *Engine) ProjectNames() []string {
	return e.registry.Names()
}

// Close purges the project cache and closes the version store. It is safe
// to call more than once.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.projects.Purge()
	if err := e.store.Close(); err != nil && !errors.Is(err, version.ErrClosed) {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
