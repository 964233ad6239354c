package inheritance

import (
	"context"
	"fmt"
	"reflect"

	"github.com/i-m-c/go-inheritance/governor"
	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/model"
	"github.com/i-m-c/go-inheritance/vcontext"
)

// FieldKind is the category of an inheritable field. Each kind carries its
// priority domain, element family and reduction.
type FieldKind int

const (
	// KindScalar is a single value; the last non-null value in scope wins.
	KindScalar FieldKind = iota

	// KindParameters is the list of build parameters.
	KindParameters

	// KindBuildWrappers is the list of build wrappers.
	KindBuildWrappers

	// KindBuilders is the list of build steps.
	KindBuilders

	// KindPublishers is the list of publishers.
	KindPublishers

	// KindProperties is the list of job properties.
	KindProperties

	// KindSCM is the list of SCM configurations, at most one per type.
	KindSCM
)

type kindInfo struct {
	name     string
	field    string
	domain   graph.Domain
	elemType reflect.Type
	dedupe   bool
}

var kindTable = [...]kindInfo{
	KindScalar:        {name: "scalar", domain: graph.DomainMisc},
	KindParameters:    {name: "parameters", field: "parameters", domain: graph.DomainParameter, elemType: model.ParameterType},
	KindBuildWrappers: {name: "build_wrappers", field: "build_wrappers", domain: graph.DomainBuildWrapper, elemType: model.WrapperType},
	KindBuilders:      {name: "builders", field: "builders", domain: graph.DomainBuilder, elemType: model.StepType},
	KindPublishers:    {name: "publishers", field: "publishers", domain: graph.DomainPublisher, elemType: model.PublisherType},
	KindProperties:    {name: "properties", field: "properties", domain: graph.DomainMisc, elemType: model.PropertyType},
	KindSCM:           {name: "scm", field: "scm", domain: graph.DomainMisc, elemType: model.SCMType, dedupe: true},
}

func (k FieldKind) valid() bool {
	return k >= 0 && int(k) < len(kindTable)
}

func (k FieldKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindTable[k].name
}

// Domain returns the priority domain fields of this kind traverse in.
func (k FieldKind) Domain() graph.Domain {
	if !k.valid() {
		return graph.DomainMisc
	}
	return kindTable[k].domain
}

// ParseFieldKind maps a kind name back to its FieldKind.
func ParseFieldKind(name string) (FieldKind, error) {
	for i, info := range kindTable {
		if info.name == name {
			return FieldKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFieldKind, name)
}

// FieldSpec names a field and how it is resolved.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

func (s FieldSpec) String() string {
	if s.Kind == KindScalar {
		return s.Name
	}
	return s.Name + ":" + s.Kind.String()
}

// Field returns the spec of a scalar field.
func Field(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: KindScalar}
}

// Built-in list fields, stored under their kind's field name.
var (
	Parameters    = FieldSpec{Name: "parameters", Kind: KindParameters}
	BuildWrappers = FieldSpec{Name: "build_wrappers", Kind: KindBuildWrappers}
	Builders      = FieldSpec{Name: "builders", Kind: KindBuilders}
	Publishers    = FieldSpec{Name: "publishers", Kind: KindPublishers}
	Properties    = FieldSpec{Name: "properties", Kind: KindProperties}
	SCMs          = FieldSpec{Name: "scm", Kind: KindSCM}
)

// ListFields returns the built-in list fields in declaration order.
func ListFields() []FieldSpec {
	return []FieldSpec{Parameters, BuildWrappers, Builders, Publishers, Properties, SCMs}
}

// listFieldNames holds the storage names reserved by list kinds.
var listFieldNames = func() map[string]bool {
	m := make(map[string]bool, len(kindTable))
	for _, info := range kindTable {
		if info.field != "" {
			m[info.field] = true
		}
	}
	return m
}()

// fieldGovernor erases the element type of a governor so the engine can
// hold scalar and list governors in one table.
type fieldGovernor interface {
	decide(ctx context.Context, env *governor.Env, p *graph.Project, mode governor.Mode) governor.Decision
	resolve(ctx context.Context, env *governor.Env, p *graph.Project, mode governor.Mode, pinned vcontext.Versions) (any, bool, error)
	raw(p *graph.Project) (any, bool, error)
	versioned(ctx context.Context, env *governor.Env, p *graph.Project, n int) (any, bool, error)
	reduce(ctx context.Context, env *governor.Env, values []any) (any, bool, error)
	domain() graph.Domain
}

type typedGovernor[T any] struct {
	g *governor.Governor[T]
}

func (t typedGovernor[T]) decide(ctx context.Context, env *governor.Env, p *graph.Project, mode governor.Mode) governor.Decision {
	return t.g.Decide(ctx, env, p, mode)
}

func (t typedGovernor[T]) resolve(ctx context.Context, env *governor.Env, p *graph.Project, mode governor.Mode, pinned vcontext.Versions) (any, bool, error) {
	v, ok, err := t.g.Resolve(ctx, env, p, mode, pinned)
	return v, ok, err
}

func (t typedGovernor[T]) raw(p *graph.Project) (any, bool, error) {
	v, ok, err := t.g.RawValue(p)
	return v, ok, err
}

func (t typedGovernor[T]) versioned(ctx context.Context, env *governor.Env, p *graph.Project, n int) (any, bool, error) {
	v, ok, err := t.g.VersionedValue(ctx, env, p, n)
	return v, ok, err
}

func (t typedGovernor[T]) reduce(ctx context.Context, env *governor.Env, values []any) (any, bool, error) {
	typed := make([]T, 0, len(values))
	for _, v := range values {
		tv, err := governor.As[T](v)
		if err != nil {
			return nil, false, err
		}
		typed = append(typed, tv)
	}
	v, ok, err := t.g.Reduce(ctx, env, typed)
	return v, ok, err
}

func (t typedGovernor[T]) domain() graph.Domain {
	return t.g.Domain()
}

// newFieldGovernor builds the governor for spec from the kind table.
func newFieldGovernor(spec FieldSpec) (fieldGovernor, error) {
	if !spec.Kind.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFieldKind, int(spec.Kind))
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("field of kind %s has no name", spec.Kind)
	}
	info := kindTable[spec.Kind]
	if info.elemType == nil {
		return typedGovernor[any]{governor.New[any](spec.Name, info.domain)}, nil
	}
	var opts []governor.ListOption
	if info.dedupe {
		opts = append(opts, governor.DedupeByClass())
	}
	return typedGovernor[[]any]{governor.NewList(spec.Name, info.domain, info.elemType, opts...)}, nil
}
