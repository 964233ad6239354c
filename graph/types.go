package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Domain identifies which priority of a Reference applies during traversal.
type Domain int

const (
	// DomainParameter orders parameter definitions.
	DomainParameter Domain = iota

	// DomainBuildWrapper orders build wrappers.
	DomainBuildWrapper

	// DomainBuilder orders build steps.
	DomainBuilder

	// DomainPublisher orders publishers.
	DomainPublisher

	// DomainMisc orders every other field (SCM, properties, scalars).
	DomainMisc
)

var domainNames = [...]string{
	DomainParameter:    "parameter",
	DomainBuildWrapper: "build_wrapper",
	DomainBuilder:      "builder",
	DomainPublisher:    "publisher",
	DomainMisc:         "misc",
}

// String returns the lower-case domain name used in project files and logs.
func (d Domain) String() string {
	if d < 0 || int(d) >= len(domainNames) {
		return fmt.Sprintf("domain(%d)", int(d))
	}
	return domainNames[d]
}

// ParseDomain maps a domain name back to its Domain.
func ParseDomain(name string) (Domain, error) {
	for i, n := range domainNames {
		if n == name {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("unknown domain %q", name)
}

// Priorities holds one independent priority per Domain.
// Zero or negative means "before the owner", positive means "after".
type Priorities struct {
	Parameter    int `json:"parameter"`
	BuildWrapper int `json:"build_wrapper"`
	Builder      int `json:"builder"`
	Publisher    int `json:"publisher"`
	Misc         int `json:"misc"`
}

// Uniform returns Priorities with the same value in every domain.
func Uniform(p int) Priorities {
	return Priorities{Parameter: p, BuildWrapper: p, Builder: p, Publisher: p, Misc: p}
}

// For returns the priority for the given domain.
func (p Priorities) For(d Domain) int {
	switch d {
	case DomainParameter:
		return p.Parameter
	case DomainBuildWrapper:
		return p.BuildWrapper
	case DomainBuilder:
		return p.Builder
	case DomainPublisher:
		return p.Publisher
	default:
		return p.Misc
	}
}

// Set returns a copy of p with the priority for d replaced.
func (p Priorities) Set(d Domain, v int) Priorities {
	switch d {
	case DomainParameter:
		p.Parameter = v
	case DomainBuildWrapper:
		p.BuildWrapper = v
	case DomainBuilder:
		p.Builder = v
	case DomainPublisher:
		p.Publisher = v
	default:
		p.Misc = v
	}
	return p
}

// Reference is a directed "parent" edge from the project that owns it to the
// project named Target. Targets are resolved lazily by name.
type Reference struct {
	// Target is the name of the parent project.
	Target string `json:"target"`

	// Priorities controls where the parent's contributions are placed
	// relative to the owning project, per domain.
	Priorities Priorities `json:"priorities"`
}

// Prior reports whether the target contributes before the owner in domain d.
func (r Reference) Prior(d Domain) bool {
	return r.Priorities.For(d) <= 0
}

// Project is a build job definition that may inherit from other projects.
//
// Project is safe for concurrent use. Field values are returned as stored;
// callers must treat them as immutable and replace rather than mutate them.
type Project struct {
	mu         sync.RWMutex
	name       string
	abstract   bool
	references []Reference
	fields     map[string]any

	removed atomic.Bool
}

// NewProject creates an empty project with the given name.
func NewProject(name string) *Project {
	return &Project{
		name:   name,
		fields: make(map[string]any),
	}
}

// Name returns the project's current full name.
func (p *Project) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Project) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Abstract reports whether the project is transient: it cannot be built
// directly and exists only to be inherited from.
func (p *Project) Abstract() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.abstract
}

// SetAbstract marks the project as transient or buildable.
func (p *Project) SetAbstract(abstract bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abstract = abstract
}

// References returns a copy of the project's parent references in
// declaration order.
func (p *Project) References() []Reference {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.references)
}

// AddReference appends a parent reference.
func (p *Project) AddReference(ref Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.references = append(p.references, ref)
}

// SetReferences replaces all parent references.
func (p *Project) SetReferences(refs []Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.references = slices.Clone(refs)
}

// Field returns the project's own value for a field. The returned value is
// the stored object itself. ok is false when the field is not set; a field
// explicitly set to nil returns (nil, true).
func (p *Project) Field(name string) (value any, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok = p.fields[name]
	return value, ok
}

// SetField stores a value for a field. A nil value records an explicit null.
func (p *Project) SetField(name string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[name] = value
}

// UnsetField removes a field entirely.
func (p *Project) UnsetField(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fields, name)
}

// FieldNames returns the names of all locally set fields, sorted.
func (p *Project) FieldNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.fields))
}

// Snapshot returns a shallow copy of the project's field map. It is the
// input for recording a new version.
func (p *Project) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.fields)
}

// Removed reports whether the project was removed from its registry.
// Stale caches use this to detect dead entries.
func (p *Project) Removed() bool {
	return p.removed.Load()
}

// Lookup resolves project names to projects.
type Lookup interface {
	// Project returns the project currently registered under name.
	Project(name string) (*Project, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(name string) (*Project, bool)

// Project implements Lookup.
func (f LookupFunc) Project(name string) (*Project, bool) {
	return f(name)
}

// CycleError describes a parent-reference cycle.
type CycleError struct {
	// Path lists the project names along the cycle; the first and last
	// entries are the same project.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("project reference cycle: %s", formatPath(e.Path))
}

// formatPath formats a path for display.
// Example: ["a", "b", "a"] -> "a -> b -> a"
func formatPath(path []string) string {
	if len(path) == 0 {
		return ""
	}
	result := path[0]
	for i := 1; i < len(path); i++ {
		result += " -> " + path[i]
	}
	return result
}
