package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Sentinel errors for registry mutations.
var (
	// ErrDuplicateProject indicates a project with the same name is already registered.
	ErrDuplicateProject = errors.New("project already registered")

	// ErrProjectNotFound indicates no project is registered under the name.
	ErrProjectNotFound = errors.New("project not found")

	// ErrEmptyName indicates a project without a name.
	ErrEmptyName = errors.New("empty project name")
)

// Registry is the authoritative name index of projects.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Project
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Project)}
}

// Add registers a project under its current name.
func (r *Registry) Add(p *Project) error {
	name := p.Name()
	if name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("add %q: %w", name, ErrDuplicateProject)
	}
	r.byName[name] = p
	return nil
}

// Project implements Lookup.
func (r *Registry) Project(name string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Remove unregisters a project and marks it removed so caches drop it.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("remove %q: %w", name, ErrProjectNotFound)
	}
	delete(r.byName, name)
	p.removed.Store(true)
	return nil
}

// Rename moves a project to a new name. References held by other projects
// are not rewritten; they resolve as unresolved until updated.
func (r *Registry) Rename(oldName, newName string) error {
	if newName == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[oldName]
	if !ok {
		return fmt.Errorf("rename %q: %w", oldName, ErrProjectNotFound)
	}
	if _, exists := r.byName[newName]; exists {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, ErrDuplicateProject)
	}
	delete(r.byName, oldName)
	p.setName(newName)
	r.byName[newName] = p
	return nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byName))
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
