package selector

import (
	"reflect"
	"slices"
	"sync"
)

// Registry is an ordered, append-only set of selectors populated at
// startup. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	selectors []Selector
}

// NewRegistry creates a registry holding the given selectors in order.
func NewRegistry(selectors ...Selector) *Registry {
	r := &Registry{}
	r.Register(selectors...)
	return r
}

// Register appends selectors. Nil entries are ignored.
func (r *Registry) Register(selectors ...Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range selectors {
		if s != nil {
			r.selectors = append(r.selectors, s)
		}
	}
}

// All returns every registered selector in registration order.
func (r *Registry) All() []Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.selectors)
}

// Len returns the number of registered selectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.selectors)
}

// For returns the selectors applicable to elemType, in registration order.
func (r *Registry) For(elemType reflect.Type) []Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Selector
	for _, s := range r.selectors {
		if s.Applicable(elemType) {
			out = append(out, s)
		}
	}
	return out
}

// ApplyAll chains every selector applicable to elemType over list.
// A nil registry returns the list unchanged.
func (r *Registry) ApplyAll(elemType reflect.Type, list []any) ([]any, error) {
	if r == nil {
		return list, nil
	}
	var err error
	for _, s := range r.For(elemType) {
		list, err = Apply(s, list)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}
