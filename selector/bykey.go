package selector

import (
	"fmt"
	"reflect"
)

// KeySelector is a Selector for every type assignable to T, identified by a
// string key and combined with one fixed Mode.
type KeySelector[T any] struct {
	mode     Mode
	key      func(T) string
	merge    func(prior, later T) (T, error)
	finalize func(T) T
	target   reflect.Type
}

var _ Selector = (*KeySelector[any])(nil)

// ByKey returns a selector that groups T elements by key. Elements with an
// empty key are not claimed.
func ByKey[T any](mode Mode, key func(T) string) *KeySelector[T] {
	return &KeySelector[T]{
		mode:   mode,
		key:    key,
		target: reflect.TypeFor[T](),
	}
}

// WithMerge sets the merge function used under Merge mode.
func (s *KeySelector[T]) WithMerge(fn func(prior, later T) (T, error)) *KeySelector[T] {
	s.merge = fn
	return s
}

// WithFinalize sets the finalize hook.
func (s *KeySelector[T]) WithFinalize(fn func(T) T) *KeySelector[T] {
	s.finalize = fn
	return s
}

// Applicable implements Selector.
func (s *KeySelector[T]) Applicable(t reflect.Type) bool {
	return t != nil && t.AssignableTo(s.target)
}

// Mode implements Selector.
func (s *KeySelector[T]) Mode(t reflect.Type) Mode {
	if !s.Applicable(t) {
		return NotResponsible
	}
	return s.mode
}

// Identifier implements Selector.
func (s *KeySelector[T]) Identifier(elem any) (string, bool) {
	v, ok := elem.(T)
	if !ok {
		return "", false
	}
	id := s.key(v)
	return id, id != ""
}

// Merge implements Selector.
func (s *KeySelector[T]) Merge(prior, later any) (any, error) {
	if s.merge == nil {
		return nil, fmt.Errorf("no merge function for %s", s.target)
	}
	p, ok := prior.(T)
	if !ok {
		return nil, fmt.Errorf("prior element is %T, want %s", prior, s.target)
	}
	l, ok := later.(T)
	if !ok {
		return nil, fmt.Errorf("later element is %T, want %s", later, s.target)
	}
	merged, err := s.merge(p, l)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Finalize implements Selector.
func (s *KeySelector[T]) Finalize(elem any) any {
	if s.finalize == nil {
		return elem
	}
	v, ok := elem.(T)
	if !ok {
		return elem
	}
	return s.finalize(v)
}
