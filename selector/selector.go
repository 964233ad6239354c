// Package selector implements type-scoped merge policies for list-valued
// inherited fields.
//
// A Selector claims elements of the concrete types it is responsible for,
// groups them by a logical identifier, and decides per group whether the
// first, the last, every, or a merged element survives. Elements a Selector
// does not claim pass through unchanged and in place.
//
// Selectors are collected in a Registry and applied in registration order;
// each one's output is the next one's input.
package selector

import (
	"errors"
	"fmt"
	"reflect"
)

// Mode controls how the elements of one identifier group are combined.
type Mode int

const (
	// NotResponsible leaves elements of the type untouched.
	NotResponsible Mode = iota

	// UseFirst keeps the first element of a group at its own position.
	UseFirst

	// UseLast keeps the last element of a group at its own position.
	UseLast

	// Merge folds the group left to right and emits the result at the
	// position of the group's last element.
	Merge

	// Multiple keeps every element of the group.
	Multiple
)

var modeNames = [...]string{
	NotResponsible: "not_responsible",
	UseFirst:       "use_first",
	UseLast:        "use_last",
	Merge:          "merge",
	Multiple:       "multiple",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Contract violations raised while applying a selector.
var (
	// ErrUnmergeable indicates a Merge-mode group whose elements could not
	// be merged.
	ErrUnmergeable = errors.New("selector: group cannot be merged")

	// ErrUnknownMode indicates a selector answered with an undefined Mode.
	ErrUnknownMode = errors.New("selector: unknown mode")
)

// Selector is a merge policy for a family of element types.
type Selector interface {
	// Applicable reports whether the selector handles elements of type t.
	// It must return false for every type it is not prepared to handle.
	Applicable(t reflect.Type) bool

	// Mode returns the combination mode for the concrete type t.
	Mode(t reflect.Type) Mode

	// Identifier returns the logical identity of elem. Elements sharing an
	// identifier are candidates for merge or override. ok is false when
	// the selector does not claim elem.
	Identifier(elem any) (id string, ok bool)

	// Merge combines two elements of one group. It must not mutate either
	// input. It is only called under Merge mode.
	Merge(prior, later any) (any, error)

	// Finalize post-processes every element that survives to the output.
	Finalize(elem any) any
}

type groupKey struct {
	id   string
	mode Mode
}

type group struct {
	key     groupKey
	members []int
}

func (g *group) first() int { return g.members[0] }
func (g *group) last() int  { return g.members[len(g.members)-1] }

// Apply runs s against an ordered list and returns a new list.
//
// Claimed elements are grouped by (identifier, mode). UseFirst groups emit
// their first element at its position; UseLast and Merge groups emit at
// the position of their last element; Multiple emits every element.
// Unclaimed elements keep their positions relative to the emitted ones.
// The input list is never modified.
func Apply(s Selector, list []any) ([]any, error) {
	claims := make([]*group, len(list))
	groups := make(map[groupKey]*group)

	for i, elem := range list {
		if elem == nil {
			continue
		}
		t := reflect.TypeOf(elem)
		if !s.Applicable(t) {
			continue
		}
		mode := s.Mode(t)
		if mode == NotResponsible {
			continue
		}
		id, ok := s.Identifier(elem)
		if !ok {
			continue
		}
		key := groupKey{id: id, mode: mode}
		g, exists := groups[key]
		if !exists {
			g = &group{key: key}
			groups[key] = g
		}
		g.members = append(g.members, i)
		claims[i] = g
	}

	out := make([]any, 0, len(list))
	for i, elem := range list {
		g := claims[i]
		if g == nil {
			out = append(out, elem)
			continue
		}

		switch g.key.mode {
		case UseFirst:
			if i == g.first() {
				out = append(out, s.Finalize(elem))
			}
		case UseLast:
			if i == g.last() {
				out = append(out, s.Finalize(elem))
			}
		case Multiple:
			out = append(out, s.Finalize(elem))
		case Merge:
			if i != g.last() {
				continue
			}
			merged, err := fold(s, list, g)
			if err != nil {
				return nil, err
			}
			out = append(out, s.Finalize(merged))
		default:
			return nil, fmt.Errorf("%w: %v for %q", ErrUnknownMode, g.key.mode, g.key.id)
		}
	}

	return out, nil
}

// fold merges a group left to right: merge(merge(e1, e2), e3)...
func fold(s Selector, list []any, g *group) (any, error) {
	acc := list[g.first()]
	for _, j := range g.members[1:] {
		merged, err := s.Merge(acc, list[j])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnmergeable, g.key.id, err)
		}
		if merged == nil {
			return nil, fmt.Errorf("%w: %q: merge returned nil", ErrUnmergeable, g.key.id)
		}
		acc = merged
	}
	return acc, nil
}
