package governor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/i-m-c/go-inheritance/graph"
)

// ListOption configures a list governor.
type ListOption func(*listConfig)

type listConfig struct {
	dedupeByClass bool
}

// DedupeByClass keeps only the last element of each concrete type after
// the selectors ran. It suits singleton-like families such as SCMs.
func DedupeByClass() ListOption {
	return func(c *listConfig) { c.dedupeByClass = true }
}

// NewList returns a governor for a list field whose elements belong to
// elemType. Its reduction concatenates the scope's lists in order, applies
// every selector registered for elemType in registration order, then
// optionally deduplicates by class.
func NewList(field string, domain graph.Domain, elemType reflect.Type, opts ...ListOption) *Governor[[]any] {
	var cfg listConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	reduce := func(_ context.Context, env *Env, values [][]any) ([]any, bool, error) {
		if len(values) == 0 {
			return nil, false, nil
		}
		total := 0
		for _, v := range values {
			total += len(v)
		}
		merged := make([]any, 0, total)
		for _, v := range values {
			merged = append(merged, v...)
		}

		merged, err := env.Selectors.ApplyAll(elemType, merged)
		if err != nil {
			return nil, false, fmt.Errorf("reduce %s: %w", field, err)
		}
		if cfg.dedupeByClass {
			merged = dedupeByClass(merged)
		}
		return merged, true, nil
	}

	return New[[]any](field, domain).WithReducer(reduce)
}

// dedupeByClass keeps the last element of each dynamic type, at its own
// position.
func dedupeByClass(list []any) []any {
	last := make(map[reflect.Type]int, len(list))
	for i, e := range list {
		last[reflect.TypeOf(e)] = i
	}
	out := make([]any, 0, len(last))
	for i, e := range list {
		if last[reflect.TypeOf(e)] == i {
			out = append(out, e)
		}
	}
	return out
}
