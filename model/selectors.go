package model

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/i-m-c/go-inheritance/selector"
)

// ParameterSelector merges parameter definitions by name.
//
// For two definitions of the same class, the later description and default
// win when set and choice lists are united in order. A definition of a
// different class replaces the earlier one.
type ParameterSelector struct{}

var _ selector.Selector = ParameterSelector{}

// Applicable implements selector.Selector.
func (ParameterSelector) Applicable(t reflect.Type) bool {
	return t != nil && t.Implements(ParameterType)
}

// Mode implements selector.Selector.
func (s ParameterSelector) Mode(t reflect.Type) selector.Mode {
	if !s.Applicable(t) {
		return selector.NotResponsible
	}
	return selector.Merge
}

// Identifier implements selector.Selector.
func (ParameterSelector) Identifier(elem any) (string, bool) {
	p, ok := elem.(Parameter)
	if !ok || p.ParameterName() == "" {
		return "", false
	}
	return p.ParameterName(), true
}

// Merge implements selector.Selector.
func (ParameterSelector) Merge(prior, later any) (any, error) {
	switch l := later.(type) {
	case StringParameter:
		p, ok := prior.(StringParameter)
		if !ok {
			return l, nil
		}
		if l.Default != "" {
			p.Default = l.Default
		}
		if l.Description != "" {
			p.Description = l.Description
		}
		return p, nil

	case BoolParameter:
		p, ok := prior.(BoolParameter)
		if !ok {
			return l, nil
		}
		p.Default = l.Default
		if l.Description != "" {
			p.Description = l.Description
		}
		return p, nil

	case ChoiceParameter:
		p, ok := prior.(ChoiceParameter)
		if !ok {
			return l, nil
		}
		choices := slices.Clone(p.Choices)
		for _, c := range l.Choices {
			if !slices.Contains(choices, c) {
				choices = append(choices, c)
			}
		}
		p.Choices = choices
		if l.Description != "" {
			p.Description = l.Description
		}
		return p, nil

	case Parameter:
		return l, nil
	}
	return nil, fmt.Errorf("not a parameter: %T", later)
}

// Finalize implements selector.Selector.
func (ParameterSelector) Finalize(elem any) any { return elem }

// WrapperSelector keeps the last wrapper of each kind.
func WrapperSelector() selector.Selector {
	return selector.ByKey(selector.UseLast, func(w Wrapper) string { return w.Kind })
}

// PublisherSelector keeps the last publisher of each kind.
func PublisherSelector() selector.Selector {
	return selector.ByKey(selector.UseLast, func(p Publisher) string { return p.Kind })
}

// PropertySelector merges properties of the same kind; later settings
// override earlier ones key by key.
func PropertySelector() selector.Selector {
	return selector.ByKey(selector.Merge, func(p Property) string { return p.Kind }).
		WithMerge(func(prior, later Property) (Property, error) {
			return Property{Kind: prior.Kind, Settings: mergeSettings(prior.Settings, later.Settings)}, nil
		})
}

// DefaultSelectors returns the built-in selectors in registration order.
func DefaultSelectors() []selector.Selector {
	return []selector.Selector{
		ParameterSelector{},
		WrapperSelector(),
		PublisherSelector(),
		PropertySelector(),
	}
}
