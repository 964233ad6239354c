// Package model defines the built-in inheritable element families:
// parameters, build steps, wrappers, publishers, job properties and SCM
// configurations, together with the selectors that combine them.
//
// Elements are plain values. Inherited lists hold them by value inside
// []any, so a merged element is always a new value and the originals are
// never touched.
package model

import (
	"maps"
	"reflect"
)

// Parameter is a build parameter definition.
type Parameter interface {
	ParameterName() string
}

// StringParameter is a free-text build parameter.
type StringParameter struct {
	Name        string `json:"name"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParameterName implements Parameter.
func (p StringParameter) ParameterName() string { return p.Name }

// BoolParameter is a boolean build parameter.
type BoolParameter struct {
	Name        string `json:"name"`
	Default     bool   `json:"default"`
	Description string `json:"description,omitempty"`
}

// ParameterName implements Parameter.
func (p BoolParameter) ParameterName() string { return p.Name }

// ChoiceParameter offers a fixed list of values; the first is the default.
type ChoiceParameter struct {
	Name        string   `json:"name"`
	Choices     []string `json:"choices"`
	Description string   `json:"description,omitempty"`
}

// ParameterName implements Parameter.
func (p ChoiceParameter) ParameterName() string { return p.Name }

// Step is one build step. Steps from every ancestor run in scope order.
type Step struct {
	Kind string         `json:"kind"`
	Args map[string]any `json:"args,omitempty"`
}

// Wrapper wraps the whole build (timestamps, credentials, timeouts).
type Wrapper struct {
	Kind     string         `json:"kind"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Publisher runs after the build steps.
type Publisher struct {
	Kind     string         `json:"kind"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Property is a job-level property. Properties of one kind are merged.
type Property struct {
	Kind     string         `json:"kind"`
	Settings map[string]any `json:"settings,omitempty"`
}

// SCM is a source checkout configuration. A project uses at most one SCM
// of each type.
type SCM interface {
	SCMType() string
}

// GitSCM checks out a git repository.
type GitSCM struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

// SCMType implements SCM.
func (GitSCM) SCMType() string { return "git" }

// NullSCM explicitly disables checkout.
type NullSCM struct{}

// SCMType implements SCM.
func (NullSCM) SCMType() string { return "none" }

// Element types of the built-in list fields.
var (
	ParameterType = reflect.TypeFor[Parameter]()
	StepType      = reflect.TypeFor[Step]()
	WrapperType   = reflect.TypeFor[Wrapper]()
	PublisherType = reflect.TypeFor[Publisher]()
	PropertyType  = reflect.TypeFor[Property]()
	SCMType       = reflect.TypeFor[SCM]()
)

// Types returns one value of every concrete element type, in a fixed
// order. Codecs use it to register their type tags.
func Types() []any {
	return []any{
		StringParameter{},
		BoolParameter{},
		ChoiceParameter{},
		Step{},
		Wrapper{},
		Publisher{},
		Property{},
		GitSCM{},
		NullSCM{},
	}
}

// mergeSettings returns a new map holding prior overlaid with later.
func mergeSettings(prior, later map[string]any) map[string]any {
	if prior == nil && later == nil {
		return nil
	}
	out := make(map[string]any, len(prior)+len(later))
	maps.Copy(out, prior)
	maps.Copy(out, later)
	return out
}
