package inheritance

import (
	"fmt"
	"os"

	"github.com/bazelbuild/buildtools/build"

	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/internal/buildutil"
	"github.com/i-m-c/go-inheritance/model"
)

// ParseProjectFile reads and parses a project definition file from disk.
func ParseProjectFile(filename string) ([]*graph.Project, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	return parseProjects(filename, data)
}

// ParseProjectContent parses project definitions written in Starlark
// syntax. Each top-level project(...) call defines one project:
//
//	project(
//	    name = "app/build",
//	    parents = ["base", parent("tools", builder = 1)],
//	    fields = {"timeout": 30},
//	    builders = [step("shell", script = "make")],
//	)
func ParseProjectContent(content string) ([]*graph.Project, error) {
	return parseProjects("projects.star", []byte(content))
}

func parseProjects(filename string, data []byte) ([]*graph.Project, error) {
	f, err := build.ParseDefault(filename, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	var projects []*graph.Project
	seen := make(map[string]bool)
	for _, stmt := range f.Stmt {
		if _, ok := stmt.(*build.CommentBlock); ok {
			continue
		}
		call, ok := stmt.(*build.CallExpr)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected %T statement", filename, stmt)
		}
		if name := buildutil.FuncName(call); name != "project" {
			return nil, fmt.Errorf("%s: unknown function %q", filename, name)
		}

		p, err := extractProject(call)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if seen[p.Name()] {
			return nil, fmt.Errorf("%s: project %q defined twice", filename, p.Name())
		}
		seen[p.Name()] = true
		projects = append(projects, p)
	}
	return projects, nil
}

// listParsers converts the elements of each built-in list field.
var listParsers = map[string]func(*build.CallExpr) (any, error){
	Parameters.Name:    parseParameter,
	BuildWrappers.Name: kindCall("wrapper", func(kind string, s map[string]any) any { return model.Wrapper{Kind: kind, Settings: s} }),
	Builders.Name:      kindCall("step", func(kind string, s map[string]any) any { return model.Step{Kind: kind, Args: s} }),
	Publishers.Name:    kindCall("publisher", func(kind string, s map[string]any) any { return model.Publisher{Kind: kind, Settings: s} }),
	Properties.Name:    kindCall("property", func(kind string, s map[string]any) any { return model.Property{Kind: kind, Settings: s} }),
	SCMs.Name:          parseSCM,
}

func extractProject(call *build.CallExpr) (*graph.Project, error) {
	name := buildutil.String(call, "name")
	if name == "" {
		return nil, fmt.Errorf("project without a name")
	}
	p := graph.NewProject(name)
	p.SetAbstract(buildutil.Bool(call, "abstract"))

	refs, err := parseParents(call)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", name, err)
	}
	p.SetReferences(refs)

	if rhs, ok := buildutil.Attr(call, "fields"); ok {
		fields, ok := buildutil.ExtractValue(rhs).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("project %q: fields must be a dict", name)
		}
		for k, v := range fields {
			if listFieldNames[k] {
				return nil, fmt.Errorf("project %q: %q is a list field, set it with %s = [...]", name, k, k)
			}
			p.SetField(k, v)
		}
	}

	for field, parse := range listParsers {
		if buildutil.IsNone(call, field) {
			p.SetField(field, nil)
			continue
		}
		calls, err := buildutil.Calls(call, field)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", name, err)
		}
		if calls == nil {
			continue
		}
		elems := make([]any, 0, len(calls))
		for _, c := range calls {
			e, err := parse(c)
			if err != nil {
				return nil, fmt.Errorf("project %q: %s: %w", name, field, err)
			}
			elems = append(elems, e)
		}
		p.SetField(field, elems)
	}

	return p, nil
}

// parseParents reads parents = ["a", parent("b", priority = 1, builder = -1)].
func parseParents(call *build.CallExpr) ([]graph.Reference, error) {
	rhs, ok := buildutil.Attr(call, "parents")
	if !ok {
		return nil, nil
	}
	list, ok := rhs.(*build.ListExpr)
	if !ok {
		return nil, fmt.Errorf("parents must be a list")
	}

	refs := make([]graph.Reference, 0, len(list.List))
	for i, elem := range list.List {
		switch e := elem.(type) {
		case *build.StringExpr:
			refs = append(refs, graph.Reference{Target: e.Value})
		case *build.CallExpr:
			ref, err := parseParent(e)
			if err != nil {
				return nil, fmt.Errorf("parents[%d]: %w", i, err)
			}
			refs = append(refs, ref)
		default:
			return nil, fmt.Errorf("parents[%d]: expected a name or parent(...), got %T", i, elem)
		}
	}
	return refs, nil
}

func parseParent(call *build.CallExpr) (graph.Reference, error) {
	if fn := buildutil.FuncName(call); fn != "parent" {
		return graph.Reference{}, fmt.Errorf("unknown function %q", fn)
	}
	target := firstString(call, "name")
	if target == "" {
		return graph.Reference{}, fmt.Errorf("parent without a name")
	}

	ref := graph.Reference{Target: target}
	if n, ok := buildutil.Int(call, "priority"); ok {
		ref.Priorities = graph.Uniform(int(n))
	}
	for _, d := range []graph.Domain{
		graph.DomainParameter,
		graph.DomainBuildWrapper,
		graph.DomainBuilder,
		graph.DomainPublisher,
		graph.DomainMisc,
	} {
		if n, ok := buildutil.Int(call, d.String()); ok {
			ref.Priorities = ref.Priorities.Set(d, int(n))
		}
	}
	return ref, nil
}

func parseParameter(call *build.CallExpr) (any, error) {
	name := firstString(call, "name")
	if name == "" {
		return nil, fmt.Errorf("parameter without a name")
	}
	desc := buildutil.String(call, "description")

	switch fn := buildutil.FuncName(call); fn {
	case "string_param":
		return model.StringParameter{Name: name, Default: buildutil.String(call, "default"), Description: desc}, nil
	case "bool_param":
		return model.BoolParameter{Name: name, Default: buildutil.Bool(call, "default"), Description: desc}, nil
	case "choice_param":
		choices := buildutil.StringList(call, "choices")
		if len(choices) == 0 {
			return nil, fmt.Errorf("choice parameter %q has no choices", name)
		}
		return model.ChoiceParameter{Name: name, Choices: choices, Description: desc}, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", fn)
	}
}

func parseSCM(call *build.CallExpr) (any, error) {
	switch fn := buildutil.FuncName(call); fn {
	case "git":
		url := firstString(call, "url")
		if url == "" {
			return nil, fmt.Errorf("git without a url")
		}
		return model.GitSCM{URL: url, Branch: buildutil.String(call, "branch")}, nil
	case "no_scm":
		return model.NullSCM{}, nil
	default:
		return nil, fmt.Errorf("unknown scm %q", fn)
	}
}

// kindCall parses fn("kind", key = value, ...) into an element built by
// mk from the kind and the remaining keyword arguments.
func kindCall(fn string, mk func(kind string, settings map[string]any) any) func(*build.CallExpr) (any, error) {
	return func(call *build.CallExpr) (any, error) {
		if got := buildutil.FuncName(call); got != fn {
			return nil, fmt.Errorf("expected %s(...), got %q", fn, got)
		}
		kind := firstString(call, "kind")
		if kind == "" {
			return nil, fmt.Errorf("%s without a kind", fn)
		}
		return mk(kind, buildutil.Kwargs(call, "kind")), nil
	}
}

// firstString returns the keyword argument name, or the first positional
// string argument when the keyword is absent.
func firstString(call *build.CallExpr, name string) string {
	if s := buildutil.String(call, name); s != "" {
		return s
	}
	return buildutil.String(call, "")
}

// LoadInto registers projects with r. It stops at the first project that
// cannot be added.
func LoadInto(r *graph.Registry, projects []*graph.Project) error {
	for _, p := range projects {
		if err := r.Add(p); err != nil {
			return err
		}
	}
	return nil
}
