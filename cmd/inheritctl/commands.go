package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	inheritance "github.com/i-m-c/go-inheritance"
	"github.com/i-m-c/go-inheritance/governor"
	"github.com/i-m-c/go-inheritance/graph"
)

// cmdEnv is what every command runs against.
type cmdEnv struct {
	engine   *inheritance.Engine
	out      io.Writer
	opts     options
	mode     governor.Mode
	callOpts []inheritance.CallOption
}

type command struct {
	usage   string
	summary string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, env *cmdEnv, args []string) error
}

var commandOrder = []string{"resolve", "explain", "scope", "graph", "record", "versions", "stable", "diff"}

var commands = map[string]command{
	"resolve": {
		usage:   "resolve <project> [field[:kind]...]",
		summary: "print resolved fields (all when none given)",
		minArgs: 1, maxArgs: 64,
		run: runResolve,
	},
	"explain": {
		usage:   "explain <project> <field[:kind]>",
		summary: "show which projects and versions contribute to a field",
		minArgs: 2, maxArgs: 2,
		run: runExplain,
	},
	"scope": {
		usage:   "scope <project>",
		summary: "print the resolution scope for --domain",
		minArgs: 1, maxArgs: 1,
		run: runScope,
	},
	"graph": {
		usage:   "graph <project>",
		summary: "print the reference graph in DOT format",
		minArgs: 1, maxArgs: 1,
		run: runGraph,
	},
	"record": {
		usage:   "record <project>...",
		summary: "record the current fields as a new version",
		minArgs: 1, maxArgs: 64,
		run: runRecord,
	},
	"versions": {
		usage:   "versions <project>",
		summary: "list recorded versions",
		minArgs: 1, maxArgs: 1,
		run: runVersions,
	},
	"stable": {
		usage:   "stable <project> [version]",
		summary: "print or set the stable version",
		minArgs: 1, maxArgs: 2,
		run: runStable,
	},
	"diff": {
		usage:   "diff <project> <from> [to]",
		summary: "compare two versions; 0 or no [to] is the current state",
		minArgs: 2, maxArgs: 3,
		run: runDiff,
	},
}

// parseFieldSpec accepts "name", "name:kind" or a built-in list field name.
func parseFieldSpec(s string) (inheritance.FieldSpec, error) {
	name, kindName, hasKind := strings.Cut(s, ":")
	if hasKind {
		kind, err := inheritance.ParseFieldKind(kindName)
		if err != nil {
			return inheritance.FieldSpec{}, err
		}
		return inheritance.FieldSpec{Name: name, Kind: kind}, nil
	}
	for _, spec := range inheritance.ListFields() {
		if spec.Name == name {
			return spec, nil
		}
	}
	return inheritance.Field(name), nil
}

func parseVersion(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return n, nil
}

func (env *cmdEnv) printJSON(v any) error {
	enc := json.NewEncoder(env.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runResolve(ctx context.Context, env *cmdEnv, args []string) error {
	project := args[0]

	values := make(map[string]any)
	if len(args) == 1 {
		all, err := env.engine.Effective(ctx, project, env.mode, env.callOpts...)
		if err != nil {
			return err
		}
		values = all
	} else {
		for _, arg := range args[1:] {
			spec, err := parseFieldSpec(arg)
			if err != nil {
				return err
			}
			v, err := env.engine.ResolveField(ctx, project, spec, env.mode, env.callOpts...)
			if err != nil {
				return err
			}
			values[spec.Name] = v
		}
	}

	if env.opts.asJSON {
		return env.printJSON(values)
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		data, err := json.Marshal(values[name])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.out, "%s = %s\n", name, data)
	}
	return nil
}

func runExplain(ctx context.Context, env *cmdEnv, args []string) error {
	spec, err := parseFieldSpec(args[1])
	if err != nil {
		return err
	}
	ex, err := env.engine.Explain(ctx, args[0], spec, env.mode, env.callOpts...)
	if err != nil {
		return err
	}
	if env.opts.asJSON {
		return env.printJSON(ex)
	}

	d := ex.Decision
	fmt.Fprintf(env.out, "field %s: inherit=%t versioning=%t", ex.Field, d.Inherit, d.Versioning)
	if d.Reason != "" {
		fmt.Fprintf(env.out, " (%s)", d.Reason)
	}
	fmt.Fprintln(env.out)
	if len(d.Cycle) > 0 {
		fmt.Fprintf(env.out, "cycle: %s\n", strings.Join(d.Cycle, " -> "))
	}

	tw := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tVERSION\tVALUE")
	for _, c := range ex.Contributions {
		ver := "raw"
		if c.Version > 0 {
			ver = strconv.Itoa(c.Version)
		}
		value := "null"
		if !c.Null {
			data, err := json.Marshal(c.Value)
			if err != nil {
				return err
			}
			value = string(data)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Project, ver, value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	result, err := json.Marshal(ex.Result)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "result = %s\n", result)
	return nil
}

func runScope(ctx context.Context, env *cmdEnv, args []string) error {
	domain, err := graph.ParseDomain(env.opts.domain)
	if err != nil {
		return err
	}
	names, err := env.engine.Scope(ctx, args[0], domain)
	if err != nil {
		return err
	}
	if env.opts.asJSON {
		return env.printJSON(names)
	}

	scope := make([]*graph.Project, 0, len(names))
	for _, name := range names {
		p, err := env.engine.Project(name)
		if err != nil {
			return err
		}
		scope = append(scope, p)
	}
	_, err = io.WriteString(env.out, graph.ScopeText(scope))
	return err
}

func runGraph(_ context.Context, env *cmdEnv, args []string) error {
	p, err := env.engine.Project(args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(env.out, graph.ToDOT(env.engine.Registry(), p))
	return err
}

func runRecord(ctx context.Context, env *cmdEnv, args []string) error {
	for _, project := range args {
		info, err := env.engine.RecordVersion(ctx, project)
		if err != nil {
			return err
		}
		if env.opts.asJSON {
			if err := env.printJSON(info); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(env.out, "%s@%d %s\n", project, info.Number, info.Digest)
	}
	return nil
}

func runVersions(ctx context.Context, env *cmdEnv, args []string) error {
	infos, err := env.engine.Versions(ctx, args[0])
	if err != nil {
		return err
	}
	if env.opts.asJSON {
		return env.printJSON(infos)
	}

	tw := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tCREATED\tSTABLE\tDIGEST")
	for _, info := range infos {
		stable := ""
		if info.Stable {
			stable = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.16s\n", info.Number, info.Created.Format(time.RFC3339), stable, info.Digest)
	}
	return tw.Flush()
}

func runStable(ctx context.Context, env *cmdEnv, args []string) error {
	project := args[0]
	if len(args) == 2 {
		n, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		return env.engine.SetStableVersion(ctx, project, n)
	}

	n, ok, err := env.engine.StableVersion(ctx, project)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s has no versions", project)
	}
	fmt.Fprintln(env.out, n)
	return nil
}

func runDiff(ctx context.Context, env *cmdEnv, args []string) error {
	from, err := parseVersion(args[1])
	if err != nil {
		return err
	}
	to := 0
	if len(args) == 3 {
		if to, err = parseVersion(args[2]); err != nil {
			return err
		}
	}

	diff, err := env.engine.DiffVersions(ctx, args[0], from, to)
	if err != nil {
		return err
	}
	if env.opts.asJSON {
		return env.printJSON(diff)
	}
	if diff.IsEmpty() {
		fmt.Fprintln(env.out, "no changes")
		return nil
	}
	for _, name := range diff.Added {
		fmt.Fprintf(env.out, "+ %s\n", name)
	}
	for _, name := range diff.Removed {
		fmt.Fprintf(env.out, "- %s\n", name)
	}
	for _, name := range diff.Changed {
		fmt.Fprintf(env.out, "~ %s\n", name)
	}
	return nil
}
