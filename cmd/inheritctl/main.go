// inheritctl resolves inherited project configuration from the command
// line. It loads project definitions from a Starlark file, optionally
// reads a YAML config selecting a durable version store, and runs one
// command against them.
//
// Versions only survive between invocations with the sqlite store driver.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	inheritance "github.com/i-m-c/go-inheritance"
	"github.com/i-m-c/go-inheritance/config"
	"github.com/i-m-c/go-inheritance/governor"
	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/vcontext"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "inheritctl: %v\n", err)
		os.Exit(1)
	}
}

// options holds the global flags.
type options struct {
	configPath string
	file       string
	mode       string
	domain     string
	operation  string
	request    string
	at         map[string]int
	asJSON     bool
	metrics    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("inheritctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVarP(&opts.file, "file", "f", "projects.star", "project definition file")
	flagSet.StringVarP(&opts.mode, "mode", "m", governor.Auto.String(), "resolution mode: auto, force-inherit or local-only")
	flagSet.StringVar(&opts.domain, "domain", graph.DomainMisc.String(), "priority domain for scope")
	flagSet.StringVar(&opts.operation, "operation", "", "operation kind: browse, configure, submit or build")
	flagSet.StringVar(&opts.request, "request", "", "request path the resolution serves")
	flagSet.StringToIntVar(&opts.at, "at", nil, "pinned versions as project=version pairs")
	flagSet.BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	flagSet.BoolVar(&opts.metrics, "metrics", false, "print collected metrics to stderr on exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return nil
	}

	cmd, ok := commands[flagSet.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}
	cmdArgs := flagSet.Args()[1:]
	if len(cmdArgs) < cmd.minArgs || len(cmdArgs) > cmd.maxArgs {
		return fmt.Errorf("usage: inheritctl %s", cmd.usage)
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled || opts.metrics {
		cfg.Metrics.Enabled = true
		reg = prometheus.NewRegistry()
	}

	engineOpts, err := cfg.Options(cfg.Logger(stderr), registerer(reg))
	if err != nil {
		return err
	}
	engine, err := inheritance.New(engineOpts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	projects, err := inheritance.ParseProjectFile(opts.file)
	if err != nil {
		return err
	}
	if err := inheritance.LoadInto(engine.Registry(), projects); err != nil {
		return err
	}

	callOpts, err := opts.callOptions()
	if err != nil {
		return err
	}
	mode, err := governor.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	env := &cmdEnv{
		engine:   engine,
		out:      stdout,
		opts:     opts,
		mode:     mode,
		callOpts: callOpts,
	}
	if err := cmd.run(ctx, env, cmdArgs); err != nil {
		return err
	}

	if opts.metrics && reg != nil {
		return writeMetrics(stderr, reg)
	}
	return nil
}

// registerer avoids handing config a typed nil.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func (o options) callOptions() ([]inheritance.CallOption, error) {
	var out []inheritance.CallOption
	if len(o.at) > 0 {
		out = append(out, inheritance.AtVersions(vcontext.Versions(o.at)))
	}
	if o.operation != "" {
		k, err := operation.ParseKind(o.operation)
		if err != nil {
			return nil, err
		}
		out = append(out, inheritance.DuringOperation(k))
	}
	if o.request != "" {
		out = append(out, inheritance.ForRequest(o.request))
	}
	return out, nil
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `inheritctl resolves inherited build-job configuration.

Usage:
  inheritctl [flags] <command> [args]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-40s %s\n", commands[name].usage, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
