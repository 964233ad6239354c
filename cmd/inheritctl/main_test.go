package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProjects = `
project(name = "base", abstract = True, fields = {"timeout": 30},
        builders = [step("shell", script = "checkout")])
project(name = "app", parents = ["base", "gone"], builders = [step("shell", script = "make")])
`

type testEnv struct {
	dir     string
	file    string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		file:    filepath.Join(dir, "projects.star"),
		cfgPath: filepath.Join(dir, "inherit.yaml"),
	}
	require.NoError(t, os.WriteFile(env.file, []byte(testProjects), 0o644))
	cfg := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "versions.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--file", e.file, "--config", e.cfgPath}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Resolve(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "resolve", "app", "timeout")
	require.NoError(t, err)
	assert.Equal(t, "timeout = null\n", out)

	out, err = env.run(t, "--mode", "force-inherit", "resolve", "app", "timeout", "builders")
	require.NoError(t, err)
	assert.Equal(t, "builders = [{\"kind\":\"shell\",\"args\":{\"script\":\"checkout\"}},{\"kind\":\"shell\",\"args\":{\"script\":\"make\"}}]\ntimeout = 30\n", out)

	out, err = env.run(t, "--operation", "build", "resolve", "app", "timeout")
	require.NoError(t, err)
	assert.Equal(t, "timeout = 30\n", out)

	out, err = env.run(t, "--request", "/job/app/", "--json", "resolve", "app")
	require.NoError(t, err)
	assert.Contains(t, out, `"timeout": 30`)
	assert.Contains(t, out, `"builders"`)
}

func TestRun_Versions(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "record", "base")
	require.NoError(t, err)
	assert.Contains(t, out, "base@1 ")

	_, err = env.run(t, "record", "base")
	require.NoError(t, err)

	out, err = env.run(t, "versions", "base")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "2")

	require.NoError(t, func() error { _, err := env.run(t, "stable", "base", "1"); return err }())
	out, err = env.run(t, "stable", "base")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = env.run(t, "diff", "base", "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "no changes\n", out)

	out, err = env.run(t, "--mode", "force-inherit", "--at", "base=1", "explain", "app", "timeout")
	require.NoError(t, err)
	assert.Contains(t, out, "inherit=true")
	assert.Contains(t, out, "(forced)")
	assert.Contains(t, out, "result = 30")

	out, err = env.run(t, "--json", "--mode", "force-inherit", "explain", "app", "timeout")
	require.NoError(t, err)
	assert.Contains(t, out, `"inherit": true`)
	assert.Contains(t, out, `"reason": "forced"`)
	assert.NotContains(t, out, `"Inherit"`)

	_, err = env.run(t, "stable", "base", "9")
	assert.Error(t, err)
}

func TestRun_ScopeAndGraph(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "scope", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "Resolution scope")
	assert.Contains(t, out, "  1. base (abstract)")
	assert.Contains(t, out, "  2. app")

	out, err = env.run(t, "--json", "--domain", "builder", "scope", "app")
	require.NoError(t, err)
	assert.JSONEq(t, `["base", "app"]`, out)

	out, err = env.run(t, "graph", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph inheritance {")
	assert.Contains(t, out, `"app" -> "gone"`)
}

func TestRun_Metrics(t *testing.T) {
	env := newTestEnv(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--file", env.file, "--metrics", "--mode", "force-inherit", "resolve", "app", "timeout"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "inheritance_resolutions_total")
	assert.Contains(t, stderr.String(), "inheritance_unresolved_references_total 1")
}

func TestRun_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"missing args", []string{"explain", "app"}},
		{"unknown project", []string{"resolve", "nope"}},
		{"bad mode", []string{"--mode", "sideways", "resolve", "app"}},
		{"bad operation", []string{"--operation", "deploy", "resolve", "app"}},
		{"bad kind", []string{"resolve", "app", "x:widgets"}},
		{"bad version", []string{"diff", "base", "one"}},
		{"bad domain", []string{"--domain", "nowhere", "scope", "app"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Commands:")
	assert.Contains(t, stderr.String(), "resolve <project>")
}

func TestParseFieldSpec(t *testing.T) {
	spec, err := parseFieldSpec("timeout")
	require.NoError(t, err)
	assert.Equal(t, "timeout", spec.Name)

	spec, err = parseFieldSpec("scm")
	require.NoError(t, err)
	assert.Equal(t, "scm:scm", spec.String())

	spec, err = parseFieldSpec("steps:builders")
	require.NoError(t, err)
	assert.Equal(t, "steps:builders", spec.String())
}
