package inheritance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/model"
)

func TestParseProjectContent(t *testing.T) {
	projects, err := ParseProjectContent(`
# Shared build defaults.
project(
    name = "base",
    abstract = True,
    fields = {"timeout": 30, "label": None, "env": {"GOFLAGS": "-mod=mod"}},
    parameters = [
        string_param("BRANCH", default = "main", description = "branch"),
        bool_param(name = "DEBUG", default = True),
        choice_param("ARCH", choices = ["amd64", "arm64"]),
    ],
    wrappers = [wrapper("timestamps")],
    builders = [step("shell", script = "make", retries = 2)],
    publishers = [publisher(kind = "junit", pattern = "**/*.xml")],
    properties = [property("throttle", max = 2)],
    scm = [git(url = "https://example.com/repo.git", branch = "main"), no_scm()],
)

project(
    name = "folder/app",
    parents = ["base", parent("tools", priority = 1, builder = -1)],
    publishers = None,
)
`)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	base := projects[0]
	assert.Equal(t, "base", base.Name())
	assert.True(t, base.Abstract())
	assert.Empty(t, base.References())

	v, ok := base.Field("timeout")
	require.True(t, ok)
	assert.Equal(t, int64(30), v)

	v, ok = base.Field("label")
	require.True(t, ok, "None is an explicit null")
	assert.Nil(t, v)

	v, _ = base.Field("env")
	assert.Equal(t, map[string]any{"GOFLAGS": "-mod=mod"}, v)

	v, _ = base.Field(Parameters.Name)
	assert.Equal(t, []any{
		model.StringParameter{Name: "BRANCH", Default: "main", Description: "branch"},
		model.BoolParameter{Name: "DEBUG", Default: true},
		model.ChoiceParameter{Name: "ARCH", Choices: []string{"amd64", "arm64"}},
	}, v)

	v, _ = base.Field(BuildWrappers.Name)
	assert.Equal(t, []any{model.Wrapper{Kind: "timestamps"}}, v)

	v, _ = base.Field(Builders.Name)
	assert.Equal(t, []any{model.Step{Kind: "shell", Args: map[string]any{"script": "make", "retries": int64(2)}}}, v)

	v, _ = base.Field(Publishers.Name)
	assert.Equal(t, []any{model.Publisher{Kind: "junit", Settings: map[string]any{"pattern": "**/*.xml"}}}, v)

	v, _ = base.Field(Properties.Name)
	assert.Equal(t, []any{model.Property{Kind: "throttle", Settings: map[string]any{"max": int64(2)}}}, v)

	v, _ = base.Field(SCMs.Name)
	assert.Equal(t, []any{model.GitSCM{URL: "https://example.com/repo.git", Branch: "main"}, model.NullSCM{}}, v)

	app := projects[1]
	assert.Equal(t, "folder/app", app.Name())
	assert.False(t, app.Abstract())

	tools := graph.Uniform(1).Set(graph.DomainBuilder, -1)
	assert.Equal(t, []graph.Reference{
		{Target: "base"},
		{Target: "tools", Priorities: tools},
	}, app.References())

	v, ok = app.Field(Publishers.Name)
	require.True(t, ok)
	assert.Nil(t, v)

	_, ok = app.Field(Builders.Name)
	assert.False(t, ok)
}

func TestParseProjectContent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `project(`},
		{"unknown function", `job(name = "a")`},
		{"non-call statement", `x = 1`},
		{"missing name", `project(abstract = True)`},
		{"duplicate", "project(name = \"a\")\nproject(name = \"a\")"},
		{"parents not a list", `project(name = "a", parents = "b")`},
		{"bad parent element", `project(name = "a", parents = [1])`},
		{"parent without name", `project(name = "a", parents = [parent(priority = 1)])`},
		{"unknown parameter type", `project(name = "a", parameters = [int_param("N")])`},
		{"choice without choices", `project(name = "a", parameters = [choice_param("C")])`},
		{"wrong element function", `project(name = "a", builders = [publisher("junit")])`},
		{"step without kind", `project(name = "a", builders = [step(script = "make")])`},
		{"unknown scm", `project(name = "a", scm = [svn("x")])`},
		{"git without url", `project(name = "a", scm = [git(branch = "main")])`},
		{"list field in fields", `project(name = "a", fields = {"builders": []})`},
		{"fields not a dict", `project(name = "a", fields = [1])`},
		{"list element not a call", `project(name = "a", builders = ["make"])`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProjectContent(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestParseProjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.star")
	require.NoError(t, os.WriteFile(path, []byte(`project(name = "a", fields = {"timeout": 5})`), 0o644))

	projects, err := ParseProjectFile(path)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "a", projects[0].Name())

	_, err = ParseProjectFile(filepath.Join(t.TempDir(), "missing.star"))
	assert.Error(t, err)
}

func TestLoadInto(t *testing.T) {
	projects, err := ParseProjectContent("project(name = \"a\")\nproject(name = \"b\")")
	require.NoError(t, err)

	r := graph.NewRegistry()
	require.NoError(t, LoadInto(r, projects))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	err = LoadInto(r, projects[:1])
	assert.ErrorIs(t, err, graph.ErrDuplicateProject)
}
