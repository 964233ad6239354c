package operation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, KindUnspecified, KindFrom(ctx))

	ctx = WithKind(ctx, KindBuild)
	assert.Equal(t, KindBuild, KindFrom(ctx))

	_, ok := RequestPath(ctx)
	assert.False(t, ok)
	ctx = WithRequestPath(ctx, "/job/app/")
	path, ok := RequestPath(ctx)
	require.True(t, ok)
	assert.Equal(t, "/job/app/", path)

	_, ok = RequestPath(WithRequestPath(context.Background(), ""))
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	for k := KindUnspecified; k <= KindBuild; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("deploy")
	assert.Error(t, err)
	assert.Equal(t, "kind(12)", Kind(12).String())
}

func TestDefaultPredicates(t *testing.T) {
	preds := NewPredicates(DefaultPredicates()...)

	tests := []struct {
		path string
		want string // empty: no match
	}{
		{"/job/app", "job-page"},
		{"/job/app/", "job-page"},
		{"/job/folder/job/app/", "job-page"},
		{"/job/app/42", "build-page"},
		{"/job/app/42/console", "build-page"},
		{"/job/app/lastStableBuild/", "build-page"},
		{"/job/folder/job/app/lastBuild/artifact/out.zip", "build-page"},
		{"/", "dashboard"},
		{"/view/all", "dashboard"},
		{"/view/all/", "dashboard"},
		{"/job/folder/view/nightly/", "dashboard"},
		{"/job/app/promotion", "promotion"},
		{"/job/app/promotion/process/qa", "promotion"},
		{"/job/app/scmPollLog", "scm-poll-log"},
		{"/job/app/scmPollLog/", "scm-poll-log"},
		{"/job/app/configure", ""},
		{"/job/app/configSubmit", ""},
		{"/manage/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			name, ok := preds.Match(tt.path)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestPredicates_RegistrationOrder(t *testing.T) {
	var calls []string
	trace := func(name string, result bool) Predicate {
		return Func(name, func(string) bool {
			calls = append(calls, name)
			return result
		})
	}

	preds := NewPredicates(trace("first", false), nil, trace("second", true), trace("third", true))
	require.Len(t, preds.All(), 3)

	name, ok := preds.Match("/anything")
	require.True(t, ok)
	assert.Equal(t, "second", name)
	assert.Equal(t, "first,second", strings.Join(calls, ","))

	var none *Predicates
	_, ok = none.Match("/job/app")
	assert.False(t, ok)
}

func TestGlob(t *testing.T) {
	p, err := Glob("api", "**/api/json", "**/api/xml")
	require.NoError(t, err)
	assert.Equal(t, "api", p.Name())
	assert.True(t, p.Match("/job/app/api/json"))
	assert.True(t, p.Match("/api/xml"))
	assert.False(t, p.Match("/job/app/api/python"))
	assert.Equal(t, "api=**/api/json;**/api/xml", fmt.Sprint(p))

	_, err = Glob("broken", "{unclosed")
	assert.Error(t, err)
	_, err = Glob("empty")
	assert.Error(t, err)
	assert.Panics(t, func() { MustGlob("broken", "[") })
}
