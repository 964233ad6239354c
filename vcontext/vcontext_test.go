package vcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stableMap map[string]int

func (m stableMap) Stable(_ context.Context, project string) (int, bool, error) {
	n, ok := m[project]
	return n, ok, nil
}

type failingSource struct{}

func (failingSource) Stable(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("backend down")
}

func TestSelect_Layering(t *testing.T) {
	stable := stableMap{"Base": 2, "Tools": 7}

	ctx, end := Begin(context.Background(), Versions{"Base": 1})
	defer end()

	tests := []struct {
		name    string
		pinned  Versions
		project string
		want    int
		wantOK  bool
	}{
		{"explicit wins", Versions{"Base": 3}, "Base", 3, true},
		{"ambient over stable", nil, "Base", 1, true},
		{"stable fallback", nil, "Tools", 7, true},
		{"no versions", nil, "Unknown", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Select(ctx, tt.pinned, stable, tt.project)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_NilSourceAndErrors(t *testing.T) {
	_, ok, err := Select(context.Background(), nil, nil, "p")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Select(context.Background(), nil, failingSource{}, "p")
	assert.Error(t, err)
}

func TestBegin_NestedLayersShadow(t *testing.T) {
	outer, endOuter := Begin(context.Background(), Versions{"a": 1, "b": 1})
	inner, endInner := Begin(outer, Versions{"b": 2})

	n, _ := Lookup(inner, nil, "a")
	assert.Equal(t, 1, n)
	n, _ = Lookup(inner, nil, "b")
	assert.Equal(t, 2, n)
	assert.Equal(t, Versions{"a": 1, "b": 2}, Current(inner))

	endInner()
	n, _ = Lookup(inner, nil, "b")
	assert.Equal(t, 1, n, "ended inner layer falls through to outer")

	endOuter()
	_, ok := Lookup(inner, nil, "a")
	assert.False(t, ok)
	assert.False(t, Active(inner))
	assert.Empty(t, Current(inner))

	endOuter() // idempotent
}

func TestBegin_CopiesInput(t *testing.T) {
	versions := Versions{"a": 1}
	ctx, end := Begin(context.Background(), versions)
	defer end()

	versions["a"] = 9
	n, _ := Lookup(ctx, nil, "a")
	assert.Equal(t, 1, n)
	assert.True(t, Active(ctx))
}

func TestBegin_EndOnFailurePath(t *testing.T) {
	var leaked context.Context
	operation := func() (err error) {
		ctx, end := Begin(context.Background(), Versions{"p": 4})
		defer end()
		leaked = ctx
		return errors.New("render failed")
	}

	require.Error(t, operation())
	assert.False(t, Active(leaked), "layer must be inert after the operation returns")
}

func TestConcurrentOperationsDoNotInterfere(t *testing.T) {
	base := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 32)

	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, end := Begin(base, Versions{"p": i})
			defer end()
			for range 100 {
				if n, ok := Lookup(ctx, nil, "p"); !ok || n != i {
					errs <- fmt.Errorf("operation %d saw version %d", i, n)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.False(t, Active(base), "the parent context never carries a layer")
}
