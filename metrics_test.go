package inheritance

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-m-c/go-inheritance/governor"
	"github.com/i-m-c/go-inheritance/version"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e := newEngine(t, `
project(name = "Base", fields = {"timeout": 30})
project(name = "Child", parents = ["Base", "Missing"])
project(name = "a", parents = ["b"])
project(name = "b", parents = ["a"])
`, WithMetrics(reg))
	m := e.Metrics()
	require.NotNil(t, m)

	_, err := e.ResolveField(ctx, "Child", Field("timeout"), governor.ForceInherit)
	require.NoError(t, err)
	_, err = e.ResolveField(ctx, "Base", Field("timeout"), governor.LocalOnly)
	require.NoError(t, err)
	_, err = e.ResolveField(ctx, "a", Field("timeout"), governor.ForceInherit)
	require.NoError(t, err)
	_, err = e.RecordVersion(ctx, "Base")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("force-inherit", "inherited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("local-only", "versioned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("force-inherit", "raw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycleSkipsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unresolvedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.versionsTotal))
	assert.Equal(t, 3, testutil.CollectAndCount(m.resolutionDuration))

	_, err = New(WithMetrics(reg))
	assert.Error(t, err, "collectors are already registered")
}

func TestMetrics_ExplainCountsCycleOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEngine(t, `
project(name = "a", parents = ["b"], fields = {"timeout": 1})
project(name = "b", parents = ["a"])
`, WithMetrics(reg))

	ex, err := e.Explain(context.Background(), "a", Field("timeout"), governor.ForceInherit)
	require.NoError(t, err)
	assert.Equal(t, "cycle", ex.Decision.Reason)
	assert.Equal(t, int64(1), ex.Result)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().cycleSkipsTotal))
}

func TestNew_FailureClosesStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	store := version.NewMemoryStore()
	_, err = New(WithStore(store), WithMetrics(reg))
	require.Error(t, err)

	_, _, err = store.Latest(context.Background(), "a")
	assert.ErrorIs(t, err, version.ErrClosed)

	store = version.NewMemoryStore()
	_, err = New(WithStore(store), WithProjectCacheSize(-1))
	require.Error(t, err)
	_, err = store.List(context.Background(), "a")
	assert.ErrorIs(t, err, version.ErrClosed)
}
