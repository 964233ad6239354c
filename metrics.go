package inheritance

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i-m-c/go-inheritance/governor"
)

// Metrics holds the engine's Prometheus collectors. It implements
// governor.Observer.
type Metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	cycleSkipsTotal    prometheus.Counter
	unresolvedTotal    prometheus.Counter
	versionsTotal      prometheus.Counter
}

var _ governor.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inheritance_resolutions_total",
				Help: "Number of field resolutions by mode and strategy.",
			},
			[]string{"mode", "path"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inheritance_resolution_duration_seconds",
				Help:    "Time taken to resolve one field.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		cycleSkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inheritance_cycle_skips_total",
				Help: "Resolutions that fell back to raw values because of a reference cycle.",
			},
		),
		unresolvedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inheritance_unresolved_references_total",
				Help: "Project references skipped during traversal because the target does not exist.",
			},
		),
		versionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inheritance_versions_recorded_total",
				Help: "Number of project versions recorded.",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.resolutionsTotal,
		m.resolutionDuration,
		m.cycleSkipsTotal,
		m.unresolvedTotal,
		m.versionsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Resolved implements governor.Observer.
func (m *Metrics) Resolved(_ string, mode governor.Mode, path governor.Path, elapsed time.Duration) {
	m.resolutionsTotal.WithLabelValues(mode.String(), path.String()).Inc()
	m.resolutionDuration.WithLabelValues(path.String()).Observe(elapsed.Seconds())
}

// CycleSkipped implements governor.Observer.
func (m *Metrics) CycleSkipped(string, string, []string) {
	m.cycleSkipsTotal.Inc()
}

// UnresolvedReference implements governor.Observer.
func (m *Metrics) UnresolvedReference(string, string) {
	m.unresolvedTotal.Inc()
}

func (m *Metrics) versionRecorded() {
	m.versionsTotal.Inc()
}
