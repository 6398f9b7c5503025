package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}

// Manager owns the service metrics and the registry they live on.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	uploads         *prometheus.CounterVec
	invalidCells    *prometheus.CounterVec
	tableCache      *prometheus.CounterVec
	sections        *prometheus.CounterVec
	sectionDuration *prometheus.HistogramVec
	exports         *prometheus.CounterVec
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "debtster",
		subsystem:        "kpi",
		histogramBuckets: defaultBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.uploads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tables_loaded_total",
		Help:      "Record tables loaded into sessions by source and outcome",
	}, []string{"source", "outcome"})

	m.invalidCells = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invalid_cells_total",
		Help:      "Spreadsheet cells that could not be coerced, by column",
	}, []string{"column"})

	m.tableCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "table_cache_lookups_total",
		Help:      "Record table cache lookups by result",
	}, []string{"result"})

	m.sections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sections_built_total",
		Help:      "Dashboard sections built by kpi and outcome",
	}, []string{"kpi", "outcome"})

	m.sectionDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "section_build_seconds",
		Help:      "Time spent computing one dashboard section",
		Buckets:   m.histogramBuckets,
	}, []string{"kpi"})

	m.exports = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "report_exports_total",
		Help:      "Report exports by outcome",
	}, []string{"outcome"})
}

func (m *Manager) RecordTableLoaded(source, outcome string) {
	m.uploads.WithLabelValues(source, outcome).Inc()
}

func (m *Manager) RecordInvalidCells(column string, n int) {
	if n <= 0 {
		return
	}
	m.invalidCells.WithLabelValues(column).Add(float64(n))
}

func (m *Manager) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.tableCache.WithLabelValues(result).Inc()
}

// ObserveSection records one section build.
func (m *Manager) ObserveSection(key, status string, elapsed time.Duration) {
	m.sections.WithLabelValues(key, status).Inc()
	m.sectionDuration.WithLabelValues(key).Observe(elapsed.Seconds())
}

func (m *Manager) RecordExport(outcome string) {
	m.exports.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
