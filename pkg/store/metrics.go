package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instrumentation the engine and iterator
// update on every operation, moved down a layer so the storage core itself
// is observable independent of any HTTP surface built on top of it.
type Metrics struct {
	getTotal           *prometheus.CounterVec
	getDuration        prometheus.Histogram
	openFileHandles    prometheus.Gauge
	iteratorScansTotal prometheus.Counter
	iteratorSkipsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers engine metrics against reg. Passing a
// fresh *prometheus.Registry (rather than the global default) keeps
// multiple engines in one process, e.g. in tests, from colliding on metric
// names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		getTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hstabledb_get_total",
			Help: "Total number of Get operations against the storage engine.",
		}, []string{"status"}),

		getDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hstabledb_get_duration_seconds",
			Help:    "Duration of Get operations against the storage engine.",
			Buckets: prometheus.DefBuckets,
		}),

		openFileHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hstabledb_open_file_handles",
			Help: "Number of currently mapped HSTable files.",
		}),

		iteratorScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstabledb_iterator_scans_total",
			Help: "Total number of files a Read Iterator has begun scanning.",
		}),

		iteratorSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hstabledb_iterator_records_skipped_total",
			Help: "Records skipped by the Read Iterator, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.getTotal,
		m.getDuration,
		m.openFileHandles,
		m.iteratorScansTotal,
		m.iteratorSkipsTotal,
	)

	return m
}

func (m *Metrics) recordGet(status string, start time.Time) {
	m.getTotal.WithLabelValues(status).Inc()
	m.getDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) setOpenFileHandles(n int) {
	m.openFileHandles.Set(float64(n))
}

func (m *Metrics) recordIteratorScan() {
	m.iteratorScansTotal.Inc()
}

func (m *Metrics) recordIteratorSkip(reason string) {
	m.iteratorSkipsTotal.WithLabelValues(reason).Inc()
}
