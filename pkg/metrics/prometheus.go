// Package metrics provides Prometheus metrics for the telsync pipeline.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Merge metrics
	eventsMerged     prometheus.Counter
	activeSubstreams prometheus.Gauge
	mergerRewinds    prometheus.Counter

	// Reconciliation metrics
	eventsReconciled     *prometheus.CounterVec
	uctsJumps            *prometheus.CounterVec
	missingUCTS          *prometheus.CounterVec
	correctionQueueDepth *prometheus.GaugeVec
	reconcileLatency     prometheus.Histogram

	// Output metrics
	recordsWritten prometheus.Counter
	writeErrors    prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "telsync",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsMerged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_merged_total",
		Help:      "Total number of events emitted by the substream merger",
	})

	m.activeSubstreams = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_substreams",
		Help:      "Number of substreams that still have a buffered event",
	})

	m.mergerRewinds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "merger_rewinds_total",
		Help:      "Total number of merger rewinds for re-scans",
	})

	m.eventsReconciled = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_reconciled_total",
			Help:      "Total number of events assigned a reconciled timestamp",
		},
		[]string{"telescope"},
	)

	m.uctsJumps = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ucts_jumps_total",
			Help:      "Total number of detected UCTS jumps (data quality indicator)",
		},
		[]string{"telescope"},
	)

	m.missingUCTS = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "missing_ucts_total",
			Help:      "Total number of events reported with the sentinel timestamp because UCTS was unavailable",
		},
		[]string{"telescope"},
	)

	m.correctionQueueDepth = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "correction_queue_depth",
			Help:      "Current depth of the UCTS correction queue (one entry per unresolved jump)",
		},
		[]string{"telescope"},
	)

	m.reconcileLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_latency_seconds",
		Help:      "Histogram of per-event reconciliation latency in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.recordsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_written_total",
		Help:      "Total number of reconciled records written to the sink",
	})

	m.writeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "write_errors_total",
		Help:      "Total number of sink write errors",
	})
}

func telescopeLabel(telID uint16) string {
	return strconv.FormatUint(uint64(telID), 10)
}

// RecordEventMerged increments the merged-events counter.
func RecordEventMerged() {
	globalManager.eventsMerged.Inc()
}

// UpdateActiveSubstreams sets the number of substreams that still have a buffered event.
func UpdateActiveSubstreams(count int) {
	globalManager.activeSubstreams.Set(float64(count))
}

// RecordMergerRewind increments the rewind counter.
func RecordMergerRewind() {
	globalManager.mergerRewinds.Inc()
}

// RecordEventReconciled increments the reconciled-events counter for a telescope.
func RecordEventReconciled(telID uint16) {
	globalManager.eventsReconciled.WithLabelValues(telescopeLabel(telID)).Inc()
}

// RecordUCTSJump increments the jump counter for a telescope.
func RecordUCTSJump(telID uint16) {
	globalManager.uctsJumps.WithLabelValues(telescopeLabel(telID)).Inc()
}

// RecordMissingUCTS increments the sentinel-timestamp counter for a telescope.
func RecordMissingUCTS(telID uint16) {
	globalManager.missingUCTS.WithLabelValues(telescopeLabel(telID)).Inc()
}

// UpdateCorrectionQueueDepth sets the correction-queue depth gauge for a telescope.
func UpdateCorrectionQueueDepth(telID uint16, depth int) {
	globalManager.correctionQueueDepth.WithLabelValues(telescopeLabel(telID)).Set(float64(depth))
}

// RecordReconcileLatency records one reconcile call duration in seconds.
func RecordReconcileLatency(seconds float64) {
	globalManager.reconcileLatency.Observe(seconds)
}

// RecordRecordWritten increments the sink write counter.
func RecordRecordWritten() {
	globalManager.recordsWritten.Inc()
}

// RecordWriteError increments the sink error counter.
func RecordWriteError() {
	globalManager.writeErrors.Inc()
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
