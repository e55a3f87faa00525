// Package metrics provides Prometheus metrics for the pairwise experiment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Experiment metrics
	sequencesGenerated *prometheus.CounterVec
	sequenceTrials     prometheus.Histogram
	insufficientSets   prometheus.Counter
	discoveryFallbacks *prometheus.CounterVec
	videosListed       *prometheus.GaugeVec
	gateTriggers       *prometheus.CounterVec

	// Log sink metrics
	logRecordsPersisted *prometheus.CounterVec
	logRecordsFailed    *prometheus.CounterVec
	storeLatency        prometheus.Histogram

	// Client dispatcher metrics
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueueError prometheus.Counter
	deliveries        *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pairwise",
		subsystem:        "experiment",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sequencesGenerated = auto.NewCounterVec(
		m.counterOpts("sequences_generated_total", "Trial sequences generated, by experiment variant"),
		[]string{"variant"},
	)
	m.sequenceTrials = auto.NewHistogram(m.histogramOpts(
		"sequence_trials", "Number of trials in generated sequences",
		[]float64{1, 3, 5, 10, 15, 30, 66, 120, 435},
	))
	m.insufficientSets = auto.NewCounter(
		m.counterOpts("insufficient_stimuli_total", "Sequence requests rejected for having fewer than two stimuli"),
	)
	m.discoveryFallbacks = auto.NewCounterVec(
		m.counterOpts("discovery_fallbacks_total", "Stimulus discoveries that fell back to the default list"),
		[]string{"source"},
	)
	m.videosListed = auto.NewGaugeVec(
		m.gaugeOpts("videos_listed", "Videos returned by the most recent listing"),
		[]string{"layout"},
	)
	m.gateTriggers = auto.NewCounterVec(
		m.counterOpts("gate_triggers_total", "Playback completion triggers, by kind"),
		[]string{"trigger"},
	)

	m.logRecordsPersisted = auto.NewCounterVec(
		m.counterOpts("log_records_persisted_total", "Trial log records persisted, by trial type"),
		[]string{"trial_type"},
	)
	m.logRecordsFailed = auto.NewCounterVec(
		m.counterOpts("log_records_failed_total", "Trial log records that failed to persist"),
		[]string{"reason"},
	)
	m.storeLatency = auto.NewHistogram(m.histogramOpts(
		"store_latency_milliseconds", "Log store write latency in milliseconds", m.histogramBuckets,
	))

	m.queueSize = auto.NewGauge(m.gaugeOpts("dispatch_queue_size", "Records waiting in the log dispatcher"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("dispatch_queue_capacity", "Log dispatcher queue capacity"))
	m.queueEnqueueError = auto.NewCounter(
		m.counterOpts("dispatch_enqueue_errors_total", "Records rejected by the log dispatcher queue"),
	)
	m.deliveries = auto.NewCounterVec(
		m.counterOpts("dispatch_deliveries_total", "Record deliveries attempted by the dispatcher, by outcome"),
		[]string{"outcome"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorsByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint and error type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// RecordSequenceGenerated records a generated sequence and its length.
func RecordSequenceGenerated(variant string, trials int) {
	globalManager.sequencesGenerated.WithLabelValues(variant).Inc()
	globalManager.sequenceTrials.Observe(float64(trials))
}

// RecordInsufficientStimuli counts a rejected sequence request.
func RecordInsufficientStimuli() {
	globalManager.insufficientSets.Inc()
}

// RecordDiscoveryFallback counts a discovery that used its fallback list.
func RecordDiscoveryFallback(source string) {
	globalManager.discoveryFallbacks.WithLabelValues(source).Inc()
}

// UpdateVideosListed sets the number of videos in the latest listing.
func UpdateVideosListed(layout string, count int) {
	globalManager.videosListed.WithLabelValues(layout).Set(float64(count))
}

// RecordGateTrigger counts a playback completion trigger ("threshold", "ended", "fallback").
func RecordGateTrigger(trigger string) {
	globalManager.gateTriggers.WithLabelValues(trigger).Inc()
}

// RecordLogPersisted counts a persisted log record.
func RecordLogPersisted(trialType string) {
	if trialType == "" {
		trialType = "unknown"
	}
	globalManager.logRecordsPersisted.WithLabelValues(trialType).Inc()
}

// RecordLogFailed counts a log record that could not be persisted.
func RecordLogFailed(reason string) {
	globalManager.logRecordsFailed.WithLabelValues(reason).Inc()
}

// RecordStoreLatency records a store write latency in milliseconds.
func RecordStoreLatency(latencyMs float64) {
	globalManager.storeLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the dispatcher queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the dispatcher queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueError.Inc()
}

// RecordDelivery counts a dispatcher delivery by outcome ("delivered", "failed").
func RecordDelivery(outcome string) {
	globalManager.deliveries.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry backing the package-level recorders.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
