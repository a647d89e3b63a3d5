// Package metrics provides Prometheus metrics for the factorlens service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scoring
	recordsScored     prometheus.Counter
	scoringAnomalies  prometheus.Counter
	scoringLatency    prometheus.Histogram
	schemaMismatches  prometheus.Counter
	batchesPrepared   prometheus.Counter
	batchesStored     prometheus.Gauge
	batchRecordCount  prometheus.Histogram
	factorRankLatency prometheus.Histogram

	// Counterfactuals
	candidatesEvaluated   prometheus.Counter
	recommendationRows    prometheus.Counter
	recommendationLatency prometheus.Histogram
	emptySlots            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Worker pool
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	queueCapacity           prometheus.Gauge
	queueEnqueueErrors      prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "factorlens",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.recordsScored = m.counter("records_scored_total", "Total number of records scored by the prediction engine")
	m.scoringAnomalies = m.counter("scoring_anomalies_total", "Records whose model output was not a finite number")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Latency of scoring one batch in milliseconds", m.histogramBuckets)
	m.schemaMismatches = m.counter("schema_mismatches_total", "Frames rejected because encoded columns differ from the training schema")
	m.batchesPrepared = m.counter("batches_prepared_total", "Total number of raw batches encoded and stored")
	m.batchesStored = m.gauge("batches_stored", "Number of batches currently held in the batch store")
	m.batchRecordCount = m.histogram("batch_records", "Number of records per prepared batch",
		[]float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000})
	m.factorRankLatency = m.histogram("factor_rank_latency_milliseconds", "Latency of ranking surrogate factors for one batch", m.histogramBuckets)

	m.candidatesEvaluated = m.counter("counterfactual_candidates_total", "Total number of counterfactual candidates evaluated")
	m.recommendationRows = m.counter("recommendation_rows_total", "Total number of recommendation rows produced")
	m.recommendationLatency = m.histogram("recommendation_latency_milliseconds", "Latency of one recommendation call in milliseconds", m.histogramBuckets)
	m.emptySlots = m.counter("recommendation_empty_slots_total", "Recommendation slots padded with the missing indicator")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.rateLimited = m.counter("http_rate_limited_total", "Requests rejected by the rate limiter")

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_component_total",
		Help: "Total number of errors by component and kind",
	}, []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_endpoint_total",
		Help: "Total number of errors by endpoint",
	}, []string{"endpoint", "method", "error_type"})

	m.workerCount = m.gauge("worker_count", "Configured number of pool workers")
	m.workerBusy = m.gauge("worker_busy", "Number of workers currently processing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Latency of one worker job in milliseconds", m.histogramBuckets)
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the most recent job queue")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by a full or closed queue")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordRecordsScored adds n to the scored records counter.
func RecordRecordsScored(n int) {
	globalManager.recordsScored.Add(float64(n))
}

// RecordScoringAnomaly increments the non-numeric output counter.
func RecordScoringAnomaly() {
	globalManager.scoringAnomalies.Inc()
}

// RecordScoringLatency records batch scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordSchemaMismatch increments the schema mismatch counter.
func RecordSchemaMismatch() {
	globalManager.schemaMismatches.Inc()
}

// RecordBatchPrepared records a prepared batch and its size.
func RecordBatchPrepared(records int) {
	globalManager.batchesPrepared.Inc()
	globalManager.batchRecordCount.Observe(float64(records))
}

// UpdateBatchesStored sets the number of batches held in the store.
func UpdateBatchesStored(n int) {
	globalManager.batchesStored.Set(float64(n))
}

// RecordFactorRankLatency records factor ranking latency in milliseconds.
func RecordFactorRankLatency(latencyMs float64) {
	globalManager.factorRankLatency.Observe(latencyMs)
}

// RecordCandidatesEvaluated adds n to the evaluated candidates counter.
func RecordCandidatesEvaluated(n int) {
	globalManager.candidatesEvaluated.Add(float64(n))
}

// RecordRecommendationRows adds rows and padded slots for one call.
func RecordRecommendationRows(rows, emptySlots int) {
	globalManager.recommendationRows.Add(float64(rows))
	globalManager.emptySlots.Add(float64(emptySlots))
}

// RecordRecommendationLatency records the latency of one recommendation call.
func RecordRecommendationLatency(latencyMs float64) {
	globalManager.recommendationLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited increments the rate-limited request counter.
func RecordRateLimited() {
	globalManager.rateLimited.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy moves the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusy.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateQueueCapacity sets the job queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
