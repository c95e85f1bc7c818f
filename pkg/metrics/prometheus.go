// Package metrics provides Prometheus metrics for the nudge intervention service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the nudge service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Core Business Metrics - the activity log and what it produces
	eventsLogged         *prometheus.CounterVec
	actionsEmitted       *prometheus.CounterVec
	interventionsSkipped *prometheus.CounterVec
	conditionAssignments *prometheus.CounterVec

	// Policy Metrics - per-intervention behavior
	policyLatency *prometheus.HistogramVec
	policyErrors  *prometheus.CounterVec

	// Store Metrics - SQLite event log health
	storeAppendLatency prometheus.Histogram
	storeErrors        *prometheus.CounterVec

	// Model Metrics - rebuild pipeline and cache
	rebuildsTriggered prometheus.Counter
	rebuildsSucceeded prometheus.Counter
	rebuildsFailed    prometheus.Counter
	rebuildDuration   prometheus.Histogram
	modelCacheHits    prometheus.Counter
	modelCacheMisses  prometheus.Counter
	modelCacheSize    prometheus.Gauge

	// Rebuild Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nudge",
		subsystem:        "interventions",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Core Business Metrics
	m.eventsLogged = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_logged_total",
			Help:      "Total number of events appended to the log by event type",
		},
		[]string{"event_type"},
	)

	m.actionsEmitted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "actions_emitted_total",
			Help:      "Total number of UI actions returned to clients by action kind",
		},
		[]string{"action"},
	)

	m.interventionsSkipped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "interventions_skipped_total",
			Help:      "Total number of events that produced no intervention, by reason",
		},
		[]string{"reason"},
	)

	m.conditionAssignments = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "condition_assignments_total",
			Help:      "Total number of first-time subject condition assignments by group",
		},
		[]string{"group"},
	)

	// Policy Metrics
	m.policyLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "policy_latency_milliseconds",
			Help:      "Histogram of intervention policy latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"policy"},
	)

	m.policyErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "policy_errors_total",
			Help:      "Total number of intervention policy errors (degraded to no action)",
		},
		[]string{"policy"},
	)

	// Store Metrics
	m.storeAppendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_append_latency_milliseconds",
		Help:      "Event append latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_errors_total",
			Help:      "Total number of event store errors by operation",
		},
		[]string{"operation"},
	)

	// Model Metrics
	m.rebuildsTriggered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_rebuilds_triggered_total",
		Help:      "Total number of model rebuilds handed to the rebuild queue",
	})

	m.rebuildsSucceeded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_rebuilds_succeeded_total",
		Help:      "Total number of successful model rebuilds",
	})

	m.rebuildsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_rebuilds_failed_total",
		Help:      "Total number of failed model rebuilds (prior model preserved)",
	})

	m.rebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_rebuild_duration_milliseconds",
		Help:      "Model rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.modelCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_cache_hits_total",
		Help:      "Total number of in-memory model cache hits",
	})

	m.modelCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_cache_misses_total",
		Help:      "Total number of in-memory model cache misses",
	})

	m.modelCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_cache_size",
		Help:      "Current number of models held in memory",
	})

	// Rebuild Queue Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_queue_size",
		Help:      "Current size of the rebuild task queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_queue_capacity",
		Help:      "Configured capacity of the rebuild task queue",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_queue_enqueues_total",
		Help:      "Total number of rebuild tasks enqueued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_queue_enqueue_errors_total",
		Help:      "Total number of rebuild tasks rejected (backpressure or closed queue)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_worker_count",
		Help:      "Current number of rebuild workers",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current allocated memory in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Garbage collection pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// GetRegistry returns the custom Prometheus registry used by the global
// manager, for serving via promhttp.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers operating on the global manager.

// RecordEventLogged increments the logged-events counter for an event type.
func RecordEventLogged(eventType string) {
	globalManager.eventsLogged.WithLabelValues(eventType).Inc()
}

// RecordActionEmitted increments the emitted-actions counter for a kind.
func RecordActionEmitted(action string) {
	globalManager.actionsEmitted.WithLabelValues(action).Inc()
}

// RecordInterventionSkipped increments the skip counter for a reason.
func RecordInterventionSkipped(reason string) {
	globalManager.interventionsSkipped.WithLabelValues(reason).Inc()
}

// RecordConditionAssigned increments the assignment counter for a group.
func RecordConditionAssigned(isIntervention bool) {
	group := "control"
	if isIntervention {
		group = "intervention"
	}
	globalManager.conditionAssignments.WithLabelValues(group).Inc()
}

// RecordPolicyLatency records one policy invocation latency.
func RecordPolicyLatency(policy string, latencyMs float64) {
	globalManager.policyLatency.WithLabelValues(policy).Observe(latencyMs)
}

// RecordPolicyError increments the policy error counter.
func RecordPolicyError(policy string) {
	globalManager.policyErrors.WithLabelValues(policy).Inc()
}

// RecordStoreAppendLatency records one append latency observation.
func RecordStoreAppendLatency(latencyMs float64) {
	globalManager.storeAppendLatency.Observe(latencyMs)
}

// RecordStoreError increments the store error counter for an operation.
func RecordStoreError(operation string) {
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// RecordRebuildTriggered increments the triggered-rebuilds counter.
func RecordRebuildTriggered() {
	globalManager.rebuildsTriggered.Inc()
}

// RecordRebuildSuccess increments the successful-rebuilds counter.
func RecordRebuildSuccess() {
	globalManager.rebuildsSucceeded.Inc()
}

// RecordRebuildFailure increments the failed-rebuilds counter.
func RecordRebuildFailure() {
	globalManager.rebuildsFailed.Inc()
}

// RecordRebuildDuration records one rebuild duration observation.
func RecordRebuildDuration(durationMs float64) {
	globalManager.rebuildDuration.Observe(durationMs)
}

// RecordModelCacheHit increments the model cache hit counter.
func RecordModelCacheHit() {
	globalManager.modelCacheHits.Inc()
}

// RecordModelCacheMiss increments the model cache miss counter.
func RecordModelCacheMiss() {
	globalManager.modelCacheMisses.Inc()
}

// UpdateModelCacheSize sets the model cache size gauge.
func UpdateModelCacheSize(size int) {
	globalManager.modelCacheSize.Set(float64(size))
}

// UpdateQueueSize sets the rebuild queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the rebuild queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the rebuild worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration observation.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the allocated-memory gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records one GC pause observation.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}
