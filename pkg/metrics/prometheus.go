// Package metrics provides Prometheus metrics for the gesture inference service.
package metrics

import (
	"fmt"
	"runtime"
	"strconv"

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

	// Prediction path
	predictions        *prometheus.CounterVec
	predictionLatency  *prometheus.HistogramVec
	chainLatency       prometheus.Histogram
	transformLatency   *prometheus.HistogramVec
	inferenceLatency   *prometheus.HistogramVec
	inferenceErrors    *prometheus.CounterVec
	transformFailures  *prometheus.CounterVec
	debugDumpFailures  prometheus.Counter
	predictionFeedback *prometheus.CounterVec

	// Registry lifecycle
	modelsLoaded   prometheus.Gauge
	reloads        *prometheus.CounterVec
	reloadDuration prometheus.Histogram

	// Prediction events
	eventsPublished      prometheus.Counter
	eventsDropped        prometheus.Counter
	eventPublishErrors   prometheus.Counter
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	queueUtilization     prometheus.Gauge
	queueEnqueue         prometheus.Counter
	queueDequeue         prometheus.Counter
	queueEnqueueErrors   prometheus.Counter
	workerActiveCount    prometheus.Gauge
	workerLatency        prometheus.Histogram
	workerErrors         prometheus.Counter
	workerMessagesPerSec prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gesture",
		subsystem:        "inference",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(m.counterOpts("predictions_total", "Predictions by model and outcome (label, no_detection, error, not_found)"), []string{"model_id", "outcome"})
	m.predictionLatency = auto.NewHistogramVec(m.histogramOpts("prediction_latency_milliseconds", "End-to-end prediction latency per model"), []string{"model_id"})
	m.chainLatency = auto.NewHistogram(m.histogramOpts("chain_latency_milliseconds", "Transform chain execution latency"))
	m.transformLatency = auto.NewHistogramVec(m.histogramOpts("transform_latency_milliseconds", "Latency of a single transform stage"), []string{"transform"})
	m.inferenceLatency = auto.NewHistogramVec(m.histogramOpts("model_forward_latency_milliseconds", "Latency of the model forward pass"), []string{"model_id"})
	m.inferenceErrors = auto.NewCounterVec(m.counterOpts("model_forward_errors_total", "Model forward pass failures"), []string{"model_id"})
	m.transformFailures = auto.NewCounterVec(m.counterOpts("transform_failures_total", "Transform stages that rejected their input"), []string{"transform"})
	m.debugDumpFailures = auto.NewCounter(m.counterOpts("debug_dump_failures_total", "Debug image dumps that could not be written"))
	m.predictionFeedback = auto.NewCounterVec(m.counterOpts("prediction_feedback_total", "Prediction feedback submissions"), []string{"model_id", "wrong"})

	m.modelsLoaded = auto.NewGauge(m.gaugeOpts("models_loaded", "Number of models in the live registry"))
	m.reloads = auto.NewCounterVec(m.counterOpts("registry_reloads_total", "Registry reloads by result"), []string{"result"})
	m.reloadDuration = auto.NewHistogram(m.histogramOpts("registry_reload_duration_milliseconds", "Time spent loading a full registry"))

	m.eventsPublished = auto.NewCounter(m.counterOpts("events_published_total", "Prediction events delivered to the sink"))
	m.eventsDropped = auto.NewCounter(m.counterOpts("events_dropped_total", "Prediction events dropped because the queue was full or closed"))
	m.eventPublishErrors = auto.NewCounter(m.counterOpts("event_publish_errors_total", "Prediction events the sink failed to deliver"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the prediction event queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the prediction event queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization", "Queue size divided by capacity"))
	m.queueEnqueue = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Events enqueued"))
	m.queueDequeue = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Failed enqueue attempts"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Running event publisher workers"))
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spends publishing one event"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker processing errors"))
	m.workerMessagesPerSec = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Events published per second across workers"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration"), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of failed operations"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

func modelLabel(modelID int) string { return strconv.Itoa(modelID) }

// Prediction path.

// RecordPrediction counts one prediction outcome and its latency.
func RecordPrediction(modelID int, outcome string, latencyMs float64) {
	globalManager.predictions.WithLabelValues(modelLabel(modelID), outcome).Inc()
	globalManager.predictionLatency.WithLabelValues(modelLabel(modelID)).Observe(latencyMs)
}

// RecordChainLatency records a full transform chain execution.
func RecordChainLatency(latencyMs float64) {
	globalManager.chainLatency.Observe(latencyMs)
}

// RecordTransformLatency records a single transform stage.
func RecordTransformLatency(transform string, latencyMs float64) {
	globalManager.transformLatency.WithLabelValues(transform).Observe(latencyMs)
}

// RecordTransformFailure counts a transform that rejected its input.
func RecordTransformFailure(transform string) {
	globalManager.transformFailures.WithLabelValues(transform).Inc()
}

// RecordInferenceLatency records a model forward pass.
func RecordInferenceLatency(modelID int, latencyMs float64) {
	globalManager.inferenceLatency.WithLabelValues(modelLabel(modelID)).Observe(latencyMs)
}

// RecordInferenceError counts a failed model forward pass.
func RecordInferenceError(modelID int) {
	globalManager.inferenceErrors.WithLabelValues(modelLabel(modelID)).Inc()
}

// RecordDebugDumpFailure counts a debug dump that could not be written.
func RecordDebugDumpFailure() {
	globalManager.debugDumpFailures.Inc()
}

// RecordFeedback counts a feedback submission.
func RecordFeedback(modelID int, wrong bool) {
	globalManager.predictionFeedback.WithLabelValues(modelLabel(modelID), strconv.FormatBool(wrong)).Inc()
}

// Registry lifecycle.

// UpdateModelsLoaded sets the number of live models.
func UpdateModelsLoaded(count int) {
	globalManager.modelsLoaded.Set(float64(count))
}

// RecordReload counts a registry reload and its duration.
func RecordReload(result string, durationMs float64) {
	globalManager.reloads.WithLabelValues(result).Inc()
	globalManager.reloadDuration.Observe(durationMs)
}

// Prediction events.

// RecordEventPublished counts an event delivered to the sink.
func RecordEventPublished() {
	globalManager.eventsPublished.Inc()
}

// RecordEventDropped counts an event that never reached the queue.
func RecordEventDropped() {
	globalManager.eventsDropped.Inc()
}

// RecordEventPublishError counts an event the sink rejected.
func RecordEventPublishError() {
	globalManager.eventPublishErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets size/capacity.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts a successful enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError counts a failed enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the time spent on one event.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateWorkerMessagesPerSecond sets the pool throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSec.Set(rate)
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records errors by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records errors by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global collectors live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// CollectRuntime samples memory, goroutine and GC figures into the system gauges.
func CollectRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapAlloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		RecordSystemGCPauseTime(float64(ms.PauseNs[(ms.NumGC+255)%256]) / 1e6)
	}
}

// SeriesCount gathers the registry and returns the number of metric families.
func SeriesCount() (int, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGatherFailed, err)
	}
	return len(families), nil
}
