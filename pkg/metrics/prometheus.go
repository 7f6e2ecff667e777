// Package metrics provides Prometheus metrics for the barkwatch detection service.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for recordings and jobs.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Manager manages all Prometheus metrics for the barkwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline Metrics
	chunksProcessed     prometheus.Counter
	framesScored        prometheus.Counter
	detections          prometheus.Counter
	episodes            prometheus.Counter
	chunkScoringLatency prometheus.Histogram
	recordingLatency    prometheus.Histogram
	recordingDuration   prometheus.Histogram
	recordings          *prometheus.CounterVec

	// Job Metrics
	jobsSubmitted prometheus.Counter
	jobsDuplicate prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	watcherFiles  prometheus.Counter

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Store Metrics
	storeJobs         prometheus.Gauge
	storeQueryLatency prometheus.Histogram

	// HTTP Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorsByComponent *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "barkwatch",
		subsystem:        "detector",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
		Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.chunksProcessed = m.counter("chunks_processed_total", "Total number of chunks scored")
	m.framesScored = m.counter("frames_scored_total", "Total number of analysis frames returned by the scorer")
	m.detections = m.counter("detections_total", "Total number of raw above-threshold frame detections")
	m.episodes = m.counter("episodes_total", "Total number of merged episodes reported")
	m.chunkScoringLatency = m.histogram("chunk_scoring_latency_milliseconds",
		"Time spent reading, scoring and extracting one chunk", m.histogramBuckets)
	m.recordingLatency = m.histogram("recording_processing_latency_milliseconds",
		"Wall time to process one recording end to end",
		prometheus.ExponentialBuckets(100, 2, 14))
	m.recordingDuration = m.histogram("recording_duration_seconds",
		"Duration of processed recordings",
		[]float64{10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800})
	m.recordings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: "recordings_total", Help: "Recordings processed by outcome",
	}, []string{"outcome"})

	m.jobsSubmitted = m.counter("jobs_submitted_total", "Total number of accepted job submissions")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Submissions answered from an existing idempotency key")
	m.jobsFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: "jobs_finished_total", Help: "Jobs that reached a terminal state by outcome",
	}, []string{"outcome"})
	m.watcherFiles = m.counter("watcher_files_submitted_total", "Files submitted by the inbox watcher")

	m.queueSize = m.gauge("queue_size", "Current number of queued jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Configured number of detection workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently processing a recording")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one job including store updates",
		prometheus.ExponentialBuckets(100, 2, 14))

	m.storeJobs = m.gauge("store_jobs", "Jobs held by the result store")
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds",
		"Result store operation latency", m.histogramBuckets)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: "http_requests_total", Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: "errors_total", Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordChunkProcessed records one scored chunk and its frame and
// detection counts.
func RecordChunkProcessed(frames, detections int, latencyMs float64) {
	globalManager.chunksProcessed.Inc()
	globalManager.framesScored.Add(float64(frames))
	globalManager.detections.Add(float64(detections))
	globalManager.chunkScoringLatency.Observe(latencyMs)
}

// RecordRecording records the outcome of one recording.
func RecordRecording(outcome string, durationSeconds float64, episodes int, latencyMs float64) {
	globalManager.recordings.WithLabelValues(outcome).Inc()
	globalManager.recordingLatency.Observe(latencyMs)
	if outcome == OutcomeCompleted {
		globalManager.recordingDuration.Observe(durationSeconds)
		globalManager.episodes.Add(float64(episodes))
	}
}

// RecordJobSubmitted increments the accepted submissions counter.
func RecordJobSubmitted() {
	globalManager.jobsSubmitted.Inc()
}

// RecordJobDuplicate increments the duplicate submissions counter.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// RecordJobFinished counts a job reaching a terminal state.
func RecordJobFinished(outcome string) {
	globalManager.jobsFinished.WithLabelValues(outcome).Inc()
}

// RecordWatcherSubmission counts a file submitted by the inbox watcher.
func RecordWatcherSubmission() {
	globalManager.watcherFiles.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateStoreJobs sets the number of jobs held by the store.
func UpdateStoreJobs(count int) {
	globalManager.storeJobs.Set(float64(count))
}

// RecordStoreQueryLatency records a result store operation latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordError records an error with component and type labels.
func RecordError(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemStats samples heap usage and goroutine count.
func UpdateSystemStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.HeapAlloc))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
