// Package metrics provides Prometheus metrics for the bastion match service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	ticksRecorded  prometheus.Counter
	ticksDropped   prometheus.Counter
	healthResults  *prometheus.CounterVec
	flagsCaptured  prometheus.Counter
	flagsIgnored   prometheus.Counter
	scoringMatches prometheus.Gauge

	// Rating
	settlements     *prometheus.CounterVec
	ratingUpdates   prometheus.Counter
	rankTransitions *prometheus.CounterVec
	mmrDelta        prometheus.Histogram

	// Reconciler
	polls          prometheus.Counter
	pollFailures   *prometheus.CounterVec
	broadcasts     prometheus.Counter
	trackedMatches prometheus.Gauge

	// Engine client
	engineRequests *prometheus.CounterVec
	engineLatency  *prometheus.HistogramVec

	// Settlement queue and workers
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueRejected   *prometheus.CounterVec
	workerCount     prometheus.Gauge
	workerLatency   prometheus.Histogram
	workerErrors    prometheus.Counter
	duplicateSettle prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of the exported set.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bastion",
		subsystem:        "match",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      prometheus.Labels{},
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

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.ticksRecorded = m.counter("ticks_recorded_total", "Health-check ticks applied to a running match")
	m.ticksDropped = m.counter("ticks_dropped_total", "Ticks received for unknown or torn-down matches")
	m.healthResults = m.counterVec("health_results_total", "Per-service health results by status", "status")
	m.flagsCaptured = m.counter("flags_captured_total", "Validated flag captures scored")
	m.flagsIgnored = m.counter("flags_ignored_total", "Flag captures ignored for unknown match or team")
	m.scoringMatches = m.gauge("scoring_matches", "Matches with live scoring state")

	m.settlements = m.counterVec("settlements_total", "Match settlements by outcome", "outcome")
	m.ratingUpdates = m.counter("rating_updates_total", "Player ratings updated at settlement")
	m.rankTransitions = m.counterVec("rank_transitions_total", "Rank state machine transitions", "kind")
	m.mmrDelta = m.histogram("mmr_delta", "Signed MMR deltas applied at settlement",
		[]float64{-40, -30, -20, -10, -5, 0, 5, 10, 20, 30, 40})

	m.polls = m.counter("engine_polls_total", "Status polls issued by the reconciler")
	m.pollFailures = m.counterVec("engine_poll_failures_total", "Failed status polls by reason", "reason")
	m.broadcasts = m.counter("state_broadcasts_total", "Phase change notifications broadcast")
	m.trackedMatches = m.gauge("tracked_matches", "Matches currently polled by the reconciler")

	m.engineRequests = m.counterVec("engine_requests_total", "Match engine requests by operation and outcome", "op", "outcome")
	m.engineLatency = m.histogramVec("engine_latency_milliseconds", "Match engine request latency", "op")

	m.queueSize = m.gauge("settle_queue_size", "Settlement jobs waiting in the queue")
	m.queueCapacity = m.gauge("settle_queue_capacity", "Settlement queue capacity")
	m.queueEnqueued = m.counter("settle_queue_enqueued_total", "Settlement jobs enqueued")
	m.queueRejected = m.counterVec("settle_queue_rejected_total", "Settlement jobs rejected by reason", "reason")
	m.workerCount = m.gauge("settle_workers", "Settlement workers running")
	m.workerLatency = m.histogram("settle_job_latency_milliseconds", "Settlement job latency", m.histogramBuckets)
	m.workerErrors = m.counter("settle_job_errors_total", "Settlement jobs that failed")
	m.duplicateSettle = m.counter("settle_duplicates_total", "Settlement requests for already settled matches")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
}

// Scoring.

// RecordTick counts one applied tick and its per-service results.
func RecordTick(up, down int) {
	globalManager.ticksRecorded.Inc()
	globalManager.healthResults.WithLabelValues("UP").Add(float64(up))
	globalManager.healthResults.WithLabelValues("DOWN").Add(float64(down))
}

// RecordTickDropped counts a tick for an unknown match.
func RecordTickDropped() { globalManager.ticksDropped.Inc() }

// RecordFlagCaptured counts a scored flag capture.
func RecordFlagCaptured() { globalManager.flagsCaptured.Inc() }

// RecordFlagIgnored counts a capture that could not be scored.
func RecordFlagIgnored() { globalManager.flagsIgnored.Inc() }

// UpdateScoringMatches sets the number of matches with live scoring state.
func UpdateScoringMatches(n int) { globalManager.scoringMatches.Set(float64(n)) }

// Rating.

// RecordSettlement counts a settlement attempt by outcome (ok, error, not_ended, ...).
func RecordSettlement(outcome string) { globalManager.settlements.WithLabelValues(outcome).Inc() }

// RecordRatingUpdate records one applied player delta.
func RecordRatingUpdate(delta float64) {
	globalManager.ratingUpdates.Inc()
	globalManager.mmrDelta.Observe(delta)
}

// RecordRankTransition counts promoted, demoted and protected outcomes.
func RecordRankTransition(kind string) { globalManager.rankTransitions.WithLabelValues(kind).Inc() }

// Reconciler.

// RecordPoll counts one status poll.
func RecordPoll() { globalManager.polls.Inc() }

// RecordPollFailure counts a failed poll by reason.
func RecordPollFailure(reason string) { globalManager.pollFailures.WithLabelValues(reason).Inc() }

// RecordBroadcast counts one phase change notification.
func RecordBroadcast() { globalManager.broadcasts.Inc() }

// UpdateTrackedMatches sets the number of polled matches.
func UpdateTrackedMatches(n int) { globalManager.trackedMatches.Set(float64(n)) }

// Engine client.

// RecordEngineRequest records one engine call.
func RecordEngineRequest(op, outcome string, latencyMs float64) {
	globalManager.engineRequests.WithLabelValues(op, outcome).Inc()
	globalManager.engineLatency.WithLabelValues(op).Observe(latencyMs)
}

// Queue and workers.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueRejected counts a rejected job by reason.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordWorkerLatency records how long one job took.
func RecordWorkerLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWorkerError counts a failed job.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordDuplicateSettlement counts a repeated settlement request.
func RecordDuplicateSettlement() { globalManager.duplicateSettle.Inc() }

// HTTP.

// RecordHTTPRequest records a request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

// GetRegistry returns the registry holding the exported collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
