// Package metrics provides Prometheus metrics for the muster attendance service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Upstream fetch metrics
	pagesFetched  prometheus.Counter
	fetchLatency  *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	breakerEvents *prometheus.CounterVec

	// Pipeline metrics
	eventsDiscovered prometheus.Counter
	eventsFiltered   prometheus.Counter
	assumedEnds      prometheus.Counter
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	playersScored    prometheus.Gauge

	// Queue and worker metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge
	busyWorkers   prometheus.Gauge
	jobsTracked   prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it at startup, before handlers capture GetRegistry.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "muster",
		subsystem:        "attendance",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
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

// Enabled reports whether recording is active for this manager.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval returns how often gauges are refreshed by background updaters.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.pagesFetched = m.counter("pages_fetched_total", "Total number of event list pages fetched")
	m.fetchLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "Latency of upstream fetches in milliseconds by kind (list, detail)",
		Buckets:   m.histogramBuckets,
	}, []string{"kind"})
	m.fetchErrors = m.counterVec("fetch_errors_total", "Upstream fetch failures by kind and reason", "kind", "reason")
	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
	m.breakerEvents = m.counterVec("circuit_breaker_transitions_total", "Circuit breaker transitions", "name", "from", "to")

	m.eventsDiscovered = m.counter("events_discovered_total", "Events discovered while building catalogs")
	m.eventsFiltered = m.counter("events_filtered_total", "Events that overlapped a query window and passed the threshold")
	m.assumedEnds = m.counter("assumed_event_ends_total", "Ongoing events whose end was substituted by a window boundary")
	m.runs = m.counterVec("runs_total", "Pipeline runs by outcome", "outcome")
	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "Duration of complete pipeline runs in milliseconds",
		Buckets:   m.histogramBuckets,
	})
	m.playersScored = m.gauge("players_scored", "Number of players in the most recent successful run")

	m.queueSize = m.gauge("queue_size", "Current number of queued scrape jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued scrape jobs")
	m.queueRejected = m.counterVec("queue_rejected_total", "Scrape jobs rejected by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Number of scrape workers")
	m.busyWorkers = m.gauge("busy_workers", "Number of workers currently running a pipeline")
	m.jobsTracked = m.gauge("jobs_tracked", "Number of jobs held by the job store")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
}

// RecordPageFetched increments the list page counter.
func RecordPageFetched() {
	if globalManager.enabled {
		globalManager.pagesFetched.Inc()
	}
}

// RecordFetchLatency records the latency of one upstream fetch.
func RecordFetchLatency(kind string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.fetchLatency.WithLabelValues(kind).Observe(latencyMs)
	}
}

// RecordFetchError counts an upstream fetch failure.
func RecordFetchError(kind, reason string) {
	if globalManager.enabled {
		globalManager.fetchErrors.WithLabelValues(kind, reason).Inc()
	}
}

// UpdateCircuitBreakerState sets the numeric state of a named breaker.
func UpdateCircuitBreakerState(name string, state float64) {
	if globalManager.enabled {
		globalManager.breakerState.WithLabelValues(name).Set(state)
	}
}

// RecordCircuitBreakerTransition counts a breaker state change.
func RecordCircuitBreakerTransition(name, from, to string) {
	if globalManager.enabled {
		globalManager.breakerEvents.WithLabelValues(name, from, to).Inc()
	}
}

// RecordEventsDiscovered adds n to the discovered events counter.
func RecordEventsDiscovered(n int) {
	if globalManager.enabled {
		globalManager.eventsDiscovered.Add(float64(n))
	}
}

// RecordEventsFiltered adds n to the filtered events counter.
func RecordEventsFiltered(n int) {
	if globalManager.enabled {
		globalManager.eventsFiltered.Add(float64(n))
	}
}

// RecordAssumedEnd counts an ongoing event whose end was substituted.
func RecordAssumedEnd() {
	if globalManager.enabled {
		globalManager.assumedEnds.Inc()
	}
}

// RecordRun counts a pipeline run with its outcome and duration.
func RecordRun(outcome string, durationMs float64) {
	if globalManager.enabled {
		globalManager.runs.WithLabelValues(outcome).Inc()
		globalManager.runDuration.Observe(durationMs)
	}
}

// UpdatePlayersScored sets the player count of the latest successful run.
func UpdatePlayersScored(n int) {
	if globalManager.enabled {
		globalManager.playersScored.Set(float64(n))
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueRejected counts a job the queue refused.
func RecordQueueRejected(reason string) {
	if globalManager.enabled {
		globalManager.queueRejected.WithLabelValues(reason).Inc()
	}
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// IncBusyWorkers marks one more worker as busy.
func IncBusyWorkers() {
	if globalManager.enabled {
		globalManager.busyWorkers.Inc()
	}
}

// DecBusyWorkers marks one worker as idle again.
func DecBusyWorkers() {
	if globalManager.enabled {
		globalManager.busyWorkers.Dec()
	}
}

// UpdateJobsTracked sets the number of jobs held by the job store.
func UpdateJobsTracked(count int) {
	if globalManager.enabled {
		globalManager.jobsTracked.Set(float64(count))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RefreshInterval returns the gauge refresh period of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
