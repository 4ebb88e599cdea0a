package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scopectx"

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several can coexist in one process (tests, embedded servers).
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ScopesActive      prometheus.Gauge
	LifecycleErrors   *prometheus.CounterVec

	// Boundary metrics
	JobRuns       *prometheus.CounterVec
	MessagesTotal *prometheus.CounterVec
	OutboundCalls *prometheus.CounterVec
	GRPCCalls     *prometheus.CounterVec
	GRPCDuration  *prometheus.HistogramVec
	WSConnections prometheus.Gauge

	// Health metrics
	ProbeStatus    *prometheus.GaugeVec
	ProbeDuration  *prometheus.HistogramVec
	HealthStatus   prometheus.Gauge
	HealthChecks   *prometheus.CounterVec
	BreakerChanges *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalOperations   int64   `json:"total_operations"`
	FailedOperations  int64   `json:"failed_operations"`
	LifecycleErrors   int64   `json:"lifecycle_errors"`
	ActiveScopes      int64   `json:"active_scopes"`
	TotalDuration     float64 `json:"-"` // sum of all request durations
	RequestCount      int64   `json:"-"` // count for averaging
	AverageDurationMS float64 `json:"average_duration_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector backed by a fresh registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry creates a metrics collector registered on reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Operation metrics
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Tracked operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Tracked operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ScopesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scopes_active",
				Help:      "Number of scoped contexts currently owned by a boundary",
			},
		),
		LifecycleErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_errors_total",
				Help:      "Scoped context lifecycle violations by boundary and kind",
			},
			[]string{"boundary", "kind"},
		),

		// Boundary metrics
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Job executions by job, kind and outcome",
			},
			[]string{"job", "kind", "outcome"},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Handled messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		OutboundCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_calls_total",
				Help:      "Outbound calls by target node and status",
			},
			[]string{"node", "status"},
		),
		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_calls_total",
				Help:      "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grpc_duration_seconds",
				Help:      "gRPC call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),

		// Health metrics
		ProbeStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_probe_status",
				Help:      "Last probe status (0 healthy, 1 degraded, 2 unhealthy)",
			},
			[]string{"probe"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "health_probe_duration_seconds",
				Help:      "Probe duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"probe"},
		),
		HealthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_status",
				Help:      "Aggregate health status (0 healthy, 1 degraded, 2 unhealthy)",
			},
		),
		HealthChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_checks_total",
				Help:      "Aggregate health checks by resulting status",
			},
			[]string{"status"},
		),
		BreakerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_state_changes_total",
				Help:      "Circuit breaker transitions by breaker and target state",
			},
			[]string{"breaker", "to"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records the outcome of a tracked operation.
func (m *Metrics) RecordOperation(name, outcome string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(name, outcome).Inc()
	m.OperationDuration.WithLabelValues(name).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalOperations++
	if outcome == OutcomeFailure {
		m.snapshot.FailedOperations++
	}
	m.mu.Unlock()
}

// RecordLifecycleError counts a lifecycle violation seen at a boundary.
func (m *Metrics) RecordLifecycleError(boundary, kind string) {
	m.LifecycleErrors.WithLabelValues(boundary, kind).Inc()
	m.mu.Lock()
	m.snapshot.LifecycleErrors++
	m.mu.Unlock()
}

// ScopeOpened and ScopeClosed track scopes owned by boundaries.
func (m *Metrics) ScopeOpened() {
	m.ScopesActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveScopes++
	m.mu.Unlock()
}

func (m *Metrics) ScopeClosed() {
	m.ScopesActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveScopes--
	m.mu.Unlock()
}

// RecordJobRun records a job execution
func (m *Metrics) RecordJobRun(job, kind, outcome string) {
	m.JobRuns.WithLabelValues(job, kind, outcome).Inc()
}

// RecordMessage records a handled or published message
func (m *Metrics) RecordMessage(direction, msgType string) {
	m.MessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// RecordOutboundCall records a call to another node
func (m *Metrics) RecordOutboundCall(node, status string) {
	m.OutboundCalls.WithLabelValues(node, status).Inc()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// ObserveProbe records the latest status of one health probe.
func (m *Metrics) ObserveProbe(name string, severity int, duration time.Duration) {
	m.ProbeStatus.WithLabelValues(name).Set(float64(severity))
	m.ProbeDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveAggregate records the aggregate health status.
func (m *Metrics) ObserveAggregate(status string, severity int) {
	m.HealthStatus.Set(float64(severity))
	m.HealthChecks.WithLabelValues(status).Inc()
}

// RecordBreakerChange records a circuit breaker transition.
func (m *Metrics) RecordBreakerChange(name, to string) {
	m.BreakerChanges.WithLabelValues(name, to).Inc()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()

	if snap.RequestCount > 0 {
		snap.AverageDurationMS = snap.TotalDuration / float64(snap.RequestCount) * 1000
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
