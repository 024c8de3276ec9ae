// Package metrics provides Prometheus metrics for the dappforge pipeline
// Exports build, fix-loop, AI, and HTTP metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for dappforge
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Build Pipeline Metrics
	BuildsStarted    prometheus.Counter
	BuildsCompleted  *prometheus.CounterVec
	BuildDuration    prometheus.Histogram
	BuildIterations  prometheus.Histogram
	PhaseDuration    *prometheus.HistogramVec
	FixAttemptsTotal *prometheus.CounterVec

	// Compiler / Test Runner Metrics
	CompileRunsTotal   *prometheus.CounterVec
	TestRunsTotal      *prometheus.CounterVec
	SecurityFindings   *prometheus.CounterVec
	SandboxExecsActive prometheus.Gauge

	// AI Metrics
	AIRequestsTotal   *prometheus.CounterVec
	AIRequestDuration *prometheus.HistogramVec
	AITokensUsed      *prometheus.CounterVec
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_http_requests_total",
		Help: "Total HTTP requests by method, path, and status",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dappforge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.BuildsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappforge_builds_started_total",
		Help: "Total build pipeline runs started",
	})

	m.BuildsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_builds_completed_total",
		Help: "Total build pipeline runs completed by outcome",
	}, []string{"outcome"})

	m.BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dappforge_build_duration_seconds",
		Help:    "Total wall-clock duration of a build pipeline run",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})

	m.BuildIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dappforge_build_iterations",
		Help:    "Global fix iterations consumed per build",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	})

	m.PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dappforge_build_phase_duration_seconds",
		Help:    "Duration of each pipeline phase",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"phase"})

	m.FixAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_fix_attempts_total",
		Help: "LLM repair attempts by diagnostic class",
	}, []string{"kind"})

	m.CompileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_compile_runs_total",
		Help: "Solidity compiler invocations by result",
	}, []string{"result"})

	m.TestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_test_runs_total",
		Help: "Sandboxed test runs by result",
	}, []string{"result"})

	m.SecurityFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_security_findings_total",
		Help: "Security scan findings by severity",
	}, []string{"severity"})

	m.SandboxExecsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dappforge_sandbox_execs_active",
		Help: "Currently running sandbox executions",
	})

	m.AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_ai_requests_total",
		Help: "LLM requests by provider and status",
	}, []string{"provider", "status"})

	m.AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dappforge_ai_request_duration_seconds",
		Help:    "LLM request duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	m.AITokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappforge_ai_tokens_total",
		Help: "LLM tokens consumed by provider and direction",
	}, []string{"provider", "direction"})

	return m
}
