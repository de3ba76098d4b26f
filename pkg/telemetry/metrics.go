package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for warden. The zero-value methods are
// safe on a disabled instance; every recorder is a no-op until NewMetrics has
// registered the collectors.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	activeRuns  prometheus.Gauge

	// Plan metrics
	planChanges *prometheus.GaugeVec

	// State lock metrics
	lockContention prometheus.Counter

	// Admission metrics
	admissionDecisions *prometheus.CounterVec

	// Gate metrics
	gateViolations *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics builds the registry and its collectors.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of runs started, by phase",
			},
			[]string{"phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of completed runs in seconds",
				Buckets:   buckets,
			},
			[]string{"phase", "status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of in-flight runs",
			},
		),

		planChanges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_changes",
				Help:      "Change counts of the most recently computed plan, by action",
			},
			[]string{"action"},
		),

		lockContention: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_contention_total",
				Help:      "Total number of apply attempts that found the scope lock held",
			},
		),

		admissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_decisions_total",
				Help:      "Total number of admission decisions, by outcome",
			},
			[]string{"decision"},
		),

		gateViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_violations_total",
				Help:      "Total number of plan gate violations, by severity",
			},
			[]string{"severity"},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.activeRuns,
		m.planChanges,
		m.lockContention,
		m.admissionDecisions,
		m.gateViolations,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted counts a run entering the given phase.
func (m *Metrics) RecordRunStarted(phase string) {
	if m.runsTotal == nil {
		return
	}
	m.runsTotal.WithLabelValues(phase).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished run with its phase, status, and
// duration.
func (m *Metrics) RecordRunCompleted(phase, status string, duration time.Duration) {
	if m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Plan Metrics

// RecordPlanChanges sets the change count of the latest plan for one action
// (create, update, delete).
func (m *Metrics) RecordPlanChanges(action string, count int) {
	if m.planChanges == nil {
		return
	}
	m.planChanges.WithLabelValues(action).Set(float64(count))
}

// Lock Metrics

// RecordLockContention counts an apply that found the scope lock held.
func (m *Metrics) RecordLockContention() {
	if m.lockContention == nil {
		return
	}
	m.lockContention.Inc()
}

// Admission Metrics

// RecordAdmissionDecision counts an admission decision ("allowed" or
// "denied").
func (m *Metrics) RecordAdmissionDecision(decision string) {
	if m.admissionDecisions == nil {
		return
	}
	m.admissionDecisions.WithLabelValues(decision).Inc()
}

// Gate Metrics

// RecordGateViolation counts a plan gate violation by severity.
func (m *Metrics) RecordGateViolation(severity string) {
	if m.gateViolations == nil {
		return
	}
	m.gateViolations.WithLabelValues(severity).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
