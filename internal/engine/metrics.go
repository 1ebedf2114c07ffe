/*
PURPOSE:
  Prometheus series describing a running benchmark.

ARCHITECTURE INTEGRATION:
  - Registered by: internal/cli/run.go when --metrics-addr is set
  - Updated by: client.go (attempts), runner.go (steps, load, host CPU)

IMPLEMENTATION RULES:
  - A nil *Metrics is valid; helpers are no-ops on nil.
  - Register against the caller's registry, never the global default.
*/

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/daryltucker/halospec-bench/internal/model"
)

const metricsNamespace = "halospec"

// Metrics exposes the benchmark's progress as Prometheus series. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// AttemptsTotal counts delivery attempts by result (ok, transport, status, decode).
	AttemptsTotal *prometheus.CounterVec

	// AttemptLatencySeconds measures every attempt, including non-2xx replies.
	AttemptLatencySeconds *prometheus.HistogramVec

	// StepsTotal counts measured steps. Labels: mode, phase, result (success, failure).
	StepsTotal *prometheus.CounterVec

	// StepLatencySeconds measures successful steps. Labels: mode, phase.
	StepLatencySeconds *prometheus.HistogramVec

	// TokensTotal counts completion tokens of successful steps. Labels: mode.
	TokensTotal *prometheus.CounterVec

	// DraftLength is the draft length chosen for the latest step. Labels: mode.
	DraftLength *prometheus.GaugeVec

	// LoadActive is 1 while the background load generator runs.
	LoadActive prometheus.Gauge

	// HostCPUBusyPercent is the host CPU busy share sampled after each step.
	HostCPUBusyPercent prometheus.Gauge
}

// NewMetrics creates and registers the benchmark metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	latencyBuckets := []float64{0.25, 0.5, 1, 2, 4, 8, 12, 16, 24, 32, 60}

	return &Metrics{
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_attempts_total",
			Help:      "Delivery attempts against the target server by result",
		}, []string{"result"}),

		AttemptLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_attempt_latency_seconds",
			Help:      "Wall-clock latency of each delivery attempt",
			Buckets:   latencyBuckets,
		}, []string{"result"}),

		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "steps_total",
			Help:      "Measured benchmark steps by mode, phase and result",
		}, []string{"mode", "phase", "result"}),

		StepLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_latency_seconds",
			Help:      "Latency of successful measured steps",
			Buckets:   latencyBuckets,
		}, []string{"mode", "phase"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "completion_tokens_total",
			Help:      "Completion tokens returned by successful steps",
		}, []string{"mode"}),

		DraftLength: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "draft_length",
			Help:      "Draft length chosen for the latest step",
		}, []string{"mode"}),

		LoadActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "background_load_active",
			Help:      "1 while the background CPU load generator runs",
		}),

		HostCPUBusyPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "host_cpu_busy_percent",
			Help:      "Host CPU busy percentage since the previous step",
		}),
	}
}

func (m *Metrics) observeAttempt(result string, seconds float64) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptLatencySeconds.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) observeStep(rec model.StepRecord) {
	if m == nil {
		return
	}
	result := "failure"
	if rec.Success {
		result = "success"
		m.StepLatencySeconds.WithLabelValues(rec.Mode, string(rec.Phase)).Observe(rec.Latency.Seconds())
		m.TokensTotal.WithLabelValues(rec.Mode).Add(float64(rec.Tokens))
	}
	m.StepsTotal.WithLabelValues(rec.Mode, string(rec.Phase), result).Inc()
	m.DraftLength.WithLabelValues(rec.Mode).Set(float64(rec.DraftLength))
}

func (m *Metrics) setLoadActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.LoadActive.Set(1)
		return
	}
	m.LoadActive.Set(0)
}

func (m *Metrics) setHostCPU(pct float64) {
	if m == nil {
		return
	}
	m.HostCPUBusyPercent.Set(pct)
}
