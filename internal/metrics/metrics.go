// Package metrics exposes Prometheus instruments for the risk engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"lv-risk/internal/types"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "risk"

type Metrics struct {
	PositionsClosed   *prometheus.CounterVec
	CloseFailures     *prometheus.CounterVec
	Skipped           *prometheus.CounterVec
	MarginActions     *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
	ActiveAlterations prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Positions closed by the engine.",
		}, []string{"source", "reason"}),
		CloseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "close_failures_total",
			Help:      "Close attempts rolled back and left for the next tick.",
		}, []string{"source"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_skipped_total",
			Help:      "Positions or accounts skipped for a tick.",
		}, []string{"cause"}),
		MarginActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_actions_total",
			Help:      "Accounts classified as margin call or stop out.",
		}, []string{"action"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of each tick stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		ActiveAlterations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alterations",
			Help:      "Alterations currently indexed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PositionsClosed, m.CloseFailures, m.Skipped, m.MarginActions, m.SweepDuration, m.ActiveAlterations)
	}
	return m
}

func (m *Metrics) Closed(source string, reason types.CloseReason) {
	if m == nil {
		return
	}
	m.PositionsClosed.WithLabelValues(source, string(reason)).Inc()
}

func (m *Metrics) CloseFailed(source string) {
	if m == nil {
		return
	}
	m.CloseFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) Skip(cause string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(cause).Inc()
}

func (m *Metrics) MarginAction(action types.MarginAction) {
	if m == nil {
		return
	}
	m.MarginActions.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Metrics) SetActiveAlterations(n int) {
	if m == nil {
		return
	}
	m.ActiveAlterations.Set(float64(n))
}
