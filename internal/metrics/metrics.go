// Package metrics exposes session activity as Prometheus metrics.
package metrics

import (
	"github.com/guseggert/webcli/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements session.Observer on top of Prometheus collectors.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	SpawnFailures  prometheus.Counter
	Events         *prometheus.CounterVec
}

// New registers the webcli collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webcli_sessions_active",
			Help: "Number of connected terminal sessions",
		}),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcli_sessions_total",
				Help: "Total number of finished sessions by final process state",
			},
			[]string{"state"},
		),
		SpawnFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "webcli_spawn_failures_total",
			Help: "Total number of CLI processes that failed to start",
		}),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcli_events_total",
				Help: "Total number of transport events by kind",
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) SessionStarted() { m.SessionsActive.Inc() }

func (m *Metrics) SessionEnded(final session.State) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(final.String()).Inc()
}

func (m *Metrics) SpawnFailed() { m.SpawnFailures.Inc() }

func (m *Metrics) InputEvent() { m.Events.WithLabelValues("input").Inc() }

func (m *Metrics) OutputEvent() { m.Events.WithLabelValues("output").Inc() }
