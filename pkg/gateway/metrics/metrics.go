// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	Turns          *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	Uploads        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mockr",
			Name:      "sessions_active",
			Help:      "Live WebSocket sessions currently connected.",
		}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockr",
			Name:      "turns_total",
			Help:      "Completed dialog turns by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockr",
			Name:      "errors_total",
			Help:      "Errors surfaced to clients by scope.",
		}, []string{"scope"}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mockr",
			Name:      "uploads_total",
			Help:      "Case documents uploaded to the dialog provider.",
		}),
	}
	reg.MustRegister(m.SessionsActive, m.Turns, m.Errors, m.Uploads)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TurnDone(mode, outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ErrorSeen(scope string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(scope).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) UploadDone() {
	if m == nil {
		return
	}
	m.Uploads.Inc()
}
