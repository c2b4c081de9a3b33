// Package metrics holds the Prometheus collectors for the dialogue pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal          *prometheus.CounterVec
	CascadeEscalations  *prometheus.CounterVec
	IntentResolutions   *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	ExternalCallSeconds *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "clinicvoice"
	}
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Dialogue turns processed, by next action",
		},
		[]string{"action"},
	)

	cascadeEscalations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_escalations_total",
			Help:      "Clips handed to the secondary transcription engine",
		},
		[]string{"reason"},
	)

	intentResolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_resolutions_total",
			Help:      "Intent resolutions by path and result",
		},
		[]string{"path", "result"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Call sessions currently held in memory",
		},
	)

	externalCall := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Duration of calls to external collaborators",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service"},
	)

	registry.MustRegister(turnsTotal, cascadeEscalations, intentResolutions, sessionsActive, externalCall)

	return &Metrics{
		registry:            registry,
		TurnsTotal:          turnsTotal,
		CascadeEscalations:  cascadeEscalations,
		IntentResolutions:   intentResolutions,
		SessionsActive:      sessionsActive,
		ExternalCallSeconds: externalCall,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTurn(action string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordEscalation(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.CascadeEscalations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordResolution(path string, matched bool) {
	if m == nil {
		return
	}
	if path == "" {
		path = "none"
	}
	result := "unmatched"
	if matched {
		result = "matched"
	}
	m.IntentResolutions.WithLabelValues(path, result).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// ObserveCall records how long a call to service took.
func (m *Metrics) ObserveCall(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExternalCallSeconds.WithLabelValues(service).Observe(d.Seconds())
}
