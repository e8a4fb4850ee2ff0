// Package metrics defines the Prometheus collectors for the
// classification pipeline and exposes the scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	WebhookRequestsTotal      *prometheus.CounterVec
	ClassificationsTotal      *prometheus.CounterVec
	LLMRequestDuration        prometheus.Histogram
	LLMFailuresTotal          prometheus.Counter
	TicketUpdateFailuresTotal prometheus.Counter
	FieldRefreshTotal         *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Total classify-ticket webhook requests by response status.",
			},
			[]string{"status"},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifications_total",
				Help: "Total completed classifications by outcome (named or unknown).",
			},
			[]string{"outcome"},
		),
		LLMRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "LLM classification request latency in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		LLMFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "llm_failures_total",
				Help: "Total failed LLM classification requests.",
			},
		),
		TicketUpdateFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ticket_update_failures_total",
				Help: "Total failed Zendesk ticket updates on the detached path.",
			},
		),
		FieldRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "field_refresh_total",
				Help: "Category vocabulary refresh attempts by outcome (ok, empty, error).",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.WebhookRequestsTotal,
		m.ClassificationsTotal,
		m.LLMRequestDuration,
		m.LLMFailuresTotal,
		m.TicketUpdateFailuresTotal,
		m.FieldRefreshTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
