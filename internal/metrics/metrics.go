// Package metrics provides Prometheus metrics for the session sync core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the reconciler and memory generator report into.
type Metrics struct {
	// Session events by kind: user_final, assistant_final, user_correction,
	// session_error.
	SessionEventsTotal *prometheus.CounterVec

	// Transcript flushes by status: ok, error.
	TranscriptSavesTotal *prometheus.CounterVec

	// Memory generation attempts by field (summary, title) and status
	// (ok, error, skipped).
	GenerationsTotal *prometheus.CounterVec
}

// New creates and registers the metrics on the given registerer. Tests pass
// a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_session_events_total",
				Help: "Total number of session events processed by the reconciler",
			},
			[]string{"kind"},
		),
		TranscriptSavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_transcript_saves_total",
				Help: "Total number of best-effort transcript flushes",
			},
			[]string{"status"},
		),
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_generations_total",
				Help: "Total number of post-session memory generation attempts",
			},
			[]string{"field", "status"},
		),
	}
}

// Handler returns an HTTP handler exposing the default registry; mounted by
// the CLI when a metrics address is configured.
func Handler() http.Handler {
	return promhttp.Handler()
}
