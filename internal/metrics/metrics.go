// Package metrics provides Prometheus instrumentation for the report desk.
// It exposes gauges for connection and session counts, counters for
// evidence and delivery throughput, and a histogram for session duration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reportdesk_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveSessions tracks the number of evidence-collection sessions in progress.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reportdesk_active_sessions",
		Help: "Current number of evidence-collection sessions in progress",
	})

	// SessionsClosed counts finished sessions, labeled by outcome:
	// "done", "timeout", or "failed".
	SessionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdesk_sessions_closed_total",
		Help: "Total number of evidence-collection sessions closed",
	}, []string{"outcome"})

	// EvidenceItems counts attachments processed, labeled by result:
	// "accepted" or "rejected".
	EvidenceItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdesk_evidence_items_total",
		Help: "Total number of attachments processed by the evidence filter",
	}, []string{"result"})

	// DeliveryFailures counts moderation deliveries that raised, labeled by
	// phase: "record" or "evidence".
	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdesk_delivery_failures_total",
		Help: "Total number of failed moderation deliveries",
	}, []string{"phase"})

	// SessionDuration records how long a collection session stayed open.
	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reportdesk_session_duration_seconds",
		Help:    "Duration of evidence-collection sessions in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveSessions,
		SessionsClosed,
		EvidenceItems,
		DeliveryFailures,
		SessionDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
