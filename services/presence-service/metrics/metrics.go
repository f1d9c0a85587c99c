// Package metrics exposes Prometheus collectors for presence, signaling and
// message relay.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	m.CallOutcome("accepted")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// ConnectedUsers is the current registry size.
	ConnectedUsers prometheus.Gauge

	// ConnectionsReplaced counts registrations that displaced an older handle.
	ConnectionsReplaced prometheus.Counter

	// ReconcileRuns counts reconciler ticks.
	// Labels: result (ok|error)
	ReconcileRuns *prometheus.CounterVec

	// ReconcileExpired counts presence records flipped offline for inactivity.
	ReconcileExpired prometheus.Counter

	// CallSessionsActive is the number of rooms currently ringing.
	CallSessionsActive prometheus.Gauge

	// CallOutcomes counts terminal call states.
	// Labels: outcome (accepted|declined|cancelled|timed_out)
	CallOutcomes *prometheus.CounterVec

	// MessagesSent counts persisted messages by in-band delivery result.
	// Labels: delivery (delivered|offline|failed)
	MessagesSent *prometheus.CounterVec

	// MessagesDeleted counts successful deletions.
	MessagesDeleted prometheus.Counter

	// Broadcasts counts fan-out publishes.
	// Labels: type
	Broadcasts *prometheus.CounterVec
}

// New creates and registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectedUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "presence_connected_users",
			Help: "Number of users with a registered live connection",
		}),
		ConnectionsReplaced: f.NewCounter(prometheus.CounterOpts{
			Name: "presence_connections_replaced_total",
			Help: "Total registrations that replaced an existing connection for the same user",
		}),
		ReconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_reconcile_runs_total",
			Help: "Total reconciliation ticks by result",
		}, []string{"result"}),
		ReconcileExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "presence_reconcile_expired_total",
			Help: "Total presence records marked offline for inactivity",
		}),
		CallSessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "call_sessions_active",
			Help: "Number of call sessions currently ringing",
		}),
		CallOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_outcomes_total",
			Help: "Total call sessions by terminal state",
		}, []string{"outcome"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total persisted messages by in-band delivery result",
		}, []string{"delivery"}),
		MessagesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "messages_deleted_total",
			Help: "Total deleted messages",
		}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total fan-out publishes by event type",
		}, []string{"type"}),
	}
}

func (m *Metrics) SetConnectedUsers(n int) {
	if m == nil {
		return
	}
	m.ConnectedUsers.Set(float64(n))
}

func (m *Metrics) ConnectionReplaced() {
	if m == nil {
		return
	}
	m.ConnectionsReplaced.Inc()
}

func (m *Metrics) ReconcileRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReconcileRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil {
		return
	}
	m.ReconcileExpired.Add(float64(n))
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.CallSessionsActive.Set(float64(n))
}

func (m *Metrics) CallOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CallOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MessageSent(delivery string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(delivery).Inc()
}

func (m *Metrics) MessageDeleted() {
	if m == nil {
		return
	}
	m.MessagesDeleted.Inc()
}

func (m *Metrics) Broadcast(eventType string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(eventType).Inc()
}
