package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tj/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SetConnectedUsers(3)
	m.ConnectionReplaced()
	m.ReconcileRun(nil)
	m.Expired(2)
	m.SetActiveCalls(1)
	m.CallOutcome("accepted")
	m.MessageSent("delivered")
	m.MessageDeleted()
	m.Broadcast("presenceSnapshot")
}

func TestCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetConnectedUsers(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ConnectedUsers))

	m.ReconcileRun(nil)
	m.ReconcileRun(errors.New("redis down"))
	m.ReconcileRun(nil)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("error")))

	m.CallOutcome("timed_out")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CallOutcomes.WithLabelValues("timed_out")))

	m.Expired(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ReconcileExpired))
}
