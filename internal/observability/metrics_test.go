package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.ClaimOutcome("accepted")
		m.AppointmentStalled("no_partners")
		m.SetStoreHealthy(true)
		m.LoadsReset()
	})
	assert.Nil(t, m.Registry())
}

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()

	m.ClaimOutcome("accepted")
	m.ClaimOutcome("accepted")
	m.ClaimOutcome("ALREADY_CLAIMED")
	m.AppointmentStalled("rounds_exhausted")
	m.SetPartnerLoad("Alpha", 3)
	m.RoundsExpired(0)
	m.RoundsExpired(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.claims.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("ALREADY_CLAIMED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stalled.WithLabelValues("rounds_exhausted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.partnerLoad.WithLabelValues("Alpha")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.roundsExpired))

	m.LoadsReset()
	assert.Equal(t, 0, testutil.CollectAndCount(m.partnerLoad))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loadResets))
}

func TestHandlerExposesStalledCounter(t *testing.T) {
	m := NewMetrics()
	m.AppointmentStalled("no_partners")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `dispatch_appointments_stalled_total{reason="no_partners"} 1`))
}
