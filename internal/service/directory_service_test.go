package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
)

func TestResetAfterClaimKeepsAppointment(t *testing.T) {
	e := newEngine(t, scenarioRoster(), []domain.Hub{{Code: "STL_MO", Active: true, Capacity: 10}}, engineOptions{})
	ctx := context.Background()
	id := e.assign(t, "1 Market St")

	outcome, err := e.claims.Claim(ctx, id, "A")
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.Equal(t, 1, e.load(t, "A"))

	e.directory.ResetDailyLoads(ctx)

	assert.Zero(t, e.load(t, "A"))
	hub, _ := e.dir.Hub("STL_MO")
	assert.Zero(t, hub.CurrentLoad)

	appt := e.appointment(t, id)
	assert.Equal(t, domain.AppointmentStatusClaimed, appt.Status)
	assert.Equal(t, "A", appt.Partner)
	assert.Len(t, e.events.ofType(events.EventLoadsReset), 1)
}

func TestResetLoadsIsIdempotent(t *testing.T) {
	roster := scenarioRoster()
	for i := range roster {
		roster[i].CurrentLoad = i
	}
	e := newEngine(t, roster, []domain.Hub{{Code: "STL_MO", Active: true, Capacity: 10, CurrentLoad: 7}}, engineOptions{})

	for i := 0; i < 2; i++ {
		e.directory.ResetDailyLoads(context.Background())
		partners, hubs := e.dir.Snapshot()
		for _, p := range partners {
			assert.Zero(t, p.CurrentLoad, p.Name)
		}
		for _, h := range hubs {
			assert.Zero(t, h.CurrentLoad, h.Code)
		}
	}
}

func TestDirectoryStatus(t *testing.T) {
	roster := scenarioRoster()
	roster[0].CurrentLoad = 1
	roster[3].Active = false
	e := newEngine(t, roster, nil, engineOptions{})

	status := e.directory.Status()
	assert.Equal(t, 3, status.ActivePartners)
	assert.Equal(t, 3, status.TotalCapacity)
	assert.Equal(t, 1, status.TotalLoad)
	assert.Equal(t, 2, status.CapacityRemaining)
	assert.Len(t, status.Partners, 4)
}

func TestDirectoryReloadKeepsLoads(t *testing.T) {
	e := newEngine(t, scenarioRoster(), nil, engineOptions{})
	require.True(t, e.dir.RecordLoad("A"))

	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
partners:
  - name: A
    hubs: [STL_MO]
    capacity: 4
  - name: Z
    hubs: [STL_MO]
hubs:
  - code: STL_MO
    partners: [A, Z]
`), 0o600))

	partners, hubs, err := e.directory.Reload(path)
	require.NoError(t, err)
	assert.Equal(t, 2, partners)
	assert.Equal(t, 1, hubs)
	assert.Equal(t, 1, e.load(t, "A"))
	assert.Equal(t, 3, e.dir.CapacityRemaining("A"))
	assert.Equal(t, []string{"A", "Z"}, partnerNames(e.dir.PartnersForHub("STL_MO")))

	_, _, err = e.directory.Reload(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, 1, e.load(t, "A"))
}
