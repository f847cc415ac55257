package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
)

func TestSelectForRoundPartitionsRoster(t *testing.T) {
	var partners []domain.Partner
	for i := 7; i >= 1; i-- {
		partners = append(partners, partner(fmt.Sprintf("P%d", i), 2, i, "H"))
	}
	full := partner("FULL", 1, 0, "H")
	full.CurrentLoad = 1
	partners = append(partners, full, partner("OTHER", 5, 1, "X"))

	selector := NewSelector(directory.New(partners, nil))

	seen := map[string]int{}
	var ordered []string
	sizes := []int{}
	for round := 1; round <= 4; round++ {
		window := selector.SelectForRound("H", round)
		sizes = append(sizes, len(window))
		for _, p := range window {
			_, dup := seen[p.Name]
			require.False(t, dup, "partner %s offered in rounds %d and %d", p.Name, seen[p.Name], round)
			seen[p.Name] = round
			ordered = append(ordered, p.Name)
		}
	}

	assert.Equal(t, []int{3, 3, 1, 0}, sizes)
	assert.Equal(t, []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7"}, ordered)
	assert.Empty(t, selector.SelectForRound("H", 0))
}

func TestSelectForRoundTiesKeepDeclarationOrder(t *testing.T) {
	selector := NewSelector(directory.New([]domain.Partner{
		partner("second", 1, 2, "H"),
		partner("first-a", 1, 1, "H"),
		partner("first-b", 1, 1, "H"),
	}, nil))

	assert.Equal(t, []string{"first-a", "first-b", "second"}, partnerNames(selector.SelectForRound("H", 1)))
}

func TestAssignOpensFirstRound(t *testing.T) {
	e := newEngine(t, scenarioRoster(), []domain.Hub{{Code: "STL_MO", Active: true, Capacity: 10}}, engineOptions{})
	id := e.newAppointment(t, "1 Market St, St. Louis, MO")

	result, err := e.assigner.Assign(context.Background(), id, "1 Market St, St. Louis, MO")
	require.NoError(t, err)

	assert.Equal(t, "STL_MO", result.Hub)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, []string{"A", "B", "C"}, partnerNames(result.Partners))

	appt := e.appointment(t, id)
	assert.Equal(t, domain.AppointmentStatusPreviewing, appt.Status)
	assert.Equal(t, "STL_MO", appt.Hub)

	rounds := e.rounds(t, id)
	require.Len(t, rounds, 3)
	for _, r := range rounds {
		assert.Equal(t, 1, r.Round)
		assert.Equal(t, domain.RoundStatusActive, r.Status)
		assert.Equal(t, "STL_MO", r.Hub)
		assert.Equal(t, e.clock.Now().Add(testWindow), r.ExpiresAt)
	}

	hub, _ := e.dir.Hub("STL_MO")
	assert.Equal(t, 1, hub.CurrentLoad)
	assert.Len(t, e.events.ofType(events.EventRoundOpened), 1)
	assert.Len(t, e.events.ofType(events.EventAppointmentPreviewing), 1)
}

func TestAssignRegionOverride(t *testing.T) {
	partners := append(scenarioRoster(), partner("IL-1", 5, 1, "STL_IL"))
	e := newEngine(t, partners, nil, engineOptions{regionOverride: true})
	id := e.newAppointment(t, "12 Main St, Belleville, IL 62220")

	result, err := e.assigner.Assign(context.Background(), id, "12 Main St, Belleville, IL 62220")
	require.NoError(t, err)

	assert.Equal(t, "STL_IL", result.Hub)
	assert.True(t, result.RegionOverride)
	assert.Equal(t, []string{"IL-1"}, partnerNames(result.Partners))
}

func TestAssignRegionOverrideDisabled(t *testing.T) {
	partners := append(scenarioRoster(), partner("IL-1", 5, 1, "STL_IL"))
	e := newEngine(t, partners, nil, engineOptions{})
	id := e.newAppointment(t, "12 Main St, Belleville, IL 62220")

	result, err := e.assigner.Assign(context.Background(), id, "12 Main St, Belleville, IL 62220")
	require.NoError(t, err)
	assert.Equal(t, "STL_MO", result.Hub)
	assert.False(t, result.RegionOverride)
}

func TestAssignFallsBackToFallbackHub(t *testing.T) {
	tests := []struct {
		name string
		hubs []domain.Hub
		load int
	}{
		{name: "no partners at default hub"},
		{name: "default hub inactive", hubs: []domain.Hub{{Code: "STL_MO", Active: false, Capacity: 10}}},
		{name: "default hub full", hubs: []domain.Hub{{Code: "STL_MO", Active: true, Capacity: 1}}, load: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partners := []domain.Partner{partner("KC-1", 3, 1, "KC_MO")}
			if tt.hubs != nil {
				partners = append(partners, partner("STL-1", 3, 1, "STL_MO"))
			}
			e := newEngine(t, partners, tt.hubs, engineOptions{})
			for i := 0; i < tt.load; i++ {
				e.dir.RecordHubLoad("STL_MO")
			}
			id := e.newAppointment(t, "somewhere")

			result, err := e.assigner.Assign(context.Background(), id, "somewhere")
			require.NoError(t, err)
			assert.Equal(t, "KC_MO", result.Hub)
			assert.True(t, result.FallbackUsed)
			assert.Equal(t, "KC_MO", e.appointment(t, id).Hub)
		})
	}
}

func TestAssignWithoutAnyEligiblePartner(t *testing.T) {
	exhausted := partner("A", 1, 1, "STL_MO")
	exhausted.CurrentLoad = 1
	e := newEngine(t, []domain.Partner{exhausted}, nil, engineOptions{})
	id := e.newAppointment(t, "somewhere")

	_, err := e.assigner.Assign(context.Background(), id, "somewhere")
	require.ErrorIs(t, err, domain.ErrNoEligiblePartners)

	assert.Equal(t, domain.AppointmentStatusNew, e.appointment(t, id).Status)
	assert.Empty(t, e.rounds(t, id))
}
