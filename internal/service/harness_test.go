package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/guard"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/repository/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type engine struct {
	dir        *directory.Directory
	store      *repository.Store
	clock      *clock
	events     *recorder
	metrics    *observability.Metrics
	assigner   *AssignmentService
	escalation *EscalationService
	claims     *ClaimService
	intake     *IntakeService
	reads      *AppointmentService
	directory  *DirectoryService
}

type engineOptions struct {
	maxRounds        int
	markUnassignable bool
	maxDaily         int
	regionOverride   bool
	store            *repository.Store
	guard            guard.Guard
}

const (
	testThreshold = 15 * time.Minute
	testWindow    = 15 * time.Minute
)

func newEngine(t *testing.T, partners []domain.Partner, hubs []domain.Hub, opts engineOptions) *engine {
	t.Helper()
	if opts.maxRounds == 0 {
		opts.maxRounds = 3
	}
	store := opts.store
	if store == nil {
		store = memory.New().Bundle()
	}

	e := &engine{
		dir:     directory.New(partners, hubs),
		store:   store,
		clock:   newClock(),
		events:  &recorder{},
		metrics: observability.NewMetrics(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.SubscribeAll(e.events.handle)

	selector := NewSelector(e.dir)
	claimGuard := opts.guard
	if claimGuard == nil {
		claimGuard = guard.NewLocal()
	}
	e.assigner = NewAssignmentService(AssignmentDependencies{
		Directory:  e.dir,
		Selector:   selector,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    e.metrics,
		Config: AssignmentConfig{
			DefaultHub:            "STL_MO",
			FallbackHub:           "KC_MO",
			RegionOverrideEnabled: opts.regionOverride,
			RegionOverrideHub:     "STL_IL",
			RegionOverrideMarkers: []string{"IL", "Illinois"},
			PreviewWindow:         testWindow,
		},
		Now: e.clock.Now,
	})
	e.escalation = NewEscalationService(EscalationDependencies{
		Directory:  e.dir,
		Selector:   selector,
		Store:      store,
		Guard:      claimGuard,
		Dispatcher: dispatcher,
		Metrics:    e.metrics,
		Config: EscalationConfig{
			Threshold:        testThreshold,
			MaxRounds:        opts.maxRounds,
			PreviewWindow:    testWindow,
			MarkUnassignable: opts.markUnassignable,
		},
		Now: e.clock.Now,
	})
	e.claims = NewClaimService(ClaimDependencies{
		Directory:  e.dir,
		Store:      store,
		Guard:      claimGuard,
		Dispatcher: dispatcher,
		Metrics:    e.metrics,
		Now:        e.clock.Now,
	})
	e.intake = NewIntakeService(IntakeDependencies{
		Directory:  e.dir,
		Store:      store,
		Assigner:   e.assigner,
		Dispatcher: dispatcher,
		Metrics:    e.metrics,
		MaxDaily:   opts.maxDaily,
		Now:        e.clock.Now,
	})
	e.reads = NewAppointmentService(store, nil)
	e.directory = NewDirectoryService(DirectoryDependencies{
		Directory:  e.dir,
		Dispatcher: dispatcher,
		Metrics:    e.metrics,
		Now:        e.clock.Now,
	})
	return e
}

// newAppointment stores a NEW appointment without assigning it.
func (e *engine) newAppointment(t *testing.T, address string) string {
	t.Helper()
	appt := &domain.Appointment{
		CustomerName: "Jane Doe",
		Address:      address,
		Status:       domain.AppointmentStatusNew,
		Origin:       domain.OriginAPI,
	}
	require.NoError(t, e.store.Appointments.Create(context.Background(), appt))
	return appt.ID
}

func (e *engine) appointment(t *testing.T, id string) *domain.Appointment {
	t.Helper()
	appt, err := e.store.Appointments.GetByID(context.Background(), id)
	require.NoError(t, err)
	return appt
}

func (e *engine) rounds(t *testing.T, id string) []domain.PreviewRound {
	t.Helper()
	rounds, err := e.store.Rounds.ListByAppointment(context.Background(), id)
	require.NoError(t, err)
	return rounds
}

func (e *engine) load(t *testing.T, partner string) int {
	t.Helper()
	load, ok := e.dir.PartnerLoad(partner)
	require.True(t, ok)
	return load
}

func partner(name string, capacity, priority int, hubs ...string) domain.Partner {
	return domain.Partner{
		Name:     name,
		Hubs:     hubs,
		Capacity: capacity,
		Priority: priority,
		Active:   true,
	}
}

// scenarioRoster is hub STL_MO with A..D, capacity 1, priorities 1..4.
func scenarioRoster() []domain.Partner {
	return []domain.Partner{
		partner("A", 1, 1, "STL_MO"),
		partner("B", 1, 2, "STL_MO"),
		partner("C", 1, 3, "STL_MO"),
		partner("D", 1, 4, "STL_MO"),
	}
}

func roundPartners(rounds []domain.PreviewRound, number int) []string {
	var names []string
	for _, r := range rounds {
		if r.Round == number {
			names = append(names, r.Partner)
		}
	}
	return names
}
