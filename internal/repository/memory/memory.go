// Package memory is an in-process record store used for local runs and tests.
// Claim transitions are compare-and-swap under the store mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// Store holds all tables behind one mutex.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	appointments map[string]*domain.Appointment
	rounds       map[string]*domain.PreviewRound
	roundOrder   []string
	claims       []domain.Claim
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:          time.Now,
		appointments: make(map[string]*domain.Appointment),
		rounds:       make(map[string]*domain.PreviewRound),
	}
}

// Bundle exposes the store through the repository interfaces.
func (s *Store) Bundle() *repository.Store {
	return &repository.Store{
		Backend:      "memory",
		Appointments: appointments{s},
		Rounds:       rounds{s},
		Claims:       claims{s},
		Pinger:       s,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

type appointments struct{ s *Store }

func (a appointments) Create(ctx context.Context, appt *domain.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := a.s.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := *appt
	a.s.appointments[appt.ID] = &stored
	return nil
}

func (a appointments) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	appt, ok := a.s.appointments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (a appointments) UpdateAssignment(ctx context.Context, id, hub string, status domain.AppointmentStatus) error {
	return a.update(ctx, id, func(appt *domain.Appointment) {
		appt.Hub = hub
		appt.Status = status
	})
}

func (a appointments) UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) error {
	return a.update(ctx, id, func(appt *domain.Appointment) {
		appt.Status = status
	})
}

func (a appointments) update(ctx context.Context, id string, fn func(*domain.Appointment)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	appt, ok := a.s.appointments[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(appt)
	appt.UpdatedAt = a.s.now()
	return nil
}

func (a appointments) MarkClaimed(ctx context.Context, id, partner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	appt, ok := a.s.appointments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if appt.Status == domain.AppointmentStatusClaimed {
		return false, nil
	}
	appt.Status = domain.AppointmentStatusClaimed
	appt.Partner = partner
	appt.UpdatedAt = a.s.now()
	return true, nil
}

func (a appointments) List(ctx context.Context, filter repository.AppointmentFilter) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	statuses := make(map[domain.AppointmentStatus]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = struct{}{}
	}

	var result []domain.Appointment
	for _, appt := range a.s.appointments {
		if len(statuses) > 0 {
			if _, ok := statuses[appt.Status]; !ok {
				continue
			}
		}
		if filter.Hub != nil && appt.Hub != *filter.Hub {
			continue
		}
		result = append(result, *appt)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (a appointments) SupportsConditionalWrite() bool {
	return true
}

type rounds struct{ s *Store }

func (r rounds) Create(ctx context.Context, round *domain.PreviewRound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	stored := *round
	r.s.rounds[round.ID] = &stored
	r.s.roundOrder = append(r.s.roundOrder, round.ID)
	return nil
}

func (r rounds) ListActive(ctx context.Context) ([]domain.PreviewRound, error) {
	return r.list(ctx, func(round *domain.PreviewRound) bool {
		return round.Status == domain.RoundStatusActive
	})
}

func (r rounds) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.PreviewRound, error) {
	return r.list(ctx, func(round *domain.PreviewRound) bool {
		return round.AppointmentID == appointmentID
	})
}

func (r rounds) list(ctx context.Context, keep func(*domain.PreviewRound) bool) ([]domain.PreviewRound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.PreviewRound
	for _, id := range r.s.roundOrder {
		round := r.s.rounds[id]
		if keep(round) {
			result = append(result, *round)
		}
	}
	return result, nil
}

func (r rounds) CloseActive(ctx context.Context, id string, status domain.RoundStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	round, ok := r.s.rounds[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if round.Status != domain.RoundStatusActive {
		return false, nil
	}
	round.Status = status
	return true, nil
}

type claims struct{ s *Store }

func (c claims) Create(ctx context.Context, claim *domain.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if claim.Status == domain.ClaimStatusApproved {
		for _, existing := range c.s.claims {
			if existing.AppointmentID == claim.AppointmentID && existing.Status == domain.ClaimStatusApproved {
				return domain.ErrAlreadyClaimed
			}
		}
	}
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	claim.CreatedAt = c.s.now()
	c.s.claims = append(c.s.claims, *claim)
	return nil
}

func (c claims) FindApproved(ctx context.Context, appointmentID string) (*domain.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	for _, existing := range c.s.claims {
		if existing.AppointmentID == appointmentID && existing.Status == domain.ClaimStatusApproved {
			out := existing
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c claims) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var result []domain.Claim
	for _, existing := range c.s.claims {
		if existing.AppointmentID == appointmentID {
			result = append(result, existing)
		}
	}
	return result, nil
}
