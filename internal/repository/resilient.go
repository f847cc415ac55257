package repository

import (
	"context"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/resilience"
)

// WithPolicy wraps every repository of s with per-call timeouts. Reads and
// idempotent updates are retried; creates and MarkClaimed get one attempt,
// since a lost response must be resolved by re-reading, not by writing again.
func WithPolicy(s *Store, p resilience.Policy) *Store {
	once := p
	once.MaxAttempts = 1
	return &Store{
		Backend:      s.Backend,
		Appointments: &resilientAppointments{next: s.Appointments, retry: p, once: once},
		Rounds:       &resilientRounds{next: s.Rounds, retry: p, once: once},
		Claims:       &resilientClaims{next: s.Claims, retry: p, once: once},
		Pinger:       s.Pinger,
	}
}

type resilientAppointments struct {
	next        AppointmentRepository
	retry, once resilience.Policy
}

func (r *resilientAppointments) Create(ctx context.Context, appt *domain.Appointment) error {
	return resilience.Exec(ctx, r.once, func(ctx context.Context) error {
		return r.next.Create(ctx, appt)
	})
}

func (r *resilientAppointments) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) (*domain.Appointment, error) {
		return r.next.GetByID(ctx, id)
	})
}

func (r *resilientAppointments) UpdateAssignment(ctx context.Context, id, hub string, status domain.AppointmentStatus) error {
	return resilience.Exec(ctx, r.retry, func(ctx context.Context) error {
		return r.next.UpdateAssignment(ctx, id, hub, status)
	})
}

func (r *resilientAppointments) UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) error {
	return resilience.Exec(ctx, r.retry, func(ctx context.Context) error {
		return r.next.UpdateStatus(ctx, id, status)
	})
}

func (r *resilientAppointments) MarkClaimed(ctx context.Context, id, partner string) (bool, error) {
	return resilience.Do(ctx, r.once, func(ctx context.Context) (bool, error) {
		return r.next.MarkClaimed(ctx, id, partner)
	})
}

func (r *resilientAppointments) List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) ([]domain.Appointment, error) {
		return r.next.List(ctx, filter)
	})
}

func (r *resilientAppointments) SupportsConditionalWrite() bool {
	return r.next.SupportsConditionalWrite()
}

type resilientRounds struct {
	next        PreviewRoundRepository
	retry, once resilience.Policy
}

func (r *resilientRounds) Create(ctx context.Context, round *domain.PreviewRound) error {
	return resilience.Exec(ctx, r.once, func(ctx context.Context) error {
		return r.next.Create(ctx, round)
	})
}

func (r *resilientRounds) ListActive(ctx context.Context) ([]domain.PreviewRound, error) {
	return resilience.Do(ctx, r.retry, r.next.ListActive)
}

func (r *resilientRounds) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.PreviewRound, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) ([]domain.PreviewRound, error) {
		return r.next.ListByAppointment(ctx, appointmentID)
	})
}

// CloseActive is retried: a retry after a write that landed reports false,
// which callers treat as already closed.
func (r *resilientRounds) CloseActive(ctx context.Context, id string, status domain.RoundStatus) (bool, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) (bool, error) {
		return r.next.CloseActive(ctx, id, status)
	})
}

type resilientClaims struct {
	next        ClaimRepository
	retry, once resilience.Policy
}

func (r *resilientClaims) Create(ctx context.Context, claim *domain.Claim) error {
	return resilience.Exec(ctx, r.once, func(ctx context.Context) error {
		return r.next.Create(ctx, claim)
	})
}

func (r *resilientClaims) FindApproved(ctx context.Context, appointmentID string) (*domain.Claim, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) (*domain.Claim, error) {
		return r.next.FindApproved(ctx, appointmentID)
	})
}

func (r *resilientClaims) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.Claim, error) {
	return resilience.Do(ctx, r.retry, func(ctx context.Context) ([]domain.Claim, error) {
		return r.next.ListByAppointment(ctx, appointmentID)
	})
}
