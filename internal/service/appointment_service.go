package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util"
)

// AppointmentDetails is an appointment with its round and claim history.
type AppointmentDetails struct {
	Appointment domain.Appointment
	Rounds      []domain.PreviewRound
	Claims      []domain.Claim
}

// CurrentRound returns the highest round number opened so far.
func (d AppointmentDetails) CurrentRound() int {
	current := 0
	for _, r := range d.Rounds {
		if r.Round > current {
			current = r.Round
		}
	}
	return current
}

// AppointmentService answers read queries about appointments.
type AppointmentService struct {
	appointments repository.AppointmentRepository
	rounds       repository.PreviewRoundRepository
	claims       repository.ClaimRepository
	logger       *zap.Logger
}

// NewAppointmentService creates the service.
func NewAppointmentService(store *repository.Store, logger *zap.Logger) *AppointmentService {
	return &AppointmentService{
		appointments: store.Appointments,
		rounds:       store.Rounds,
		claims:       store.Claims,
		logger:       loggerOrNop(logger),
	}
}

// Get loads one appointment with its history.
func (s *AppointmentService) Get(ctx context.Context, id string) (*AppointmentDetails, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", map[string]any{"id": id})
		}
		return nil, err
	}
	rounds, err := s.rounds.ListByAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	claims, err := s.claims.ListByAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return &AppointmentDetails{Appointment: *appt, Rounds: rounds, Claims: claims}, nil
}

// ListStalled returns appointments whose offer chain has ended without a
// claim: UNASSIGNABLE ones, and PREVIEWING ones with no ACTIVE round left.
func (s *AppointmentService) ListStalled(ctx context.Context) ([]domain.Appointment, error) {
	candidates, err := s.appointments.List(ctx, repository.AppointmentFilter{
		Statuses: []domain.AppointmentStatus{
			domain.AppointmentStatusPreviewing,
			domain.AppointmentStatusUnassignable,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	active, err := s.rounds.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rounds: %w", err)
	}
	open := make(map[string]struct{}, len(active))
	for _, r := range active {
		open[r.AppointmentID] = struct{}{}
	}

	stalled := make([]domain.Appointment, 0)
	for _, appt := range candidates {
		if appt.Status == domain.AppointmentStatusUnassignable {
			stalled = append(stalled, appt)
			continue
		}
		if _, ok := open[appt.ID]; !ok {
			stalled = append(stalled, appt)
		}
	}
	return stalled, nil
}
