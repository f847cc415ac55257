package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util"
)

// IntakeInput is a new service request from any intake channel.
type IntakeInput struct {
	CustomerName string
	Address      string
	Notes        string
	Origin       domain.Origin
}

// IntakeResult reports the created appointment and its first round. When
// AssignmentError is set the appointment exists but is still NEW.
type IntakeResult struct {
	Appointment     *domain.Appointment
	Assignment      *AssignmentResult
	AssignmentError error
}

// Assigned reports whether round 1 was opened.
func (r *IntakeResult) Assigned() bool {
	return r != nil && r.AssignmentError == nil && r.Assignment != nil
}

// IntakeService is the single entry point for every intake channel.
type IntakeService struct {
	dir          *directory.Directory
	appointments repository.AppointmentRepository
	rounds       repository.PreviewRoundRepository
	assigner     *AssignmentService
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	maxDaily     int
	now          func() time.Time
}

// IntakeDependencies bundles collaborators.
type IntakeDependencies struct {
	Directory  *directory.Directory
	Store      *repository.Store
	Assigner   *AssignmentService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	MaxDaily   int
	Now        func() time.Time
}

// NewIntakeService creates the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	return &IntakeService{
		dir:          deps.Directory,
		appointments: deps.Store.Appointments,
		rounds:       deps.Store.Rounds,
		assigner:     deps.Assigner,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       loggerOrNop(deps.Logger),
		maxDaily:     deps.MaxDaily,
		now:          nowFunc(deps.Now),
	}
}

// NewAppointment creates an appointment and opens its first round. A failed
// creation is returned as an error; a failed assignment is reported on the
// result.
func (s *IntakeService) NewAppointment(ctx context.Context, input IntakeInput) (*IntakeResult, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.Address = strings.TrimSpace(input.Address)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.Origin == "" {
		input.Origin = domain.OriginAPI
	}

	details := map[string]any{}
	if input.CustomerName == "" {
		details["customer_name"] = "required"
	}
	if input.Address == "" {
		details["address"] = "required"
	}
	if !input.Origin.Valid() {
		details["origin"] = "must be one of CHAT, WORK_SYNC, API"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid appointment", details)
	}

	if s.maxDaily > 0 && s.dir.TotalHubLoad() >= s.maxDaily {
		s.logger.Warn("daily appointment limit reached", zap.Int("limit", s.maxDaily))
		return nil, fmt.Errorf("%w: limit %d", domain.ErrDailyLimitReached, s.maxDaily)
	}

	appt := &domain.Appointment{
		CustomerName: input.CustomerName,
		Address:      input.Address,
		Notes:        input.Notes,
		Status:       domain.AppointmentStatusNew,
		Origin:       input.Origin,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.metrics.AppointmentCreated(string(appt.Origin))
	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID),
		zap.String("origin", string(appt.Origin)))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventAppointmentCreated, appt.ID, s.now(), events.AppointmentCreatedPayload{
		Origin:       appt.Origin,
		CustomerName: appt.CustomerName,
	}))

	return s.assign(ctx, appt), nil
}

// AssignExisting retries assignment for an appointment that is still NEW,
// or PREVIEWING without any round record.
func (s *IntakeService) AssignExisting(ctx context.Context, appointmentID string) (*IntakeResult, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", map[string]any{"id": appointmentID})
		}
		return nil, err
	}
	assignable, err := s.assignable(ctx, appt)
	if err != nil {
		return nil, err
	}
	if !assignable {
		return nil, apperrors.NewConflict("appointment is already assigned", map[string]any{
			"id":     appointmentID,
			"status": appt.Status,
		})
	}
	result := s.assign(ctx, appt)
	if result.AssignmentError != nil {
		return result, result.AssignmentError
	}
	return result, nil
}

func (s *IntakeService) assignable(ctx context.Context, appt *domain.Appointment) (bool, error) {
	switch appt.Status {
	case domain.AppointmentStatusNew:
		return true, nil
	case domain.AppointmentStatusPreviewing:
		rounds, err := s.rounds.ListByAppointment(ctx, appt.ID)
		if err != nil {
			return false, fmt.Errorf("load rounds: %w", err)
		}
		return len(rounds) == 0, nil
	}
	return false, nil
}

func (s *IntakeService) assign(ctx context.Context, appt *domain.Appointment) *IntakeResult {
	result := &IntakeResult{Appointment: appt}
	assignment, err := s.assigner.Assign(ctx, appt.ID, appt.Address)
	if err != nil {
		result.AssignmentError = err
		s.logger.Error("appointment created but not assigned",
			zap.String("appointment_id", appt.ID),
			zap.Error(err))
		return result
	}
	result.Assignment = assignment
	appt.Hub = assignment.Hub
	appt.Status = domain.AppointmentStatusPreviewing
	return result
}
