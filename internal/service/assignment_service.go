package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// AssignmentConfig holds the hub routing rules.
type AssignmentConfig struct {
	DefaultHub            string
	FallbackHub           string
	RegionOverrideEnabled bool
	RegionOverrideHub     string
	RegionOverrideMarkers []string
	PreviewWindow         time.Duration
}

// AssignmentResult describes the round opened for an appointment.
type AssignmentResult struct {
	Hub            string
	Partners       []domain.Partner
	Rounds         []domain.PreviewRound
	FallbackUsed   bool
	RegionOverride bool
}

// AssignmentService opens the first preview round of new appointments.
type AssignmentService struct {
	dir          *directory.Directory
	selector     *Selector
	appointments repository.AppointmentRepository
	opener       *roundOpener
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	cfg          AssignmentConfig
	now          func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Directory  *directory.Directory
	Selector   *Selector
	Store      *repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     AssignmentConfig
	Now        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := loggerOrNop(deps.Logger)
	selector := deps.Selector
	if selector == nil {
		selector = NewSelector(deps.Directory)
	}
	return &AssignmentService{
		dir:          deps.Directory,
		selector:     selector,
		appointments: deps.Store.Appointments,
		opener: &roundOpener{
			rounds:     deps.Store.Rounds,
			dispatcher: deps.Dispatcher,
			metrics:    deps.Metrics,
			logger:     logger,
			window:     deps.Config.PreviewWindow,
		},
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        deps.Config,
		now:        nowFunc(deps.Now),
	}
}

// ResolveHub returns the hub an address routes to before any fallback.
// Region markers match as case-sensitive substrings.
func (s *AssignmentService) ResolveHub(address string) (string, bool) {
	if s.cfg.RegionOverrideEnabled && s.cfg.RegionOverrideHub != "" {
		for _, marker := range s.cfg.RegionOverrideMarkers {
			if marker != "" && strings.Contains(address, marker) {
				return s.cfg.RegionOverrideHub, true
			}
		}
	}
	return s.cfg.DefaultHub, false
}

// Assign routes the appointment to a hub and opens round 1. Callers only
// invoke it for appointments still in status NEW.
func (s *AssignmentService) Assign(ctx context.Context, appointmentID, rawAddress string) (*AssignmentResult, error) {
	hub, override := s.ResolveHub(rawAddress)
	result := &AssignmentResult{Hub: hub, RegionOverride: override}

	partners := s.firstRound(hub)
	if len(partners) == 0 && s.cfg.FallbackHub != "" && s.cfg.FallbackHub != hub {
		s.logger.Info("no eligible partners; using fallback hub",
			zap.String("appointment_id", appointmentID),
			zap.String("hub", hub),
			zap.String("fallback_hub", s.cfg.FallbackHub))
		hub = s.cfg.FallbackHub
		result.Hub = hub
		result.FallbackUsed = true
		partners = s.firstRound(hub)
	}
	if len(partners) == 0 {
		s.metrics.AssignmentOutcome("NO_ELIGIBLE_PARTNERS")
		return nil, fmt.Errorf("%w: hub %s", domain.ErrNoEligiblePartners, hub)
	}
	result.Partners = partners

	if err := s.appointments.UpdateAssignment(ctx, appointmentID, hub, domain.AppointmentStatusPreviewing); err != nil {
		s.metrics.AssignmentOutcome("STORE_ERROR")
		return nil, fmt.Errorf("assign appointment %s: %w", appointmentID, err)
	}

	now := s.now()
	rounds, err := s.opener.open(ctx, appointmentID, hub, 1, partners, now)
	result.Rounds = rounds
	if err != nil {
		s.metrics.AssignmentOutcome("STORE_ERROR")
		if len(rounds) == 0 {
			s.revert(ctx, appointmentID)
		}
		return result, err
	}

	s.dir.RecordHubLoad(hub)
	if h, ok := s.dir.Hub(hub); ok {
		s.metrics.SetHubLoad(hub, h.CurrentLoad)
	}

	outcome := "assigned"
	if result.FallbackUsed {
		outcome = "fallback"
	}
	s.metrics.AssignmentOutcome(outcome)
	s.logger.Info("appointment previewing",
		zap.String("appointment_id", appointmentID),
		zap.String("hub", hub),
		zap.Strings("partners", partnerNames(partners)),
		zap.Bool("fallback", result.FallbackUsed))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventAppointmentPreviewing, appointmentID, now, events.AppointmentPreviewingPayload{
		Hub:          hub,
		Partners:     partnerNames(partners),
		FallbackUsed: result.FallbackUsed,
	}))
	return result, nil
}

// revert puts an appointment with no open round back to NEW so it can be
// assigned again.
func (s *AssignmentService) revert(ctx context.Context, appointmentID string) {
	if err := s.appointments.UpdateStatus(context.WithoutCancel(ctx), appointmentID, domain.AppointmentStatusNew); err != nil {
		s.logger.Error("appointment left previewing without rounds",
			zap.String("appointment_id", appointmentID),
			zap.Error(err))
	}
}

// firstRound is empty when the hub is inactive or full.
func (s *AssignmentService) firstRound(hub string) []domain.Partner {
	if !s.dir.HubAcceptsWork(hub) {
		return nil
	}
	return s.selector.SelectForRound(hub, 1)
}
