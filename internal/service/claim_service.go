package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/guard"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// ClaimService resolves partner claims. At most one claim per appointment is
// approved: a keyed guard serializes attempts and the appointment transition
// is a compare-and-swap at the store.
type ClaimService struct {
	dir          *directory.Directory
	appointments repository.AppointmentRepository
	rounds       repository.PreviewRoundRepository
	claims       repository.ClaimRepository
	guard        guard.Guard
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// ClaimDependencies bundles collaborators.
type ClaimDependencies struct {
	Directory  *directory.Directory
	Store      *repository.Store
	Guard      guard.Guard
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewClaimService creates the service. A nil guard defaults to an
// in-process keyed lock.
func NewClaimService(deps ClaimDependencies) *ClaimService {
	g := deps.Guard
	if g == nil {
		g = guard.NewLocal()
	}
	return &ClaimService{
		dir:          deps.Directory,
		appointments: deps.Store.Appointments,
		rounds:       deps.Store.Rounds,
		claims:       deps.Store.Claims,
		guard:        g,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       loggerOrNop(deps.Logger),
		now:          nowFunc(deps.Now),
	}
}

// Claim attempts to award the appointment to partnerName. Business
// rejections come back as an outcome with Accepted=false and a reason; the
// error is reserved for infrastructure failures and unknown appointments.
func (s *ClaimService) Claim(ctx context.Context, appointmentID, partnerName string) (*domain.ClaimOutcome, error) {
	if s.dir.CapacityRemaining(partnerName) <= 0 {
		return s.reject(ctx, appointmentID, partnerName, domain.RejectCapacityExhausted), nil
	}

	release, err := s.guard.Acquire(ctx, appointmentID)
	if err != nil {
		s.metrics.ClaimOutcome("STORE_UNAVAILABLE")
		if errors.Is(err, guard.ErrBusy) {
			return nil, fmt.Errorf("%w: claim guard busy for %s", domain.ErrStoreUnavailable, appointmentID)
		}
		return nil, fmt.Errorf("%w: acquire claim guard: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("claim guard release failed",
				zap.String("appointment_id", appointmentID),
				zap.Error(err))
		}
	}()

	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	if appt.Status == domain.AppointmentStatusClaimed {
		return s.reject(ctx, appointmentID, partnerName, domain.RejectAlreadyClaimed), nil
	}

	_, err = s.claims.FindApproved(ctx, appointmentID)
	switch {
	case err == nil:
		return s.reject(ctx, appointmentID, partnerName, domain.RejectAlreadyClaimed), nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check approved claim: %w", err)
	}

	if !s.dir.TryRecordLoad(partnerName) {
		return s.reject(ctx, appointmentID, partnerName, domain.RejectCapacityExhausted), nil
	}

	// Past this point the write is not abandoned when the caller goes away.
	wctx := context.WithoutCancel(ctx)
	won, err := s.transition(wctx, appointmentID, partnerName)
	if err != nil {
		s.dir.ReleaseLoad(partnerName)
		s.metrics.ClaimOutcome("STORE_UNAVAILABLE")
		return nil, err
	}
	if !won {
		s.dir.ReleaseLoad(partnerName)
		return s.reject(ctx, appointmentID, partnerName, domain.RejectAlreadyClaimed), nil
	}

	now := s.now()
	claim := domain.Claim{
		AppointmentID: appointmentID,
		Partner:       partnerName,
		Status:        domain.ClaimStatusApproved,
	}
	if err := s.claims.Create(wctx, &claim); err != nil {
		s.logger.Error("approved claim record not written",
			zap.String("appointment_id", appointmentID),
			zap.String("partner", partnerName),
			zap.Error(err))
		claim.CreatedAt = now
	}
	s.closeRounds(wctx, appointmentID, partnerName)

	remaining := s.dir.CapacityRemaining(partnerName)
	if load, ok := s.dir.PartnerLoad(partnerName); ok {
		s.metrics.SetPartnerLoad(partnerName, load)
	}
	s.metrics.ClaimOutcome("accepted")
	s.logger.Info("appointment claimed",
		zap.String("appointment_id", appointmentID),
		zap.String("partner", partnerName),
		zap.Int("capacity_remaining", remaining))
	publish(wctx, s.dispatcher, s.logger, events.New(events.EventAppointmentClaimed, appointmentID, now, events.AppointmentClaimedPayload{
		Partner:           partnerName,
		CapacityRemaining: remaining,
	}))

	return &domain.ClaimOutcome{
		Claim:             claim,
		Accepted:          true,
		CapacityRemaining: remaining,
	}, nil
}

// transition performs the conditional write once. A failed write may still
// have landed, so the appointment is re-read instead of written again.
func (s *ClaimService) transition(ctx context.Context, appointmentID, partnerName string) (bool, error) {
	won, err := s.appointments.MarkClaimed(ctx, appointmentID, partnerName)
	if err == nil {
		return won, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("claim appointment %s: %w", appointmentID, err)
	}

	s.logger.Warn("claim write outcome unknown; re-reading appointment",
		zap.String("appointment_id", appointmentID),
		zap.String("partner", partnerName),
		zap.Error(err))
	current, readErr := s.appointments.GetByID(ctx, appointmentID)
	if readErr != nil {
		return false, fmt.Errorf("%w: claim appointment %s: %v", domain.ErrStoreUnavailable, appointmentID, errors.Join(err, readErr))
	}
	if current.Status == domain.AppointmentStatusClaimed {
		return current.Partner == partnerName, nil
	}
	return false, fmt.Errorf("%w: claim appointment %s: %v", domain.ErrStoreUnavailable, appointmentID, err)
}

// closeRounds marks the winner's first active round APPROVED and expires the
// rest. Failures are logged; the claim already stands.
func (s *ClaimService) closeRounds(ctx context.Context, appointmentID, partnerName string) {
	rounds, err := s.rounds.ListByAppointment(ctx, appointmentID)
	if err != nil {
		s.logger.Warn("list rounds after claim failed",
			zap.String("appointment_id", appointmentID),
			zap.Error(err))
		return
	}

	approved := false
	expired := 0
	for _, r := range rounds {
		if r.Status != domain.RoundStatusActive {
			continue
		}
		status := domain.RoundStatusExpired
		if !approved && r.Partner == partnerName {
			status = domain.RoundStatusApproved
			approved = true
		}
		closed, err := s.rounds.CloseActive(ctx, r.ID, status)
		if err != nil {
			s.logger.Warn("close round after claim failed",
				zap.String("appointment_id", appointmentID),
				zap.String("round_id", r.ID),
				zap.Error(err))
			continue
		}
		if closed && status == domain.RoundStatusExpired {
			expired++
		}
	}
	s.metrics.RoundsExpired(expired)
}

// reject records a rejected attempt. The record and event are best effort.
func (s *ClaimService) reject(ctx context.Context, appointmentID, partnerName string, reason domain.RejectReason) *domain.ClaimOutcome {
	now := s.now()
	claim := domain.Claim{
		AppointmentID: appointmentID,
		Partner:       partnerName,
		Status:        domain.ClaimStatusRejected,
		Reason:        reason,
	}
	wctx := context.WithoutCancel(ctx)
	if err := s.claims.Create(wctx, &claim); err != nil {
		s.logger.Warn("rejected claim record not written",
			zap.String("appointment_id", appointmentID),
			zap.String("partner", partnerName),
			zap.Error(err))
		claim.CreatedAt = now
	}

	s.metrics.ClaimOutcome(string(reason))
	s.logger.Info("claim rejected",
		zap.String("appointment_id", appointmentID),
		zap.String("partner", partnerName),
		zap.String("reason", string(reason)))
	publish(wctx, s.dispatcher, s.logger, events.New(events.EventClaimRejected, appointmentID, now, events.ClaimRejectedPayload{
		Partner: partnerName,
		Reason:  reason,
	}))

	return &domain.ClaimOutcome{
		Claim:             claim,
		Reason:            reason,
		CapacityRemaining: s.dir.CapacityRemaining(partnerName),
	}
}
