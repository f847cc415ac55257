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

// EscalationConfig holds the escalation rules.
type EscalationConfig struct {
	Threshold        time.Duration
	MaxRounds        int
	PreviewWindow    time.Duration
	MarkUnassignable bool
}

// SweepReport summarizes one sweep. Expired counts round records; the other
// counters count appointments.
type SweepReport struct {
	Scanned  int
	Expired  int
	Advanced int
	Stalled  int
	Failed   int
	Duration time.Duration
}

// EscalationService expires unclaimed rounds and opens the next ones.
type EscalationService struct {
	dir          *directory.Directory
	selector     *Selector
	appointments repository.AppointmentRepository
	rounds       repository.PreviewRoundRepository
	opener       *roundOpener
	guard        guard.Guard
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	cfg          EscalationConfig
	now          func() time.Time
}

// EscalationDependencies bundles collaborators. Guard should be the claim
// guard so that a sweep and a claim never work on one appointment at once.
type EscalationDependencies struct {
	Directory  *directory.Directory
	Selector   *Selector
	Store      *repository.Store
	Guard      guard.Guard
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     EscalationConfig
	Now        func() time.Time
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := loggerOrNop(deps.Logger)
	selector := deps.Selector
	if selector == nil {
		selector = NewSelector(deps.Directory)
	}
	g := deps.Guard
	if g == nil {
		g = guard.NewLocal()
	}
	return &EscalationService{
		dir:          deps.Directory,
		selector:     selector,
		appointments: deps.Store.Appointments,
		rounds:       deps.Store.Rounds,
		opener: &roundOpener{
			rounds:     deps.Store.Rounds,
			dispatcher: deps.Dispatcher,
			metrics:    deps.Metrics,
			logger:     logger,
			window:     deps.Config.PreviewWindow,
		},
		guard:      g,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        deps.Config,
		now:        nowFunc(deps.Now),
	}
}

type roundKey struct {
	appointmentID string
	round         int
}

type roundGroup struct {
	key     roundKey
	records []domain.PreviewRound
}

// Sweep processes every ACTIVE round. Failures are isolated per
// appointment round; cancellation is honored between groups.
func (s *EscalationService) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.SweepFinished(report.Duration, report.Failed)
	}()

	active, err := s.rounds.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active rounds: %w", err)
	}

	now := s.now()
	for _, group := range groupRounds(active) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		due := make([]domain.PreviewRound, 0, len(group.records))
		for _, r := range group.records {
			if r.Age(now) >= s.cfg.Threshold {
				due = append(due, r)
			}
		}
		if len(due) == 0 {
			continue
		}

		if err := s.escalate(ctx, group, due, now, &report); err != nil {
			report.Failed++
			s.logger.Warn("escalation failed",
				zap.String("appointment_id", group.key.appointmentID),
				zap.Int("round", group.key.round),
				zap.Error(err))
		}
	}

	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("expired", report.Expired),
		zap.Int("advanced", report.Advanced),
		zap.Int("stalled", report.Stalled),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *EscalationService) escalate(ctx context.Context, group roundGroup, due []domain.PreviewRound, now time.Time, report *SweepReport) error {
	key := group.key

	release, err := s.guard.Acquire(ctx, key.appointmentID)
	if err != nil {
		return fmt.Errorf("acquire claim guard: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("claim guard release failed",
				zap.String("appointment_id", key.appointmentID),
				zap.Error(err))
		}
	}()

	appt, err := s.appointments.GetByID(ctx, key.appointmentID)
	orphan := errors.Is(err, domain.ErrNotFound)
	if err != nil && !orphan {
		return fmt.Errorf("load appointment: %w", err)
	}

	winner := ""
	if !orphan {
		if winner, err = s.unapprovedWinner(ctx, appt); err != nil {
			return err
		}
	}

	// Records closed meanwhile by a claim are skipped, never overwritten.
	expired := make([]string, 0, len(due))
	for _, r := range due {
		status := domain.RoundStatusExpired
		if winner != "" && r.Partner == winner {
			status = domain.RoundStatusApproved
			winner = ""
		}
		closed, err := s.rounds.CloseActive(ctx, r.ID, status)
		if err != nil {
			s.countExpired(report, len(expired))
			return fmt.Errorf("close round record %s: %w", r.ID, err)
		}
		if closed && status == domain.RoundStatusExpired {
			expired = append(expired, r.Partner)
		}
	}
	s.countExpired(report, len(expired))
	if len(expired) > 0 {
		publish(ctx, s.dispatcher, s.logger, events.New(events.EventRoundExpired, key.appointmentID, now, events.RoundExpiredPayload{
			Round:    key.round,
			Partners: expired,
		}))
	}

	if orphan || appt.Status != domain.AppointmentStatusPreviewing {
		return nil
	}
	if len(due) < len(group.records) {
		// Part of the batch is still inside its window.
		return nil
	}

	// A claim may have landed while the records were closed.
	appt, err = s.appointments.GetByID(ctx, key.appointmentID)
	if err != nil {
		return fmt.Errorf("reload appointment: %w", err)
	}
	if appt.Status != domain.AppointmentStatusPreviewing {
		return nil
	}

	history, err := s.rounds.ListByAppointment(ctx, key.appointmentID)
	if err != nil {
		return fmt.Errorf("load round history: %w", err)
	}
	offered := make(map[string]struct{}, len(history))
	for _, r := range history {
		if r.Round > key.round {
			// Advanced by an earlier, partially failed sweep.
			return nil
		}
		offered[r.Partner] = struct{}{}
	}

	hub := due[0].Hub
	if hub == "" {
		hub = appt.Hub
	}

	if key.round >= s.cfg.MaxRounds {
		return s.stall(ctx, appt, hub, key.round, events.StallRoundsExhausted, now, report)
	}

	// Hub capacity gates intake only; this appointment already counts
	// toward the hub's load.
	var next []domain.Partner
	for _, p := range s.selector.SelectForRound(hub, key.round+1) {
		if _, seen := offered[p.Name]; !seen {
			next = append(next, p)
		}
	}
	if len(next) == 0 {
		return s.stall(ctx, appt, hub, key.round, events.StallNoPartners, now, report)
	}

	if _, err := s.opener.open(ctx, key.appointmentID, hub, key.round+1, next, now); err != nil {
		return err
	}
	report.Advanced++
	s.logger.Info("appointment escalated",
		zap.String("appointment_id", key.appointmentID),
		zap.String("hub", hub),
		zap.Int("round", key.round+1),
		zap.Strings("partners", partnerNames(next)))
	return nil
}

func (s *EscalationService) stall(ctx context.Context, appt *domain.Appointment, hub string, round int, reason events.StallReason, now time.Time, report *SweepReport) error {
	if s.cfg.MarkUnassignable {
		if err := s.appointments.UpdateStatus(ctx, appt.ID, domain.AppointmentStatusUnassignable); err != nil {
			return fmt.Errorf("mark unassignable: %w", err)
		}
	}
	report.Stalled++
	s.metrics.AppointmentStalled(string(reason))
	s.logger.Warn("appointment stalled",
		zap.String("appointment_id", appt.ID),
		zap.String("hub", hub),
		zap.Int("round", round),
		zap.String("reason", string(reason)))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventAppointmentStalled, appt.ID, now, events.AppointmentStalledPayload{
		Round:        round,
		Hub:          hub,
		Reason:       reason,
		Unassignable: s.cfg.MarkUnassignable,
	}))
	return nil
}

// unapprovedWinner names the partner of a claimed appointment whose round
// was left ACTIVE, so the sweep approves it instead of expiring it.
func (s *EscalationService) unapprovedWinner(ctx context.Context, appt *domain.Appointment) (string, error) {
	if appt.Status != domain.AppointmentStatusClaimed || appt.Partner == "" {
		return "", nil
	}
	history, err := s.rounds.ListByAppointment(ctx, appt.ID)
	if err != nil {
		return "", fmt.Errorf("load round history: %w", err)
	}
	for _, r := range history {
		if r.Status == domain.RoundStatusApproved {
			return "", nil
		}
	}
	return appt.Partner, nil
}

func (s *EscalationService) countExpired(report *SweepReport, n int) {
	report.Expired += n
	s.metrics.RoundsExpired(n)
}

// groupRounds batches fan-out records by appointment and round number,
// keeping first-seen order.
func groupRounds(active []domain.PreviewRound) []roundGroup {
	index := make(map[roundKey]int)
	var groups []roundGroup
	for _, r := range active {
		key := roundKey{appointmentID: r.AppointmentID, round: r.Round}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, roundGroup{key: key})
		}
		groups[i].records = append(groups[i].records, r)
	}
	return groups
}
