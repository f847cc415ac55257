package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// roundOpener writes one ACTIVE PreviewRound record per offered partner.
type roundOpener struct {
	rounds     repository.PreviewRoundRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	window     time.Duration
}

func (o *roundOpener) open(ctx context.Context, appointmentID, hub string, round int, partners []domain.Partner, now time.Time) ([]domain.PreviewRound, error) {
	expires := now.Add(o.window)
	opened := make([]domain.PreviewRound, 0, len(partners))
	for _, p := range partners {
		record := domain.PreviewRound{
			AppointmentID: appointmentID,
			Partner:       p.Name,
			Status:        domain.RoundStatusActive,
			OpenedAt:      now,
			ExpiresAt:     expires,
			Round:         round,
			Hub:           hub,
		}
		if err := o.rounds.Create(ctx, &record); err != nil {
			return opened, fmt.Errorf("open round %d for %s: %w", round, p.Name, err)
		}
		opened = append(opened, record)
	}

	o.metrics.RoundOpened(round)
	publish(ctx, o.dispatcher, o.logger, events.New(events.EventRoundOpened, appointmentID, now, events.RoundOpenedPayload{
		Round:     round,
		Hub:       hub,
		Partners:  partnerNames(partners),
		ExpiresAt: expires,
	}))
	return opened, nil
}

// publish emits an event; handler failures never fail the engine operation.
func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.AppointmentID),
			zap.Error(err))
	}
}

func nowFunc(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
