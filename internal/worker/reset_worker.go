package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Resetter zeroes the daily load counters.
type Resetter interface {
	ResetDailyLoads(ctx context.Context)
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// RunDailyReset resets loads at every local midnight until ctx is done.
func RunDailyReset(ctx context.Context, resetter Resetter, loc *time.Location, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		next := NextMidnight(time.Now(), loc)
		logger.Info("next daily reset scheduled", zap.Time("at", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			resetter.ResetDailyLoads(ctx)
		}
	}
}
