package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/guard"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// ErrSweepInFlight is returned when a sweep is requested while one runs.
var ErrSweepInFlight = errors.New("escalation sweep already running")

// SweepLockKey is the guard key that serializes sweeps across replicas.
const SweepLockKey = "escalation-sweep"

// Sweeper runs one escalation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// EscalationWorker runs sweeps on a fixed period. Sweeps never overlap:
// within a process an in-flight flag skips the tick, across processes the
// optional lock does.
type EscalationWorker struct {
	sweeper  Sweeper
	lock     guard.Guard
	interval time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	running  atomic.Bool
}

// NewEscalationWorker creates the worker. lock may be nil.
func NewEscalationWorker(sweeper Sweeper, lock guard.Guard, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &EscalationWorker{
		sweeper:  sweeper,
		lock:     lock,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is done.
func (w *EscalationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escalation worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Trigger(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("escalation sweep did not run", zap.Error(err))
			}
		}
	}
}

// Trigger runs one sweep now unless another is in flight.
func (w *EscalationWorker) Trigger(ctx context.Context) (service.SweepReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.metrics.SweepSkipped()
		return service.SweepReport{}, ErrSweepInFlight
	}
	defer w.running.Store(false)

	if w.lock != nil {
		release, err := w.lock.Acquire(ctx, SweepLockKey)
		if err != nil {
			w.metrics.SweepSkipped()
			if errors.Is(err, guard.ErrBusy) {
				return service.SweepReport{}, ErrSweepInFlight
			}
			return service.SweepReport{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	return w.sweeper.Sweep(ctx)
}
