package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/observability"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckStore pings the store once and exports the result as a gauge.
func CheckStore(ctx context.Context, store Pinger, timeout time.Duration, metrics *observability.Metrics) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := store.Ping(pingCtx)
	metrics.SetStoreHealthy(err == nil)
	return err
}

// RunHealthCheck pings the store every interval and logs transitions.
func RunHealthCheck(ctx context.Context, store Pinger, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	healthy := true
	if err := CheckStore(ctx, store, interval/2, metrics); err != nil {
		logger.Warn("record store unhealthy", zap.Error(err))
		healthy = false
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := CheckStore(ctx, store, interval/2, metrics)
			switch {
			case err != nil && healthy:
				logger.Warn("record store unhealthy", zap.Error(err))
			case err == nil && !healthy:
				logger.Info("record store recovered")
			}
			healthy = err == nil
		}
	}
}
