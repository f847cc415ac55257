package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/guard"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/repository/memory"
	"github.com/spec-kit/dispatch-service/internal/repository/quickbase"
	"github.com/spec-kit/dispatch-service/internal/resilience"
)

// openStore selects the record store backend and wraps it in the retry policy.
func openStore(_ context.Context, cfg *config.Config, infra *infrastructure, logger *zap.Logger) (*repository.Store, error) {
	var store *repository.Store
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool := infra.postgres.PoolHandle()
		if pool == nil {
			return nil, errors.New("postgres pool not available")
		}
		store = repository.NewPostgresStore(pool)
	case config.BackendQuickbase:
		q := cfg.Quickbase
		store = quickbase.New(quickbase.Config{
			BaseURL: q.BaseURL,
			Realm:   q.Realm,
			Token:   q.Token,
			Tables: quickbase.Tables{
				Appointments:  q.AppointmentsTable,
				Claims:        q.ClaimsTable,
				PreviewRounds: q.PreviewRoundsTable,
			},
			Timeout: cfg.Store.Timeout,
		}).Bundle()
	case config.BackendMemory:
		logger.Warn("using in-memory record store; data is lost on restart")
		store = memory.New().Bundle()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	logger.Info("record store selected", zap.String("backend", store.Backend))
	return repository.WithPolicy(store, resilience.Policy{
		Timeout:         cfg.Store.Timeout,
		MaxAttempts:     cfg.Store.MaxAttempts,
		InitialInterval: cfg.Store.RetryInitial,
		MaxInterval:     cfg.Store.RetryMax,
	}), nil
}

// buildGuards returns the claim guard and the sweep lock. The local guard
// always runs first; a distributed guard is chained after it when configured.
func buildGuards(ctx context.Context, cfg *config.Config, infra *infrastructure, store *repository.Store, logger *zap.Logger) (guard.Guard, guard.Guard, error) {
	local := guard.NewLocal()

	var distributed guard.Guard
	switch cfg.Guard.Backend {
	case config.GuardRedis:
		distributed = guard.NewRedis(infra.redis.Client, "dispatch:guard:", cfg.Guard.TTL, 0)
	case config.GuardNATS:
		kv, err := infra.nats.ClaimBucket(ctx, cfg.NATS.KVBucket, cfg.Guard.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("claim guard bucket: %w", err)
		}
		distributed = guard.NewNATS(kv, hostname(), 0)
	}

	if distributed == nil {
		if !store.Appointments.SupportsConditionalWrite() {
			logger.Warn("record store has no conditional write and only the local claim guard is configured; run a single replica",
				zap.String("backend", store.Backend))
		}
		return local, nil, nil
	}
	logger.Info("distributed claim guard enabled", zap.String("backend", cfg.Guard.Backend))
	return guard.Chain{local, distributed}, distributed, nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "dispatch-service"
	}
	return name
}
