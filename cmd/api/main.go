package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/dispatch-service/internal/api/http"
	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/service"
	"github.com/spec-kit/dispatch-service/internal/worker"
	"github.com/spec-kit/dispatch-service/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	partners, hubs, err := config.LoadDirectory(cfg.Directory.File)
	if err != nil {
		logger.Fatal("failed to load directory", zap.Error(err))
	}
	dir := directory.New(partners, hubs)
	logger.Info("directory loaded",
		zap.String("file", cfg.Directory.File),
		zap.Int("partners", len(partners)),
		zap.Int("hubs", len(hubs)))

	infra, err := openInfrastructure(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open infrastructure", zap.Error(err))
	}
	defer infra.Close()

	store, err := openStore(ctx, cfg, infra, logger)
	if err != nil {
		logger.Fatal("failed to open record store", zap.Error(err))
	}

	claimGuard, sweepLock, err := buildGuards(ctx, cfg, infra, store, logger)
	if err != nil {
		logger.Fatal("failed to build claim guard", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	selector := service.NewSelector(dir)
	assigner := service.NewAssignmentService(service.AssignmentDependencies{
		Directory:  dir,
		Selector:   selector,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config: service.AssignmentConfig{
			DefaultHub:            cfg.Engine.DefaultHub,
			FallbackHub:           cfg.Engine.FallbackHub,
			RegionOverrideEnabled: cfg.Engine.RegionOverrideEnabled,
			RegionOverrideHub:     cfg.Engine.RegionOverrideHub,
			RegionOverrideMarkers: cfg.Engine.RegionOverrideMarkers,
			PreviewWindow:         cfg.Engine.PreviewWindow,
		},
	})
	escalation := service.NewEscalationService(service.EscalationDependencies{
		Directory:  dir,
		Selector:   selector,
		Store:      store,
		Guard:      claimGuard,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config: service.EscalationConfig{
			Threshold:        cfg.Engine.EscalationThreshold,
			MaxRounds:        cfg.Engine.MaxRounds,
			PreviewWindow:    cfg.Engine.PreviewWindow,
			MarkUnassignable: cfg.Engine.MarkUnassignable,
		},
	})
	claims := service.NewClaimService(service.ClaimDependencies{
		Directory:  dir,
		Store:      store,
		Guard:      claimGuard,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	intake := service.NewIntakeService(service.IntakeDependencies{
		Directory:  dir,
		Store:      store,
		Assigner:   assigner,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		MaxDaily:   cfg.Engine.MaxDailyAppointments,
	})
	appointments := service.NewAppointmentService(store, logger)
	directoryService := service.NewDirectoryService(service.DirectoryDependencies{
		Directory:  dir,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	notifications := service.NewNotificationService(dispatcher, dir, logger, cfg.Notification)

	var forwarder *events.NATSForwarder
	if infra.nats.Enabled() {
		forwarder = events.NewNATSForwarder(infra.nats.Conn, cfg.NATS.SubjectPrefix)
	}
	worker.StartNotificationWorker(notifications, dispatcher, forwarder)

	sweeper := worker.NewEscalationWorker(escalation, sweepLock, cfg.Engine.SweepInterval, metrics, logger)
	go sweeper.Run(ctx)
	go worker.RunDailyReset(ctx, directoryService, cfg.Engine.Location(), logger)
	go worker.RunHealthCheck(ctx, store, cfg.Engine.HealthCheckInterval, metrics, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:       handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, infra.pingers(store)),
		Intake:       handlers.NewIntakeHandler(intake),
		Claims:       handlers.NewClaimHandler(claims),
		Appointments: handlers.NewAppointmentsHandler(appointments, intake),
		Admin:        handlers.NewAdminHandler(cfg, directoryService, sweeper),
		Metrics:      metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	notifications.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

// infrastructure holds the optional external connections.
type infrastructure struct {
	postgres *persistence.Postgres
	redis    *persistence.Redis
	nats     *persistence.NATS
}

func openInfrastructure(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	if cfg.Store.Backend == config.BackendPostgres {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, 30*time.Second, logger)
		if err != nil {
			return nil, err
		}
		infra.postgres = pg
		if cfg.Postgres.RunMigrations {
			if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
				infra.Close()
				return nil, err
			}
		}
	}

	if cfg.Guard.Backend == config.GuardRedis {
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.redis = rdb
	}

	nc, err := persistence.NewNATS(cfg.NATS, logger)
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.nats = nc
	return infra, nil
}

// pingers lists readiness dependencies that are actually in use.
func (i *infrastructure) pingers(store handlers.Pinger) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"store": store}
	if i.redis != nil {
		deps["redis"] = i.redis
	}
	if i.nats.Enabled() {
		deps["nats"] = i.nats
	}
	return deps
}

func (i *infrastructure) Close() {
	i.nats.Close()
	i.redis.Close()
	i.postgres.Close()
}
