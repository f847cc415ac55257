package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
)

// CapacityStatus summarizes the directory for the status endpoint.
type CapacityStatus struct {
	ActivePartners    int
	TotalCapacity     int
	TotalLoad         int
	CapacityRemaining int
	Partners          []domain.Partner
	Hubs              []domain.Hub
}

// DirectoryService owns daily resets and reloads of the directory.
type DirectoryService struct {
	dir        *directory.Directory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// DirectoryDependencies bundles collaborators.
type DirectoryDependencies struct {
	Directory  *directory.Directory
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewDirectoryService creates the service.
func NewDirectoryService(deps DirectoryDependencies) *DirectoryService {
	return &DirectoryService{
		dir:        deps.Directory,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        nowFunc(deps.Now),
	}
}

// ResetDailyLoads zeroes every partner and hub load. Appointments and
// claims are untouched.
func (s *DirectoryService) ResetDailyLoads(ctx context.Context) {
	s.dir.ResetLoads()
	partners, hubs := s.dir.Snapshot()
	s.metrics.LoadsReset()
	s.logger.Info("daily loads reset",
		zap.Int("partners", len(partners)),
		zap.Int("hubs", len(hubs)))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventLoadsReset, "", s.now(), events.LoadsResetPayload{
		Partners: len(partners),
		Hubs:     len(hubs),
	}))
}

// Status reports capacity totals over active partners.
func (s *DirectoryService) Status() CapacityStatus {
	partners, hubs := s.dir.Snapshot()
	status := CapacityStatus{Partners: partners, Hubs: hubs}
	for _, p := range partners {
		if !p.Active {
			continue
		}
		status.ActivePartners++
		status.TotalCapacity += p.Capacity
		status.TotalLoad += p.CurrentLoad
		status.CapacityRemaining += p.Remaining()
	}
	return status
}

// Reload re-reads the directory file. Loads of partners and hubs that keep
// their name are preserved.
func (s *DirectoryService) Reload(path string) (int, int, error) {
	partners, hubs, err := config.LoadDirectory(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reload directory: %w", err)
	}
	s.dir.Replace(partners, hubs)
	s.logger.Info("directory reloaded",
		zap.String("path", path),
		zap.Int("partners", len(partners)),
		zap.Int("hubs", len(hubs)))
	return len(partners), len(hubs), nil
}
