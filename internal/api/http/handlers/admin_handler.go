package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/service"
	"github.com/spec-kit/dispatch-service/internal/worker"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util"
)

// SweepTrigger runs one escalation sweep on demand.
type SweepTrigger interface {
	Trigger(ctx context.Context) (service.SweepReport, error)
}

// AdminHandler serves operational endpoints.
type AdminHandler struct {
	cfg       *config.Config
	directory *service.DirectoryService
	sweeper   SweepTrigger
	now       func() time.Time
}

// NewAdminHandler constructs handler.
func NewAdminHandler(cfg *config.Config, directory *service.DirectoryService, sweeper SweepTrigger) *AdminHandler {
	return &AdminHandler{cfg: cfg, directory: directory, sweeper: sweeper, now: time.Now}
}

// Config GET /config. Secrets are omitted.
func (h *AdminHandler) Config(c *fiber.Ctx) error {
	e := h.cfg.Engine
	return c.JSON(fiber.Map{"data": fiber.Map{
		"environment":            h.cfg.App.Env,
		"store_backend":          h.cfg.Store.Backend,
		"claim_guard":            h.cfg.Guard.Backend,
		"escalation_threshold":   e.EscalationThreshold.String(),
		"max_rounds":             e.MaxRounds,
		"preview_window":         e.PreviewWindow.String(),
		"sweep_interval":         e.SweepInterval.String(),
		"default_hub":            e.DefaultHub,
		"fallback_hub":           e.FallbackHub,
		"region_override":        e.RegionOverrideEnabled,
		"region_override_hub":    e.RegionOverrideHub,
		"max_daily_appointments": e.MaxDailyAppointments,
		"mark_unassignable":      e.MarkUnassignable,
		"timezone":               e.Timezone,
		"directory_file":         h.cfg.Directory.File,
		"notifications": fiber.Map{
			"sms":   h.cfg.Notification.SendSMS,
			"email": h.cfg.Notification.SendEmail,
			"delay": h.cfg.Notification.Delay.String(),
		},
	}})
}

// ReloadConfig POST /config/reload.
func (h *AdminHandler) ReloadConfig(c *fiber.Ctx) error {
	partners, hubs, err := h.directory.Reload(h.cfg.Directory.File)
	if err != nil {
		return apperrors.NewDomainError("RELOAD_FAILED", err.Error(), fiber.StatusInternalServerError, nil)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "Configuration reloaded",
		"partners": partners,
		"hubs":     hubs,
	})
}

// Status GET /status.
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	resp := statusResponse(h.directory.Status())
	resp.Timestamp = h.now().UTC()
	return c.JSON(fiber.Map{"data": resp})
}

// ResetLoads POST /loads/reset.
func (h *AdminHandler) ResetLoads(c *fiber.Ctx) error {
	h.directory.ResetDailyLoads(c.UserContext())
	return c.JSON(fiber.Map{"data": fiber.Map{"reset": true}})
}

// Sweep POST /escalation/sweep.
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeper.Trigger(c.UserContext())
	if errors.Is(err, worker.ErrSweepInFlight) {
		return apperrors.NewConflict("an escalation sweep is already running", nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Scanned:  report.Scanned,
		Expired:  report.Expired,
		Advanced: report.Advanced,
		Stalled:  report.Stalled,
		Failed:   report.Failed,
		Duration: report.Duration.String(),
	}})
}
