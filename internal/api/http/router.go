package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health       *handlers.HealthHandler
	Intake       *handlers.IntakeHandler
	Claims       *handlers.ClaimHandler
	Appointments *handlers.AppointmentsHandler
	Admin        *handlers.AdminHandler
	Metrics      *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	webhooks := app.Group("/webhooks")
	webhooks.Post("/chat-intake", cfg.Intake.ChatIntake)
	webhooks.Post("/claim", cfg.Claims.Claim)

	app.Post("/appointments", cfg.Intake.CreateAppointment)
	appointments := app.Group("/appointments")
	appointments.Get("/stalled", cfg.Appointments.ListStalled)
	appointments.Get("/:id", cfg.Appointments.GetAppointment)
	appointments.Post("/:id/assign", cfg.Appointments.Assign)

	app.Get("/config", cfg.Admin.Config)
	app.Post("/config/reload", cfg.Admin.ReloadConfig)
	app.Get("/status", cfg.Admin.Status)
	app.Post("/loads/reset", cfg.Admin.ResetLoads)
	app.Post("/escalation/sweep", cfg.Admin.Sweep)
}
