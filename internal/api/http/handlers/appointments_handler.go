package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// AppointmentsHandler serves appointment queries and manual assignment.
type AppointmentsHandler struct {
	appointments *service.AppointmentService
	intake       *service.IntakeService
}

// NewAppointmentsHandler constructs handler.
func NewAppointmentsHandler(appointments *service.AppointmentService, intake *service.IntakeService) *AppointmentsHandler {
	return &AppointmentsHandler{appointments: appointments, intake: intake}
}

// GetAppointment GET /appointments/:id.
func (h *AppointmentsHandler) GetAppointment(c *fiber.Ctx) error {
	details, err := h.appointments.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentDetail(details)})
}

// ListStalled GET /appointments/stalled.
func (h *AppointmentsHandler) ListStalled(c *fiber.Ctx) error {
	stalled, err := h.appointments.ListStalled(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AppointmentResponse, 0, len(stalled))
	for i := range stalled {
		items = append(items, appointmentResponse(&stalled[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Assign POST /appointments/:id/assign.
func (h *AppointmentsHandler) Assign(c *fiber.Ctx) error {
	result, err := h.intake.AssignExisting(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": intakeResponse(result)})
}
