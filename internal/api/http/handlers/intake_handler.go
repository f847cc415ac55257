package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util"
)

// IntakeHandler exposes both intake channels.
type IntakeHandler struct {
	service *service.IntakeService
}

// NewIntakeHandler constructs handler.
func NewIntakeHandler(intakeService *service.IntakeService) *IntakeHandler {
	return &IntakeHandler{service: intakeService}
}

// ChatIntake POST /webhooks/chat-intake.
func (h *IntakeHandler) ChatIntake(c *fiber.Ctx) error {
	var req dto.ChatIntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := parseChatCommand(req.Text)
	result, err := h.service.NewAppointment(c.UserContext(), input)
	if err != nil {
		var domainErr *apperrors.DomainError
		switch {
		case errors.Is(err, domain.ErrDailyLimitReached):
			return c.JSON(dto.ChatResponse{ResponseType: "ephemeral", Text: "Daily appointment limit reached"})
		case errors.As(err, &domainErr) && domainErr.Code == "VALIDATION_FAILED":
			return c.JSON(dto.ChatResponse{ResponseType: "ephemeral", Text: "Usage: name | address | notes"})
		}
		return err
	}

	text := fmt.Sprintf("Appointment created for %s", result.Appointment.CustomerName)
	if result.Assigned() {
		text += fmt.Sprintf(" (hub %s, offered to %d partners)", result.Assignment.Hub, len(result.Assignment.Partners))
	} else {
		text += " but no partner is available yet"
	}
	return c.JSON(dto.ChatResponse{ResponseType: "in_channel", Text: text})
}

// CreateAppointment POST /appointments.
func (h *IntakeHandler) CreateAppointment(c *fiber.Ctx) error {
	var req dto.CreateAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	origin := req.Origin
	if origin == "" {
		origin = domain.OriginWorkSync
	}

	result, err := h.service.NewAppointment(c.UserContext(), service.IntakeInput{
		CustomerName: req.CustomerName,
		Address:      req.Address,
		Notes:        req.Notes,
		Origin:       origin,
	})
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if !result.Assigned() {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": intakeResponse(result)})
}

// parseChatCommand splits "name | address | notes".
func parseChatCommand(text string) service.IntakeInput {
	parts := strings.SplitN(text, "|", 3)
	field := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}
	return service.IntakeInput{
		CustomerName: field(0),
		Address:      field(1),
		Notes:        field(2),
		Origin:       domain.OriginChat,
	}
}
