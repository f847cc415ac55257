package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util"
)

var rejectMessages = map[domain.RejectReason]string{
	domain.RejectCapacityExhausted: "Partner has reached daily capacity",
	domain.RejectAlreadyClaimed:    "Appointment already claimed",
}

// ClaimHandler exposes the claim webhook.
type ClaimHandler struct {
	service *service.ClaimService
}

// NewClaimHandler constructs handler.
func NewClaimHandler(claimService *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{service: claimService}
}

// Claim POST /webhooks/claim.
func (h *ClaimHandler) Claim(c *fiber.Ctx) error {
	var req dto.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.PartnerName = strings.TrimSpace(req.PartnerName)
	if req.AppointmentID == "" || req.PartnerName == "" {
		return apperrors.NewValidationError("appointment_id and partner_name required", nil)
	}

	outcome, err := h.service.Claim(c.UserContext(), req.AppointmentID, req.PartnerName)
	if err != nil {
		return err
	}

	if !outcome.Accepted {
		return c.Status(fiber.StatusConflict).JSON(dto.ClaimResponse{
			Success:                  false,
			Message:                  rejectMessages[outcome.Reason],
			Reason:                   outcome.Reason,
			PartnerCapacityRemaining: outcome.CapacityRemaining,
		})
	}
	return c.JSON(dto.ClaimResponse{
		Success:                  true,
		Message:                  "Claim approved",
		ClaimID:                  outcome.Claim.ID,
		PartnerCapacityRemaining: outcome.CapacityRemaining,
	})
}
