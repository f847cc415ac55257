package handlers

import (
	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/service"
)

func appointmentResponse(appt *domain.Appointment) dto.AppointmentResponse {
	return dto.AppointmentResponse{
		ID:           appt.ID,
		CustomerName: appt.CustomerName,
		Address:      appt.Address,
		Notes:        appt.Notes,
		Status:       appt.Status,
		Hub:          appt.Hub,
		Partner:      appt.Partner,
		Origin:       appt.Origin,
		CreatedAt:    appt.CreatedAt,
		UpdatedAt:    appt.UpdatedAt,
	}
}

func intakeResponse(result *service.IntakeResult) dto.IntakeResponse {
	resp := dto.IntakeResponse{
		Appointment: appointmentResponse(result.Appointment),
		Assigned:    result.Assigned(),
	}
	if result.Assignment != nil {
		resp.Hub = result.Assignment.Hub
		resp.FallbackUsed = result.Assignment.FallbackUsed
		for _, p := range result.Assignment.Partners {
			resp.Partners = append(resp.Partners, p.Name)
		}
	}
	if result.AssignmentError != nil {
		resp.AssignmentError = result.AssignmentError.Error()
	}
	return resp
}

func appointmentDetail(details *service.AppointmentDetails) dto.AppointmentDetailResponse {
	resp := dto.AppointmentDetailResponse{
		AppointmentResponse: appointmentResponse(&details.Appointment),
		CurrentRound:        details.CurrentRound(),
		Rounds:              make([]dto.PreviewRoundResponse, 0, len(details.Rounds)),
		Claims:              make([]dto.ClaimRecordResponse, 0, len(details.Claims)),
	}
	for _, r := range details.Rounds {
		resp.Rounds = append(resp.Rounds, dto.PreviewRoundResponse{
			ID:        r.ID,
			Partner:   r.Partner,
			Status:    r.Status,
			Round:     r.Round,
			Hub:       r.Hub,
			OpenedAt:  r.OpenedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	for _, c := range details.Claims {
		resp.Claims = append(resp.Claims, dto.ClaimRecordResponse{
			ID:        c.ID,
			Partner:   c.Partner,
			Status:    c.Status,
			Reason:    c.Reason,
			CreatedAt: c.CreatedAt,
		})
	}
	return resp
}

func statusResponse(status service.CapacityStatus) dto.StatusResponse {
	resp := dto.StatusResponse{
		ActivePartners:    status.ActivePartners,
		TotalCapacity:     status.TotalCapacity,
		TotalLoad:         status.TotalLoad,
		CapacityRemaining: status.CapacityRemaining,
		Partners:          make([]dto.PartnerStatus, 0, len(status.Partners)),
		Hubs:              make([]dto.HubStatus, 0, len(status.Hubs)),
	}
	for _, p := range status.Partners {
		resp.Partners = append(resp.Partners, dto.PartnerStatus{
			Name:              p.Name,
			Hubs:              p.Hubs,
			Priority:          p.Priority,
			Active:            p.Active,
			Capacity:          p.Capacity,
			CurrentLoad:       p.CurrentLoad,
			CapacityRemaining: p.Remaining(),
		})
	}
	for _, h := range status.Hubs {
		resp.Hubs = append(resp.Hubs, dto.HubStatus{
			Code:        h.Code,
			Name:        h.Name,
			Partners:    h.Partners,
			Active:      h.Active,
			Capacity:    h.Capacity,
			CurrentLoad: h.CurrentLoad,
		})
	}
	return resp
}
