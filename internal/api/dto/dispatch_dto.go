package dto

import (
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// ChatIntakeRequest is the slash-command payload: text = "name | address | notes".
type ChatIntakeRequest struct {
	Text      string `json:"text" form:"text"`
	UserName  string `json:"user_name" form:"user_name"`
	ChannelID string `json:"channel_id" form:"channel_id"`
}

// ChatResponse is the chat-style reply.
type ChatResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// CreateAppointmentRequest payload for the work-management sync channel.
type CreateAppointmentRequest struct {
	CustomerName string        `json:"customer_name"`
	Address      string        `json:"address"`
	Notes        string        `json:"notes"`
	Origin       domain.Origin `json:"origin"`
}

// ClaimRequest is the claim webhook payload. PreviewRoundID is accepted for
// compatibility and not verified.
type ClaimRequest struct {
	AppointmentID  string `json:"appointment_id"`
	PartnerName    string `json:"partner_name"`
	PreviewRoundID string `json:"preview_round_id"`
}

// ClaimResponse is the claim webhook reply.
type ClaimResponse struct {
	Success                  bool                `json:"success"`
	Message                  string              `json:"message"`
	Reason                   domain.RejectReason `json:"reason,omitempty"`
	ClaimID                  string              `json:"claim_id,omitempty"`
	PartnerCapacityRemaining int                 `json:"partner_capacity_remaining"`
}

// AppointmentResponse describes one appointment.
type AppointmentResponse struct {
	ID           string                   `json:"id"`
	CustomerName string                   `json:"customer_name"`
	Address      string                   `json:"address"`
	Notes        string                   `json:"notes,omitempty"`
	Status       domain.AppointmentStatus `json:"status"`
	Hub          string                   `json:"hub,omitempty"`
	Partner      string                   `json:"partner,omitempty"`
	Origin       domain.Origin            `json:"origin"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// IntakeResponse reports a created appointment. Assigned is false when the
// appointment exists but no round could be opened.
type IntakeResponse struct {
	Appointment     AppointmentResponse `json:"appointment"`
	Assigned        bool                `json:"assigned"`
	Hub             string              `json:"hub,omitempty"`
	Partners        []string            `json:"partners,omitempty"`
	FallbackUsed    bool                `json:"fallback_used,omitempty"`
	AssignmentError string              `json:"assignment_error,omitempty"`
}

// PreviewRoundResponse describes one round record.
type PreviewRoundResponse struct {
	ID        string             `json:"id"`
	Partner   string             `json:"partner"`
	Status    domain.RoundStatus `json:"status"`
	Round     int                `json:"round"`
	Hub       string             `json:"hub"`
	OpenedAt  time.Time          `json:"opened_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// ClaimRecordResponse describes one claim record.
type ClaimRecordResponse struct {
	ID        string              `json:"id"`
	Partner   string              `json:"partner"`
	Status    domain.ClaimStatus  `json:"status"`
	Reason    domain.RejectReason `json:"reason,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// AppointmentDetailResponse is an appointment with its history.
type AppointmentDetailResponse struct {
	AppointmentResponse
	CurrentRound int                    `json:"current_round"`
	Rounds       []PreviewRoundResponse `json:"rounds"`
	Claims       []ClaimRecordResponse  `json:"claims"`
}

// PartnerStatus is one row of the status report.
type PartnerStatus struct {
	Name              string   `json:"name"`
	Hubs              []string `json:"hubs"`
	Priority          int      `json:"priority"`
	Active            bool     `json:"active"`
	Capacity          int      `json:"capacity"`
	CurrentLoad       int      `json:"current_load"`
	CapacityRemaining int      `json:"capacity_remaining"`
}

// HubStatus is one hub row of the status report.
type HubStatus struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Partners    []string `json:"partners,omitempty"`
	Active      bool     `json:"active"`
	Capacity    int      `json:"capacity"`
	CurrentLoad int      `json:"current_load"`
}

// StatusResponse summarizes capacity.
type StatusResponse struct {
	Timestamp         time.Time       `json:"timestamp"`
	ActivePartners    int             `json:"active_partners"`
	TotalCapacity     int             `json:"total_capacity"`
	TotalLoad         int             `json:"total_load"`
	CapacityRemaining int             `json:"capacity_remaining"`
	Partners          []PartnerStatus `json:"partners"`
	Hubs              []HubStatus     `json:"hubs"`
}

// SweepResponse reports a manually triggered sweep.
type SweepResponse struct {
	Scanned  int    `json:"scanned"`
	Expired  int    `json:"expired"`
	Advanced int    `json:"advanced"`
	Stalled  int    `json:"stalled"`
	Failed   int    `json:"failed"`
	Duration string `json:"duration"`
}
