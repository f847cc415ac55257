package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAppointmentCreated    EventType = "appointment_created"
	EventAppointmentPreviewing EventType = "appointment_previewing"
	EventRoundOpened           EventType = "round_opened"
	EventRoundExpired          EventType = "round_expired"
	EventAppointmentClaimed    EventType = "appointment_claimed"
	EventClaimRejected         EventType = "claim_rejected"
	EventAppointmentStalled    EventType = "appointment_stalled"
	EventLoadsReset            EventType = "loads_reset"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, appointmentID string, at time.Time, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AppointmentID: appointmentID,
		Timestamp:     at.UTC(),
		Payload:       payload,
	}
}

// AppointmentCreatedPayload payload.
type AppointmentCreatedPayload struct {
	Origin       domain.Origin `json:"origin"`
	CustomerName string        `json:"customer_name"`
}

// AppointmentPreviewingPayload payload.
type AppointmentPreviewingPayload struct {
	Hub          string   `json:"hub"`
	Partners     []string `json:"partners"`
	FallbackUsed bool     `json:"fallback_used"`
}

// RoundOpenedPayload payload.
type RoundOpenedPayload struct {
	Round     int       `json:"round"`
	Hub       string    `json:"hub"`
	Partners  []string  `json:"partners"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RoundExpiredPayload payload.
type RoundExpiredPayload struct {
	Round    int      `json:"round"`
	Partners []string `json:"partners"`
}

// AppointmentClaimedPayload payload.
type AppointmentClaimedPayload struct {
	Partner           string `json:"partner"`
	CapacityRemaining int    `json:"capacity_remaining"`
}

// ClaimRejectedPayload payload.
type ClaimRejectedPayload struct {
	Partner string              `json:"partner"`
	Reason  domain.RejectReason `json:"reason"`
}

// StallReason explains why escalation stopped.
type StallReason string

const (
	StallNoPartners      StallReason = "no_partners"
	StallRoundsExhausted StallReason = "rounds_exhausted"
)

// AppointmentStalledPayload payload.
type AppointmentStalledPayload struct {
	Round        int         `json:"round"`
	Hub          string      `json:"hub"`
	Reason       StallReason `json:"reason"`
	Unassignable bool        `json:"unassignable"`
}

// LoadsResetPayload payload.
type LoadsResetPayload struct {
	Partners int `json:"partners"`
	Hubs     int `json:"hubs"`
}
