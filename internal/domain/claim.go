package domain

import "time"

// ClaimStatus enumerates claim outcomes.
type ClaimStatus string

const (
	ClaimStatusApproved ClaimStatus = "APPROVED"
	ClaimStatusRejected ClaimStatus = "REJECTED"
)

// RejectReason is the reason code attached to a rejected claim.
type RejectReason string

const (
	RejectCapacityExhausted RejectReason = "CAPACITY_EXHAUSTED"
	RejectAlreadyClaimed    RejectReason = "ALREADY_CLAIMED"
)

// Claim is an immutable record of a partner's attempt to accept an appointment.
type Claim struct {
	ID            string
	AppointmentID string
	Partner       string
	Status        ClaimStatus
	Reason        RejectReason
	CreatedAt     time.Time
}

// ClaimOutcome is returned to the claiming caller.
type ClaimOutcome struct {
	Claim             Claim
	Accepted          bool
	Reason            RejectReason
	CapacityRemaining int
}
