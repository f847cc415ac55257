package domain

import "time"

// RoundStatus enumerates preview round states.
type RoundStatus string

const (
	RoundStatusActive   RoundStatus = "ACTIVE"
	RoundStatusExpired  RoundStatus = "EXPIRED"
	RoundStatusApproved RoundStatus = "APPROVED"
)

// PreviewRound offers one appointment to one partner for a bounded window.
// A round with several partners is stored as one record per partner.
type PreviewRound struct {
	ID            string
	AppointmentID string
	Partner       string
	Status        RoundStatus
	OpenedAt      time.Time
	ExpiresAt     time.Time
	Round         int
	Hub           string
}

// Age returns how long the round has been open at now.
func (r PreviewRound) Age(now time.Time) time.Duration {
	return now.Sub(r.OpenedAt)
}
