package domain

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrStoreUnavailable   = errors.New("record store unavailable")
	ErrCapacityExhausted  = errors.New("partner has reached daily capacity")
	ErrAlreadyClaimed     = errors.New("appointment already claimed")
	ErrNoEligiblePartners = errors.New("no eligible partners")
	ErrDailyLimitReached  = errors.New("daily appointment limit reached")
)

// ReasonFor maps a claim rejection error to its reason code.
func ReasonFor(err error) (RejectReason, bool) {
	switch {
	case errors.Is(err, ErrCapacityExhausted):
		return RejectCapacityExhausted, true
	case errors.Is(err, ErrAlreadyClaimed):
		return RejectAlreadyClaimed, true
	default:
		return "", false
	}
}
