package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// sentinels maps engine errors to their public code and status.
var sentinels = []struct {
	err     error
	code    string
	message string
	status  int
}{
	{domain.ErrNotFound, "NOT_FOUND", "resource not found", http.StatusNotFound},
	{domain.ErrStoreUnavailable, "STORE_UNAVAILABLE", "record store unavailable", http.StatusServiceUnavailable},
	{domain.ErrCapacityExhausted, "CAPACITY_EXHAUSTED", "partner has reached daily capacity", http.StatusConflict},
	{domain.ErrAlreadyClaimed, "ALREADY_CLAIMED", "appointment already claimed", http.StatusConflict},
	{domain.ErrNoEligiblePartners, "NO_ELIGIBLE_PARTNERS", "no eligible partners", http.StatusUnprocessableEntity},
	{domain.ErrDailyLimitReached, "DAILY_LIMIT_REACHED", "daily appointment limit reached", http.StatusTooManyRequests},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &DomainError{Code: s.code, Message: s.message, HTTPStatus: s.status, Err: err}
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
