// Package resilience bounds every record-store call with a per-attempt
// timeout and a capped exponential retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// Policy configures timeouts and retries for store calls.
type Policy struct {
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         5 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	return p
}

// Do runs op until it succeeds, returns a permanent error, or the attempts
// are used up. Exhausted retries are reported as domain.ErrStoreUnavailable.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	result, err := backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		val, err := op(attemptCtx)
		if err != nil && !IsTransient(err) {
			return val, backoff.Permanent(err)
		}
		return val, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
	if err == nil {
		return result, nil
	}
	if IsTransient(err) {
		return result, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return result, err
}

// Exec is Do for operations without a result.
func Exec(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// temporary is implemented by store errors that know whether a repeat can
// succeed, such as HTTP answers from a remote store.
type temporary interface {
	Temporary() bool
}

// IsTransient reports whether retrying err may help. Business outcomes,
// missing records and rejected requests are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrCapacityExhausted),
		errors.Is(err, domain.ErrNoEligiblePartners),
		errors.Is(err, domain.ErrDailyLimitReached),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
