package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pinger verifies store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store bundles the per-table repositories of one backend.
type Store struct {
	Backend      string
	Appointments AppointmentRepository
	Rounds       PreviewRoundRepository
	Claims       ClaimRepository
	Pinger       Pinger
}

// NewPostgresStore wires the pgx repositories on one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Backend:      "postgres",
		Appointments: NewAppointmentRepository(pool),
		Rounds:       NewPreviewRoundRepository(pool),
		Claims:       NewClaimRepository(pool),
		Pinger:       pool,
	}
}

// Ping checks the backend when it exposes a pinger.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Pinger == nil {
		return nil
	}
	return s.Pinger.Ping(ctx)
}
