package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

const uniqueViolation = "23505"

// ClaimRepository stores claim attempts. At most one APPROVED claim may exist
// per appointment; Create reports a second one as domain.ErrAlreadyClaimed.
type ClaimRepository interface {
	Create(ctx context.Context, claim *domain.Claim) error
	FindApproved(ctx context.Context, appointmentID string) (*domain.Claim, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]domain.Claim, error)
}

type claimRepository struct {
	pool *pgxpool.Pool
}

// NewClaimRepository builds the Postgres repository.
func NewClaimRepository(pool *pgxpool.Pool) ClaimRepository {
	return &claimRepository{pool: pool}
}

func (r *claimRepository) Create(ctx context.Context, claim *domain.Claim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO claims (id, appointment_id, partner, status, reason)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		claim.ID,
		claim.AppointmentID,
		claim.Partner,
		claim.Status,
		claim.Reason,
	).Scan(&claim.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyClaimed
	}
	return err
}

// FindApproved returns domain.ErrNotFound when no claim was approved yet.
func (r *claimRepository) FindApproved(ctx context.Context, appointmentID string) (*domain.Claim, error) {
	const query = `
        SELECT id, appointment_id, partner, status, reason, created_at
        FROM claims WHERE appointment_id=$1 AND status=$2`
	var claim domain.Claim
	if err := r.pool.QueryRow(ctx, query, appointmentID, domain.ClaimStatusApproved).Scan(
		&claim.ID,
		&claim.AppointmentID,
		&claim.Partner,
		&claim.Status,
		&claim.Reason,
		&claim.CreatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &claim, nil
}

func (r *claimRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.Claim, error) {
	const query = `
        SELECT id, appointment_id, partner, status, reason, created_at
        FROM claims WHERE appointment_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Claim
	for rows.Next() {
		var claim domain.Claim
		if err := rows.Scan(
			&claim.ID,
			&claim.AppointmentID,
			&claim.Partner,
			&claim.Status,
			&claim.Reason,
			&claim.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, claim)
	}
	return result, rows.Err()
}
