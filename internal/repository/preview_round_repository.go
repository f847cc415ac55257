package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// PreviewRoundRepository stores preview round offers.
type PreviewRoundRepository interface {
	Create(ctx context.Context, round *domain.PreviewRound) error
	ListActive(ctx context.Context) ([]domain.PreviewRound, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]domain.PreviewRound, error)
	// CloseActive moves an ACTIVE record to status. It reports false when
	// the record was already closed.
	CloseActive(ctx context.Context, id string, status domain.RoundStatus) (bool, error)
}

type previewRoundRepository struct {
	pool *pgxpool.Pool
}

// NewPreviewRoundRepository builds the Postgres repository.
func NewPreviewRoundRepository(pool *pgxpool.Pool) PreviewRoundRepository {
	return &previewRoundRepository{pool: pool}
}

const roundColumns = `id, appointment_id, partner, status, opened_at, expires_at, round, hub`

func (r *previewRoundRepository) Create(ctx context.Context, round *domain.PreviewRound) error {
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO preview_rounds (id, appointment_id, partner, status, opened_at, expires_at, round, hub)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		round.ID,
		round.AppointmentID,
		round.Partner,
		round.Status,
		round.OpenedAt,
		round.ExpiresAt,
		round.Round,
		round.Hub,
	)
	return err
}

func (r *previewRoundRepository) ListActive(ctx context.Context) ([]domain.PreviewRound, error) {
	query := `SELECT ` + roundColumns + ` FROM preview_rounds WHERE status=$1 ORDER BY opened_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, domain.RoundStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRounds(rows)
}

func (r *previewRoundRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.PreviewRound, error) {
	query := `SELECT ` + roundColumns + ` FROM preview_rounds WHERE appointment_id=$1 ORDER BY round ASC, opened_at ASC`
	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRounds(rows)
}

func (r *previewRoundRepository) CloseActive(ctx context.Context, id string, status domain.RoundStatus) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE preview_rounds SET status=$1 WHERE id=$2 AND status=$3`, status, id, domain.RoundStatusActive)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM preview_rounds WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func scanRounds(rows pgx.Rows) ([]domain.PreviewRound, error) {
	var result []domain.PreviewRound
	for rows.Next() {
		var round domain.PreviewRound
		if err := rows.Scan(
			&round.ID,
			&round.AppointmentID,
			&round.Partner,
			&round.Status,
			&round.OpenedAt,
			&round.ExpiresAt,
			&round.Round,
			&round.Hub,
		); err != nil {
			return nil, err
		}
		result = append(result, round)
	}
	return result, rows.Err()
}
