package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// AppointmentFilter captures listing parameters.
type AppointmentFilter struct {
	Statuses []domain.AppointmentStatus
	Hub      *string
	Limit    int
	Offset   int
}

// AppointmentRepository encapsulates appointment persistence.
type AppointmentRepository interface {
	Create(ctx context.Context, appt *domain.Appointment) error
	GetByID(ctx context.Context, id string) (*domain.Appointment, error)
	UpdateAssignment(ctx context.Context, id, hub string, status domain.AppointmentStatus) error
	UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) error
	// MarkClaimed moves the appointment to CLAIMED for partner unless it is
	// already claimed. It reports whether this call made the transition.
	MarkClaimed(ctx context.Context, id, partner string) (bool, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	// SupportsConditionalWrite reports whether MarkClaimed is atomic at the
	// store.
	SupportsConditionalWrite() bool
}

type appointmentRepository struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepository instantiates the Postgres repository.
func NewAppointmentRepository(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepository{pool: pool}
}

const appointmentColumns = `id, customer_name, address, notes, status, hub, partner, origin, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO appointments (id, customer_name, address, notes, status, hub, partner, origin)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.CustomerName,
		appt.Address,
		appt.Notes,
		appt.Status,
		appt.Hub,
		appt.Partner,
		appt.Origin,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
}

func (r *appointmentRepository) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	var appt domain.Appointment
	if err := scanAppointment(r.pool.QueryRow(ctx, query, id), &appt); err != nil {
		return nil, mapNoRows(err)
	}
	return &appt, nil
}

func (r *appointmentRepository) UpdateAssignment(ctx context.Context, id, hub string, status domain.AppointmentStatus) error {
	const query = `UPDATE appointments SET hub=$1, status=$2, updated_at=NOW() WHERE id=$3`
	return r.exec(ctx, query, hub, status, id)
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) error {
	const query = `UPDATE appointments SET status=$1, updated_at=NOW() WHERE id=$2`
	return r.exec(ctx, query, status, id)
}

func (r *appointmentRepository) MarkClaimed(ctx context.Context, id, partner string) (bool, error) {
	const query = `
        UPDATE appointments SET status=$1, partner=$2, updated_at=NOW()
        WHERE id=$3 AND status <> $1`
	cmd, err := r.pool.Exec(ctx, query, domain.AppointmentStatusClaimed, partner, id)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	clauses := []string{}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Hub != nil {
		args = append(args, *filter.Hub)
		clauses = append(clauses, fmt.Sprintf("hub=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Appointment
	for rows.Next() {
		var appt domain.Appointment
		if err := scanAppointment(rows, &appt); err != nil {
			return nil, err
		}
		result = append(result, appt)
	}
	return result, rows.Err()
}

func (r *appointmentRepository) SupportsConditionalWrite() bool {
	return true
}

func (r *appointmentRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row, appt *domain.Appointment) error {
	return row.Scan(
		&appt.ID,
		&appt.CustomerName,
		&appt.Address,
		&appt.Notes,
		&appt.Status,
		&appt.Hub,
		&appt.Partner,
		&appt.Origin,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
