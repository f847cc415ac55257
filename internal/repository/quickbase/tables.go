package quickbase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// Built-in Quickbase fields.
const (
	fieldDateCreated  = 1
	fieldDateModified = 2
	fieldRecordID     = 3
)

// Appointments table.
const (
	apptName    = 6
	apptAddress = 7
	apptNotes   = 8
	apptStatus  = 9
	apptOrigin  = 10
	apptHub     = 11
	apptPartner = 12
)

// Preview rounds table.
const (
	roundAppointment = 6
	roundPartner     = 7
	roundStatus      = 8
	roundOpened      = 9
	roundExpires     = 10
	roundNumber      = 11
	roundHub         = 12
)

// Claims table.
const (
	claimAppointment = 6
	claimPartner     = 7
	claimStatus      = 8
	claimTimestamp   = 9
)

var appointmentFields = []int{fieldDateCreated, fieldDateModified, fieldRecordID, apptName, apptAddress, apptNotes, apptStatus, apptOrigin, apptHub, apptPartner}
var roundFields = []int{fieldRecordID, roundAppointment, roundPartner, roundStatus, roundOpened, roundExpires, roundNumber, roundHub}
var claimFields = []int{fieldRecordID, claimAppointment, claimPartner, claimStatus, claimTimestamp}

var appointmentStatusLabels = map[domain.AppointmentStatus]string{
	domain.AppointmentStatusNew:          "New",
	domain.AppointmentStatusPreviewing:   "Previewing",
	domain.AppointmentStatusClaimed:      "Claimed",
	domain.AppointmentStatusUnassignable: "Unassignable",
}

var roundStatusLabels = map[domain.RoundStatus]string{
	domain.RoundStatusActive:   "Active",
	domain.RoundStatusExpired:  "Expired",
	domain.RoundStatusApproved: "Approved",
}

var claimStatusLabels = map[domain.ClaimStatus]string{
	domain.ClaimStatusApproved: "Approved",
	domain.ClaimStatusRejected: "Rejected",
}

func label[S ~string](labels map[S]string, status S) string {
	if l, ok := labels[status]; ok {
		return l
	}
	return string(status)
}

func parseLabel[S ~string](labels map[S]string, raw string) S {
	for status, l := range labels {
		if strings.EqualFold(l, raw) {
			return status
		}
	}
	return S(strings.ToUpper(raw))
}

type appointmentTable struct {
	c     *Client
	table string
}

func (t *appointmentTable) Create(ctx context.Context, appt *domain.Appointment) error {
	rec := record{}
	rec.set(apptName, appt.CustomerName)
	rec.set(apptAddress, appt.Address)
	rec.set(apptNotes, appt.Notes)
	rec.set(apptStatus, label(appointmentStatusLabels, appt.Status))
	rec.set(apptOrigin, string(appt.Origin))
	rec.set(apptHub, appt.Hub)
	rec.set(apptPartner, appt.Partner)
	id, err := t.c.upsert(ctx, t.table, rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

func (t *appointmentTable) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	recs, err := t.c.query(ctx, t.table, eq(fieldRecordID, id), appointmentFields, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.ErrNotFound
	}
	appt := decodeAppointment(recs[0])
	return &appt, nil
}

func (t *appointmentTable) UpdateAssignment(ctx context.Context, id, hub string, status domain.AppointmentStatus) error {
	rec := record{}
	rec.set(apptHub, hub)
	rec.set(apptStatus, label(appointmentStatusLabels, status))
	return t.update(ctx, id, rec)
}

func (t *appointmentTable) UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) error {
	rec := record{}
	rec.set(apptStatus, label(appointmentStatusLabels, status))
	return t.update(ctx, id, rec)
}

// MarkClaimed is read-then-write; callers serialize it with a claim guard.
func (t *appointmentTable) MarkClaimed(ctx context.Context, id, partner string) (bool, error) {
	appt, err := t.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.Status == domain.AppointmentStatusClaimed {
		return false, nil
	}
	rec := record{}
	rec.set(apptStatus, label(appointmentStatusLabels, domain.AppointmentStatusClaimed))
	rec.set(apptPartner, partner)
	if err := t.update(ctx, id, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (t *appointmentTable) List(ctx context.Context, filter repository.AppointmentFilter) ([]domain.Appointment, error) {
	var clauses []string
	if len(filter.Statuses) > 0 {
		ors := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			ors[i] = eq(apptStatus, label(appointmentStatusLabels, status))
		}
		clauses = append(clauses, "("+strings.Join(ors, "OR")+")")
	}
	if filter.Hub != nil {
		clauses = append(clauses, eq(apptHub, *filter.Hub))
	}
	where := strings.Join(clauses, "AND")
	if where == "" {
		where = "{3.GT.0}"
	}

	recs, err := t.c.query(ctx, t.table, where, appointmentFields, 0)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Appointment, 0, len(recs))
	for _, rec := range recs {
		result = append(result, decodeAppointment(rec))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (t *appointmentTable) SupportsConditionalWrite() bool {
	return false
}

func (t *appointmentTable) update(ctx context.Context, id string, rec record) error {
	rec.set(fieldRecordID, recordIDValue(id))
	_, err := t.c.upsert(ctx, t.table, rec)
	return err
}

func decodeAppointment(rec record) domain.Appointment {
	return domain.Appointment{
		ID:           rec.str(fieldRecordID),
		CustomerName: rec.str(apptName),
		Address:      rec.str(apptAddress),
		Notes:        rec.str(apptNotes),
		Status:       parseLabel(appointmentStatusLabels, rec.str(apptStatus)),
		Origin:       domain.Origin(strings.ToUpper(rec.str(apptOrigin))),
		Hub:          rec.str(apptHub),
		Partner:      rec.str(apptPartner),
		CreatedAt:    rec.time(fieldDateCreated),
		UpdatedAt:    rec.time(fieldDateModified),
	}
}

type roundTable struct {
	c     *Client
	table string
}

func (t *roundTable) Create(ctx context.Context, round *domain.PreviewRound) error {
	rec := record{}
	rec.set(roundAppointment, round.AppointmentID)
	rec.set(roundPartner, round.Partner)
	rec.set(roundStatus, label(roundStatusLabels, round.Status))
	rec.set(roundOpened, round.OpenedAt.UTC().Format(time.RFC3339Nano))
	rec.set(roundExpires, round.ExpiresAt.UTC().Format(time.RFC3339Nano))
	rec.set(roundNumber, round.Round)
	rec.set(roundHub, round.Hub)
	id, err := t.c.upsert(ctx, t.table, rec)
	if err != nil {
		return err
	}
	round.ID = id
	return nil
}

func (t *roundTable) ListActive(ctx context.Context) ([]domain.PreviewRound, error) {
	return t.list(ctx, eq(roundStatus, label(roundStatusLabels, domain.RoundStatusActive)))
}

func (t *roundTable) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.PreviewRound, error) {
	return t.list(ctx, eq(roundAppointment, appointmentID))
}

// CloseActive is read-then-write, like MarkClaimed.
func (t *roundTable) CloseActive(ctx context.Context, id string, status domain.RoundStatus) (bool, error) {
	current, err := t.list(ctx, eq(fieldRecordID, id))
	if err != nil {
		return false, err
	}
	if len(current) == 0 {
		return false, domain.ErrNotFound
	}
	if current[0].Status != domain.RoundStatusActive {
		return false, nil
	}

	rec := record{}
	rec.set(fieldRecordID, recordIDValue(id))
	rec.set(roundStatus, label(roundStatusLabels, status))
	if _, err := t.c.upsert(ctx, t.table, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (t *roundTable) list(ctx context.Context, where string) ([]domain.PreviewRound, error) {
	recs, err := t.c.query(ctx, t.table, where, roundFields, 0)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PreviewRound, 0, len(recs))
	for _, rec := range recs {
		result = append(result, domain.PreviewRound{
			ID:            rec.str(fieldRecordID),
			AppointmentID: rec.str(roundAppointment),
			Partner:       rec.str(roundPartner),
			Status:        parseLabel(roundStatusLabels, rec.str(roundStatus)),
			OpenedAt:      rec.time(roundOpened),
			ExpiresAt:     rec.time(roundExpires),
			Round:         rec.int(roundNumber),
			Hub:           rec.str(roundHub),
		})
	}
	return result, nil
}

type claimTable struct {
	c     *Client
	table string
}

func (t *claimTable) Create(ctx context.Context, claim *domain.Claim) error {
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}
	rec := record{}
	rec.set(claimAppointment, claim.AppointmentID)
	rec.set(claimPartner, claim.Partner)
	rec.set(claimStatus, label(claimStatusLabels, claim.Status))
	rec.set(claimTimestamp, claim.CreatedAt.UTC().Format(time.RFC3339Nano))
	id, err := t.c.upsert(ctx, t.table, rec)
	if err != nil {
		return err
	}
	claim.ID = id
	return nil
}

func (t *claimTable) FindApproved(ctx context.Context, appointmentID string) (*domain.Claim, error) {
	where := eq(claimAppointment, appointmentID) + "AND" + eq(claimStatus, label(claimStatusLabels, domain.ClaimStatusApproved))
	claims, err := t.list(ctx, where, 1)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, domain.ErrNotFound
	}
	return &claims[0], nil
}

func (t *claimTable) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.Claim, error) {
	return t.list(ctx, eq(claimAppointment, appointmentID), 0)
}

func (t *claimTable) list(ctx context.Context, where string, top int) ([]domain.Claim, error) {
	recs, err := t.c.query(ctx, t.table, where, claimFields, top)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Claim, 0, len(recs))
	for _, rec := range recs {
		result = append(result, domain.Claim{
			ID:            rec.str(fieldRecordID),
			AppointmentID: rec.str(claimAppointment),
			Partner:       rec.str(claimPartner),
			Status:        parseLabel(claimStatusLabels, rec.str(claimStatus)),
			CreatedAt:     rec.time(claimTimestamp),
		})
	}
	return result, nil
}
