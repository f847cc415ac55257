package quickbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resilience"
)

var clausePattern = regexp.MustCompile(`\{(\d+)\.(EX|GT)\.'?([^}']*)'?\}`)

// fakeRealm implements the subset of the Quickbase records API the adapter uses.
type fakeRealm struct {
	mu      sync.Mutex
	nextID  int64
	tables  map[string]map[int64]map[string]any
	headers http.Header
	fail    bool
	// failStatus defaults to 503.
	failStatus int
	requests   int
}

func newFakeRealm() *fakeRealm {
	return &fakeRealm{tables: make(map[string]map[int64]map[string]any)}
}

func (f *fakeRealm) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = r.Header.Clone()
	f.requests++
	if f.fail {
		status := f.failStatus
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, `{"message":"request failed"}`, status)
		return
	}

	switch r.URL.Path {
	case "/v1/records":
		var req struct {
			To   string                       `json:"to"`
			Data []map[string]map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		table := f.table(req.To)
		var out []map[string]any
		for _, rec := range req.Data {
			var id int64
			if raw, ok := rec["3"]; ok {
				id = int64(raw["value"].(float64))
			} else {
				f.nextID++
				id = f.nextID
				table[id] = map[string]any{"1": time.Now().UTC().Format(time.RFC3339Nano), "3": float64(id)}
			}
			row, ok := table[id]
			if !ok {
				http.Error(w, "no such record", http.StatusBadRequest)
				return
			}
			for fid, fv := range rec {
				row[fid] = fv["value"]
			}
			row["2"] = time.Now().UTC().Format(time.RFC3339Nano)
			out = append(out, map[string]any{"3": map[string]any{"value": id}})
		}
		writeJSON(w, map[string]any{"data": out})
	case "/v1/records/query":
		var req struct {
			From   string `json:"from"`
			Select []int  `json:"select"`
			Where  string `json:"where"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		table := f.table(req.From)
		ids := make([]int64, 0, len(table))
		for id := range table {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		var out []map[string]any
		for _, id := range ids {
			row := table[id]
			if !matches(req.Where, row) {
				continue
			}
			rec := map[string]any{}
			for _, fid := range req.Select {
				key := strconv.Itoa(fid)
				rec[key] = map[string]any{"value": row[key]}
			}
			out = append(out, rec)
		}
		writeJSON(w, map[string]any{"data": out})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRealm) table(name string) map[int64]map[string]any {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[int64]map[string]any)
		f.tables[name] = t
	}
	return t
}

func (f *fakeRealm) row(table, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(id, 10, 64)
	return f.tables[table][n]
}

func matches(where string, row map[string]any) bool {
	clauses := clausePattern.FindAllStringSubmatch(where, -1)
	anyOf := strings.Contains(where, "OR")
	for _, c := range clauses {
		value := fmt.Sprint(row[c[1]])
		ok := c[2] == "GT" || value == c[3]
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	return !anyOf
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestStore(t *testing.T) (*fakeRealm, *repository.Store) {
	t.Helper()
	realm := newFakeRealm()
	srv := httptest.NewServer(realm)
	t.Cleanup(srv.Close)

	client := New(Config{
		BaseURL: srv.URL + "/v1",
		Realm:   "acme.quickbase.com",
		Token:   "tok",
		Tables:  Tables{Appointments: "appts", Claims: "claims", PreviewRounds: "rounds"},
		Timeout: 2 * time.Second,
	})
	return realm, client.Bundle()
}

func TestAppointmentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	realm, store := newTestStore(t)

	appt := &domain.Appointment{
		CustomerName: "Jane Doe",
		Address:      "12 Elm St, Belleville, IL",
		Notes:        "back door",
		Status:       domain.AppointmentStatusNew,
		Origin:       domain.OriginChat,
	}
	require.NoError(t, store.Appointments.Create(ctx, appt))
	require.Equal(t, "1", appt.ID)

	assert.Equal(t, "QB-USER-TOKEN tok", realm.headers.Get("Authorization"))
	assert.Equal(t, "acme.quickbase.com", realm.headers.Get("QB-Realm-Hostname"))
	assert.Equal(t, "New", realm.row("appts", appt.ID)["9"])

	require.NoError(t, store.Appointments.UpdateAssignment(ctx, appt.ID, "STL_IL", domain.AppointmentStatusPreviewing))
	assert.Equal(t, "Previewing", realm.row("appts", appt.ID)["9"])

	got, err := store.Appointments.GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.CustomerName)
	assert.Equal(t, "STL_IL", got.Hub)
	assert.Equal(t, domain.AppointmentStatusPreviewing, got.Status)
	assert.Equal(t, domain.OriginChat, got.Origin)
	assert.False(t, got.CreatedAt.IsZero())

	won, err := store.Appointments.MarkClaimed(ctx, appt.ID, "Alpha")
	require.NoError(t, err)
	assert.True(t, won)
	won, err = store.Appointments.MarkClaimed(ctx, appt.ID, "Bravo")
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, "Alpha", realm.row("appts", appt.ID)["12"])

	_, err = store.Appointments.GetByID(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, store.Appointments.SupportsConditionalWrite())
}

func TestAppointmentsListByStatus(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)

	for _, status := range []domain.AppointmentStatus{domain.AppointmentStatusNew, domain.AppointmentStatusPreviewing, domain.AppointmentStatusClaimed} {
		require.NoError(t, store.Appointments.Create(ctx, &domain.Appointment{Status: status}))
	}

	got, err := store.Appointments.List(ctx, repository.AppointmentFilter{
		Statuses: []domain.AppointmentStatus{domain.AppointmentStatusNew, domain.AppointmentStatusPreviewing},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	all, err := store.Appointments.List(ctx, repository.AppointmentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRoundsAndClaims(t *testing.T) {
	ctx := context.Background()
	realm, store := newTestStore(t)
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	round := &domain.PreviewRound{
		AppointmentID: "7",
		Partner:       "Alpha",
		Status:        domain.RoundStatusActive,
		OpenedAt:      opened,
		ExpiresAt:     opened.Add(15 * time.Minute),
		Round:         2,
		Hub:           "STL_MO",
	}
	require.NoError(t, store.Rounds.Create(ctx, round))
	require.NoError(t, store.Rounds.Create(ctx, &domain.PreviewRound{AppointmentID: "8", Partner: "Bravo", Status: domain.RoundStatusExpired, Round: 1}))

	active, err := store.Rounds.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Round)
	assert.True(t, opened.Equal(active[0].OpenedAt))
	assert.Equal(t, "STL_MO", active[0].Hub)

	closed, err := store.Rounds.CloseActive(ctx, round.ID, domain.RoundStatusApproved)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "Approved", realm.row("rounds", round.ID)["8"])

	closed, err = store.Rounds.CloseActive(ctx, round.ID, domain.RoundStatusExpired)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, "Approved", realm.row("rounds", round.ID)["8"])

	_, err = store.Claims.FindApproved(ctx, "7")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Claims.Create(ctx, &domain.Claim{AppointmentID: "7", Partner: "Bravo", Status: domain.ClaimStatusRejected}))
	require.NoError(t, store.Claims.Create(ctx, &domain.Claim{AppointmentID: "7", Partner: "Alpha", Status: domain.ClaimStatusApproved}))

	approved, err := store.Claims.FindApproved(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", approved.Partner)

	all, err := store.Claims.ListByAppointment(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestServerErrors(t *testing.T) {
	realm, store := newTestStore(t)
	realm.mu.Lock()
	realm.fail = true
	realm.mu.Unlock()

	_, err := store.Rounds.ListActive(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Pinger.Ping(ctx), context.Canceled)
}

func TestOnlyTemporaryErrorsAreRetried(t *testing.T) {
	realm, store := newTestStore(t)
	resilient := repository.WithPolicy(store, resilience.Policy{
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	tests := map[string]struct {
		status      int
		requests    int
		unavailable bool
	}{
		"bad request":  {status: http.StatusBadRequest, requests: 1},
		"unauthorized": {status: http.StatusUnauthorized, requests: 1},
		"throttled":    {status: http.StatusTooManyRequests, requests: 3, unavailable: true},
		"server error": {status: http.StatusBadGateway, requests: 3, unavailable: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			realm.mu.Lock()
			realm.fail = true
			realm.failStatus = tc.status
			realm.requests = 0
			realm.mu.Unlock()

			_, err := resilient.Rounds.ListActive(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.unavailable, errors.Is(err, domain.ErrStoreUnavailable))

			realm.mu.Lock()
			defer realm.mu.Unlock()
			assert.Equal(t, tc.requests, realm.requests)
		})
	}
}
