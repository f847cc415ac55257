// Package quickbase adapts the legacy Quickbase tables to the typed
// repositories. Quickbase addresses fields by integer id and spells statuses
// in title case; both details stay inside this package.
package quickbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

const DefaultBaseURL = "https://api.quickbase.com/v1"

// Tables names the Quickbase table ids.
type Tables struct {
	Appointments  string
	Claims        string
	PreviewRounds string
}

// Config configures the adapter.
type Config struct {
	BaseURL string
	Realm   string
	Token   string
	Tables  Tables
	Timeout time.Duration
}

// APIError is a non-2xx answer from Quickbase.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quickbase: status %d: %s", e.Status, e.Body)
}

// Temporary reports whether the request may succeed when repeated. Other
// 4xx answers reject the request itself.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Client talks to the Quickbase REST API.
type Client struct {
	cfg Config
}

// New builds a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg}
}

// Bundle exposes the adapter through the repository interfaces.
func (c *Client) Bundle() *repository.Store {
	return &repository.Store{
		Backend:      "quickbase",
		Appointments: &appointmentTable{c: c, table: c.cfg.Tables.Appointments},
		Rounds:       &roundTable{c: c, table: c.cfg.Tables.PreviewRounds},
		Claims:       &claimTable{c: c, table: c.cfg.Tables.Claims},
		Pinger:       c,
	}
}

// Ping runs a cheap query against the appointments table.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.query(ctx, c.cfg.Tables.Appointments, "{3.GT.0}", []int{fieldRecordID}, 1)
	return err
}

type fieldValue struct {
	Value any `json:"value"`
}

type record map[string]fieldValue

func (r record) set(fid int, v any) {
	r[strconv.Itoa(fid)] = fieldValue{Value: v}
}

func (r record) str(fid int) string {
	fv, ok := r[strconv.Itoa(fid)]
	if !ok || fv.Value == nil {
		return ""
	}
	switch v := fv.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (r record) int(fid int) int {
	n, err := strconv.Atoi(r.str(fid))
	if err != nil {
		return 0
	}
	return n
}

func (r record) time(fid int) time.Time {
	raw := r.str(fid)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

type upsertRequest struct {
	To             string   `json:"to"`
	Data           []record `json:"data"`
	FieldsToReturn []int    `json:"fieldsToReturn,omitempty"`
}

type upsertResponse struct {
	Data []record `json:"data"`
}

type queryOptions struct {
	Top int `json:"top,omitempty"`
}

type queryRequest struct {
	From    string        `json:"from"`
	Select  []int         `json:"select"`
	Where   string        `json:"where,omitempty"`
	Options *queryOptions `json:"options,omitempty"`
}

type queryResponse struct {
	Data []record `json:"data"`
}

// upsert creates a record, or updates it when rec carries the record id.
func (c *Client) upsert(ctx context.Context, table string, rec record) (string, error) {
	var resp upsertResponse
	req := upsertRequest{To: table, Data: []record{rec}, FieldsToReturn: []int{fieldRecordID}}
	if err := c.post(ctx, "/records", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", errors.New("quickbase: upsert returned no records")
	}
	return resp.Data[0].str(fieldRecordID), nil
}

func (c *Client) query(ctx context.Context, table, where string, fields []int, top int) ([]record, error) {
	req := queryRequest{From: table, Select: fields, Where: where}
	if top > 0 {
		req.Options = &queryOptions{Top: top}
	}
	var resp queryResponse
	if err := c.post(ctx, "/records/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.Post(c.cfg.BaseURL + path)
	agent.Set("QB-Realm-Hostname", c.cfg.Realm)
	agent.Set("Authorization", "QB-USER-TOKEN "+c.cfg.Token)
	agent.JSON(body)
	agent.Timeout(c.timeout(ctx))
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("quickbase: build request: %w", err)
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("quickbase: %s: %w", path, errors.Join(errs...))
	}
	if code == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if code < 200 || code >= 300 {
		return &APIError{Status: code, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("quickbase: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

func recordIDValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func eq(fid int, value string) string {
	return fmt.Sprintf("{%d.EX.'%s'}", fid, strings.ReplaceAll(value, "'", `\'`))
}
