package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/session"
)

// Client talks to a running daemon's API.
type Client struct {
	base string
	http *http.Client
}

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.StatusCode)
}

// NewClient accepts either a listen address ("127.0.0.1:8765") or a URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		// finalize waits for the systematization round trip
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &snap)
	return snap, err
}

func (c *Client) Toggle(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/session/toggle", nil, &snap)
	return snap, err
}

func (c *Client) Finalize(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/session/finalize", nil, &snap)
	return snap, err
}

func (c *Client) Clear(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/session/clear", nil, &snap)
	return snap, err
}

func (c *Client) SetPatient(ctx context.Context, name string, age int) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPut, "/api/session/patient", PatientRequest{Name: name, Age: age}, &snap)
	return snap, err
}

func (c *Client) SetScenario(ctx context.Context, scenario string) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPut, "/api/session/scenario", ScenarioRequest{Scenario: scenario}, &snap)
	return snap, err
}

func (c *Client) Export(ctx context.Context, kind models.DocumentKind) (string, error) {
	var resp ExportResponse
	err := c.do(ctx, http.MethodPost, "/api/session/export/"+url.PathEscape(string(kind)), nil, &resp)
	return resp.Path, err
}

func (c *Client) Profile(ctx context.Context) (ProfileView, error) {
	var view ProfileView
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &view)
	return view, err
}

func (c *Client) SaveProfile(ctx context.Context, view ProfileView) (ProfileView, error) {
	var out ProfileView
	err := c.do(ctx, http.MethodPut, "/api/profile", view, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.do(ctx, http.MethodGet, "/api/history?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *Client) HistoryRecord(ctx context.Context, id string) (HistoryRecord, error) {
	var out HistoryRecord
	err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Watch streams snapshots to fn until ctx ends or the daemon closes the
// stream. A close by the daemon returns nil.
func (c *Client) Watch(ctx context.Context, fn func(session.Snapshot)) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/api/session/events"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to %s: %w (HTTP %d)", wsURL, err, resp.StatusCode)
		}
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if ev.Type == "snapshot" {
			fn(ev.Snapshot)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsConflict reports a 409 reply, such as a busy session.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}
