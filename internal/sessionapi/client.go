// Package sessionapi is the HTTP client for the remote session service,
// the authoritative store of session records. The service itself is a
// black box; this package only speaks its read/write contract.
package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elicitworks/canvass/internal/transcript"
)

// ErrNotFound is returned when the remote record does not exist.
var ErrNotFound = errors.New("session not found")

// SessionRecord is the remote, authoritative session state. Read-only on
// this side; used by the admin detail view.
type SessionRecord struct {
	SessionID  string              `json:"sessionId"`
	ProlificID string              `json:"prolificId"`
	Status     transcript.Status   `json:"status"`
	QAPairs    []transcript.QAPair `json:"qaPairs"`
}

// Client talks JSON over HTTP to the session service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient builds a client for the service at baseURL. token may be empty
// when the service is unauthenticated.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// CreateSession registers a new session record and returns the identifier
// the service assigned to it.
func (c *Client) CreateSession(ctx context.Context, prolificID string, pairs []transcript.QAPair) (string, error) {
	body := map[string]any{
		"prolificId": prolificID,
		"qaPairs":    pairs,
	}

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("create session: service returned empty sessionId")
	}

	c.logger.Info("remote session created", "session_id", resp.SessionID)
	return resp.SessionID, nil
}

// UpdateSession overwrites the record's QA pair list and status. The full
// current list is always sent, so last-write-wins converges to the latest
// local truth even when turn saves complete out of order.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, pairs []transcript.QAPair, status transcript.Status) error {
	body := map[string]any{
		"qaPairs": pairs,
		"status":  status,
	}

	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/sessions/"+sessionID, body, &resp); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("update session: service rejected write")
	}
	return nil
}

// FetchSessionStatus reads the record's status. An absent record maps to
// StatusUnknown rather than an error: a transient remote hiccup must not
// strand an in-progress participant.
func (c *Client) FetchSessionStatus(ctx context.Context, sessionID string) (transcript.Status, error) {
	var resp struct {
		Status transcript.Status `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/status", nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return transcript.StatusUnknown, nil
	}
	if err != nil {
		return transcript.StatusUnknown, fmt.Errorf("fetch session status: %w", err)
	}
	if resp.Status == "" {
		return transcript.StatusUnknown, nil
	}
	return resp.Status, nil
}

// FetchSession reads the full record for the admin detail view. Outside
// the interview's write path.
func (c *Client) FetchSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &rec); err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
