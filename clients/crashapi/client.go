package crashapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avialab/crashsync/internal/protocol"
)

// Client talks to the crash game REST surface: the one-shot state snapshot
// and the bet/cashout actions. It is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// BetRequest is the body of POST /bet.
type BetRequest struct {
	Amount    float64 `json:"amount"`
	SessionID string  `json:"sessionId,omitempty"`
}

// CashoutRequest is the body of POST /cashout.
type CashoutRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	BetID     string `json:"betId,omitempty"`
}

// FetchState returns the authoritative round+user+balance snapshot. It is
// safe to call concurrently with live event delivery; the caller merges the
// result instead of treating it as strictly superseding.
func (c *Client) FetchState(ctx context.Context, token string) (protocol.Snapshot, error) {
	payload, err := c.do(ctx, http.MethodGet, "/state", token, nil)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.NormalizeSnapshot(payload), nil
}

// PlaceBet submits a bet for the given session.
func (c *Client) PlaceBet(ctx context.Context, token string, req BetRequest) (protocol.ActionResponse, error) {
	payload, err := c.do(ctx, http.MethodPost, "/bet", token, req)
	if err != nil {
		return protocol.ActionResponse{}, err
	}
	return protocol.NormalizeActionResponse(payload), nil
}

// Cashout cashes out the active bet for the given session.
func (c *Client) Cashout(ctx context.Context, token string, req CashoutRequest) (protocol.ActionResponse, error) {
	payload, err := c.do(ctx, http.MethodPost, "/cashout", token, req)
	if err != nil {
		return protocol.ActionResponse{}, err
	}
	return protocol.NormalizeActionResponse(payload), nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode, Body: string(responseBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{Status: resp.StatusCode, Body: string(responseBody)}
	}

	if len(bytes.TrimSpace(responseBody)) == 0 {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(responseBody, &payload); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	return payload, nil
}
