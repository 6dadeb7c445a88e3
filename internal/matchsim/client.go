package matchsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client drives the bastion HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// StatusError is a response with an unexpected status code.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

// AcceptMatch posts a new match.
func (c *Client) AcceptMatch(ctx context.Context, m MatchRequest) error {
	return c.do(ctx, http.MethodPost, "/matches", m, http.StatusCreated, nil)
}

// Tick posts one tick of health results.
func (c *Client) Tick(ctx context.Context, matchID string, results []HealthResult) error {
	body := struct {
		Results []HealthResult `json:"results"`
	}{results}
	return c.do(ctx, http.MethodPost, matchPath(matchID, "ticks"), body, http.StatusAccepted, nil)
}

// CaptureFlag posts a flag capture.
func (c *Client) CaptureFlag(ctx context.Context, matchID string, f FlagCapture) error {
	return c.do(ctx, http.MethodPost, matchPath(matchID, "flags"), f, http.StatusAccepted, nil)
}

// EndMatch ends a match, scheduling its settlement.
func (c *Client) EndMatch(ctx context.Context, matchID string) error {
	return c.do(ctx, http.MethodPost, matchPath(matchID, "end"), nil, http.StatusAccepted, nil)
}

// Rating reads a player's rating.
func (c *Client) Rating(ctx context.Context, playerID string) (Rating, error) {
	var r Rating
	err := c.do(ctx, http.MethodGet, "/players/"+url.PathEscape(playerID)+"/rating", nil, http.StatusOK, &r)
	return r, err
}

// Leaderboard reads the top n players.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]Entry, error) {
	var out []Entry
	err := c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(n), nil, http.StatusOK, &out)
	return out, err
}

func matchPath(matchID, action string) string {
	return "/matches/" + url.PathEscape(matchID) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
