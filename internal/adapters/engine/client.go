// Package engine is the HTTP client of the external match-execution engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout         = 5 * time.Second
	defaultMaxConnsPerHost = 100
	maxIdleConnDuration    = time.Minute
)

// Operation names used in logs and metrics.
const (
	opStart  = "start_match"
	opStatus = "get_status"
	opResult = "get_result"
)

// StartRequest is the engine's match creation payload.
type StartRequest struct {
	MatchID    string           `json:"match_id"`
	Difficulty model.Difficulty `json:"difficulty"`
	TeamSize   int              `json:"team_size"`
	TeamA      []string         `json:"team_a"`
	TeamB      []string         `json:"team_b"`
}

// StatusResponse is the engine's view of a match.
type StatusResponse struct {
	MatchID string `json:"match_id"`
	State   string `json:"state"`
}

// Client talks to the match engine over HTTP.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
	logger  logger.Logger
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			MaxIdleConnDuration: maxIdleConnDuration,
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("engine")
	}
	c.http.ReadTimeout = c.timeout
	c.http.WriteTimeout = c.timeout
	return c
}

// StartMatch asks the engine to create and run a match.
func (c *Client) StartMatch(ctx context.Context, m model.Match) error {
	body, err := json.Marshal(StartRequest{
		MatchID:    m.ID,
		Difficulty: m.Difficulty,
		TeamSize:   m.TeamSize,
		TeamA:      m.TeamA,
		TeamB:      m.TeamB,
	})
	if err != nil {
		return fmt.Errorf("encode start request: %w", err)
	}
	return c.do(ctx, opStart, fasthttp.MethodPost, "/matches", body, nil)
}

// GetMatchStatus returns the engine's raw state for a match.
func (c *Client) GetMatchStatus(ctx context.Context, matchID string) (string, error) {
	var out StatusResponse
	if err := c.do(ctx, opStatus, fasthttp.MethodGet, "/matches/"+url.PathEscape(matchID)+"/status", nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// GetMatchResult returns the final per-player statistics of a match.
func (c *Client) GetMatchResult(ctx context.Context, matchID string) (model.MatchResult, error) {
	var out model.MatchResult
	if err := c.do(ctx, opResult, fasthttp.MethodGet, "/matches/"+url.PathEscape(matchID)+"/result", nil, &out); err != nil {
		return model.MatchResult{}, err
	}
	if out.MatchID == "" {
		out.MatchID = matchID
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.http.DoDeadline(req, resp, deadline)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		err = classifyTransport(err)
		metrics.RecordEngineRequest(op, outcomeOf(err), latency)
		c.logger.Debug(ctx, "engine request failed",
			logger.String("op", op),
			logger.String("path", path),
			logger.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := classifyStatus(resp.StatusCode()); err != nil {
		metrics.RecordEngineRequest(op, outcomeOf(err), latency)
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordEngineRequest(op, "ok", latency)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func classifyTransport(err error) error {
	var ne net.Error
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", model.ErrEngineTimeout, err)
	}
	return fmt.Errorf("%w: %w", model.ErrEngineUnavailable, err)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == fasthttp.StatusNotFound:
		return model.ErrMatchNotFound
	case code == fasthttp.StatusRequestTimeout || code == fasthttp.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", model.ErrEngineTimeout, code)
	case code == fasthttp.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d", model.ErrEngineUnavailable, code)
	default:
		return fmt.Errorf("%w: engine rejected request with status %d", model.ErrInvalidInput, code)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, model.ErrEngineTimeout):
		return "timeout"
	case errors.Is(err, model.ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrMatchNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}
