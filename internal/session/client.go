package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"CoachChat/internal/auth"
	"CoachChat/internal/backend"
	"CoachChat/internal/kv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// SessionIDKey is the local storage key holding the current session identifier
const SessionIDKey = "onboarding_session_id"

const maxErrorBody = 512

// Config holds the collaborators of a Client
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     auth.TokenProvider
	Store      kv.Store
	State      *State
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client talks to the coaching backend and owns session identity, phase and state
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
	store      kv.Store
	state      *State
	logger     *slog.Logger
	tracer     trace.Tracer

	duration metric.Float64Histogram
	failures metric.Int64Counter
	fetches  singleflight.Group
}

// NewClient creates a Client. State defaults to a fresh NewState.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		tokens:     cfg.Tokens,
		store:      cfg.Store,
		state:      cfg.State,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.state == nil {
		c.state = NewState()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("coach")
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("coach")
	}

	var err error
	c.duration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	c.failures, err = meter.Int64Counter(
		"coach.session.errors",
		metric.WithDescription("Failed session client operations by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return c, nil
}

// State returns the shared session state this client mutates
func (c *Client) State() *State {
	return c.state
}

// Restore loads the persisted session identifier, if any
func (c *Client) Restore(ctx context.Context) error {
	id, ok, err := c.store.Get(ctx, SessionIDKey)
	if err != nil {
		return fmt.Errorf("restore session id: %w", err)
	}
	if ok && id != "" {
		c.state.SetID(id)
		c.logger.Info("restored session", "session_id", id)
	}
	return nil
}

// CreateSession asks the backend for a new session and makes it current,
// replacing any previously persisted identifier.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	const op = "session.create"

	var resp backend.CreateSessionResponse
	if err := c.do(ctx, op, http.MethodPost, backend.PathSession, nil, &resp); err != nil {
		return "", err
	}

	id := strings.TrimSpace(resp.SessionID)
	if id == "" {
		return "", c.fail(ctx, newError(KindProtocol, op, errors.New("response missing session_id")))
	}

	if err := c.store.Set(ctx, SessionIDKey, id); err != nil {
		c.logger.Warn("failed to persist session id", "session_id", id, "error", err)
	}
	c.state.SetID(id)

	c.logger.Info("created session", "session_id", id)
	return id, nil
}

// FetchState retrieves the authoritative state and applies phase and snapshot together.
// Concurrent calls for the same session share one request. When the session is
// replaced before the response arrives nothing is applied and the error wraps
// ErrSessionChanged.
func (c *Client) FetchState(ctx context.Context) (Snapshot, error) {
	const op = "session.fetch_state"

	id := c.state.ID()
	if id == "" {
		return Snapshot{}, c.fail(ctx, newError(KindPrecondition, op, ErrNoSession))
	}

	v, err, shared := c.fetches.Do(id, func() (any, error) {
		return c.fetchState(ctx, id)
	})
	if shared {
		c.logger.Debug("coalesced state fetch", "session_id", id)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (c *Client) fetchState(ctx context.Context, id string) (Snapshot, error) {
	const op = "session.fetch_state"

	var resp backend.StateResponse
	if err := c.do(ctx, op, http.MethodGet, backend.StatePath(id), nil, &resp); err != nil {
		return Snapshot{}, err
	}
	if resp.State == nil {
		return Snapshot{}, c.fail(ctx, newError(KindProtocol, op, errors.New("response missing state")))
	}

	snap := DecodeSnapshot(resp.State)
	if !snap.HasPhase {
		return Snapshot{}, c.fail(ctx, newError(KindProtocol, op, errors.New("state missing phase")))
	}

	if !c.apply(id, snap) {
		return Snapshot{}, c.fail(ctx, newError(KindPrecondition, op, ErrSessionChanged))
	}
	return snap, nil
}

// SendMessage posts text to the current session and returns the reply.
// A state object in the response is applied exactly like FetchState. The reply
// belongs to the session that was current when the call started; callers that
// keep per-session transcripts must check State().ID() before storing it.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	const op = "session.send_message"

	text = strings.TrimSpace(text)
	if text == "" {
		return "", c.fail(ctx, newError(KindPrecondition, op, ErrEmptyMessage))
	}
	id := c.state.ID()
	if id == "" {
		return "", c.fail(ctx, newError(KindPrecondition, op, ErrNoSession))
	}

	var resp backend.ChatResponse
	if err := c.do(ctx, op, http.MethodPost, backend.ChatPath(id), backend.ChatRequest{Message: text}, &resp); err != nil {
		return "", err
	}
	if resp.Reply == nil {
		return "", c.fail(ctx, newError(KindProtocol, op, errors.New("response missing reply")))
	}

	if raw := resp.DecodedState(); raw != nil {
		if snap := DecodeSnapshot(raw); snap.HasPhase {
			c.apply(id, snap)
		}
	}

	return *resp.Reply, nil
}

// ClearSession forgets the current session locally and removes the persisted identifier.
// Transcripts stored under the old identifier are left in place.
func (c *Client) ClearSession(ctx context.Context) error {
	old := c.state.ID()
	c.state.Reset()

	if err := c.store.Delete(ctx, SessionIDKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.logger.Info("cleared session", "session_id", old)
	return nil
}

func (c *Client) apply(id string, snap Snapshot) bool {
	if !c.state.Apply(id, snap) {
		c.logger.Info("dropped state for inactive session", "session_id", id, "phase", snap.Phase)
		return false
	}
	c.logger.Debug("applied state", "session_id", id, "phase", snap.Phase)
	return true
}

// do performs one authenticated JSON round trip. Every failure is returned as *Error.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	))
	defer span.End()

	token, err := auth.Resolve(ctx, c.tokens)
	if err != nil {
		return c.failSpan(ctx, span, newError(KindAuth, op, err))
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return c.failSpan(ctx, span, newError(KindProtocol, op, fmt.Errorf("failed to marshal request: %w", err)))
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return c.failSpan(ctx, span, newError(KindNetwork, op, fmt.Errorf("failed to create request: %w", err)))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failSpan(ctx, span, newError(KindNetwork, op, fmt.Errorf("failed to send request: %w", err)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Int("http.response.status_code", resp.StatusCode),
	))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		return c.failSpan(ctx, span, newError(KindNetwork, op, fmt.Errorf("failed to read response: %w", err)))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return c.failSpan(ctx, span, newError(KindAuth, op, fmt.Errorf("backend rejected credentials: %s", resp.Status)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.failSpan(ctx, span, newError(KindProtocol, op, fmt.Errorf("API error: %s - %s", resp.Status, truncate(respBody))))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return c.failSpan(ctx, span, newError(KindProtocol, op, fmt.Errorf("failed to unmarshal response: %w", err)))
	}
	return nil
}

func (c *Client) failSpan(ctx context.Context, span trace.Span, e *Error) error {
	span.RecordError(e)
	span.SetStatus(codes.Error, e.Kind.String())
	return c.fail(ctx, e)
}

func (c *Client) fail(ctx context.Context, e *Error) error {
	c.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", e.Op),
		attribute.String("kind", e.Kind.String()),
	))
	c.logger.Warn("session client call failed", "op", e.Op, "kind", e.Kind.String(), "error", e.Err)
	return e
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
