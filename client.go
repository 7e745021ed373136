package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/coordinator"
	"github.com/MrEthical07/authclient/internal/limiters"
	"github.com/MrEthical07/authclient/session"
)

// Action is a rate-limited action class. Each class has its own gate.
type Action string

const (
	ActionLogin      Action = "login"
	ActionSignup     Action = "signup"
	ActionProfile    Action = "profile"
	ActionPost       Action = "post"
	ActionComment    Action = "comment"
	ActionLike       Action = "like"
	ActionDelete     Action = "delete"
	ActionMembership Action = "membership"
)

// Actions lists every known action class.
var Actions = []Action{
	ActionLogin,
	ActionSignup,
	ActionProfile,
	ActionPost,
	ActionComment,
	ActionLike,
	ActionDelete,
	ActionMembership,
}

// Valid reports whether a is a known action class.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// RateLimitState is the attempt counter of one action gate.
type RateLimitState struct {
	Attempts int
	Cooldown bool
}

// Call is one guarded operation. The returned response is inspected for 429
// and 2xx before it reaches the caller.
type Call func(ctx context.Context) (*http.Response, error)

// Client sends authenticated requests. It is safe for concurrent use and is
// created with [Builder.Build].
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger

	session     *session.Controller
	coordinator *coordinator.Coordinator
	gates       *limiters.Set
	metrics     *Metrics
	audit       *audit.Dispatcher

	ownedRedis redis.UniversalClient

	closed    atomic.Bool
	closeOnce sync.Once
}

// Do sends req with the current access token. A 401 triggers one shared
// refresh and a single replay; all other statuses are returned untouched.
// It returns ErrSessionExpired when the session could not be recovered.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.coordinator.Do(ctx, req)
}

// DoAnonymous sends req without a bearer token and without refresh handling.
// Use it for endpoints where 401 means bad credentials.
func (c *Client) DoAnonymous(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ctx == nil {
		ctx = req.Context()
	}
	r := req.Clone(ctx)
	r.Header.Del("Authorization")
	if r.Header.Get(RequestIDHeader) == "" {
		id := RequestIDFromContext(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		r.Header.Set(RequestIDHeader, id)
	}
	return c.httpClient.Do(r)
}

// Guard runs call behind the gate for action. While the gate is cooling down
// call is not invoked and a *RateLimitError wrapping ErrRateLimited is
// returned. A 429 response forces the cooldown, its body is closed and a
// *RateLimitError wrapping ErrRemoteRateLimited is returned. A 2xx response
// resets the gate when configured.
func (c *Client) Guard(ctx context.Context, action Action, call Call) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	gate := c.gates.Gate(string(action))
	if gate == nil {
		return nil, ErrClientClosed
	}

	if err := gate.Allow(); err != nil {
		c.metrics.Inc(MetricRateLimitedLocal)
		c.logger.Debug("authclient: action in cooldown", zap.String("action", string(action)))
		c.audit.Emit(ctx, audit.Event{
			EventType: audit.EventRateLimitedLocal,
			RequestID: RequestIDFromContext(ctx),
			Action:    string(action),
		})
		return nil, &RateLimitError{Action: action, Label: actionLabelFromContext(ctx)}
	}

	resp, err := call(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: action %s", ErrNilResponse, action)
	}

	gate.ObserveStatus(resp.StatusCode)
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	drainClose(resp)
	c.metrics.Inc(MetricRateLimitedRemote)
	c.logger.Info("authclient: server rate limited action", zap.String("action", string(action)))
	event := audit.Event{
		EventType: audit.EventRateLimitedRemote,
		RequestID: RequestIDFromContext(ctx),
		Action:    string(action),
		Status:    resp.StatusCode,
	}
	if r := resp.Request; r != nil {
		event.RequestID = r.Header.Get(RequestIDHeader)
		event.Method = r.Method
		event.Target = r.URL.Path
	}
	c.audit.Emit(ctx, event)
	return nil, &RateLimitError{Action: action, Label: actionLabelFromContext(ctx), Remote: true}
}

// DoGuarded is Guard around Do.
func (c *Client) DoGuarded(ctx context.Context, action Action, req *http.Request) (*http.Response, error) {
	return c.Guard(ctx, action, func(ctx context.Context) (*http.Response, error) {
		return c.Do(ctx, req)
	})
}

// DoAnonymousGuarded is Guard around DoAnonymous.
func (c *Client) DoAnonymousGuarded(ctx context.Context, action Action, req *http.Request) (*http.Response, error) {
	return c.Guard(ctx, action, func(ctx context.Context) (*http.Response, error) {
		return c.DoAnonymous(ctx, req)
	})
}

// Login installs token as the session's access token and records user.
// The session is authenticated in memory even when persisting the token
// fails; that failure is logged.
func (c *Client) Login(ctx context.Context, token string, user json.RawMessage) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.session.SetToken(ctx, token); err != nil {
		if !errors.Is(err, session.ErrStoreUnavailable) {
			return err
		}
		c.logger.Warn("authclient: login token not persisted",
			zap.String("token_fp", session.Fingerprint(token)),
			zap.Error(err),
		)
	}
	if len(user) > 0 {
		c.session.SetUser(user)
	}
	return nil
}

// SetUser replaces the user snapshot of an authenticated session.
func (c *Client) SetUser(user json.RawMessage) {
	c.session.SetUser(user)
}

// Logout clears the session. It is idempotent; the logout handler runs only
// when a session was actually authenticated.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Token returns the current access token.
func (c *Client) Token(ctx context.Context) (string, bool) {
	return c.session.GetToken(ctx)
}

// Session returns a snapshot of the session.
func (c *Client) Session() session.Session {
	return c.session.Snapshot()
}

func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

// RateLimitState returns the counter of the gate for action.
func (c *Client) RateLimitState(action Action) RateLimitState {
	s := c.gates.Lookup(string(action)).State()
	return RateLimitState{Attempts: s.Attempts, Cooldown: s.Cooldown}
}

// ResetRateLimit clears the gate for action and cancels its cooldown timer.
func (c *Client) ResetRateLimit(action Action) {
	c.gates.Lookup(string(action)).Reset()
}

// BasePath returns the path of the configured BaseURL without the trailing
// slash, e.g. "/backend". It is empty when BaseURL is unset or has no path.
func (c *Client) BasePath() string {
	if c.baseURL == nil {
		return ""
	}
	return strings.TrimSuffix(c.baseURL.Path, "/")
}

// ResolveURL resolves route against the configured BaseURL.
func (c *Client) ResolveURL(route string) string {
	return resolveURL(c.baseURL, route)
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close stops cooldown timers, flushes the audit dispatcher and closes a
// Redis client the builder created. Requests after Close fail with
// ErrClientClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.gates.Close()
		c.audit.Close()
		if c.ownedRedis != nil {
			err = c.ownedRedis.Close()
		}
	})
	return err
}

func resolveURL(base *url.URL, route string) string {
	if base == nil {
		return route
	}
	ref, err := url.Parse(strings.TrimPrefix(route, "/"))
	if err != nil {
		return route
	}
	return base.ResolveReference(ref).String()
}

func drainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
