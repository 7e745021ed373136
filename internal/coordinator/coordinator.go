package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/refresh"
	"github.com/MrEthical07/authclient/session"
)

// DefaultRefreshTimeout bounds one refresh call.
const DefaultRefreshTimeout = 15 * time.Second

// Event is a coordinator transition reported to Deps.Observe.
type Event int

const (
	EventRequest Event = iota
	EventExpiryDetected
	EventRefreshStarted
	EventRefreshSucceeded
	EventRefreshFailed
	EventQueued
	EventReplaySucceeded
	EventReplayUnauthorized
	EventStaleReplay
	EventSessionExpired
)

// Doer sends one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource is the session capability the coordinator needs. Epoch is
// captured before a refresh; CommitRefresh fails with
// session.ErrSessionReplaced when a logout or login happened in between.
type TokenSource interface {
	GetToken(ctx context.Context) (string, bool)
	Epoch() uint64
	CommitRefresh(ctx context.Context, token string, epoch uint64) error
}

// Deps captures coordinator collaborators.
type Deps struct {
	Doer      Doer
	Refresher refresh.Refresher
	Tokens    TokenSource
	// OnSessionExpired runs once per failed refresh and once per generation
	// whose replays came back unauthorized.
	OnSessionExpired func(ctx context.Context, cause error)
	RefreshTimeout   time.Duration
	Logger           *zap.Logger
	Observe          func(Event)
	ObserveLatency   func(time.Duration)
	Audit            func(ctx context.Context, event audit.Event)
}

type result struct {
	resp *http.Response
	err  error
}

// pending is one suspended request waiting for the in-flight refresh.
type pending struct {
	req    *http.Request
	settle chan result
}

// flight is the refreshing state: the pending queue plus the once-guard for
// session expiry.
type flight struct {
	queue      []*pending
	expireOnce sync.Once
	// epoch is the session epoch the refresh started under.
	epoch uint64
}

// Coordinator serializes token refresh across concurrent requests.
type Coordinator struct {
	deps Deps

	mu         sync.Mutex
	flight     *flight
	generation uint64
}

// New creates a coordinator. Doer defaults to http.DefaultClient.
func New(deps Deps) (*Coordinator, error) {
	if deps.Refresher == nil {
		return nil, errors.New("coordinator: refresher required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("coordinator: token source required")
	}
	if deps.Doer == nil {
		deps.Doer = http.DefaultClient
	}
	if deps.RefreshTimeout <= 0 {
		deps.RefreshTimeout = DefaultRefreshTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{deps: deps}, nil
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flight != nil
}

// Generation returns the number of successful refreshes.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Do sends req with the current bearer token and recovers from one token
// expiry. Non-401 responses are returned untouched. The caller owns the
// returned response body.
func (c *Coordinator) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		ctx = req.Context()
	}
	base, err := replayable(ctx, req)
	if err != nil {
		return nil, err
	}
	if base.Header.Get(RequestIDHeader) == "" {
		id := RequestIDFromContext(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		base.Header.Set(RequestIDHeader, id)
	}
	c.observe(EventRequest)

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	token, _ := c.deps.Tokens.GetToken(ctx)
	resp, err := c.send(base, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	drainClose(resp)
	c.observe(EventExpiryDetected)
	return c.recoverExpiry(ctx, base, gen)
}

func (c *Coordinator) recoverExpiry(ctx context.Context, base *http.Request, gen uint64) (*http.Response, error) {
	c.mu.Lock()

	if f := c.flight; f != nil {
		p := &pending{req: base, settle: make(chan result, 1)}
		f.queue = append(f.queue, p)
		c.mu.Unlock()

		c.observe(EventQueued)
		return c.wait(ctx, p)
	}

	if c.generation != gen {
		// A refresh finished after this attempt read its token.
		c.mu.Unlock()
		c.observe(EventStaleReplay)
		token, ok := c.deps.Tokens.GetToken(ctx)
		if !ok {
			return nil, fmt.Errorf("%w: no token after refresh", ErrSessionExpired)
		}
		return c.replay(ctx, base, token, nil)
	}

	f := &flight{epoch: c.deps.Tokens.Epoch()}
	c.flight = f
	c.mu.Unlock()

	return c.lead(ctx, base, f)
}

func (c *Coordinator) wait(ctx context.Context, p *pending) (*http.Response, error) {
	select {
	case r := <-p.settle:
		return r.resp, r.err
	case <-ctx.Done():
		go func() {
			r := <-p.settle
			drainClose(r.resp)
		}()
		return nil, ctx.Err()
	}
}

func (c *Coordinator) lead(ctx context.Context, base *http.Request, f *flight) (*http.Response, error) {
	c.observe(EventRefreshStarted)
	detached := context.WithoutCancel(ctx)

	refreshCtx, cancel := context.WithTimeout(detached, c.deps.RefreshTimeout)
	start := time.Now()
	token, err := c.deps.Refresher.Refresh(refreshCtx)
	cancel()
	if c.deps.ObserveLatency != nil {
		c.deps.ObserveLatency(time.Since(start))
	}

	superseded := false
	if err == nil {
		setErr := c.deps.Tokens.CommitRefresh(detached, token, f.epoch)
		switch {
		case errors.Is(setErr, session.ErrSessionReplaced):
			superseded = true
		case setErr != nil:
			c.deps.Logger.Warn("authclient: refreshed token not persisted",
				zap.String("token_fp", session.Fingerprint(token)),
				zap.Error(setErr),
			)
		}
	}

	c.mu.Lock()
	queue := f.queue
	f.queue = nil
	c.flight = nil
	if err == nil && !superseded {
		c.generation++
	}
	c.mu.Unlock()

	requestID := base.Header.Get(RequestIDHeader)

	// The session ended or was replaced while refreshing. The waiting
	// requests belonged to the old session; the current one is left alone.
	if superseded {
		c.observe(EventRefreshFailed)
		cause := fmt.Errorf("%w: %v", ErrSessionExpired, session.ErrSessionReplaced)
		c.deps.Logger.Info("authclient: refresh superseded by logout or login",
			zap.String("request_id", requestID),
			zap.Int("queued", len(queue)),
		)
		c.emit(detached, audit.Event{
			EventType: audit.EventRefreshFailure,
			RequestID: requestID,
			Error:     session.ErrSessionReplaced.Error(),
			Metadata:  map[string]string{"queued": fmt.Sprint(len(queue))},
		})
		for _, p := range queue {
			p.settle <- result{err: cause}
		}
		return nil, cause
	}

	if err != nil {
		c.observe(EventRefreshFailed)
		cause := fmt.Errorf("%w: %v", ErrSessionExpired, err)
		c.deps.Logger.Warn("authclient: token refresh failed",
			zap.String("request_id", requestID),
			zap.Int("queued", len(queue)),
			zap.Error(err),
		)
		c.emit(detached, audit.Event{
			EventType: audit.EventRefreshFailure,
			RequestID: requestID,
			Error:     err.Error(),
			Metadata:  map[string]string{"queued": fmt.Sprint(len(queue))},
		})

		for _, p := range queue {
			p.settle <- result{err: cause}
		}
		c.expire(detached, f, cause)
		return nil, cause
	}

	c.observe(EventRefreshSucceeded)
	c.deps.Logger.Info("authclient: token refreshed",
		zap.String("request_id", requestID),
		zap.String("token_fp", session.Fingerprint(token)),
		zap.Int("queued", len(queue)),
	)
	c.emit(detached, audit.Event{
		EventType:        audit.EventRefreshSuccess,
		RequestID:        requestID,
		TokenFingerprint: session.Fingerprint(token),
		Success:          true,
		Metadata:         map[string]string{"queued": fmt.Sprint(len(queue))},
	})

	for _, p := range queue {
		go func(p *pending) {
			resp, err := c.replay(p.req.Context(), p.req, token, f)
			p.settle <- result{resp: resp, err: err}
		}(p)
	}
	return c.replay(ctx, base, token, f)
}

// replay sends base once more with token. A 401 here is terminal.
func (c *Coordinator) replay(ctx context.Context, base *http.Request, token string, f *flight) (*http.Response, error) {
	resp, err := c.send(base, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		c.observe(EventReplaySucceeded)
		return resp, nil
	}

	drainClose(resp)
	c.observe(EventReplayUnauthorized)
	cause := fmt.Errorf("%w: replay unauthorized", ErrSessionExpired)
	c.expire(context.WithoutCancel(ctx), f, cause)
	return nil, cause
}

func (c *Coordinator) send(base *http.Request, token string) (*http.Response, error) {
	r, err := attempt(base, token)
	if err != nil {
		return nil, err
	}
	return c.deps.Doer.Do(r)
}

func (c *Coordinator) expire(ctx context.Context, f *flight, cause error) {
	run := func() {
		c.observe(EventSessionExpired)
		c.emit(ctx, audit.Event{
			EventType: audit.EventSessionExpired,
			Error:     cause.Error(),
		})
		if c.deps.OnSessionExpired != nil {
			c.deps.OnSessionExpired(ctx, cause)
		}
	}
	if f == nil {
		run()
		return
	}
	f.expireOnce.Do(run)
}

func (c *Coordinator) observe(e Event) {
	if c.deps.Observe != nil {
		c.deps.Observe(e)
	}
}

func (c *Coordinator) emit(ctx context.Context, e audit.Event) {
	if c.deps.Audit != nil {
		c.deps.Audit(ctx, e)
	}
}
