package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Logger *zap.Logger
	// OnLogout runs once per Authenticated to Unauthenticated transition,
	// typically to redirect to the entry page.
	OnLogout func(ctx context.Context)
}

// Controller is the single writer of the access token.
//
// Controller methods are safe for concurrent use. Writes (SetToken, Logout)
// are serialized end to end so the persisted token never lags behind the
// in-memory one in the wrong order.
type Controller struct {
	store    TokenStore
	logger   *zap.Logger
	onLogout func(ctx context.Context)

	writeMu sync.Mutex

	mu            sync.RWMutex
	token         string
	authenticated bool
	user          json.RawMessage
	loaded        bool
	// epoch advances on every explicit SetToken and Logout. A refresh that
	// started under an older epoch may not commit.
	epoch uint64
}

// NewController creates a controller over store. A nil store uses a
// MemoryStore.
func NewController(store TokenStore, cfg ControllerConfig) *Controller {
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:    store,
		logger:   logger,
		onLogout: cfg.OnLogout,
	}
}

// Load hydrates the in-memory session from the persisted token. Readers and
// Logout call it lazily; call it eagerly at startup to surface store errors.
func (c *Controller) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Controller) loadLocked(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	token, found, err := c.store.Get(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	c.loaded = true
	if found && token != "" {
		c.token = token
		c.authenticated = true
	}
	return nil
}

// ensureLoaded runs the lazy load for accessors that take no context. A
// store failure is logged and leaves the session unauthenticated.
func (c *Controller) ensureLoaded(ctx context.Context) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return
	}
	if err := c.Load(ctx); err != nil {
		c.logger.Warn("authclient: token store read failed", zap.Error(err))
	}
}

// GetToken returns the current bearer token, or false when there is none.
func (c *Controller) GetToken(ctx context.Context) (string, bool) {
	c.mu.RLock()
	token, loaded := c.token, c.loaded
	c.mu.RUnlock()

	if token != "" || loaded {
		return token, token != ""
	}

	if err := c.Load(ctx); err != nil {
		c.logger.Warn("authclient: token store read failed", zap.Error(err))
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// SetToken commits token to memory and the store, and marks the session
// authenticated. When persistence fails the in-memory token is still
// updated and the wrapped store error is returned.
func (c *Controller) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
	return c.commitLocked(ctx, token)
}

// Epoch returns the current session epoch. Capture it before a refresh and
// hand it to CommitRefresh.
func (c *Controller) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// CommitRefresh stores a refreshed token unless the session was logged out
// or replaced since epoch, in which case ErrSessionReplaced is returned and
// nothing changes.
func (c *Controller) CommitRefresh(ctx context.Context, token string, epoch uint64) error {
	if token == "" {
		return ErrEmptyToken
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	current := c.epoch
	c.mu.RUnlock()
	if current != epoch {
		c.logger.Info("authclient: refreshed token discarded",
			zap.String("token_fp", Fingerprint(token)),
			zap.Uint64("epoch", epoch),
			zap.Uint64("current_epoch", current),
		)
		return ErrSessionReplaced
	}
	return c.commitLocked(ctx, token)
}

func (c *Controller) commitLocked(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.authenticated = true
	c.loaded = true
	c.mu.Unlock()

	if err := c.store.Set(ctx, token); err != nil {
		c.logger.Warn("authclient: token persist failed",
			zap.String("token_fp", Fingerprint(token)),
			zap.Error(err),
		)
		return fmt.Errorf("persist token: %w", err)
	}

	c.logger.Debug("authclient: token committed", zap.String("token_fp", Fingerprint(token)))
	return nil
}

// SetUser records the opaque profile snapshot. It is ignored while
// unauthenticated.
func (c *Controller) SetUser(user json.RawMessage) {
	c.ensureLoaded(context.Background())
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return
	}
	c.user = append(json.RawMessage(nil), user...)
}

// IsAuthenticated reports whether a token is present and not invalidated.
// The first call may read the store.
func (c *Controller) IsAuthenticated() bool {
	c.ensureLoaded(context.Background())
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated && c.token != ""
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.ensureLoaded(context.Background())
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Session{
		AccessToken:   c.token,
		Authenticated: c.authenticated && c.token != "",
		User:          append(json.RawMessage(nil), c.user...),
	}
}

// Logout clears the session and the persisted token. It is idempotent: only
// the call that actually ends an authenticated session triggers OnLogout.
// The returned error reports a store failure; the in-memory session is
// cleared regardless.
func (c *Controller) Logout(ctx context.Context) error {
	c.writeMu.Lock()

	// a persisted session that was never read still counts as authenticated
	if err := c.loadLocked(ctx); err != nil {
		c.logger.Warn("authclient: token store read failed", zap.Error(err))
	}

	c.mu.Lock()
	wasAuthenticated := c.authenticated || c.token != ""
	c.epoch++
	c.token = ""
	c.authenticated = false
	c.user = nil
	c.loaded = true
	c.mu.Unlock()

	err := c.store.Remove(ctx)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("authclient: token removal failed", zap.Error(err))
		err = fmt.Errorf("remove token: %w", err)
	}

	if wasAuthenticated {
		c.logger.Info("authclient: session ended")
		if c.onLogout != nil {
			c.onLogout(ctx)
		}
	}
	return err
}
