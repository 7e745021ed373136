package authclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/coordinator"
	"github.com/MrEthical07/authclient/internal/limiters"
	"github.com/MrEthical07/authclient/refresh"
	"github.com/MrEthical07/authclient/session"
)

// Scheduler runs cooldown resets. Tests supply a fake one.
type Scheduler = limiters.Scheduler

// Timer is the cancel handle returned by Scheduler.AfterFunc.
type Timer = limiters.Timer

// Builder assembles a Client. It is single use.
type Builder struct {
	config Config

	httpClient *http.Client
	store      session.TokenStore
	redis      redis.UniversalClient
	refresher  refresh.Refresher
	logger     *zap.Logger
	auditSink  AuditSink
	scheduler  Scheduler
	onLogout   func(ctx context.Context)

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient sets the client used for API requests and the refresh call.
// It needs a cookie jar for the refresh credential. When client has none, the
// builder works on a shallow copy with a fresh jar and client is not modified.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTokenStore sets where the access token is persisted. It takes
// precedence over WithRedis.
func (b *Builder) WithTokenStore(store session.TokenStore) *Builder {
	b.store = store
	return b
}

// WithRedis persists the access token in Redis under Config.Session.StoreKey.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefresher replaces the HTTP refresh call.
func (b *Builder) WithRefresher(r refresh.Refresher) *Builder {
	b.refresher = r
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithScheduler(s Scheduler) *Builder {
	b.scheduler = s
	return b
}

// WithLogoutHandler registers the redirect hook run once each time an
// authenticated session ends.
func (b *Builder) WithLogoutHandler(fn func(ctx context.Context)) *Builder {
	b.onLogout = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. It performs no
// network I/O.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: BaseURL: %v", ErrInvalidConfig, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		base = u
	}
	if base == nil && b.refresher == nil {
		return nil, fmt.Errorf("%w: BaseURL or a refresher is required", ErrInvalidConfig)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- HTTP CLIENT --------
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Coordinator.RequestTimeout}
	}
	if httpClient.Jar == nil {
		if httpClient == b.httpClient {
			// the caller's client stays untouched
			copied := *httpClient
			httpClient = &copied
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}

	// -------- TOKEN STORE --------
	var ownedRedis redis.UniversalClient
	store := b.store
	if store == nil {
		rdb := b.redis
		if rdb == nil && cfg.Session.RedisAddr != "" {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
			ownedRedis = rdb
		}
		if rdb != nil {
			store = session.NewRedisStore(rdb, cfg.Session.StoreKey, cfg.Session.StoreTTL)
		} else {
			store = session.NewMemoryStore()
		}
	}

	refresher := b.refresher
	if refresher == nil {
		refresher = refresh.NewHTTPRefresher(httpClient, resolveURL(base, cfg.Coordinator.RefreshRoute))
	}

	metrics := NewMetrics(cfg.Metrics)
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	onLogout := b.onLogout
	controller := session.NewController(store, session.ControllerConfig{
		Logger: logger,
		OnLogout: func(ctx context.Context) {
			metrics.Inc(MetricLogout)
			dispatcher.Emit(ctx, audit.Event{EventType: audit.EventLogout, Success: true})
			if onLogout != nil {
				onLogout(ctx)
			}
		},
	})

	// -------- COORDINATOR --------
	coord, err := coordinator.New(coordinator.Deps{
		Doer:      httpClient,
		Refresher: refresher,
		Tokens:    controller,
		OnSessionExpired: func(ctx context.Context, cause error) {
			logger.Warn("authclient: session expired", zap.Error(cause))
			if err := controller.Logout(ctx); err != nil {
				logger.Warn("authclient: logout after expiry incomplete", zap.Error(err))
			}
		},
		RefreshTimeout: cfg.Coordinator.RefreshTimeout,
		Logger:         logger,
		Observe:        metrics.observeEvent,
		ObserveLatency: func(d time.Duration) { metrics.Observe(MetricRefreshLatency, d) },
		Audit:          dispatcher.Emit,
	})
	if err != nil {
		if ownedRedis != nil {
			_ = ownedRedis.Close()
		}
		return nil, err
	}

	// -------- RATE LIMIT GATES --------
	defaults, overrides := cfg.RateLimit.gateConfigs()
	gates := limiters.NewSet(defaults, overrides, b.scheduler, limiters.Hooks{
		OnCooldown: func(action string, forced bool) {
			logger.Debug("authclient: cooldown started",
				zap.String("action", action),
				zap.Bool("server_limited", forced),
			)
		},
		OnReset: func(action string, expired bool) {
			metrics.Inc(MetricRateLimitReset)
			logger.Debug("authclient: cooldown cleared",
				zap.String("action", action),
				zap.Bool("expired", expired),
			)
		},
	})

	b.built = true

	return &Client{
		config:      cfg,
		baseURL:     base,
		httpClient:  httpClient,
		logger:      logger,
		session:     controller,
		coordinator: coord,
		gates:       gates,
		metrics:     metrics,
		audit:       dispatcher,
		ownedRedis:  ownedRedis,
	}, nil
}
