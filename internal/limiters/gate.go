package limiters

import (
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/authclient/internal/rate"
)

// DefaultWindow is the cooldown window used when Config.Window is unset.
const DefaultWindow = 10 * time.Second

// Config holds tuning for one gate.
type Config struct {
	Threshold      int
	Window         time.Duration
	ResetOnSuccess bool
}

// Hooks are optional transition callbacks. They run with the gate lock
// released.
type Hooks struct {
	OnCooldown func(action string, forced bool)
	OnReset    func(action string, expired bool)
}

// Gate tracks attempts for one action class.
type Gate struct {
	action    string
	config    Config
	scheduler Scheduler
	hooks     Hooks

	mu     sync.Mutex
	state  rate.State
	timer  Timer
	epoch  uint64
	closed bool
}

// NewGate creates a gate for action. A nil scheduler uses SystemScheduler.
func NewGate(action string, cfg Config, scheduler Scheduler, hooks Hooks) *Gate {
	if cfg.Threshold <= 0 {
		cfg.Threshold = rate.DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if scheduler == nil {
		scheduler = SystemScheduler{}
	}
	return &Gate{
		action:    action,
		config:    cfg,
		scheduler: scheduler,
		hooks:     hooks,
	}
}

// Allow records an attempt. It returns rate.ErrRateLimited without
// recording anything when the gate is in cooldown.
func (g *Gate) Allow() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	allowed, next := rate.CheckAndRecord(g.state, g.config.Threshold)
	entered := g.transitionLocked(next)
	g.mu.Unlock()

	if entered && g.hooks.OnCooldown != nil {
		g.hooks.OnCooldown(g.action, false)
	}
	if !allowed {
		return rate.ErrRateLimited
	}
	return nil
}

// ForceCooldown moves the gate into cooldown regardless of the counter.
// An already running cooldown window is not extended.
func (g *Gate) ForceCooldown() {
	if g == nil {
		return
	}

	g.mu.Lock()
	entered := g.transitionLocked(rate.ForceCooldown(g.config.Threshold))
	g.mu.Unlock()

	if entered && g.hooks.OnCooldown != nil {
		g.hooks.OnCooldown(g.action, true)
	}
}

// ObserveStatus feeds a response status back into the gate: 429 forces
// cooldown, 2xx resets the counter when ResetOnSuccess is set.
func (g *Gate) ObserveStatus(status int) {
	if g == nil {
		return
	}
	switch {
	case status == http.StatusTooManyRequests:
		g.ForceCooldown()
	case status >= 200 && status < 300 && g.config.ResetOnSuccess:
		g.Reset()
	}
}

// Reset clears the counter and cancels a pending cooldown timer.
func (g *Gate) Reset() {
	if g == nil {
		return
	}

	g.mu.Lock()
	wasCooling := g.state.Cooldown
	g.transitionLocked(rate.Reset())
	g.mu.Unlock()

	if wasCooling && g.hooks.OnReset != nil {
		g.hooks.OnReset(g.action, false)
	}
}

// State returns the current counter.
func (g *Gate) State() rate.State {
	if g == nil {
		return rate.State{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close cancels any pending timer. Later timer callbacks are ignored.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.stopTimerLocked()
}

// transitionLocked installs next and manages the timer. It reports whether
// the gate entered cooldown.
func (g *Gate) transitionLocked(next rate.State) bool {
	prev := g.state
	g.state = next

	switch {
	case !prev.Cooldown && next.Cooldown:
		g.stopTimerLocked()
		if g.closed {
			return true
		}
		g.epoch++
		epoch := g.epoch
		g.timer = g.scheduler.AfterFunc(g.config.Window, func() {
			g.expire(epoch)
		})
		return true
	case prev.Cooldown && !next.Cooldown:
		g.stopTimerLocked()
	}
	return false
}

func (g *Gate) stopTimerLocked() {
	g.epoch++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Gate) expire(epoch uint64) {
	g.mu.Lock()
	if g.closed || epoch != g.epoch {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	g.state = rate.Reset()
	g.mu.Unlock()

	if g.hooks.OnReset != nil {
		g.hooks.OnReset(g.action, true)
	}
}
