package limiters

import "sync"

// Set holds one gate per action name. Gates are created on first use.
type Set struct {
	defaults  Config
	overrides map[string]Config
	scheduler Scheduler
	hooks     Hooks

	mu     sync.Mutex
	gates  map[string]*Gate
	closed bool
}

// NewSet creates a gate set. overrides replaces defaults per action.
func NewSet(defaults Config, overrides map[string]Config, scheduler Scheduler, hooks Hooks) *Set {
	copied := make(map[string]Config, len(overrides))
	for k, v := range overrides {
		copied[k] = v
	}
	return &Set{
		defaults:  defaults,
		overrides: copied,
		scheduler: scheduler,
		hooks:     hooks,
		gates:     make(map[string]*Gate),
	}
}

// Gate returns the gate for action, creating it if needed. It returns nil
// after Close.
func (s *Set) Gate(action string) *Gate {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if g, ok := s.gates[action]; ok {
		return g
	}

	cfg, ok := s.overrides[action]
	if !ok {
		cfg = s.defaults
	}
	g := NewGate(action, cfg, s.scheduler, s.hooks)
	s.gates[action] = g
	return g
}

// Lookup returns the gate for action without creating it. Nil means the
// action was never gated, which reads as the zero state.
func (s *Set) Lookup(action string) *Gate {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gates[action]
}

// Close stops every gate timer.
func (s *Set) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	gates := s.gates
	s.gates = map[string]*Gate{}
	s.closed = true
	s.mu.Unlock()

	for _, g := range gates {
		g.Close()
	}
}
