// Package rate provides the pure attempt-counter state machine used to gate
// sensitive client actions (login, signup, profile edits, likes, deletes).
//
// # Boundary semantics
//
// Attempts are counted inclusively: the action that brings the counter to the
// threshold is itself allowed and flips the state into cooldown. Only later
// attempts are rejected. A server 429 forces the state straight into cooldown.
//
// # Architecture boundaries
//
// This package owns the state transition functions only. Timers, locking and
// per-action bookkeeping live in internal/limiters.
//
// # What this package must NOT do
//
//   - Perform I/O, schedule timers, or read the clock.
//   - Hold mutable package-level state.
//   - Be imported outside the authclient module.
package rate
