// Package limiters provides per-action client-side gates built on the
// internal/rate state machine.
//
// # Gates
//
//   - [Gate]: one attempt counter for one action class, with a cooldown
//     timer that resets the counter after a fixed window.
//   - [Set]: lazily created gates keyed by action name.
//
// All gates are nil-safe: calling any method on a nil receiver allows the
// action and records nothing.
//
// # Timer ownership
//
// The gate schedules the reset timer when its state flips into cooldown and
// stops it when the state is reset earlier. Timers are created through a
// [Scheduler] so tests can fire them deterministically. A timer that fires
// after it was superseded is ignored.
//
// # What this package must NOT do
//
//   - Make network calls. A gate is an advisory local check, not a security
//     boundary.
//   - Import authclient or any sibling internal package except internal/rate.
package limiters
