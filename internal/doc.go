// Package internal holds the machinery behind authclient that is not part
// of its public API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - coordinator: single-flight token refresh and request replay
//   - limiters: per-action gates with cooldown timers
//   - rate: the pure attempt counter the gates are built on
//   - testapi: chi-based stub of the social API for tests and tools
//
// # What this package must NOT do
//
//   - Export types that appear in the public authclient API.
//   - Be imported by any package outside the authclient module.
package internal
