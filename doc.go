// Package authclient is the client side of a token-authenticated HTTP API:
// it attaches a bearer token to outgoing requests, recovers from token expiry
// with a single shared refresh, and applies per-action attempt gating with a
// timed cooldown.
//
// The package is designed for concurrent use: Client methods are safe to call
// from multiple goroutines after construction through [Builder.Build].
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Client], [Builder], [Config],
// sentinel errors, metrics and audit types. The refresh state machine lives in
// internal/coordinator, the attempt counter in internal/rate, the cooldown
// gates in internal/limiters and audit dispatch in internal/audit. Session
// persistence is in the session package and the refresh endpoint client in
// the refresh package.
//
// # What this package must NOT do
//
//   - Log or audit raw access tokens (fingerprints only).
//   - Refresh the token more than once for a burst of concurrent 401s.
//   - Perform network I/O for a request that a gate in cooldown rejected.
//   - Import any sub-package that re-imports authclient (no import cycles).
package authclient
