// Package refresh exchanges the ambient long-lived credential for a new
// access token.
//
// # Wire contract
//
// POST to the refresh route with no body. The long-lived credential travels
// out of band (typically an HTTP-only cookie held by the http.Client's jar)
// and is never read by application code. A 2xx response carries
// {"access_token": "..."}; anything else is a refresh failure.
//
// # Architecture boundaries
//
// This package performs exactly one refresh call per invocation. Single-flight
// coordination, token commit, and logout belong to the request coordinator and
// the session controller.
//
// # What this package must NOT do
//
//   - Retry, queue, or deduplicate refreshes.
//   - Write the session or persisted token.
//   - Inspect or verify the returned token.
package refresh
