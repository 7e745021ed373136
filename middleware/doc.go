// Package middleware adapts an [authclient.Client] to the standard
// [net/http.RoundTripper] interface so existing HTTP code gains token
// attachment, refresh coordination and per-action rate limiting.
//
// # Routes
//
//   - [Route] maps a method and path prefix to an action gate.
//   - [DefaultRoutes] covers the social API's mutating routes.
//   - Requests matching no route are sent through Client.Do unguarded.
//
// # Architecture boundaries
//
// This package only selects which Client method carries a request. All
// decisions about tokens, refresh and cooldowns stay in authclient.
//
// # What this package must NOT do
//
//   - Read, parse or store access tokens.
//   - Retry requests beyond the single replay done by authclient.
//   - Keep rate-limit state of its own.
package middleware
