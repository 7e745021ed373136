// Package testapi is an in-process stand-in for the social API the client
// talks to. It issues short-lived HS256 access tokens, keeps the refresh
// credential in an HttpOnly cookie and serves the post, comment, profile and
// membership routes from memory.
//
// Tests use its knobs to force the situations the client must survive:
// ExpireTokens invalidates every issued access token, HoldRefresh parks
// refresh calls until released, FailRefresh makes refresh answer an error
// status and Throttle answers 429 for a route prefix.
//
// # What this package must NOT do
//
//   - Be imported by non-test production code paths other than the load tool.
//   - Persist anything outside process memory.
package testapi
