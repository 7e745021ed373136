// Package api is a typed client for the social API (auth, posts, comments,
// profile and membership routes) built on [authclient.Client].
//
// Every method maps to one route. Mutations run behind the client's
// per-action gates; reads are authenticated but unguarded. Login and signup
// are sent without a bearer token.
//
// # Architecture boundaries
//
// This package shapes requests and decodes responses. Token attachment,
// refresh, replay and rate limiting are delegated to authclient.
//
// # What this package must NOT do
//
//   - Read or write tokens except through authclient.Client.Login and Logout.
//   - Retry requests on its own.
//   - Hold per-user state beyond the wrapped client.
package api
