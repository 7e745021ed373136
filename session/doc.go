// Package session owns the client's credential lifecycle: the in-memory
// [Session] snapshot, the persisted access token, and the logout transition.
//
// # Single source of truth
//
// [Controller] is the only writer of the access token. Outgoing requests read
// the token through it, refreshes commit through CommitRefresh, and failures
// end in Logout. Every reader hydrates from the store on first use. The persisted copy lives behind a [TokenStore] (one key-value string
// entry) with in-memory and Redis implementations.
//
// # State machine
//
//	Unauthenticated --SetToken--> Authenticated --Logout--> Unauthenticated
//
// The logout callback fires only on the Authenticated to Unauthenticated edge,
// so concurrent or repeated Logout calls are harmless. SetToken and Logout
// advance an epoch; a refresh captured under an older epoch is discarded by
// CommitRefresh so it cannot revive a session that was logged out meanwhile.
//
// # What this package must NOT do
//
//   - Parse, verify, or otherwise interpret access tokens.
//   - Make network calls other than through a TokenStore.
//   - Log raw tokens. Use [Fingerprint].
package session
