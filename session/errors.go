package session

import "errors"

var (
	// ErrStoreUnavailable wraps failures of the persisted token store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEmptyToken is returned when SetToken receives an empty token.
	ErrEmptyToken = errors.New("empty access token")
	// ErrSessionReplaced is returned by CommitRefresh when a logout or a new
	// login happened while the refresh was in flight.
	ErrSessionReplaced = errors.New("session replaced during refresh")
)
