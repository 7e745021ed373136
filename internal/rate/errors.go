package rate

import "errors"

var (
	// ErrRateLimited is the single cooldown sentinel. Gates return it and the
	// public package re-exports it.
	ErrRateLimited = errors.New("rate limited")
)
