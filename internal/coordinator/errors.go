package coordinator

import "errors"

var (
	// ErrSessionExpired is returned when a refresh fails or a replayed request
	// is still unauthorized.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotReplayable is returned when the request body cannot be buffered
	// for a replay.
	ErrNotReplayable = errors.New("request body not replayable")
)
