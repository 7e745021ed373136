package authclient

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authclient/internal/coordinator"
	"github.com/MrEthical07/authclient/internal/rate"
)

var (
	// ErrSessionExpired is returned when the token could not be refreshed or
	// the replayed request was rejected again. The session has been logged out.
	ErrSessionExpired = coordinator.ErrSessionExpired
	// ErrRateLimited is returned when an action gate is in local cooldown. No
	// request was sent.
	ErrRateLimited = rate.ErrRateLimited
	// ErrRemoteRateLimited is returned when the server answered 429.
	ErrRemoteRateLimited = errors.New("rate limited by server")
	// ErrClientClosed is returned by every request operation after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrNilResponse is returned by Guard when a Call returns neither a
	// response nor an error.
	ErrNilResponse = errors.New("call returned no response")
	// ErrNotReplayable is returned when a request body could not be buffered.
	ErrNotReplayable = coordinator.ErrNotReplayable
)

// Messages shown to users for the two rate-limit outcomes.
const (
	LocalCooldownMessage = "Too many attempts. Please wait a short while before trying again."
	remoteLimitFormat    = "Too many %s attempts. Please wait a few minutes before trying again."
)

// RateLimitError reports a rejected action. It unwraps to ErrRateLimited or
// ErrRemoteRateLimited.
type RateLimitError struct {
	Action Action
	Label  string // user-facing wording, e.g. "delete post"; empty means Action
	Remote bool
}

func (e *RateLimitError) Error() string {
	if e.Remote {
		return fmt.Sprintf("%s: %s", e.Action, ErrRemoteRateLimited)
	}
	return fmt.Sprintf("%s: %s", e.Action, ErrRateLimited)
}

func (e *RateLimitError) Unwrap() error {
	if e.Remote {
		return ErrRemoteRateLimited
	}
	return ErrRateLimited
}

// Message returns the user-facing notice for the rejection.
func (e *RateLimitError) Message() string {
	if e.Remote {
		label := e.Label
		if label == "" {
			label = string(e.Action)
		}
		return fmt.Sprintf(remoteLimitFormat, label)
	}
	return LocalCooldownMessage
}
