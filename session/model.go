package session

import "encoding/json"

// Session is a point-in-time copy of the client's authentication state.
type Session struct {
	AccessToken   string
	Authenticated bool
	// User is the opaque profile snapshot fetched by the application.
	User json.RawMessage
}
