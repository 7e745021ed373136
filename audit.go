package authclient

import (
	"io"

	"github.com/MrEthical07/authclient/internal/audit"
)

// AuditEvent is one structured audit record. Tokens appear only as
// fingerprints.
type AuditEvent = audit.Event

// AuditSink receives audit events from the client's dispatcher goroutine.
type AuditSink = audit.Sink

// Audit event types.
const (
	AuditRefreshSuccess    = audit.EventRefreshSuccess
	AuditRefreshFailure    = audit.EventRefreshFailure
	AuditSessionExpired    = audit.EventSessionExpired
	AuditLogout            = audit.EventLogout
	AuditRateLimitedLocal  = audit.EventRateLimitedLocal
	AuditRateLimitedRemote = audit.EventRateLimitedRemote
)

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
