package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the client.
const (
	EventRefreshSuccess    = "refresh_success"
	EventRefreshFailure    = "refresh_failure"
	EventSessionExpired    = "session_expired"
	EventLogout            = "logout"
	EventRateLimitedLocal  = "rate_limited_local"
	EventRateLimitedRemote = "rate_limited_remote"
)

// Event is the audit record shared by the dispatcher and the public API.
type Event struct {
	Timestamp        time.Time         `json:"timestamp"`
	EventType        string            `json:"event_type"`
	RequestID        string            `json:"request_id,omitempty"`
	Action           string            `json:"action,omitempty"`
	Method           string            `json:"method,omitempty"`
	Target           string            `json:"target,omitempty"`
	Status           int               `json:"status,omitempty"`
	TokenFingerprint string            `json:"token_fp,omitempty"`
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}
