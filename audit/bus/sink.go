package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authclient"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "authclient.audit"

// Config for Sink.
type Config struct {
	Topic  string
	Logger *zap.Logger
}

// Sink publishes each audit event as a JSON message.
type Sink struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

var _ authclient.AuditSink = (*Sink)(nil)

func NewSink(publisher message.Publisher, cfg Config) *Sink {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{publisher: publisher, topic: topic, logger: logger}
}

// Emit implements authclient.AuditSink. Publish failures are logged and
// counted, never returned.
func (s *Sink) Emit(ctx context.Context, event authclient.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("event_type", event.EventType)
	if event.RequestID != "" {
		msg.Metadata.Set("request_id", event.RequestID)
	}
	msg.SetContext(ctx)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		s.fail(event, err)
		return
	}
	s.published.Add(1)
}

func (s *Sink) fail(event authclient.AuditEvent, err error) {
	s.failed.Add(1)
	s.logger.Warn("authclient: audit publish failed",
		zap.String("topic", s.topic),
		zap.String("event_type", event.EventType),
		zap.Error(err),
	)
}

// Published returns the number of events handed to the publisher.
func (s *Sink) Published() uint64 {
	return s.published.Load()
}

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}
