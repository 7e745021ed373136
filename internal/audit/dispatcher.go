package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking. When false, Emit waits for room
	// until the caller's context is done.
	DropIfFull bool
	Logger     *zap.Logger
}

// Dispatcher moves audit events off the request path. A single worker
// drains the queue into the sink so sinks never see concurrent Emit calls.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	log    *zap.Logger
	queue  chan Event
	stop   chan struct{}
	worker sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when auditing is disabled; every method is
// nil-safe.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		log:   log.Named("audit"),
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}

	d.worker.Add(1)
	go d.drain()

	return d
}

func (d *Dispatcher) drain() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// only; the worker keeps running.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.log.Error("sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("request_id", event.RequestID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event without touching the sink. Timestamp is filled when
// zero.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event, "buffer full")
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, "context done")
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	n := d.dropped.Add(1)
	// first drop, then every 100th, to keep a saturated sink from flooding logs
	if n == 1 || n%100 == 0 {
		d.log.Warn("event dropped",
			zap.String("reason", reason),
			zap.String("event_type", event.EventType),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Close stops accepting events and waits for buffered ones to reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped returns the number of events lost to backpressure or cancellation.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Failed returns the number of events lost to a panicking sink.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
