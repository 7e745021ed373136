package authclient

import (
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authclient/internal/coordinator"
)

// MetricID identifies one client counter or histogram.
type MetricID uint16

const (
	// MetricRequest counts requests sent through the coordinator.
	MetricRequest MetricID = iota
	// MetricExpiryDetected counts first attempts answered with 401.
	MetricExpiryDetected
	// MetricRefreshStarted counts refresh calls. It stays at one per burst of
	// concurrent 401s.
	MetricRefreshStarted
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRequestQueued counts requests that waited on another caller's
	// refresh.
	MetricRequestQueued
	MetricReplaySuccess
	MetricReplayUnauthorized
	// MetricStaleReplay counts 401s that arrived after a refresh had already
	// completed and were replayed without a new one.
	MetricStaleReplay
	MetricSessionExpired
	MetricLogout
	MetricRateLimitedLocal
	MetricRateLimitedRemote
	MetricRateLimitReset
	// MetricRefreshLatency is the refresh call latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil *Metrics is a valid disabled
// recorder.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only MetricRefreshLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

// observeEvent maps coordinator transitions onto counters.
func (m *Metrics) observeEvent(e coordinator.Event) {
	switch e {
	case coordinator.EventRequest:
		m.Inc(MetricRequest)
	case coordinator.EventExpiryDetected:
		m.Inc(MetricExpiryDetected)
	case coordinator.EventRefreshStarted:
		m.Inc(MetricRefreshStarted)
	case coordinator.EventRefreshSucceeded:
		m.Inc(MetricRefreshSuccess)
	case coordinator.EventRefreshFailed:
		m.Inc(MetricRefreshFailure)
	case coordinator.EventQueued:
		m.Inc(MetricRequestQueued)
	case coordinator.EventReplaySucceeded:
		m.Inc(MetricReplaySuccess)
	case coordinator.EventReplayUnauthorized:
		m.Inc(MetricReplayUnauthorized)
	case coordinator.EventStaleReplay:
		m.Inc(MetricStaleReplay)
	case coordinator.EventSessionExpired:
		m.Inc(MetricSessionExpired)
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
