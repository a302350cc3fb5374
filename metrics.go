package goAdmin

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client counter or histogram.
type MetricID uint16

const (
	// MetricRequestIssued counts every call passed to Issue.
	MetricRequestIssued MetricID = iota
	// MetricRequestSucceeded counts calls that ended with a 2xx/3xx response.
	MetricRequestSucceeded
	// MetricNetworkFailure counts calls that never received a response.
	MetricNetworkFailure
	// MetricStatusFailure counts calls that ended with a non-auth error status.
	MetricStatusFailure
	// MetricAuthFailure counts authorization-failure responses, replays included.
	MetricAuthFailure
	// MetricRenewalStarted counts renewal windows opened.
	MetricRenewalStarted
	// MetricRenewalSucceeded counts renewal windows closed successfully.
	MetricRenewalSucceeded
	// MetricRenewalFailed counts renewal windows closed with an error.
	MetricRenewalFailed
	// MetricRenewalTimeout counts failed renewals whose cause was the timeout.
	MetricRenewalTimeout
	// MetricWaiterQueued counts requests held behind an in-flight renewal.
	MetricWaiterQueued
	// MetricQueueOverflow counts requests refused because the queue was full.
	MetricQueueOverflow
	// MetricReplay counts replays issued after a successful renewal.
	MetricReplay
	// MetricReplayFailure counts replays rejected with an authorization status.
	MetricReplayFailure
	// MetricForcedLogout counts logout hook invocations.
	MetricForcedLogout
	// MetricLogin counts successful Login calls.
	MetricLogin
	// MetricLogout counts Logout calls.
	MetricLogout
	// MetricRenewalLatency is the renewal duration histogram.
	MetricRenewalLatency
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

// Metrics is a lock-free set of client counters.
//
// A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds counters according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the renewal histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram of id. Only MetricRenewalLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRenewalLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled Metrics returns empty maps.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRenewalLatency].buckets[i])
		}
		s.Histograms[MetricRenewalLatency] = buckets
	}

	return s
}

// Renewals run over the network, so the buckets are coarser than request
// latency buckets: 50ms up to 5s.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
