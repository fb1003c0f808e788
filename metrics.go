package persist

import (
	"sync/atomic"
	"time"

	"github.com/mqttsql/persist/internal/interfaces"
)

// LatencyBuckets defines the batch-commit latency histogram boundaries in
// nanoseconds. Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks persistence throughput and outcomes for one plugin
// instance. It implements interfaces.Observer directly, so a *Metrics can
// be passed anywhere a queue or writer expects an Observer.
type Metrics struct {
	// Queue-side counters
	EnqueuedInserts atomic.Uint64
	EnqueuedDeletes atomic.Uint64
	Dropped         atomic.Uint64

	// Writer-side counters
	BatchesCommitted atomic.Uint64
	BatchesFailed    atomic.Uint64
	RowsInserted     atomic.Uint64
	RowsDeleted      atomic.Uint64
	RowsFailed       atomic.Uint64

	// Commit latency
	TotalCommitLatencyNs atomic.Uint64
	CommitCount          atomic.Uint64
	LatencyBuckets       [numLatencyBuckets]atomic.Uint64

	// Lifecycle
	StartTime atomic.Int64 // plugin start timestamp (UnixNano)
	StopTime  atomic.Int64 // plugin stop timestamp (UnixNano)
}

// NewMetrics creates a Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveEnqueued records a queue push by entry kind ("insert" or
// "delete").
func (m *Metrics) ObserveEnqueued(kind string) {
	switch kind {
	case "insert":
		m.EnqueuedInserts.Add(1)
	case "delete":
		m.EnqueuedDeletes.Add(1)
	}
}

// ObserveDropped records an entry dropped from the queue under
// backpressure.
func (m *Metrics) ObserveDropped(reason string) {
	_ = reason
	m.Dropped.Add(1)
}

// ObserveBatch records one writer batch's outcome and commit latency.
func (m *Metrics) ObserveBatch(inserted, deleted, failed int, tookNs uint64) {
	if inserted == 0 && deleted == 0 && failed > 0 {
		m.BatchesFailed.Add(1)
	} else {
		m.BatchesCommitted.Add(1)
	}
	m.RowsInserted.Add(uint64(inserted))
	m.RowsDeleted.Add(uint64(deleted))
	m.RowsFailed.Add(uint64(failed))
	m.recordLatency(tookNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalCommitLatencyNs.Add(latencyNs)
	m.CommitCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the plugin instance as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting.
type MetricsSnapshot struct {
	EnqueuedInserts uint64
	EnqueuedDeletes uint64
	Dropped         uint64

	BatchesCommitted uint64
	BatchesFailed    uint64
	RowsInserted     uint64
	RowsDeleted      uint64
	RowsFailed       uint64

	AvgCommitLatencyNs uint64
	UptimeNs           uint64

	CommitLatencyP50Ns  uint64
	CommitLatencyP99Ns  uint64
	CommitLatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		EnqueuedInserts:  m.EnqueuedInserts.Load(),
		EnqueuedDeletes:  m.EnqueuedDeletes.Load(),
		Dropped:          m.Dropped.Load(),
		BatchesCommitted: m.BatchesCommitted.Load(),
		BatchesFailed:    m.BatchesFailed.Load(),
		RowsInserted:     m.RowsInserted.Load(),
		RowsDeleted:      m.RowsDeleted.Load(),
		RowsFailed:       m.RowsFailed.Load(),
	}

	totalLatencyNs := m.TotalCommitLatencyNs.Load()
	count := m.CommitCount.Load()
	if count > 0 {
		snap.AvgCommitLatencyNs = totalLatencyNs / count
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if count > 0 {
		snap.CommitLatencyP50Ns = m.calculatePercentile(0.50)
		snap.CommitLatencyP99Ns = m.calculatePercentile(0.99)
		snap.CommitLatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the commit latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.CommitCount.Load()
	if total == 0 {
		return 0
	}

	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter. Useful in tests.
func (m *Metrics) Reset() {
	m.EnqueuedInserts.Store(0)
	m.EnqueuedDeletes.Store(0)
	m.Dropped.Store(0)
	m.BatchesCommitted.Store(0)
	m.BatchesFailed.Store(0)
	m.RowsInserted.Store(0)
	m.RowsDeleted.Store(0)
	m.RowsFailed.Store(0)
	m.TotalCommitLatencyNs.Store(0)
	m.CommitCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver discards every observation. It is the default Observer
// when no metrics sink is configured.
type NoOpObserver struct{}

func (NoOpObserver) ObserveEnqueued(string)             {}
func (NoOpObserver) ObserveDropped(string)              {}
func (NoOpObserver) ObserveBatch(int, int, int, uint64) {}

var (
	_ interfaces.Observer = (*Metrics)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
