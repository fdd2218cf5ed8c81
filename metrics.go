package iiod

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the round-trip latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
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

// Metrics tracks performance and operational statistics for a Context's
// transport. Counters are renamed from the teacher's block-device I/O
// shape to the iiod command/slot/USB-couple shape, but the tracking
// mechanics (atomics, cumulative latency histogram, percentile estimation)
// are carried over unchanged.
type Metrics struct {
	// Command counters.
	CommandsIssued    atomic.Uint64 // Commands sent to the daemon
	CommandsCompleted atomic.Uint64 // Responses matched to a waiting slot
	CommandErrors     atomic.Uint64 // Responses with a negative code

	// Byte counters.
	BytesIn  atomic.Uint64 // Payload bytes read from the wire
	BytesOut atomic.Uint64 // Payload bytes written to the wire

	// Multiplexer bookkeeping.
	OrphanResponsesDiscarded atomic.Uint64 // RESPONSE frames with no waiting slot
	Cancellations            atomic.Uint64 // RecordCancellation calls; Request.Close does not record here
	ActiveSlotsTotal         atomic.Uint64 // Cumulative slot-active samples
	ActiveSlotsCount         atomic.Uint64 // Number of slot-active measurements
	MaxActiveSlots           atomic.Uint32

	// USB couple pool.
	CouplesInUse atomic.Uint32 // Currently checked-out endpoint couples

	// Performance tracking.
	TotalLatencyNs atomic.Uint64 // Cumulative command round-trip latency
	OpCount        atomic.Uint64 // Total completed round trips

	// Latency histogram buckets (cumulative counts): bucket[i] holds the
	// count of round trips with latency <= LatencyBuckets[i].
	LatencyHistogram [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // Context open timestamp (UnixNano)
	StopTime  atomic.Int64 // Context close timestamp (UnixNano)
}

// NewMetrics returns a Metrics with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCommand records one completed command round trip.
func (m *Metrics) RecordCommand(bytesIn, bytesOut, latencyNs uint64, success bool) {
	m.CommandsIssued.Add(1)
	if success {
		m.CommandsCompleted.Add(1)
	} else {
		m.CommandErrors.Add(1)
	}
	m.BytesIn.Add(bytesIn)
	m.BytesOut.Add(bytesOut)
	m.recordLatency(latencyNs)
}

// RecordOrphan records a RESPONSE frame that arrived with no live slot.
func (m *Metrics) RecordOrphan() { m.OrphanResponsesDiscarded.Add(1) }

// RecordCancellation records a Request being cancelled.
func (m *Metrics) RecordCancellation() { m.Cancellations.Add(1) }

// RecordActiveSlots records a point-in-time count of live slots.
func (m *Metrics) RecordActiveSlots(n uint32) {
	m.ActiveSlotsTotal.Add(uint64(n))
	m.ActiveSlotsCount.Add(1)
	for {
		current := m.MaxActiveSlots.Load()
		if n <= current {
			break
		}
		if m.MaxActiveSlots.CompareAndSwap(current, n) {
			break
		}
	}
}

// SetCouplesInUse records the USB couple pool's current occupancy.
func (m *Metrics) SetCouplesInUse(n uint32) { m.CouplesInUse.Store(n) }

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// Stop marks the context as closed.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics, with derived
// rates and latency percentiles computed.
type MetricsSnapshot struct {
	CommandsIssued    uint64
	CommandsCompleted uint64
	CommandErrors     uint64

	BytesIn  uint64
	BytesOut uint64

	OrphanResponsesDiscarded uint64
	Cancellations            uint64
	AvgActiveSlots           float64
	MaxActiveSlots           uint32
	CouplesInUse             uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	CommandsPerSecond float64
	BytesInPerSecond  float64
	BytesOutPerSecond float64
	TotalCommands     uint64
	ErrorRate         float64 // percentage
}

// Snapshot computes a MetricsSnapshot from the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		CommandsIssued:           m.CommandsIssued.Load(),
		CommandsCompleted:        m.CommandsCompleted.Load(),
		CommandErrors:            m.CommandErrors.Load(),
		BytesIn:                  m.BytesIn.Load(),
		BytesOut:                 m.BytesOut.Load(),
		OrphanResponsesDiscarded: m.OrphanResponsesDiscarded.Load(),
		Cancellations:            m.Cancellations.Load(),
		MaxActiveSlots:           m.MaxActiveSlots.Load(),
		CouplesInUse:             m.CouplesInUse.Load(),
	}

	snap.TotalCommands = snap.CommandsIssued

	activeTotal := m.ActiveSlotsTotal.Load()
	activeCount := m.ActiveSlotsCount.Load()
	if activeCount > 0 {
		snap.AvgActiveSlots = float64(activeTotal) / float64(activeCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.CommandsPerSecond = float64(snap.CommandsIssued) / uptimeSeconds
		snap.BytesInPerSecond = float64(snap.BytesIn) / uptimeSeconds
		snap.BytesOutPerSecond = float64(snap.BytesOut) / uptimeSeconds
	}

	if snap.TotalCommands > 0 {
		snap.ErrorRate = float64(snap.CommandErrors) / float64(snap.TotalCommands) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogram[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHistogram[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogram[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters and restarts StartTime. Intended for tests.
func (m *Metrics) Reset() {
	m.CommandsIssued.Store(0)
	m.CommandsCompleted.Store(0)
	m.CommandErrors.Store(0)
	m.BytesIn.Store(0)
	m.BytesOut.Store(0)
	m.OrphanResponsesDiscarded.Store(0)
	m.Cancellations.Store(0)
	m.ActiveSlotsTotal.Store(0)
	m.ActiveSlotsCount.Store(0)
	m.MaxActiveSlots.Store(0)
	m.CouplesInUse.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection by a Context's caller.
type Observer interface {
	// ObserveCommand is called for each completed command round trip.
	ObserveCommand(bytesIn, bytesOut, latencyNs uint64, success bool)

	// ObserveOrphan is called for each discarded orphan RESPONSE.
	ObserveOrphan()

	// ObserveCancellation is called for each Request cancellation.
	ObserveCancellation()

	// ObserveActiveSlots is called periodically with the current live
	// slot count.
	ObserveActiveSlots(n uint32)
}

// NoOpObserver implements Observer with no-ops, the default when a Context
// is given no Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCommand(bytesIn, bytesOut, latencyNs uint64, success bool) {}
func (NoOpObserver) ObserveOrphan()                                                   {}
func (NoOpObserver) ObserveCancellation()                                             {}
func (NoOpObserver) ObserveActiveSlots(n uint32)                                      {}

// MetricsObserver adapts a Metrics into an Observer.
type MetricsObserver struct {
	M *Metrics
}

func (o MetricsObserver) ObserveCommand(bytesIn, bytesOut, latencyNs uint64, success bool) {
	o.M.RecordCommand(bytesIn, bytesOut, latencyNs, success)
}
func (o MetricsObserver) ObserveOrphan()       { o.M.RecordOrphan() }
func (o MetricsObserver) ObserveCancellation() { o.M.RecordCancellation() }
func (o MetricsObserver) ObserveActiveSlots(n uint32) { o.M.RecordActiveSlots(n) }
