package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// Metrics collects lightweight counters and latency stats for a
// simulation run. All methods are safe on a nil receiver.
type Metrics struct {
	topicMu     sync.Mutex
	topicCounts map[schema.Topic]uint64

	rejectCounts [int(schema.RejectReasonDataUnavailable) + 1]uint64
	queueDrops   uint64
	fills        uint64
	stopLosses   uint64

	fillLatency     LatencyStats
	riskEvalLatency LatencyStats
	dayDrainLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	TopicCounts     map[schema.Topic]uint64
	RejectCounts    map[schema.RejectReason]uint64
	QueueDrops      uint64
	Fills           uint64
	StopLosses      uint64
	FillLatency     LatencySnapshot
	RiskEvalLatency LatencySnapshot
	DayDrainLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{topicCounts: make(map[schema.Topic]uint64)}
}

// ObservePublish counts one published message on a topic.
func (m *Metrics) ObservePublish(topic schema.Topic) {
	if m == nil {
		return
	}
	m.topicMu.Lock()
	m.topicCounts[topic]++
	m.topicMu.Unlock()
}

// IncReject increments the rejection counter for a reason.
func (m *Metrics) IncReject(reason schema.RejectReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectCounts) {
		atomic.AddUint64(&m.rejectCounts[idx], 1)
	}
}

// IncQueueDrop records a slow-consumer drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncFill records an executed trade.
func (m *Metrics) IncFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fills, 1)
}

// IncStopLoss records a triggered stop-loss liquidation.
func (m *Metrics) IncStopLoss() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.stopLosses, 1)
}

// ObserveFill measures submit-to-fill latency.
func (m *Metrics) ObserveFill(d time.Duration) {
	if m == nil {
		return
	}
	m.fillLatency.Observe(d)
}

// ObserveRiskEval measures order validation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// ObserveDayDrain measures the day-boundary quiescence wait.
func (m *Metrics) ObserveDayDrain(d time.Duration) {
	if m == nil {
		return
	}
	m.dayDrainLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	topicCounts := make(map[schema.Topic]uint64)
	m.topicMu.Lock()
	for topic, v := range m.topicCounts {
		topicCounts[topic] = v
	}
	m.topicMu.Unlock()

	rejectCounts := make(map[schema.RejectReason]uint64)
	for i := range m.rejectCounts {
		if v := atomic.LoadUint64(&m.rejectCounts[i]); v > 0 {
			rejectCounts[schema.RejectReason(i)] = v
		}
	}
	return Snapshot{
		TopicCounts:     topicCounts,
		RejectCounts:    rejectCounts,
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		Fills:           atomic.LoadUint64(&m.fills),
		StopLosses:      atomic.LoadUint64(&m.stopLosses),
		FillLatency:     m.fillLatency.Snapshot(),
		RiskEvalLatency: m.riskEvalLatency.Snapshot(),
		DayDrainLatency: m.dayDrainLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns a point-in-time view of the stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
