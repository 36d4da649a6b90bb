package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

const (
	// topOperations bounds the per-operation list in a Snapshot.
	topOperations = 10

	// maxOperations bounds the operations tracked by name. Decisions for
	// further operations are counted under OtherOperation.
	maxOperations = 1000

	// OtherOperation collects operations seen after maxOperations was reached.
	OtherOperation = "other"
)

// Metrics tracks sampling decision statistics
type Metrics struct {
	totalDecisions    atomic.Int64
	sampledDecisions  atomic.Int64
	rejectedDecisions atomic.Int64
	rateBits          atomic.Uint64 // math.Float64bits of the last observed rate

	// Per-operation stats
	mu             sync.RWMutex
	operationStats map[string]*OperationStats
	maxOperations  int
	startTime      time.Time
	now            func() time.Time
}

var (
	_ ratesampler.DecisionObserver = (*Metrics)(nil)
	_ ratesampler.RateObserver     = (*Metrics)(nil)
)

// OperationStats tracks statistics for a specific operation
type OperationStats struct {
	Operation       string    `json:"operation"`
	TotalDecisions  int64     `json:"total_decisions"`
	Sampled         int64     `json:"sampled"`
	Rejected        int64     `json:"rejected"`
	LastDecisionAt  time.Time `json:"last_decision_at"`
	FirstDecisionAt time.Time `json:"first_decision_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		operationStats: make(map[string]*OperationStats),
		maxOperations:  maxOperations,
		startTime:      time.Now(),
		now:            time.Now,
	}
}

// ObserveDecision records a sampling decision for operation.
func (m *Metrics) ObserveDecision(operation string, sampled bool) {
	m.totalDecisions.Add(1)

	if sampled {
		m.sampledDecisions.Add(1)
	} else {
		m.rejectedDecisions.Add(1)
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.operationStats[operation]
	if !exists && len(m.operationStats) >= m.maxOperations {
		operation = OtherOperation
		stats, exists = m.operationStats[operation]
	}
	if !exists {
		stats = &OperationStats{
			Operation:       operation,
			FirstDecisionAt: now,
		}
		m.operationStats[operation] = stats
	}

	stats.TotalDecisions++
	if sampled {
		stats.Sampled++
	} else {
		stats.Rejected++
	}
	stats.LastDecisionAt = now
}

// ObserveRate records the configured traces-per-second rate.
func (m *Metrics) ObserveRate(maxTracesPerSecond float64) {
	m.rateBits.Store(math.Float64bits(maxTracesPerSecond))
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Copy operation stats
	top := make([]*OperationStats, 0, len(m.operationStats))
	for _, stats := range m.operationStats {
		copied := *stats
		top = append(top, &copied)
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalDecisions != top[j].TotalDecisions {
			return top[i].TotalDecisions > top[j].TotalDecisions
		}
		return top[i].Operation < top[j].Operation
	})
	if len(top) > topOperations {
		top = top[:topOperations]
	}

	uptime := m.now().Sub(m.startTime)

	return &Snapshot{
		TotalDecisions:     m.totalDecisions.Load(),
		Sampled:            m.sampledDecisions.Load(),
		Rejected:           m.rejectedDecisions.Load(),
		MaxTracesPerSecond: math.Float64frombits(m.rateBits.Load()),
		UniqueOperations:   int64(len(m.operationStats)),
		TopOperations:      top,
		UptimeSeconds:      int64(uptime.Seconds()),
		StartTime:          m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalDecisions     int64             `json:"total_decisions"`
	Sampled            int64             `json:"sampled"`
	Rejected           int64             `json:"rejected"`
	MaxTracesPerSecond float64           `json:"max_traces_per_second"`
	UniqueOperations   int64             `json:"unique_operations"`
	TopOperations      []*OperationStats `json:"top_operations"`
	UptimeSeconds      int64             `json:"uptime_seconds"`
	StartTime          time.Time         `json:"start_time"`
}

// Multi fans decisions and rate changes out to several observers.
type Multi []ratesampler.DecisionObserver

var (
	_ ratesampler.DecisionObserver = Multi(nil)
	_ ratesampler.RateObserver     = Multi(nil)
)

// ObserveDecision implements ratesampler.DecisionObserver.
func (m Multi) ObserveDecision(operation string, sampled bool) {
	for _, o := range m {
		o.ObserveDecision(operation, sampled)
	}
}

// ObserveRate forwards to every observer that implements
// ratesampler.RateObserver.
func (m Multi) ObserveRate(maxTracesPerSecond float64) {
	for _, o := range m {
		if ro, ok := o.(ratesampler.RateObserver); ok {
			ro.ObserveRate(maxTracesPerSecond)
		}
	}
}
