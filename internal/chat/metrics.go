package chat

import (
	"sync"
	"sync/atomic"
	"time"
)

// rpcMetrics is one RPC name's call statistics, kept as atomic counters
// per RPC name, since this domain runs exactly one chat collector
// instance, not a pool.
type rpcMetrics struct {
	activeCalls int32
	totalCalls  int64
	failedCalls int64
	totalTimeMs int64

	mu         sync.Mutex
	last5Times []int64
}

// CollectorMetrics tracks call stats per RPC name for the single chat
// collector, surfaced read-only on the status endpoint.
type CollectorMetrics struct {
	startTime time.Time
	mu        sync.RWMutex
	byRPC     map[string]*rpcMetrics
}

func NewCollectorMetrics() *CollectorMetrics {
	return &CollectorMetrics{startTime: time.Now(), byRPC: make(map[string]*rpcMetrics)}
}

func (m *CollectorMetrics) metricsFor(rpc string) *rpcMetrics {
	m.mu.RLock()
	rm, ok := m.byRPC[rpc]
	m.mu.RUnlock()
	if ok {
		return rm
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rm, ok := m.byRPC[rpc]; ok {
		return rm
	}
	rm = &rpcMetrics{}
	m.byRPC[rpc] = rm
	return rm
}

// Track wraps a single RPC invocation, recording active/total/failed
// counts and the last-5-calls latency window.
func (m *CollectorMetrics) Track(rpc string, fn func() error) error {
	rm := m.metricsFor(rpc)
	atomic.AddInt32(&rm.activeCalls, 1)
	atomic.AddInt64(&rm.totalCalls, 1)
	start := time.Now()

	err := fn()

	atomic.AddInt32(&rm.activeCalls, -1)
	elapsed := time.Since(start).Milliseconds()
	atomic.AddInt64(&rm.totalTimeMs, elapsed)
	if err != nil {
		atomic.AddInt64(&rm.failedCalls, 1)
	}
	rm.mu.Lock()
	if len(rm.last5Times) >= 5 {
		rm.last5Times = rm.last5Times[1:]
	}
	rm.last5Times = append(rm.last5Times, elapsed)
	rm.mu.Unlock()

	return err
}

// RPCSnapshot is one RPC name's point-in-time stats.
type RPCSnapshot struct {
	RPC                string  `json:"rpc"`
	ActiveCalls        int32   `json:"active_calls"`
	TotalCalls         int64   `json:"total_calls"`
	FailedCalls        int64   `json:"failed_calls"`
	AverageResponseMs  float64 `json:"average_response_ms"`
}

// Snapshot returns per-RPC stats plus the collector's uptime.
func (m *CollectorMetrics) Snapshot() (uptime time.Duration, rpcs []RPCSnapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uptime = time.Since(m.startTime)
	rpcs = make([]RPCSnapshot, 0, len(m.byRPC))
	for name, rm := range m.byRPC {
		rm.mu.Lock()
		var total int64
		for _, t := range rm.last5Times {
			total += t
		}
		avg := 0.0
		if len(rm.last5Times) > 0 {
			avg = float64(total) / float64(len(rm.last5Times))
		}
		rm.mu.Unlock()
		rpcs = append(rpcs, RPCSnapshot{
			RPC:               name,
			ActiveCalls:       atomic.LoadInt32(&rm.activeCalls),
			TotalCalls:        atomic.LoadInt64(&rm.totalCalls),
			FailedCalls:       atomic.LoadInt64(&rm.failedCalls),
			AverageResponseMs: avg,
		})
	}
	return uptime, rpcs
}
