package simulation

import (
	"sync"
	"time"
)

// recentWindow is how many of the latest ticks feed TickStats.Recent.
const recentWindow = 64

// TickStats summarises battle tick durations.
type TickStats struct {
	Samples int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
	// Recent averages the latest recentWindow ticks, so a slow turn shows up after a calm one.
	Recent time.Duration
}

// TicksPerSecond is the throughput the average tick allows.
func (s TickStats) TicksPerSecond() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor aggregates tick durations. The loop writes it while status handlers read it.
type TickMonitor struct {
	mu      sync.Mutex
	count   int
	total   time.Duration
	max     time.Duration
	ring    [recentWindow]time.Duration
	ringSum time.Duration
}

func NewTickMonitor() *TickMonitor { return &TickMonitor{} }

// Observe records one tick; non-positive durations are ignored.
func (m *TickMonitor) Observe(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := m.count % recentWindow
	m.ringSum += d - m.ring[slot]
	m.ring[slot] = d
	m.count++
	m.total += d
	m.max = max(m.max, d)
}

// Snapshot copies the current statistics.
func (m *TickMonitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return TickStats{}
	}
	window := min(m.count, recentWindow)
	return TickStats{
		Samples: m.count,
		Average: m.total / time.Duration(m.count),
		Max:     m.max,
		Last:    m.ring[(m.count-1)%recentWindow],
		Recent:  m.ringSum / time.Duration(window),
	}
}

// Reset forgets every sample.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count, m.total, m.max, m.ringSum = 0, 0, 0, 0
	m.ring = [recentWindow]time.Duration{}
}
