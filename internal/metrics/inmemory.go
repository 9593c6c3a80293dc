package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SyncAttempts        map[string]uint64
	SyncDurationCount   uint64
	SyncDurationTotalNs int64
	Restores            map[string]uint64
	Refreshes           map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                  sync.Mutex
	syncAttempts        map[string]uint64
	restores            map[string]uint64
	refreshes           map[string]uint64
	syncDurationCount   uint64
	syncDurationTotalNs int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		syncAttempts: make(map[string]uint64),
		restores:     make(map[string]uint64),
		refreshes:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		SyncAttempts:        make(map[string]uint64, len(m.syncAttempts)),
		Restores:            make(map[string]uint64, len(m.restores)),
		Refreshes:           make(map[string]uint64, len(m.refreshes)),
		SyncDurationCount:   atomic.LoadUint64(&m.syncDurationCount),
		SyncDurationTotalNs: atomic.LoadInt64(&m.syncDurationTotalNs),
	}
	for k, v := range m.syncAttempts {
		s.SyncAttempts[k] = v
	}
	for k, v := range m.restores {
		s.Restores[k] = v
	}
	for k, v := range m.refreshes {
		s.Refreshes[k] = v
	}
	return s
}

// IncSyncAttempt increments the sync attempt counter for an outcome.
func (m *InMemoryRecorder) IncSyncAttempt(outcome string) {
	m.mu.Lock()
	m.syncAttempts[outcome]++
	m.mu.Unlock()
}

// ObserveSyncDuration records a full sync flow duration.
func (m *InMemoryRecorder) ObserveSyncDuration(duration time.Duration) {
	atomic.AddUint64(&m.syncDurationCount, 1)
	atomic.AddInt64(&m.syncDurationTotalNs, duration.Nanoseconds())
}

// IncRestore increments the restoration counter for an outcome.
func (m *InMemoryRecorder) IncRestore(outcome string) {
	m.mu.Lock()
	m.restores[outcome]++
	m.mu.Unlock()
}

// IncRefresh increments the refresh counter for an outcome.
func (m *InMemoryRecorder) IncRefresh(outcome string) {
	m.mu.Lock()
	m.refreshes[outcome]++
	m.mu.Unlock()
}
