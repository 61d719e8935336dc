package scheduler

import (
	"sync"
	"time"
)

// CycleStats holds per-collection counters, updated at cycle boundaries
// and read by the status server.
type CycleStats struct {
	Collection          string    `json:"collection"`
	Contract            string    `json:"contract"`
	Cycles              uint64    `json:"cycles"`
	SkippedTicks        uint64    `json:"skippedTicks"`
	Emitted             uint64    `json:"emitted"`
	Suppressed          uint64    `json:"suppressed"`
	AlreadyKnown        uint64    `json:"alreadyKnown"`
	CrossSourceDropped  uint64    `json:"crossSourceDropped"`
	ConsecutiveFailures uint64    `json:"consecutiveFailures"`
	LastCycleStart      time.Time `json:"lastCycleStart"`
	LastCycleDuration   string    `json:"lastCycleDuration"`
	LastError           string    `json:"lastError,omitempty"`
}

// statsRegistry guards the per-collection stats map
type statsRegistry struct {
	mu    sync.RWMutex
	stats map[string]*CycleStats
}

func newStatsRegistry() *statsRegistry {
	return &statsRegistry{stats: make(map[string]*CycleStats)}
}

func (r *statsRegistry) register(name, contract string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[contract] = &CycleStats{Collection: name, Contract: contract}
}

func (r *statsRegistry) update(contract string, fn func(*CycleStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stats[contract]; ok {
		fn(s)
	}
}

// snapshot returns a copy of every collection's stats
func (r *statsRegistry) snapshot() []CycleStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CycleStats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	return out
}
