// Package cooldown tracks per-token suppression windows. After an event is
// emitted for a token, further events for that token are suppressed for the
// collection's cooldown window regardless of transaction hash. This is an
// independent filter layered after dedup, not a replacement for it.
//
// State is in-memory only and rebuilt empty on restart; a restart briefly
// risks one extra post within the window, which is accepted. Expired
// entries are overwritten lazily rather than swept, so memory is bounded by
// distinct tokens traded within the window.
package cooldown

import (
	"sync"
	"time"
)

// Tracker records the last emission time per (collection, token)
type Tracker struct {
	mu      sync.Mutex
	byToken map[string]map[string]time.Time
}

// NewTracker creates an empty cooldown tracker
func NewTracker() *Tracker {
	return &Tracker{byToken: make(map[string]map[string]time.Time)}
}

// IsOnCooldown reports whether the token's last emission is within window
// of now.
func (t *Tracker) IsOnCooldown(collectionID, tokenID string, now time.Time, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tokens, ok := t.byToken[collectionID]
	if !ok {
		return false
	}
	last, ok := tokens[tokenID]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}

// RecordEmission marks the token as emitted at the given time
func (t *Tracker) RecordEmission(collectionID, tokenID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tokens, ok := t.byToken[collectionID]
	if !ok {
		tokens = make(map[string]time.Time)
		t.byToken[collectionID] = tokens
	}
	tokens[tokenID] = now
}
