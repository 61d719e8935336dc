// Package merge combines the normalized results of all source adapters for
// one collection's poll cycle, removes cross-source duplicates, applies the
// dedup and cooldown filters, and yields the events to emit in
// chronological order.
package merge

import (
	"sort"
	"time"

	"github.com/collection-watcher/internal/cooldown"
	"github.com/collection-watcher/internal/dedup"
	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
)

// Merger filters a cycle's activity through the dedup store and cooldown
// tracker. Mutations to both happen exactly for the records the cycle
// decides on: an event is never marked known unless it was either emitted
// or deliberately suppressed, and never emitted without being marked known.
type Merger struct {
	dedup    *dedup.Store
	cooldown *cooldown.Tracker
	logger   *logging.Logger

	// providerOrder is the configured priority used to break ties between
	// equally rich records for the same identity. Earlier wins.
	providerOrder []types.Provider
}

// Result describes the outcome of one merge pass
type Result struct {
	// Emit holds the surviving events, oldest first.
	Emit []*types.Activity
	// CrossSourceDropped counts duplicates collapsed across adapters.
	CrossSourceDropped int
	// AlreadyKnown counts events dropped by the dedup store.
	AlreadyKnown int
	// Suppressed counts events dropped by cooldown (still marked known).
	Suppressed int
}

// NewMerger creates a merger over the shared dedup store and cooldown
// tracker. providerOrder is the configured provider priority.
func NewMerger(dedupStore *dedup.Store, tracker *cooldown.Tracker, providerOrder []types.Provider, logger *logging.Logger) *Merger {
	return &Merger{
		dedup:         dedupStore,
		cooldown:      tracker,
		logger:        logger,
		providerOrder: providerOrder,
	}
}

// Merge runs one cycle's filter pipeline for a collection. batches holds
// each adapter's normalized results; now is the cycle's wall-clock time.
func (m *Merger) Merge(coll *types.Collection, batches [][]*types.Activity, now time.Time) *Result {
	result := &Result{}

	// 1. Concatenate and collapse cross-source duplicates by identity.
	byIdentity := make(map[string]*types.Activity)
	var order []string
	for _, batch := range batches {
		for _, act := range batch {
			identity := act.Identity()
			existing, ok := byIdentity[identity]
			if !ok {
				byIdentity[identity] = act
				order = append(order, identity)
				continue
			}
			result.CrossSourceDropped++
			if m.prefer(act, existing) {
				byIdentity[identity] = act
			}
		}
	}

	// 2. Drop identities already seen in a prior cycle.
	candidates := make([]*types.Activity, 0, len(order))
	for _, identity := range order {
		act := byIdentity[identity]
		if m.dedup.Contains(coll.ContractAddress, act.Kind, identity) {
			result.AlreadyKnown++
			continue
		}
		candidates = append(candidates, act)
	}

	// 3. Oldest first, so downstream channels see a sensible timeline.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})

	// 4. Cooldown filter. A suppressed event genuinely happened, so it is
	// still marked known; it just is not emitted.
	window := coll.Cooldown()
	for _, act := range candidates {
		if m.cooldown.IsOnCooldown(coll.ContractAddress, act.TokenID, now, window) {
			m.dedup.Add(coll.ContractAddress, act.Kind, act.Identity())
			result.Suppressed++
			m.logger.WithFields(map[string]interface{}{
				"collection": coll.Name,
				"tokenId":    act.TokenID,
				"kind":       string(act.Kind),
			}).Debug("Token on cooldown, suppressing event")
			continue
		}

		m.dedup.Add(coll.ContractAddress, act.Kind, act.Identity())
		if act.Kind == types.KindSale {
			m.cooldown.RecordEmission(coll.ContractAddress, act.TokenID, now)
		}
		result.Emit = append(result.Emit, act)
	}

	return result
}

// prefer reports whether candidate should replace existing as the canonical
// record for an identity. The record carrying a price wins; between equally
// rich records the provider configured earlier wins.
func (m *Merger) prefer(candidate, existing *types.Activity) bool {
	if candidate.HasPrice != existing.HasPrice {
		return candidate.HasPrice
	}
	return m.priority(candidate.Source) < m.priority(existing.Source)
}

func (m *Merger) priority(p types.Provider) int {
	for i, provider := range m.providerOrder {
		if provider == p {
			return i
		}
	}
	return len(m.providerOrder)
}
