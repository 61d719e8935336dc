// Package dedup implements the per-collection, per-kind set of seen
// activity identities. Each set is bounded, ordered by insertion, and
// evicts its oldest entries on overflow (FIFO, not LRU: an identity is
// "known" purely by presence, recency of access is irrelevant). Sets are
// persisted to Redis in batches and reloaded at startup so restarts do
// not repost recent activity.
package dedup

// defaultCapacity is used for a set created outside the startup load path.
const defaultCapacity = 50

// boundedSet is a fixed-capacity ordered set of identity strings with
// FIFO eviction.
type boundedSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newBoundedSet(capacity int) *boundedSet {
	if capacity < 1 {
		capacity = 1
	}
	return &boundedSet{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

func (s *boundedSet) contains(identity string) bool {
	_, ok := s.members[identity]
	return ok
}

// add appends identity and evicts the oldest entries until the set is
// back at capacity. Adding an existing identity is a no-op: the entry
// keeps its original insertion position.
func (s *boundedSet) add(identity string) {
	if s.contains(identity) {
		return
	}
	s.order = append(s.order, identity)
	s.members[identity] = struct{}{}
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
}

func (s *boundedSet) len() int {
	return len(s.order)
}

// snapshot returns the identities in insertion order
func (s *boundedSet) snapshot() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
