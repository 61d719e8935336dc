package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collection-watcher/internal/config"
	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
	"github.com/collection-watcher/internal/watcherrors"
)

// Store holds the known-identity sets for all monitored collections and
// persists them to Redis. Each (collection, kind) pair has its own Redis
// key, so concurrent flushes across collections never contend on the same
// resource.
//
// Mutations for one collection only happen from that collection's poll
// cycle; the mutex exists because the periodic flusher reads sets
// concurrently with cycles for other collections.
type Store struct {
	client *redis.Client
	logger *logging.Logger

	mu    sync.Mutex
	sets  map[string]*boundedSet
	dirty map[string]bool
}

// NewStore creates a dedup store backed by the given Redis client
func NewStore(client *redis.Client, logger *logging.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
		sets:   make(map[string]*boundedSet),
		dirty:  make(map[string]bool),
	}
}

// Connect opens a Redis client from config and verifies the connection.
// The durable store being unreachable at initialization is fatal.
func Connect(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Ping checks that the backing store is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func storeKey(collectionID string, kind types.ActivityKind) string {
	return fmt.Sprintf("watcher:known:%s:%s", collectionID, kind)
}

// Load initializes the known sets for a collection from Redis. Called once
// per collection at startup, before its scheduler loop begins. Persisted
// entries that do not match the identity format are pruned.
func (s *Store) Load(ctx context.Context, coll *types.Collection) error {
	for _, kind := range types.Kinds {
		key := storeKey(coll.ContractAddress, kind)

		entries, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return watcherrors.NewPersistence("load", err)
		}

		set := newBoundedSet(coll.Capacity(kind))
		pruned := 0
		for _, entry := range entries {
			if !types.ValidIdentity(entry) {
				pruned++
				continue
			}
			set.add(entry)
		}

		s.mu.Lock()
		s.sets[key] = set
		if pruned > 0 {
			// Write the cleaned set back on the next flush.
			s.dirty[key] = true
		}
		s.mu.Unlock()

		if pruned > 0 {
			s.logger.WithFields(map[string]interface{}{
				"collection": coll.Name,
				"kind":       string(kind),
				"pruned":     pruned,
			}).Warn("Pruned invalid identity entries from persisted state")
		}
	}
	return nil
}

// Contains reports whether the identity has already been seen for the
// collection and kind.
func (s *Store) Contains(collectionID string, kind types.ActivityKind, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[storeKey(collectionID, kind)]
	return ok && set.contains(identity)
}

// Add records the identity as seen. The set is marked dirty and written to
// Redis on the next flush.
func (s *Store) Add(collectionID string, kind types.ActivityKind, identity string) {
	key := storeKey(collectionID, kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		// Load normally runs at startup; this covers a set that was never
		// persisted before.
		set = newBoundedSet(defaultCapacity)
		s.sets[key] = set
	}
	set.add(identity)
	s.dirty[key] = true
}

// Len returns the current number of known identities for a set
func (s *Store) Len(collectionID string, kind types.ActivityKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[storeKey(collectionID, kind)]
	if !ok {
		return 0
	}
	return set.len()
}

// Snapshot returns the known identities in insertion order
func (s *Store) Snapshot(collectionID string, kind types.ActivityKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[storeKey(collectionID, kind)]
	if !ok {
		return nil
	}
	return set.snapshot()
}

// Flush writes every dirty set to Redis. A write failure leaves the set
// dirty so the next flush retries it; the worst case is a duplicate repost
// after a crash, which is an accepted degraded mode.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := make(map[string][]string, len(s.dirty))
	for key := range s.dirty {
		if set, ok := s.sets[key]; ok {
			pending[key] = set.snapshot()
		}
		delete(s.dirty, key)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	var firstErr error
	for key, entries := range pending {
		if err := s.writeSet(ctx, key, entries); err != nil {
			s.mu.Lock()
			s.dirty[key] = true
			s.mu.Unlock()
			s.logger.WithError(err).WithField("key", key).Error("Failed to flush dedup set, will retry on next flush")
			if firstErr == nil {
				firstErr = watcherrors.NewPersistence("flush", err)
			}
		}
	}
	return firstErr
}

func (s *Store) writeSet(ctx context.Context, key string, entries []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(entries) > 0 {
		values := make([]interface{}, len(entries))
		for i, e := range entries {
			values[i] = e
		}
		pipe.RPush(ctx, key, values...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RunFlusher flushes dirty sets on the given interval until ctx is
// cancelled, then performs one final flush so in-memory state marked
// during an in-flight cycle is not lost on shutdown.
func (s *Store) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.WithError(err).Error("Final dedup flush failed on shutdown")
			}
			cancel()
			return
		}
	}
}
