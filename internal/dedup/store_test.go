package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	return NewStore(client, logger), mr
}

func testCollection() *types.Collection {
	return &types.Collection{
		Name:            "Test Collection",
		ContractAddress: "0x1111111111111111111111111111111111111111",
		MaxKnownSales:   5,
		MaxKnownMints:   5,
		MaxKnownBurns:   5,
	}
}

func TestStoreAddContains(t *testing.T) {
	store, _ := setupTestStore(t)
	coll := testCollection()
	require.NoError(t, store.Load(context.Background(), coll))

	assert.False(t, store.Contains(coll.ContractAddress, types.KindSale, "1-0xaaa"))

	store.Add(coll.ContractAddress, types.KindSale, "1-0xaaa")
	assert.True(t, store.Contains(coll.ContractAddress, types.KindSale, "1-0xaaa"))

	// Kinds have independent sets.
	assert.False(t, store.Contains(coll.ContractAddress, types.KindMint, "1-0xaaa"))
}

func TestStoreFIFOEviction(t *testing.T) {
	store, _ := setupTestStore(t)
	coll := testCollection()
	require.NoError(t, store.Load(context.Background(), coll))

	// Insert capacity + 3 distinct identities.
	for i := 0; i < 8; i++ {
		store.Add(coll.ContractAddress, types.KindSale, fmt.Sprintf("%d-0xhash%d", i, i))
	}

	assert.Equal(t, 5, store.Len(coll.ContractAddress, types.KindSale))

	// The oldest three were evicted, the most recent five remain.
	for i := 0; i < 3; i++ {
		assert.False(t, store.Contains(coll.ContractAddress, types.KindSale, fmt.Sprintf("%d-0xhash%d", i, i)),
			"identity %d should have been evicted", i)
	}
	for i := 3; i < 8; i++ {
		assert.True(t, store.Contains(coll.ContractAddress, types.KindSale, fmt.Sprintf("%d-0xhash%d", i, i)),
			"identity %d should still be known", i)
	}
}

func TestStoreDuplicateAddKeepsPosition(t *testing.T) {
	store, _ := setupTestStore(t)
	coll := testCollection()
	require.NoError(t, store.Load(context.Background(), coll))

	store.Add(coll.ContractAddress, types.KindSale, "1-0xaaa")
	store.Add(coll.ContractAddress, types.KindSale, "2-0xbbb")
	store.Add(coll.ContractAddress, types.KindSale, "1-0xaaa")

	assert.Equal(t, []string{"1-0xaaa", "2-0xbbb"}, store.Snapshot(coll.ContractAddress, types.KindSale))
}

func TestStoreFlushAndReload(t *testing.T) {
	store, mr := setupTestStore(t)
	coll := testCollection()
	ctx := context.Background()
	require.NoError(t, store.Load(ctx, coll))

	store.Add(coll.ContractAddress, types.KindSale, "42-0xaaa")
	store.Add(coll.ContractAddress, types.KindMint, "7-0xbbb")
	require.NoError(t, store.Flush(ctx))

	// A fresh store over the same Redis sees the persisted identities.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	reloaded := NewStore(client, logging.NewLogger(logging.LevelError, logging.FormatText))
	require.NoError(t, reloaded.Load(ctx, coll))

	assert.True(t, reloaded.Contains(coll.ContractAddress, types.KindSale, "42-0xaaa"))
	assert.True(t, reloaded.Contains(coll.ContractAddress, types.KindMint, "7-0xbbb"))
	assert.False(t, reloaded.Contains(coll.ContractAddress, types.KindBurn, "42-0xaaa"))
}

func TestStoreLoadPrunesInvalidEntries(t *testing.T) {
	store, mr := setupTestStore(t)
	coll := testCollection()
	ctx := context.Background()

	key := fmt.Sprintf("watcher:known:%s:%s", coll.ContractAddress, types.KindSale)
	_, err := mr.Push(key, "42-0xaaa", "garbage", "???-0xccc", "7-0xbbb")
	require.NoError(t, err)

	require.NoError(t, store.Load(ctx, coll))

	assert.Equal(t, []string{"42-0xaaa", "7-0xbbb"}, store.Snapshot(coll.ContractAddress, types.KindSale))

	// The cleaned set is written back on the next flush.
	require.NoError(t, store.Flush(ctx))
	entries, err := mr.List(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"42-0xaaa", "7-0xbbb"}, entries)
}

func TestStoreFlushFailureRetriesNextFlush(t *testing.T) {
	store, mr := setupTestStore(t)
	coll := testCollection()
	ctx := context.Background()
	require.NoError(t, store.Load(ctx, coll))

	store.Add(coll.ContractAddress, types.KindSale, "1-0xaaa")

	mr.SetError("store down")
	err := store.Flush(ctx)
	require.Error(t, err)

	// In-memory state is intact and the set stays dirty.
	assert.True(t, store.Contains(coll.ContractAddress, types.KindSale, "1-0xaaa"))

	mr.SetError("")
	require.NoError(t, store.Flush(ctx))

	key := fmt.Sprintf("watcher:known:%s:%s", coll.ContractAddress, types.KindSale)
	entries, err := mr.List(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0xaaa"}, entries)
}

func TestStoreFlushNoDirtySetsIsNoop(t *testing.T) {
	store, _ := setupTestStore(t)
	require.NoError(t, store.Flush(context.Background()))
}

func TestStoreSeparateCollectionsDoNotShareState(t *testing.T) {
	store, _ := setupTestStore(t)
	collA := testCollection()
	collB := &types.Collection{
		Name:            "Other",
		ContractAddress: "0x2222222222222222222222222222222222222222",
		MaxKnownSales:   5,
	}
	ctx := context.Background()
	require.NoError(t, store.Load(ctx, collA))
	require.NoError(t, store.Load(ctx, collB))

	store.Add(collA.ContractAddress, types.KindSale, "1-0xaaa")
	assert.False(t, store.Contains(collB.ContractAddress, types.KindSale, "1-0xaaa"))
}

func TestFlusherFinalFlushOnShutdown(t *testing.T) {
	store, mr := setupTestStore(t)
	coll := testCollection()
	require.NoError(t, store.Load(context.Background(), coll))

	// Mark an identity mid-cycle, then stop the flusher before any tick
	// fires: only the shutdown path can persist it.
	store.Add(coll.ContractAddress, types.KindSale, "1-0xaaa")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunFlusher(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("flusher did not stop after cancellation")
	}

	key := fmt.Sprintf("watcher:known:%s:%s", coll.ContractAddress, types.KindSale)
	entries, err := mr.List(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0xaaa"}, entries)
}
