package adapter

import (
	"context"
	"time"

	"github.com/collection-watcher/internal/types"
)

// SourceAdapter translates one provider's raw API payload into canonical
// Activity records. Implementations return records most-recent-first,
// restricted to activity at or after since. Individually malformed records
// are skipped and logged, never fatal to the batch.
//
// A collection has one or two adapters: the primary is always present, the
// secondary only when its provider-specific identifier is configured.
type SourceAdapter interface {
	Provider() types.Provider
	FetchActivity(ctx context.Context, coll *types.Collection, since time.Time) ([]*types.Activity, error)
}
