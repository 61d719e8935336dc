// Package notify defines the downstream delivery contract. The core hands
// emitted events to a Notifier via a single ordered queue; delivery
// failures are the notifier's concern and never roll back dedup or
// cooldown state.
package notify

import (
	"context"

	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
)

// Notifier consumes emitted events, one per call, in the order the core
// produced them within a cycle.
type Notifier interface {
	Notify(ctx context.Context, coll *types.Collection, act *types.Activity) error
}

// Event pairs an emitted activity with its collection
type Event struct {
	Collection *types.Collection
	Activity   *types.Activity
}

// Queue serializes delivery across collections. Per-collection schedulers
// enqueue; a single consumer goroutine drains to the notifier, so a
// notifier that is not safe for concurrent use still sees one call at a
// time.
type Queue struct {
	events   chan Event
	notifier Notifier
	logger   *logging.Logger
}

// NewQueue creates a delivery queue with the given buffer size
func NewQueue(notifier Notifier, buffer int, logger *logging.Logger) *Queue {
	if buffer < 1 {
		buffer = 64
	}
	return &Queue{
		events:   make(chan Event, buffer),
		notifier: notifier,
		logger:   logger,
	}
}

// Enqueue submits an event for delivery. Blocks if the queue is full so a
// slow notifier applies backpressure to schedulers rather than dropping
// events; returns early if ctx is cancelled.
func (q *Queue) Enqueue(ctx context.Context, event Event) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. A notifier error is logged
// and the event is considered processed: at-most-once posting is preferred
// over reprocessing storms.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case event := <-q.events:
			if err := q.notifier.Notify(ctx, event.Collection, event.Activity); err != nil {
				q.logger.WithError(err).WithFields(map[string]interface{}{
					"collection": event.Collection.Name,
					"tokenId":    event.Activity.TokenID,
					"kind":       string(event.Activity.Kind),
				}).Error("Notifier failed to deliver event")
			}
		case <-ctx.Done():
			return
		}
	}
}

// LogNotifier is the default collaborator: it logs each emitted event.
// Deployments replace it with a real downstream poster.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier that logs emitted events
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the emitted event
func (n *LogNotifier) Notify(_ context.Context, coll *types.Collection, act *types.Activity) error {
	fields := map[string]interface{}{
		"collection": coll.Name,
		"kind":       string(act.Kind),
		"tokenId":    act.TokenID,
		"txHash":     act.TxHash,
		"from":       act.FromAddress,
		"to":         act.ToAddress,
		"source":     string(act.Source),
		"timestamp":  act.Timestamp,
	}
	if act.HasPrice {
		fields["priceNative"] = act.PriceNative
		fields["currency"] = act.Currency
	}
	n.logger.WithFields(fields).Info("Activity emitted")
	return nil
}
