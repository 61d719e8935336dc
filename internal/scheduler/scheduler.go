// Package scheduler owns one independent polling loop per monitored
// collection. Cycles for different collections run in parallel with no
// ordering between them; within one collection a single in-flight cycle at
// a time serializes all access to that collection's dedup and cooldown
// state.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/collection-watcher/internal/adapter"
	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/merge"
	"github.com/collection-watcher/internal/notify"
	"github.com/collection-watcher/internal/types"
	"github.com/collection-watcher/internal/watcherrors"
)

// Scheduler runs the poll-fetch-merge-emit loop for every collection
type Scheduler struct {
	merger *merge.Merger
	queue  *notify.Queue
	logger *logging.Logger
	stats  *statsRegistry

	// now is the clock, injectable for tests
	now func() time.Time

	wg      sync.WaitGroup
	runners []*collectionRunner
}

// collectionRunner is the per-collection loop state
type collectionRunner struct {
	coll     *types.Collection
	adapters []adapter.SourceAdapter

	// since is the lower watermark passed to adapters; only activity at or
	// after it is considered. Advanced at the end of a cycle in which at
	// least one adapter succeeded, so a fully failed cycle re-covers the
	// gap on the next tick.
	since time.Time

	// polling guards against a second concurrent cycle for the same
	// collection when the previous one outlives the poll interval.
	polling atomic.Bool
}

// New creates a scheduler. adapters maps contract address to that
// collection's configured adapters, primary first.
func New(collections []*types.Collection, adapters map[string][]adapter.SourceAdapter, merger *merge.Merger, queue *notify.Queue, logger *logging.Logger) *Scheduler {
	s := &Scheduler{
		merger: merger,
		queue:  queue,
		logger: logger,
		stats:  newStatsRegistry(),
		now:    time.Now,
	}
	for _, coll := range collections {
		s.stats.register(coll.Name, coll.ContractAddress)
		s.runners = append(s.runners, &collectionRunner{
			coll:     coll,
			adapters: adapters[coll.ContractAddress],
		})
	}
	return s
}

// SetClock overrides the scheduler's clock (used by tests)
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Stats returns a snapshot of every collection's cycle counters
func (s *Scheduler) Stats() []CycleStats {
	return s.stats.snapshot()
}

// Run starts one loop per collection and blocks until ctx is cancelled and
// all loops have drained. The first cycle for each collection runs
// immediately; subsequent ticks fire at the collection's own interval.
func (s *Scheduler) Run(ctx context.Context) {
	start := s.now()
	for _, runner := range s.runners {
		runner.since = start
		s.wg.Add(1)
		go func(r *collectionRunner) {
			defer s.wg.Done()
			s.runLoop(ctx, r)
		}(runner)
	}
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, r *collectionRunner) {
	logger := s.logger.WithField("collection", r.coll.Name)
	interval := r.coll.PollInterval()
	logger.WithFields(map[string]interface{}{
		"interval": interval.String(),
		"adapters": len(r.adapters),
	}).Info("Starting collection poll loop")

	s.dispatchCycle(ctx, r, logger)

	// time.Ticker gives fixed-interval scheduling: a slow cycle does not
	// push later ticks further out.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dispatchCycle(ctx, r, logger)
		case <-ctx.Done():
			logger.Info("Stopping collection poll loop")
			return
		}
	}
}

// dispatchCycle starts a cycle unless the previous one is still running,
// in which case the tick is skipped with a warning.
func (s *Scheduler) dispatchCycle(ctx context.Context, r *collectionRunner, logger *logging.Logger) {
	if !r.polling.CompareAndSwap(false, true) {
		logger.Warn("Previous cycle still running, skipping tick")
		s.stats.update(r.coll.ContractAddress, func(stats *CycleStats) {
			stats.SkippedTicks++
		})
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer r.polling.Store(false)
		s.runCycle(ctx, r, logger)
	}()
}

// runCycle executes one poll-fetch-merge-emit cycle. Every failure is
// contained here: nothing that happens while processing one collection may
// reach another collection's schedule or the process.
func (s *Scheduler) runCycle(ctx context.Context, r *collectionRunner, logger *logging.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("Cycle panicked: %v", rec)
			s.recordFailure(r.coll.ContractAddress, fmt.Errorf("cycle panic: %v", rec))
		}
	}()

	cycleID := uuid.NewString()
	cycleStart := s.now()
	cycleLogger := logger.WithField("cycleId", cycleID)
	ctx = logging.WithLogger(ctx, cycleLogger)

	batches, fetchErrs := s.fetchAll(ctx, r)
	if len(batches) == 0 {
		// All adapters failed; the next tick still occurs at the normal
		// interval and the watermark stays put.
		err := fmt.Errorf("all adapters failed")
		if len(fetchErrs) > 0 {
			err = fetchErrs[0]
		}
		cycleLogger.WithError(err).Warn("Cycle produced no data, will retry on next tick")
		s.recordFailure(r.coll.ContractAddress, err)
		return
	}

	result := s.merger.Merge(r.coll, batches, cycleStart)
	for _, act := range result.Emit {
		if err := s.queue.Enqueue(ctx, notify.Event{Collection: r.coll, Activity: act}); err != nil {
			cycleLogger.WithError(err).Warn("Delivery queue unavailable, dropping remaining events")
			break
		}
	}

	r.since = cycleStart
	s.stats.update(r.coll.ContractAddress, func(stats *CycleStats) {
		stats.Cycles++
		stats.Emitted += uint64(len(result.Emit))
		stats.Suppressed += uint64(result.Suppressed)
		stats.AlreadyKnown += uint64(result.AlreadyKnown)
		stats.CrossSourceDropped += uint64(result.CrossSourceDropped)
		stats.ConsecutiveFailures = 0
		stats.LastError = ""
		stats.LastCycleStart = cycleStart
		stats.LastCycleDuration = s.now().Sub(cycleStart).String()
	})

	if len(result.Emit) > 0 || result.Suppressed > 0 {
		cycleLogger.WithFields(map[string]interface{}{
			"emitted":      len(result.Emit),
			"suppressed":   result.Suppressed,
			"alreadyKnown": result.AlreadyKnown,
			"crossSource":  result.CrossSourceDropped,
		}).Info("Cycle complete")
	}
}

// fetchAll runs every adapter concurrently and collects the successful
// batches. A failed adapter is logged and skipped for this cycle only.
func (s *Scheduler) fetchAll(ctx context.Context, r *collectionRunner) ([][]*types.Activity, []error) {
	logger := logging.FromContext(ctx)

	type fetchResult struct {
		provider types.Provider
		batch    []*types.Activity
		err      error
	}

	results := make(chan fetchResult, len(r.adapters))
	var fetchWG sync.WaitGroup
	for _, a := range r.adapters {
		fetchWG.Add(1)
		go func(a adapter.SourceAdapter) {
			defer fetchWG.Done()
			batch, err := a.FetchActivity(ctx, r.coll, r.since)
			results <- fetchResult{provider: a.Provider(), batch: batch, err: err}
		}(a)
	}
	fetchWG.Wait()
	close(results)

	var batches [][]*types.Activity
	var errs []error
	for res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			logger.WithError(res.err).WithFields(map[string]interface{}{
				"provider": string(res.provider),
				"category": string(watcherrors.CategoryOf(res.err)),
			}).Warn("Adapter fetch failed, skipping source for this cycle")
			continue
		}
		batches = append(batches, res.batch)
	}
	return batches, errs
}

func (s *Scheduler) recordFailure(contract string, err error) {
	s.stats.update(contract, func(stats *CycleStats) {
		stats.ConsecutiveFailures++
		stats.LastError = err.Error()
	})
}
