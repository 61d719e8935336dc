// Command watcher runs the NFT collection activity watcher: per-collection
// polling loops over the configured upstream sources, cross-source dedup,
// cooldown suppression, and delivery to the notifier.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/collection-watcher/internal/adapter"
	"github.com/collection-watcher/internal/api"
	"github.com/collection-watcher/internal/config"
	"github.com/collection-watcher/internal/cooldown"
	"github.com/collection-watcher/internal/dedup"
	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/merge"
	"github.com/collection-watcher/internal/notify"
	"github.com/collection-watcher/internal/scheduler"
	"github.com/collection-watcher/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(logging.LevelError, logging.FormatText).Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	collections, err := config.LoadCollections(cfg.CollectionsFile)
	if err != nil {
		logger.Errorf("Failed to load collections: %v", err)
		os.Exit(1)
	}
	logger.Infof("Loaded %d collections from %s", len(collections), cfg.CollectionsFile)

	// The durable store being unreachable at startup is fatal; everything
	// after this point is contained at the per-collection cycle boundary.
	redisClient, err := dedup.Connect(&cfg.Redis)
	if err != nil {
		logger.Errorf("Failed to connect to durable store: %v", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	dedupStore := dedup.NewStore(redisClient, logger)
	tracker := cooldown.NewTracker()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	for _, coll := range collections {
		if err := dedupStore.Load(startupCtx, coll); err != nil {
			logger.Errorf("Failed to load dedup state for %s: %v", coll.Name, err)
			cancelStartup()
			os.Exit(1)
		}
	}
	cancelStartup()

	magicEdenClient := adapter.NewRateLimitedClient(&adapter.ClientConfig{
		Provider:          string(types.ProviderMagicEden),
		RequestsPerSecond: cfg.Providers.MagicEdenRPS,
		RequestTimeout:    cfg.Providers.RequestTimeout,
	})
	magicEden := adapter.NewMagicEdenAdapter(magicEdenClient, logger)

	var openSea *adapter.OpenSeaAdapter
	if cfg.Providers.OpenSeaAPIKey != "" {
		openSeaClient := adapter.NewRateLimitedClient(&adapter.ClientConfig{
			Provider:          string(types.ProviderOpenSea),
			RequestsPerSecond: cfg.Providers.OpenSeaRPS,
			RequestTimeout:    cfg.Providers.RequestTimeout,
			Headers:           map[string]string{"x-api-key": cfg.Providers.OpenSeaAPIKey},
		})
		openSea = adapter.NewOpenSeaAdapter(openSeaClient, logger)
		logger.Info("OpenSea API key configured, secondary source enabled")
	} else {
		logger.Info("No OpenSea API key configured, secondary source disabled")
	}

	adapters := make(map[string][]adapter.SourceAdapter, len(collections))
	for _, coll := range collections {
		list := []adapter.SourceAdapter{magicEden}
		if openSea != nil && coll.OpenSeaSlug != "" {
			list = append(list, openSea)
		}
		adapters[coll.ContractAddress] = list
	}

	providerOrder := []types.Provider{types.ProviderMagicEden, types.ProviderOpenSea}
	merger := merge.NewMerger(dedupStore, tracker, providerOrder, logger)

	notifier := notify.NewLogNotifier(logger)
	queue := notify.NewQueue(notifier, 256, logger)

	sched := scheduler.New(collections, adapters, merger, queue, logger)

	statusServer := api.NewServer(&api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, sched, dedupStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Performs a final flush when ctx is cancelled, so identities
		// marked known mid-cycle survive a shutdown.
		dedupStore.RunFlusher(ctx, cfg.Dedup.FlushInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	go func() {
		if err := statusServer.Start(); err != nil {
			logger.Errorf("Status server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %v, shutting down", sig)

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Status server shutdown error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown grace period elapsed, exiting")
	}
}
