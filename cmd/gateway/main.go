// Gateway data-retrieval node.
//
// Serves content-addressed data by id, transparently unbundling ANS-104
// bundles, with a chained data-source fallback (S3 mirror, trusted
// gateways, origin chunks) and an on-disk content-addressed chunk cache.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/api"
	"github.com/dev-protocol/ar-io-node/internal/bundles"
	"github.com/dev-protocol/ar-io-node/internal/chunks"
	"github.com/dev-protocol/ar-io-node/internal/config"
	"github.com/dev-protocol/ar-io-node/internal/data"
	"github.com/dev-protocol/ar-io-node/internal/events"
	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("gateway starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("origin", cfg.OriginURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chunk retrieval: on-disk caches in front of the origin network.
	// The caching wrapper is the explicit write-back path; the caches
	// themselves never populate on read.
	chunkClient := chunks.NewHTTPChunkClient(cfg.OriginURL, cfg.FetchAttempts)
	chunkDataCache := chunks.NewFSChunkDataCache(cfg.DataDir, chunkClient)
	chunkMetadataCache := chunks.NewFSChunkMetadataCache(cfg.DataDir, chunkClient)
	cachingChunkSource := chunks.NewCachingChunkSource(chunkClient, chunkDataCache, chunkMetadataCache)
	cachedChunkData := chunks.NewFSChunkDataCache(cfg.DataDir, cachingChunkSource)

	// Whole-object retrieval chain, highest priority first.
	originClient := data.NewOriginClient(cfg.OriginURL, cfg.FetchAttempts)
	sources := []data.Source{}
	if cfg.S3Bucket != "" {
		s3Source, err := data.NewS3Source(ctx, data.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			logging.Fatal("s3 data source init failed", zap.Error(err))
		}
		sources = append(sources, s3Source)
		logging.Info("s3 data source enabled", zap.String("bucket", cfg.S3Bucket))
	}
	sources = append(sources,
		data.NewGatewaysSource(cfg.TrustedGateways, cfg.FetchAttempts),
		data.NewTxChunksSource(originClient, cachedChunkData),
	)
	chain := data.NewChainedSource(sources...)

	// Unbundling pipeline: importer -> unbundler -> broadcaster.
	filter, err := bundles.ParseFilter(cfg.UnbundleFilter)
	if err != nil {
		logging.Fatal("unbundle filter invalid", zap.Error(err))
	}
	broadcaster := events.NewBroadcaster()
	unbundler := bundles.NewUnbundler(cfg.UnbundleWorkerCount, cfg.UnbundleQueueSize, filter, broadcaster)
	importer := bundles.NewImporter(cfg.ImportWorkerCount, cfg.ImportQueueSize, chain, unbundler)

	unbundler.Start(ctx)
	importer.Start(ctx)
	logging.Info("bundle pipeline started",
		zap.Int("importWorkers", cfg.ImportWorkerCount),
		zap.Int("unbundleWorkers", cfg.UnbundleWorkerCount))

	// Stand-in consumer until an indexer subscribes for real: log
	// emitted items so unbundling is observable end to end.
	items := broadcaster.Subscribe()
	go func() {
		for item := range items {
			logging.Info("data item unbundled",
				zap.String("id", item.ID),
				zap.String("parentId", item.ParentID),
				zap.Int("index", item.Index))
		}
	}()

	// Metrics server
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
			logging.Error("metrics server failed", zap.Error(err))
		}
	}()

	// Gateway HTTP server
	server := api.NewServer(chain, importer, cfg.AdminAPIKey)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("gateway listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("http shutdown failed", zap.Error(err))
	}

	cancel()
	importer.Stop()
	unbundler.Stop()
	broadcaster.Unsubscribe(items)
	logging.Info("gateway stopped")
}
