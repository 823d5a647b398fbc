// Command ocrserver runs the OCR batch processing service: an HTTP surface
// over a Job Manager that stages uploaded PDFs, deduplicates them through a
// Cache Store, optionally downsamples oversize inputs, and drives each
// through an external OCR engine with a bounded worker pool.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalinfl/ocrbatch/internal/cache"
	"github.com/catalinfl/ocrbatch/internal/config"
	"github.com/catalinfl/ocrbatch/internal/httpapi"
	"github.com/catalinfl/ocrbatch/internal/job"
	"github.com/catalinfl/ocrbatch/internal/logging"
	"github.com/catalinfl/ocrbatch/internal/ocrengine"
	"github.com/catalinfl/ocrbatch/internal/optimizer"
	"github.com/catalinfl/ocrbatch/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ring := logging.NewRing(cfg.LogRingCapacity)
	appLogger := logging.New("ocrserver", ring)

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatalf("failed to create uploads dir: %v", err)
	}

	store, err := cache.New(cfg.CacheRoot)
	if err != nil {
		log.Fatalf("failed to initialize cache store: %v", err)
	}

	cacheMaxAge := time.Duration(cfg.MaxAgeSeconds()) * time.Second
	store.SetBudget(cacheMaxAge, cfg.MaxTotalBytes(), appLogger)
	// §3 invariant 4: the cache budget is checked "on startup" as well as
	// after each admission (the latter now enforced by SetBudget above).
	if err := store.Evict(time.Now(), cacheMaxAge, cfg.MaxTotalBytes()); err != nil {
		appLogger.Warn("startup cache eviction failed", "error", err)
	}

	opt := optimizer.New(cfg.GhostscriptCmd, cfg.OptimiseThresholdBytes(), cfg.OptimiseMinReductionPct, appLogger)
	engine := ocrengine.New(cfg.OCRMyPDFCmd)

	coordinator := worker.New(worker.Deps{
		Cache:          store,
		Optimizer:      opt,
		Engine:         engine,
		Logger:         appLogger,
		UploadsDir:     cfg.UploadsDir,
		WorkerCap:      cfg.WorkerCap,
		PerFileTimeout: time.Duration(cfg.PerFileTimeoutSecs) * time.Second,
	})

	manager := job.NewManager(cfg.UploadsDir, cfg.AllowedExts, appLogger, coordinator.Run)

	go runCacheEvictionLoop(store, cfg, appLogger)

	server := httpapi.New(cfg, manager, store, ring, appLogger)

	go func() {
		appLogger.Info("listening", "addr", cfg.ListenAddr)
		if err := server.Listen(); err != nil {
			appLogger.Error("server stopped", "error", err)
		}
	}()

	waitForShutdown(appLogger)
}

// runCacheEvictionLoop periodically enforces the Cache Store's age and
// size budgets (§4.2 evict), since nothing else in this process calls
// Evict on a schedule.
func runCacheEvictionLoop(store *cache.Store, cfg *config.Config, logger *logging.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		maxAge := time.Duration(cfg.MaxAgeSeconds()) * time.Second
		if err := store.Evict(time.Now(), maxAge, cfg.MaxTotalBytes()); err != nil {
			logger.Warn("cache eviction failed", "error", err)
		}
	}
}

func waitForShutdown(logger *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())
}
