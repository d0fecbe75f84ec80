// Command media-viewer is the composition root for the media processing
// and access-control substrate: it wires the database, storage manager,
// transcoder, upload pipeline, access control engine and background
// sweeper together, then idles until told to shut down.
//
// It starts no HTTP listener of its own; routing, sessions and the gallery
// frontend are a separate concern this module doesn't own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-viewer/internal/access"
	"media-viewer/internal/audit"
	"media-viewer/internal/config"
	"media-viewer/internal/database"
	"media-viewer/internal/logging"
	"media-viewer/internal/media"
	"media-viewer/internal/memory"
	"media-viewer/internal/metrics"
	"media-viewer/internal/startup"
	"media-viewer/internal/storage"
	"media-viewer/internal/sweeper"
	"media-viewer/internal/transcoder"
	"media-viewer/internal/upload"
)

const statsRefreshInterval = 30 * time.Second

// substrate is the wired dependency graph this binary owns: the database,
// storage manager, transcoder, upload pipeline, access control engine and
// background sweeper. Nothing in this module drives Pipeline.Submit or
// Engine.CheckAccess yet — an HTTP handler, an RTMP ingest hook, or a CLI import
// command would call into them — but the composition root still builds and
// holds the graph so that caller has something to call into.
type substrate struct {
	db        *database.Database
	store     *storage.Manager
	pipeline  *upload.Pipeline
	engine    *access.Engine
	sweep     *sweeper.Sweeper
	collector *metrics.Collector
	mem       *memory.Monitor
}

func main() {
	bootStart := time.Now()

	memory.ConfigureFromEnv()

	startup.PrintBanner()
	startup.LogSystemInfo()

	cfg, err := config.Load()
	if err != nil {
		startup.LogFatal("configuration error: %v", err)
	}

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips init failed, image variants fall back to imaging/stdlib: %v", err)
	}

	s, err := buildSubstrate(cfg)
	if err != nil {
		startup.LogFatal("%v", err)
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	if err := s.sweep.Start(sweepCtx); err != nil {
		startup.LogFatal("sweeper failed to start: %v", err)
	}
	startup.LogSweeperStarted()

	s.collector.Start()

	statsDone := make(chan struct{})
	go refreshStatsLoop(sweepCtx, s.db, statsDone)

	startup.LogReady(time.Since(bootStart))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	startup.LogShutdownInitiated(sig.String())

	startup.LogShutdownStep("stopping sweeper")
	sweepCancel()
	s.sweep.Stop()
	startup.LogShutdownStepComplete("stopping sweeper")

	startup.LogShutdownStep("stopping metrics collector")
	s.collector.Stop()
	<-statsDone
	startup.LogShutdownStepComplete("stopping metrics collector")

	s.mem.Stop()

	startup.LogShutdownStep("closing database")
	if err := s.db.Close(); err != nil {
		logging.Warn("error closing database: %v", err)
	}
	startup.LogShutdownStepComplete("closing database")

	media.ShutdownVips()

	startup.LogShutdownComplete()
}

// buildSubstrate wires config, database, storage, transcoder, upload,
// access and sweeper together in dependency order.
func buildSubstrate(cfg *config.Config) (*substrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbStart := time.Now()
	db, info, err := database.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return nil, err
	}
	if info.PermissionWarning != "" {
		logging.Warn("%s", info.PermissionWarning)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	store, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	startup.LogTranscoderInit(cfg.TranscodingEnabled)
	trans := transcoder.New(cfg.GPUAccel, cfg.TranscodingEnabled)

	ring := audit.NewRing(cfg.AuditRingSize)
	uploadStats := audit.NewStore(cfg.UploadHistorySize)

	mem := memory.NewMonitor(memory.DefaultConfig())
	mem.Start()

	startup.LogUploadPipelineInit(cfg.WorkerPoolSize, cfg.MaxConcurrentUploadsPerUser)
	pipeline := upload.New(db, store, trans, uploadStats, ring, cfg, mem)

	startup.LogAccessEngineInit()
	engine := access.New(db, ring)

	startup.LogSweeperInit(cfg.SweepInterval)
	sweep := sweeper.New(db, store, ring, cfg.SweepInterval)

	collector := metrics.NewCollector(statsAdapter{db}, cfg.DatabasePath, statsRefreshInterval)
	collector.SetStorageHealthChecker(db)

	return &substrate{
		db:        db,
		store:     store,
		pipeline:  pipeline,
		engine:    engine,
		sweep:     sweep,
		collector: collector,
		mem:       mem,
	}, nil
}

// refreshStatsLoop periodically recomputes cached IndexStats so the
// metrics collector's dashboard counters don't stay at zero forever; it
// replaces a post-scan refresh since there is no directory
// walk left to trigger it.
func refreshStatsLoop(ctx context.Context, db *database.Database, done chan<- struct{}) {
	defer close(done)
	if err := db.RefreshStats(ctx); err != nil {
		logging.Warn("initial stats refresh failed: %v", err)
	}

	ticker := time.NewTicker(statsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.RefreshStats(ctx); err != nil {
				logging.Warn("stats refresh failed: %v", err)
			}
		}
	}
}

// statsAdapter bridges database.Database's cached IndexStats to the
// metrics.StatsProvider shape the collector expects, since the two
// packages deliberately don't import each other's result types.
type statsAdapter struct {
	db *database.Database
}

func (a statsAdapter) GetStats() metrics.Stats {
	s := a.db.GetStats()
	return metrics.Stats{
		TotalItems:     s.TotalItems,
		TotalVideos:    s.TotalVideos,
		TotalImages:    s.TotalImages,
		TotalDocuments: s.TotalDocuments,
		TotalReady:     s.TotalReady,
		TotalFailed:    s.TotalFailed,
		TotalTags:      s.TotalTags,
	}
}
