// Package config loads and validates the substrate's runtime configuration
// from environment variables: storage and database directories, worker pool
// sizing, transcoding feature flags, and bounded in-memory buffer capacities.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-viewer/internal/logging"
	"media-viewer/internal/workers"
)

// Size limits for each media kind.
const (
	MaxVideoBytes    int64 = 5 * 1024 * 1024 * 1024   // 5 GiB
	MaxImageBytes    int64 = 50 * 1024 * 1024          // 50 MiB
	MaxDocumentBytes int64 = 100 * 1024 * 1024         // 100 MiB
)

// Default per-stage timeouts for the upload pipeline. internal/upload does
// not apply them: its stages run without a per-stage deadline.
var (
	DefaultValidateTimeout = 10 * time.Second
	DefaultExtractTimeout  = 30 * time.Second
	DefaultThumbTimeout    = 30 * time.Second
	DefaultPosterTimeout   = 30 * time.Second
	DefaultMoveTimeout     = 30 * time.Second
	DefaultDBTimeout       = 10 * time.Second
)

// StageWeights are the progress-heuristic weights for each upload stage.
var StageWeights = map[string]float64{
	"validate":  0.02,
	"extract":   0.05,
	"thumbnail": 0.05,
	"poster":    0.03,
	"transcode": 0.70,
	"move":      0.10,
	"db":        0.05,
}

// Rungs is the fixed video quality ladder, ordered
// highest bandwidth first to match the HLS master-playlist contract.
var Rungs = []Rung{
	{Name: "1080p", Height: 1080, VideoKbps: 5000, AudioKbps: 160},
	{Name: "720p", Height: 720, VideoKbps: 2800, AudioKbps: 128},
	{Name: "480p", Height: 480, VideoKbps: 1400, AudioKbps: 128},
	{Name: "360p", Height: 360, VideoKbps: 800, AudioKbps: 96},
}

// Rung describes one rendition tier of the HLS ladder.
type Rung struct {
	Name      string
	Height    int
	VideoKbps int
	AudioKbps int
}

// Config holds all substrate configuration.
type Config struct {
	// StorageRoot is the root directory the Storage Manager scopes all I/O under.
	StorageRoot string
	// DatabasePath is the path to the SQLite database file.
	DatabasePath string

	// MaxConcurrentUploadsPerUser backpressure gate.
	MaxConcurrentUploadsPerUser int
	// WorkerPoolSize is N, the bounded processing pool size (0 = auto, one per available CPU).
	WorkerPoolSize int

	// TranscodingEnabled gates whether the Transcoder will be invoked at all
	// (set when ffmpeg is found on PATH).
	TranscodingEnabled bool
	// GPUAccel selects the ffmpeg hardware acceleration mode: none|auto|nvidia|vaapi|videotoolbox.
	GPUAccel string

	// AuditRingSize is the bounded in-memory audit ring capacity (default 1000).
	AuditRingSize int
	// UploadHistorySize is the bounded UploadRecord history capacity (default 100).
	UploadHistorySize int

	// SweepInterval is how often the background orphan/stuck-upload sweep runs.
	SweepInterval time.Duration
}

// Load reads configuration from the environment, resolving directories to
// absolute paths and validating writability: log each value, validate,
// derive paths.
func Load() (*Config, error) {
	storageRoot := getEnv("STORAGE_ROOT", "/data/storage")
	databaseDir := getEnv("DATABASE_DIR", "/data/database")

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  STORAGE_ROOT:   %s", storageRoot)
	logging.Info("  DATABASE_DIR:   %s", databaseDir)

	storageRoot, err := filepath.Abs(storageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory: %w", err)
	}

	if err := ensureWritableDir(storageRoot); err != nil {
		return nil, fmt.Errorf("storage root is not usable: %w", err)
	}
	if err := ensureWritableDir(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not usable: %w", err)
	}

	for _, sub := range []string{"videos", "images", "documents", "temp"} {
		if err := os.MkdirAll(filepath.Join(storageRoot, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage subtree %q: %w", sub, err)
		}
	}

	// The pool defaults to one worker per available CPU (GOMAXPROCS, which
	// follows a container CPU limit).
	workerPoolSize := getEnvInt("WORKER_POOL_SIZE", 0)
	if workerPoolSize <= 0 {
		workerPoolSize = workers.ForCPU(0)
	}

	cfg := &Config{
		StorageRoot:                 storageRoot,
		DatabasePath:                filepath.Join(databaseDir, "media.db"),
		MaxConcurrentUploadsPerUser: getEnvInt("MAX_CONCURRENT_UPLOADS_PER_USER", 3),
		WorkerPoolSize:              workerPoolSize,
		GPUAccel:                    getEnv("GPU_ACCEL", "none"),
		AuditRingSize:               getEnvInt("AUDIT_RING_SIZE", 1000),
		UploadHistorySize:           getEnvInt("UPLOAD_HISTORY_SIZE", 100),
		SweepInterval:               getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
	}
	cfg.TranscodingEnabled = checkFFmpegAvailable()

	logging.Info("  WORKER_POOL_SIZE: %d", cfg.WorkerPoolSize)
	logging.Info("  TRANSCODING:      %s", enabledString(cfg.TranscodingEnabled))

	return cfg, nil
}

func enabledString(b bool) string {
	if b {
		return "ENABLED"
	}
	return "DISABLED (ffmpeg not found on PATH)"
}

func ensureWritableDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	probe := filepath.Join(path, ".write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory %q is not writable: %w", path, err)
	}
	return os.Remove(probe)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logging.Warn("invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logging.Warn("invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func checkFFmpegAvailable() bool {
	path := os.Getenv("PATH")
	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, "ffmpeg")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}
