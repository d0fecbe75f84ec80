package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_viewer_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Storage metrics (internal/storage atomic write/move/delete operations)
var (
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_storage_operations_total",
			Help: "Total number of storage manager operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_storage_operation_duration_seconds",
			Help:    "Storage manager operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	StorageBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_viewer_storage_bytes_written_total",
			Help: "Total number of bytes written to storage",
		},
	)
)

// Media item / preview generation metrics (internal/mediaitem)
var (
	PreviewGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_preview_generations_total",
			Help: "Total number of preview/thumbnail generations",
		},
		[]string{"kind", "status"},
	)

	PreviewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_preview_generation_duration_seconds",
			Help:    "Preview generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
)

// Media repository metrics
var (
	MediaItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_viewer_media_items_total",
			Help: "Total number of media items by kind and status",
		},
		[]string{"kind", "status"},
	)

	MediaTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_tags_total",
			Help: "Total number of distinct tags",
		},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_transcoder_jobs_total",
			Help: "Total number of transcoding jobs",
		},
		[]string{"status"},
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_viewer_transcoder_job_duration_seconds",
			Help:    "Transcoding job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_transcoder_jobs_in_progress",
			Help: "Number of transcoding jobs currently in progress",
		},
	)

	TranscoderRungsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_transcoder_rungs_total",
			Help: "Total number of HLS ladder rungs produced, by rung and status",
		},
		[]string{"rung", "status"},
	)

	TranscoderRungDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_transcoder_rung_duration_seconds",
			Help:    "Per-rung ffmpeg encode duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"rung"},
	)
)

// Upload pipeline metrics (internal/upload)
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_uploads_total",
			Help: "Total number of uploads accepted for processing, by terminal status",
		},
		[]string{"status"}, // "ready", "failed", "cancelled"
	)

	UploadsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_uploads_in_progress",
			Help: "Number of uploads currently in the processing pipeline",
		},
	)

	UploadStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_upload_stage_duration_seconds",
			Help:    "Upload pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"stage", "status"},
	)

	UploadStageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_upload_stage_retries_total",
			Help: "Total number of upload pipeline stage retries",
		},
		[]string{"stage"},
	)

	UploadQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_upload_queue_depth",
			Help: "Number of uploads waiting for a free worker slot",
		},
	)

	UploadsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_uploads_rejected_total",
			Help: "Total number of uploads rejected before entering the pipeline",
		},
		[]string{"reason"}, // "too_large", "per_user_limit", "invalid_kind"
	)
)

// Access control metrics (internal/access)
var (
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_access_decisions_total",
			Help: "Total number of access control decisions, by layer and outcome",
		},
		[]string{"layer", "allowed"}, // layer: owner|group|access_key|public
	)

	AccessDecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_viewer_access_decision_duration_seconds",
			Help:    "Access control decision evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)
)

// Sweeper metrics (internal/sweeper, adapted from a directory-scanner's metrics)
var (
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_viewer_sweep_runs_total",
			Help: "Total number of sweeper runs",
		},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_sweep_last_run_timestamp",
			Help: "Timestamp of the last sweeper run",
		},
	)

	SweepItemsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_sweep_items_reconciled_total",
			Help: "Total number of items reconciled by the sweeper, by action",
		},
		[]string{"action"}, // "stuck_upload_failed", "orphan_file_removed", "broken_thumbnail_cleared"
	)

	SweepIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_sweep_running",
			Help: "Whether the sweeper is currently running (1 = running, 0 = idle)",
		},
	)
)

// Filesystem metrics (internal/filesystem, shared by internal/storage)
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds, by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_filesystem_operation_errors_total",
			Help: "Total number of filesystem operation errors, by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"retry_operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_filesystem_retry_success_total",
			Help: "Total number of filesystem retries that eventually succeeded",
		},
		[]string{"retry_operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_filesystem_retry_failures_total",
			Help: "Total number of filesystem retries that exhausted all attempts",
		},
		[]string{"retry_operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_filesystem_retry_duration_seconds",
			Help:    "Total time spent retrying a filesystem operation, in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"retry_operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_filesystem_stale_handle_errors_total",
			Help: "Total number of stale file handle errors observed (ESTALE and similar)",
		},
		[]string{"retry_operation", "volume"},
	)
)

// Runtime metrics, sampled periodically by Collector.
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_go_mem_alloc_bytes",
			Help: "Bytes of heap memory currently allocated",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_go_mem_sys_bytes",
			Help: "Bytes of memory obtained from the OS",
		},
	)

	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_go_mem_limit_bytes",
			Help: "The runtime/debug.SetMemoryLimit soft memory limit, in bytes",
		},
	)

	GoGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_viewer_go_gc_runs_total",
			Help: "Total number of completed garbage collection cycles",
		},
	)

	GoGCPauseTotalSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_viewer_go_gc_pause_total_seconds",
			Help: "Cumulative time spent in GC stop-the-world pauses, in seconds",
		},
	)

	GoGCPauseLastSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_go_gc_pause_last_seconds",
			Help: "Duration of the most recent GC stop-the-world pause, in seconds",
		},
	)

	GoGCCPUFraction = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_go_gc_cpu_fraction",
			Help: "Fraction of CPU time spent in garbage collection since program start",
		},
	)
)

// Memory monitor metrics (internal/memory)
var (
	MemoryUsageRatio = promauto.NewGauge(prometheus.GaugeOpts{Name: "media_viewer_memory_usage_ratio", Help: "Heap allocation as a fraction of the memory limit"})
	MemoryPaused     = promauto.NewGauge(prometheus.GaugeOpts{Name: "media_viewer_memory_paused", Help: "Whether processing is paused for memory pressure (1 = paused, 0 = running)"})
	MemoryGCPauses   = promauto.NewCounter(prometheus.CounterOpts{Name: "media_viewer_memory_gc_pauses_total", Help: "Total number of times processing was paused for memory pressure"})
)

// Database storage health metrics
var (
	DBStorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_viewer_db_storage_errors_total",
			Help: "Total number of database storage health check errors, by file",
		},
		[]string{"file"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_viewer_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds, by transaction kind",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	TranscoderCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_viewer_transcoder_cache_size_bytes",
			Help: "Total size of the transcoder working directory in bytes",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_viewer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
