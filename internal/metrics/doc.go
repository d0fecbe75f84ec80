// Package metrics provides Prometheus instrumentation for the media
// processing and access-control substrate.
//
// This package defines and exposes metrics that can be scraped by
// Prometheus to monitor the health, performance, and behavior of the
// system. All metrics are prefixed with "media_viewer_" to avoid naming
// collisions with other applications.
//
// # Metric Categories
//
// ## Database Metrics
//
// Monitor the media repository's query and transaction performance:
//   - DBQueryTotal: Counter of queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//   - DBTransactionDuration: Histogram of transaction duration by kind
//   - DBConnectionsOpen: Gauge of open database connections
//   - DBSizeBytes: Gauge of database file sizes (main, WAL, SHM)
//   - DBStorageErrors: Counter of storage health check errors by file
//
// ## Storage Metrics
//
// Track the storage manager's filesystem operations:
//   - StorageOperationsTotal: Counter by operation and status
//   - StorageOperationDuration: Histogram of operation duration
//   - StorageBytesWritten: Counter of bytes written
//   - FilesystemOperationDuration / FilesystemOperationErrors: per volume × operation
//   - FilesystemRetry*: retry attempt/success/failure/duration counters
//
// ## Preview Generation Metrics
//
// Monitor media item preview/thumbnail generation:
//   - PreviewGenerationsTotal: Counter by kind (video/image/document) and status
//   - PreviewGenerationDuration: Histogram of generation time by kind
//
// ## Media Repository Metrics
//
//   - MediaItemsTotal: Gauge of media items by kind and status
//   - MediaTagsTotal: Gauge of distinct tags
//
// ## Transcoder Metrics
//
//   - TranscoderJobsTotal / TranscoderJobDuration / TranscoderJobsInProgress
//   - TranscoderRungsTotal / TranscoderRungDuration: per-rung HLS ladder metrics
//   - TranscoderCacheSizeBytes: Gauge of the transcoder working directory size
//
// ## Upload Pipeline Metrics
//
//   - UploadsTotal / UploadsInProgress / UploadQueueDepth
//   - UploadStageDuration / UploadStageRetries: per pipeline stage
//   - UploadsRejectedTotal: rejected before entering the pipeline, by reason
//
// ## Access Control Metrics
//
//   - AccessDecisionsTotal: Counter by layer (owner/group/access_key/public) and outcome
//   - AccessDecisionDuration: Histogram of decision evaluation time
//
// ## Sweeper Metrics
//
//   - SweepRunsTotal / SweepLastRunTimestamp / SweepIsRunning
//   - SweepItemsReconciled: Counter by reconciliation action
//
// ## Runtime Metrics
//
//   - GoMemLimit / GoMemAllocBytes / GoMemSysBytes
//   - GoGCRuns / GoGCPauseTotalSeconds / GoGCPauseLastSeconds / GoGCCPUFraction
//
// ## Application Info
//
//   - AppInfo: Gauge with version, commit, and Go version labels
//
// # Usage
//
// Metrics are automatically registered with the default Prometheus registry
// using promauto. Mount the promhttp.Handler() on a metrics endpoint:
//
//	import "github.com/prometheus/client_golang/prometheus/promhttp"
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// # Collector
//
// [Collector] periodically gathers statistics from a [StatsProvider] and
// updates the corresponding gauges:
//
//	collector := metrics.NewCollector(statsProvider, dbPath, 1*time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
