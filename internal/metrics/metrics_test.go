package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDBMetricsRecordWithoutPanic(t *testing.T) {
	DBQueryTotal.WithLabelValues("get_by_slug", "success").Inc()
	DBQueryDuration.WithLabelValues("get_by_slug").Observe(0.002)
	DBConnectionsOpen.Set(3)
	DBSizeBytes.WithLabelValues("main").Set(1024 * 1024)
	DBStorageErrors.WithLabelValues("wal").Inc()
	DBTransactionDuration.WithLabelValues("commit").Observe(0.01)
}

func TestStorageMetricsRecordWithoutPanic(t *testing.T) {
	StorageOperationsTotal.WithLabelValues("write", "success").Inc()
	StorageOperationDuration.WithLabelValues("write").Observe(0.05)
	StorageBytesWritten.Add(4096)
}

func TestFilesystemMetricsRecordWithoutPanic(t *testing.T) {
	FilesystemOperationDuration.WithLabelValues("storage", "read").Observe(0.001)
	FilesystemOperationErrors.WithLabelValues("storage", "read").Inc()
	FilesystemRetryAttempts.WithLabelValues("stat", "storage").Inc()
	FilesystemRetrySuccess.WithLabelValues("stat", "storage").Inc()
	FilesystemRetryFailures.WithLabelValues("stat", "storage").Inc()
	FilesystemRetryDuration.WithLabelValues("stat", "storage").Observe(0.2)
	FilesystemStaleErrors.WithLabelValues("stat", "storage").Inc()
}

func TestPreviewGenerationMetricsRecordWithoutPanic(t *testing.T) {
	PreviewGenerationsTotal.WithLabelValues("video", "success").Inc()
	PreviewGenerationDuration.WithLabelValues("video").Observe(1.2)
}

func TestMediaRepositoryMetricsRecordWithoutPanic(t *testing.T) {
	MediaItemsTotal.WithLabelValues("video", "ready").Set(42)
	MediaTagsTotal.Set(17)
}

func TestTranscoderMetricsRecordWithoutPanic(t *testing.T) {
	TranscoderJobsTotal.WithLabelValues("success").Inc()
	TranscoderJobDuration.Observe(30)
	TranscoderJobsInProgress.Set(1)
	TranscoderRungsTotal.WithLabelValues("720p", "success").Inc()
	TranscoderRungDuration.WithLabelValues("720p").Observe(45)
	TranscoderCacheSizeBytes.Set(1024)
}

func TestUploadPipelineMetricsRecordWithoutPanic(t *testing.T) {
	UploadsTotal.WithLabelValues("ready").Inc()
	UploadsInProgress.Set(2)
	UploadStageDuration.WithLabelValues("transcode", "success").Observe(60)
	UploadStageRetries.WithLabelValues("move").Inc()
	UploadQueueDepth.Set(5)
	UploadsRejectedTotal.WithLabelValues("too_large").Inc()
}

func TestAccessControlMetricsRecordWithoutPanic(t *testing.T) {
	AccessDecisionsTotal.WithLabelValues("owner", "true").Inc()
	AccessDecisionDuration.Observe(0.0003)
}

func TestSweeperMetricsRecordWithoutPanic(t *testing.T) {
	SweepRunsTotal.Inc()
	SweepLastRunTimestamp.Set(1700000000)
	SweepItemsReconciled.WithLabelValues("orphan_file_removed").Inc()
	SweepIsRunning.Set(1)
}

func TestRuntimeMetricsRecordWithoutPanic(t *testing.T) {
	GoMemAllocBytes.Set(100 * 1024 * 1024)
	GoMemSysBytes.Set(200 * 1024 * 1024)
	GoMemLimit.Set(500 * 1024 * 1024)
	GoGCRuns.Add(1)
	GoGCPauseTotalSeconds.Add(0.01)
	GoGCPauseLastSeconds.Set(0.001)
	GoGCCPUFraction.Set(0.02)
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.0.0", "abc123", "go1.25")
	if v := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0", "abc123", "go1.25")); v != 1 {
		t.Fatalf("AppInfo gauge = %v, want 1", v)
	}
}
