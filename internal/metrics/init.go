package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Database storage health ---
	for _, file := range []string{"main", "wal", "shm"} {
		DBStorageErrors.WithLabelValues(file)
		DBSizeBytes.WithLabelValues(file)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"storage", "database", "temp", "unknown"}
	fsOps := []string{"read", "write", "stat", "readdir", "rename"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	// --- Filesystem retry metrics (per retry-operation × volume) ---
	retryOps := []string{"stat", "open", "readdir", "write", "rename"}

	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- Preview generation by media kind ---
	for _, kind := range []string{"video", "image", "document"} {
		PreviewGenerationsTotal.WithLabelValues(kind, "success")
		PreviewGenerationsTotal.WithLabelValues(kind, "error")
		PreviewGenerationDuration.WithLabelValues(kind)
	}

	// --- DB query operations ---
	for _, op := range []string{"create_media", "update_media_fields", "get_by_slug", "get_by_id",
		"list", "delete", "upsert_tag", "attach_tags", "detach_tag", "merge_tags",
		"create_group", "add_group_member", "create_access_key", "revoke_access_key",
		"begin_transaction", "commit", "rollback"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, kind := range []string{"commit", "rollback", "batch_insert", "batch_update"} {
		DBTransactionDuration.WithLabelValues(kind)
	}

	// --- Upload pipeline stages ---
	for _, stage := range []string{"validate", "extract", "thumbnail", "poster", "transcode", "move", "db"} {
		UploadStageDuration.WithLabelValues(stage, "success")
		UploadStageDuration.WithLabelValues(stage, "error")
		UploadStageRetries.WithLabelValues(stage)
	}

	// --- Transcoder rungs ---
	for _, rung := range []string{"1080p", "720p", "480p", "360p"} {
		TranscoderRungsTotal.WithLabelValues(rung, "success")
		TranscoderRungsTotal.WithLabelValues(rung, "error")
		TranscoderRungDuration.WithLabelValues(rung)
	}

	// --- Access control layers ---
	for _, layer := range []string{"owner", "group", "access_key", "public"} {
		AccessDecisionsTotal.WithLabelValues(layer, "true")
		AccessDecisionsTotal.WithLabelValues(layer, "false")
	}
}
