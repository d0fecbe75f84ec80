package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, info, err := New(context.Background(), dbPath, &Options{MmapDisabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if info.SQLiteVersion == "" {
		t.Error("expected SQLiteVersion to be populated")
	}
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Errorf("Close() error = %v", cerr)
		}
	})
	return db
}

func TestObserveQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		err       error
	}{
		{"successful query", "test_operation", nil},
		{"failed query", "test_operation", errors.New("test error")},
		{"empty operation name", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			done := observeQuery(tt.operation)
			time.Sleep(time.Millisecond)
			done(tt.err)
		})
	}
}

func TestIndexStatsZeroValues(t *testing.T) {
	t.Parallel()

	var stats IndexStats
	if stats.TotalItems != 0 || stats.TotalVideos != 0 || stats.TotalTags != 0 {
		t.Errorf("zero-value IndexStats should have all-zero counts, got %+v", stats)
	}
	if !stats.LastIndexed.IsZero() {
		t.Errorf("zero-value IndexStats.LastIndexed should be zero, got %v", stats.LastIndexed)
	}
}

func TestNewCreatesSchema(t *testing.T) {
	db := newTestDB(t)

	var tableCount int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN (
			'media_items', 'tags', 'media_tags', 'access_groups',
			'group_memberships', 'access_keys', 'access_key_items',
			'access_audit_log', 'metadata'
		)
	`).Scan(&tableCount)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if tableCount != 9 {
		t.Errorf("expected 9 core tables, found %d", tableCount)
	}
}

func TestMigrateLegacyPerKindTagsNoopWhenAbsent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrateLegacyPerKindTags(context.Background()); err != nil {
		t.Fatalf("migrateLegacyPerKindTags() on a fresh schema should be a no-op, got error: %v", err)
	}
}

func TestMigrateLegacyPerKindTagsMovesRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := &MediaItem{Kind: KindVideo, Filename: "clip.mp4", MimeType: "video/mp4", StoragePath: "videos/clip/clip.mp4", Title: "clip"}
	id, _, err := db.CreateMedia(ctx, item, false)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	if _, err := db.db.ExecContext(ctx, `CREATE TABLE video_tags (media_id INTEGER, tag_id INTEGER)`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	tag, err := db.UpsertTag(ctx, "legacy")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	if _, err := db.db.ExecContext(ctx, `INSERT INTO video_tags (media_id, tag_id) VALUES (?, ?)`, id, tag.ID); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	if err := db.migrateLegacyPerKindTags(ctx); err != nil {
		t.Fatalf("migrateLegacyPerKindTags: %v", err)
	}

	var stillExists bool
	if err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='video_tags'`,
	).Scan(&stillExists); err != nil {
		t.Fatalf("check legacy table: %v", err)
	}
	if stillExists {
		t.Error("legacy video_tags table should have been dropped")
	}

	tags, err := db.tagsForMedia(ctx, id)
	if err != nil {
		t.Fatalf("tagsForMedia: %v", err)
	}
	if len(tags) != 1 || tags[0] != "legacy" {
		t.Errorf("expected migrated tag [legacy], got %v", tags)
	}

	// Running again must stay a no-op since the legacy table is gone.
	if err := db.migrateLegacyPerKindTags(ctx); err != nil {
		t.Fatalf("second migrateLegacyPerKindTags call should be a no-op, got: %v", err)
	}
}

func TestBeginEndBatchCommit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES ('k', 'v')"); err != nil {
		t.Fatalf("exec in batch: %v", err)
	}
	if err := db.EndBatch(tx, nil); err != nil {
		t.Fatalf("EndBatch commit: %v", err)
	}

	var value string
	if err := db.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'k'").Scan(&value); err != nil {
		t.Fatalf("read back committed row: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q, want %q", value, "v")
	}
}

func TestBeginEndBatchRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES ('rb', 'v')"); err != nil {
		t.Fatalf("exec in batch: %v", err)
	}
	if err := db.EndBatch(tx, errors.New("caller failed")); err == nil {
		t.Error("expected EndBatch to propagate the caller error")
	}

	var count int
	if err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata WHERE key = 'rb'").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Error("rolled-back insert should not be visible")
	}
}

func TestUpdateAndGetStats(t *testing.T) {
	db := newTestDB(t)

	db.UpdateStats(IndexStats{TotalItems: 5, TotalVideos: 3, TotalTags: 2})
	got := db.GetStats()
	if got.TotalItems != 5 || got.TotalVideos != 3 || got.TotalTags != 2 {
		t.Errorf("GetStats() = %+v, want TotalItems=5 TotalVideos=3 TotalTags=2", got)
	}
}

func TestVacuumAndRebuildFTS(t *testing.T) {
	db := newTestDB(t)

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum() error = %v", err)
	}
	if err := db.RebuildFTS(); err != nil {
		t.Errorf("RebuildFTS() error = %v", err)
	}
}
