package sweeper

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"media-viewer/internal/audit"
	"media-viewer/internal/database"
	"media-viewer/internal/storage"
)

func testSweeper(t *testing.T) (*Sweeper, *database.Database, *storage.Manager) {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, _, err := database.New(ctx, dbPath, nil)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	ring := audit.NewRing(100)
	return New(db, store, ring, 0), db, store
}

func TestReconcileStuckUploadsTransitionsProcessingToFailed(t *testing.T) {
	s, db, _ := testSweeper(t)
	ctx := context.Background()

	item := &database.MediaItem{Kind: database.KindVideo, Filename: "stuck.mp4", MimeType: "video/mp4", Slug: "stuck"}
	id, _, err := db.CreateMedia(ctx, item, true)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	processing := database.StatusProcessing
	if err := db.UpdateMediaFields(ctx, id, database.Patch{Status: &processing}); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	count, err := s.reconcileStuckUploads(ctx)
	if err != nil {
		t.Fatalf("reconcileStuckUploads: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row reconciled, got %d", count)
	}

	row, err := db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != database.StatusFailed {
		t.Fatalf("expected status failed, got %s", row.Status)
	}

	entries := s.ring.Snapshot()
	if len(entries) != 1 || entries[0].Detail["reason"] != "interrupted" {
		t.Fatalf("expected one interrupted audit entry, got %+v", entries)
	}
}

func TestReconcileStuckUploadsIsNoOpWhenNoneStuck(t *testing.T) {
	s, _, _ := testSweeper(t)
	count, err := s.reconcileStuckUploads(context.Background())
	if err != nil {
		t.Fatalf("reconcileStuckUploads: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 reconciled, got %d", count)
	}
}

func TestReconcileOrphanFilesRemovesUnknownDirectoryOnly(t *testing.T) {
	s, db, store := testSweeper(t)
	ctx := context.Background()

	item := &database.MediaItem{Kind: database.KindImage, Filename: "known.png", MimeType: "image/png", Slug: "known"}
	if _, _, err := db.CreateMedia(ctx, item, true); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	if err := store.MkdirAll(filepath.Join("images", "known")); err != nil {
		t.Fatalf("MkdirAll known: %v", err)
	}
	if err := store.MkdirAll(filepath.Join("images", "orphan")); err != nil {
		t.Fatalf("MkdirAll orphan: %v", err)
	}

	count, err := s.reconcileOrphanFiles(ctx)
	if err != nil {
		t.Fatalf("reconcileOrphanFiles: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 orphan removed, got %d", count)
	}
	if store.Exists(filepath.Join("images", "orphan")) {
		t.Fatal("expected orphan directory to be removed")
	}
	if !store.Exists(filepath.Join("images", "known")) {
		t.Fatal("expected known slug directory to survive the sweep")
	}
}

func TestReconcileOrphanFilesHandlesMissingKindSubtree(t *testing.T) {
	s, _, _ := testSweeper(t)
	count, err := s.reconcileOrphanFiles(context.Background())
	if err != nil {
		t.Fatalf("reconcileOrphanFiles on empty storage root: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 orphans on an empty storage root, got %d", count)
	}
}

func TestReconcileBrokenThumbnailsClearsMissingFile(t *testing.T) {
	s, db, store := testSweeper(t)
	ctx := context.Background()

	item := &database.MediaItem{Kind: database.KindImage, Filename: "pic.png", MimeType: "image/png", Slug: "pic"}
	id, _, err := db.CreateMedia(ctx, item, true)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	processing := database.StatusProcessing
	if err := db.UpdateMediaFields(ctx, id, database.Patch{Status: &processing}); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	active := database.StatusActive
	thumbPath := filepath.Join("images", "pic", "thumbnail.webp")
	if err := db.UpdateMediaFields(ctx, id, database.Patch{Status: &active, Thumbnail: &thumbPath}); err != nil {
		t.Fatalf("mark active with thumbnail: %v", err)
	}

	count, err := s.reconcileBrokenThumbnails(ctx)
	if err != nil {
		t.Fatalf("reconcileBrokenThumbnails: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 broken thumbnail cleared, got %d", count)
	}

	row, err := db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Thumbnail != "" {
		t.Fatalf("expected thumbnail reference cleared, got %q", row.Thumbnail)
	}
}

func TestReconcileBrokenThumbnailsLeavesExistingFileAlone(t *testing.T) {
	s, db, store := testSweeper(t)
	ctx := context.Background()

	item := &database.MediaItem{Kind: database.KindImage, Filename: "pic2.png", MimeType: "image/png", Slug: "pic2"}
	id, _, err := db.CreateMedia(ctx, item, true)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	processing := database.StatusProcessing
	if err := db.UpdateMediaFields(ctx, id, database.Patch{Status: &processing}); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	thumbPath := filepath.Join("images", "pic2", "thumbnail.webp")
	if _, err := store.WriteAtomic(thumbPath, strings.NewReader("fake-thumbnail-bytes")); err != nil {
		t.Fatalf("seed thumbnail file: %v", err)
	}

	active := database.StatusActive
	if err := db.UpdateMediaFields(ctx, id, database.Patch{Status: &active, Thumbnail: &thumbPath}); err != nil {
		t.Fatalf("mark active with thumbnail: %v", err)
	}

	count, err := s.reconcileBrokenThumbnails(ctx)
	if err != nil {
		t.Fatalf("reconcileBrokenThumbnails: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 cleared when the thumbnail file exists, got %d", count)
	}

	row, err := db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Thumbnail != thumbPath {
		t.Fatalf("expected thumbnail reference preserved, got %q", row.Thumbnail)
	}
}

func TestRunIsSingleFlight(t *testing.T) {
	s, _, _ := testSweeper(t)
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run while already running should return nil, got %v", err)
	}
	// lastRun must remain untouched since the pass was skipped entirely.
	if !s.LastRun().IsZero() {
		t.Fatalf("expected lastRun to remain zero when a pass is skipped, got %v", s.LastRun())
	}
}
