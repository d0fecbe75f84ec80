package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"media-viewer/internal/audit"
	"media-viewer/internal/config"
	"media-viewer/internal/database"
	"media-viewer/internal/storage"
	"media-viewer/internal/transcoder"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, _, err := database.New(ctx, dbPath, nil)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db })

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	trans := transcoder.New("none", false) // disabled: no ffmpeg in the test sandbox
	stats := audit.NewStore(10)
	ring := audit.NewRing(10)
	cfg := &config.Config{MaxConcurrentUploadsPerUser: 2, WorkerPoolSize: 2}

	return New(db, store, trans, stats, ring, cfg, nil)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func waitForTerminal(t *testing.T, p *Pipeline, uploadID string, timeout time.Duration) Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, ok := p.Status(uploadID)
		if !ok {
			// job map entry is deleted once run() finishes; treat absence
			// as terminal since Status can no longer observe it directly.
			return snap
		}
		if snap.Failed || snap.Percent >= 100 {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("upload %s did not reach a terminal state within %s", uploadID, timeout)
	return Snapshot{}
}

func TestSubmitRejectsUnsupportedMIME(t *testing.T) {
	p := testPipeline(t)
	_, err := p.Submit(context.Background(), Request{
		OwnerID: 1, Filename: "archive.zip", MimeType: "application/zip",
		Source: bytes.NewReader([]byte("x")),
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported MIME type")
	}
}

func TestSubmitRejectsNilSource(t *testing.T) {
	p := testPipeline(t)
	_, err := p.Submit(context.Background(), Request{
		OwnerID: 1, Filename: "photo.png", MimeType: "image/png",
	})
	if err == nil {
		t.Fatal("expected an error for a nil source reader")
	}
}

func TestSubmitEnforcesPerUserConcurrencyLimit(t *testing.T) {
	p := testPipeline(t)
	p.maxPerUser = 1
	p.active[42] = 1 // simulate one upload already in flight for this owner

	_, err := p.Submit(context.Background(), Request{
		OwnerID: 42, Filename: "photo.png", MimeType: "image/png",
		Source: bytes.NewReader(testPNG(t)),
	})
	if err == nil {
		t.Fatal("expected the per-user concurrency gate to reject this submission")
	}
}

func TestCancelUnknownUploadReturnsNotFound(t *testing.T) {
	p := testPipeline(t)
	if err := p.Cancel("does-not-exist"); err == nil {
		t.Fatal("expected an error cancelling an unknown upload id")
	}
}

func TestStatusUnknownUploadReturnsFalse(t *testing.T) {
	p := testPipeline(t)
	if _, ok := p.Status("does-not-exist"); ok {
		t.Fatal("expected ok=false for an unknown upload id")
	}
}

func TestSubmitProcessesImageUploadToActive(t *testing.T) {
	p := testPipeline(t)

	uploadID, err := p.Submit(context.Background(), Request{
		OwnerID: 7, Filename: "swatch.png", MimeType: "image/png",
		Title: "Swatch", Source: bytes.NewReader(testPNG(t)),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForTerminal(t, p, uploadID, 2*time.Second)

	var rec *database.MediaItem
	items, err := p.db.List(context.Background(), database.ListFilter{Kind: database.KindImage}, database.Pagination{Limit: 10}, database.Sort{Key: database.SortCreatedAt})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, it := range items {
		if it.Title == "Swatch" {
			rec = it
		}
	}
	if rec == nil {
		t.Fatal("expected the uploaded item to be findable by List after processing")
	}
	if rec.Status != database.StatusActive {
		t.Fatalf("expected status active, got %s", rec.Status)
	}
	if rec.Width != 8 || rec.Height != 8 {
		t.Fatalf("expected extracted dimensions 8x8, got %dx%d", rec.Width, rec.Height)
	}
	if rec.Thumbnail == "" {
		t.Fatal("expected a thumbnail path to be recorded")
	}

	p.mu.Lock()
	_, active := p.active[7]
	p.mu.Unlock()
	if active && p.active[7] != 0 {
		t.Fatalf("expected the per-user slot to be released after completion, got %d", p.active[7])
	}
}

func TestClassifyMIME(t *testing.T) {
	cases := map[string]database.MediaKind{
		"video/mp4":        database.KindVideo,
		"image/png":        database.KindImage,
		"application/pdf":  database.KindDocument,
		"text/csv":         database.KindDocument,
		"application/json": "",
	}
	for mime, want := range cases {
		if got := classifyMIME(mime); got != want {
			t.Errorf("classifyMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
