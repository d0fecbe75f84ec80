package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-viewer/internal/audit"
	"media-viewer/internal/database"
	"media-viewer/internal/logging"
	"media-viewer/internal/metrics"
	"media-viewer/internal/storage"

	"github.com/fsnotify/fsnotify"
)

// watcherDebounceDelay absorbs the burst of individual fsnotify events a
// single upload or manual file operation produces (a rename touches both
// the source and destination directory) so one filesystem change doesn't
// trigger one reconciliation pass per event.
const watcherDebounceDelay = 2 * time.Second

const pageSize = 200

// kindDirs are the storage-root subtrees that hold one directory per slug.
// temp/ is intentionally excluded: it holds in-flight uploads, and a stuck
// upload's temp directory is left for a human to reap rather than swept.
var kindDirs = []string{"videos", "images", "documents"}

// Sweeper reconciles the database and storage root against each other. One
// reconciliation pass runs at a time, guarded by isRunning; StartupSweep
// must complete before the process trusts any Processing row's status.
type Sweeper struct {
	db       *database.Database
	storage  *storage.Manager
	ring     *audit.Ring
	interval time.Duration
	stopChan chan struct{}
	watcher  *fsnotify.Watcher

	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
}

// New constructs a Sweeper. interval governs the periodic reconciliation
// loop Start spawns; the startup pass runs once, synchronously, on Start.
func New(db *database.Database, store *storage.Manager, ring *audit.Ring, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{db: db, storage: store, ring: ring, interval: interval, stopChan: make(chan struct{})}
}

// Start runs one synchronous reconciliation pass (catching uploads stuck at
// Processing from an unclean restart) and then spawns the periodic loop and
// the filesystem watcher in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.Run(ctx); err != nil {
		return err
	}
	go s.periodicSweep()
	go s.watchStorageRoot()
	return nil
}

// Stop halts the periodic loop and the filesystem watcher. A reconciliation
// pass already in progress is allowed to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logging.Warn("sweep: error closing file watcher: %v", err)
		}
	}
}

// IsRunning reports whether a reconciliation pass is currently executing.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRun returns the time the most recently completed pass finished.
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Sweeper) periodicSweep() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Run(context.Background()); err != nil {
				logging.Error("periodic sweep failed: %v", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

// watchStorageRoot feeds the reconcile path from live filesystem events
// rather than waiting out a full ticker interval: a human reaping an orphan
// directory by hand, or a slug directory appearing with no row behind it,
// gets swept on the next debounce window instead of up to interval later.
// Only the kindDirs subtrees are watched; temp/ is not.
func (s *Sweeper) watchStorageRoot() {
	root, err := s.storage.AbsPath(".")
	if err != nil {
		logging.Error("sweep: failed to resolve storage root for watcher: %v", err)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("sweep: failed to create file watcher: %v", err)
		return
	}
	s.watcher = watcher

	watched := 0
	for _, dir := range kindDirs {
		full := filepath.Join(root, dir)
		if _, statErr := os.Stat(full); statErr != nil {
			continue
		}
		if err := addTreeToWatcher(watcher, full); err != nil {
			logging.Warn("sweep: failed to watch %s: %v", full, err)
			continue
		}
		watched++
	}
	logging.Debug("sweep: file watcher started, watching %d storage subtrees", watched)

	debounce := newDebouncer(watcherDebounceDelay, func() {
		if err := s.Run(context.Background()); err != nil {
			logging.Error("sweep: reconcile after file change failed: %v", err)
		}
	})

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if strings.Contains(event.Name, string(os.PathSeparator)+".") {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logging.Warn("sweep: failed to watch new directory %s: %v", event.Name, err)
					}
				}
			}
			debounce.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("sweep: file watcher error: %v", err)
		case <-s.stopChan:
			return
		}
	}
}

// addTreeToWatcher adds root and every directory beneath it to watcher.
// fsnotify watches are not recursive, so new subdirectories are picked up
// incrementally as Create events arrive.
func addTreeToWatcher(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// debouncer delays callback until delay has passed without a further
// trigger call, collapsing a burst of related filesystem events into one
// reconciliation pass.
type debouncer struct {
	delay    time.Duration
	callback func()
	mu       sync.Mutex
	timer    *time.Timer
}

func newDebouncer(delay time.Duration, callback func()) *debouncer {
	return &debouncer{delay: delay, callback: callback}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.callback)
}

// Run executes one full reconciliation pass: stuck uploads, then orphaned
// storage directories, then broken thumbnail references. It is a no-op,
// returning nil immediately, if a pass is already running.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		logging.Debug("sweep already in progress, skipping")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	metrics.SweepIsRunning.Set(1)
	start := time.Now()

	defer func() {
		metrics.SweepIsRunning.Set(0)
		s.mu.Lock()
		s.isRunning = false
		s.lastRun = time.Now()
		s.mu.Unlock()
	}()

	stuck, err := s.reconcileStuckUploads(ctx)
	if err != nil {
		logging.Error("sweep: reconcile stuck uploads: %v", err)
	}
	orphans, err := s.reconcileOrphanFiles(ctx)
	if err != nil {
		logging.Error("sweep: reconcile orphan files: %v", err)
	}
	broken, err := s.reconcileBrokenThumbnails(ctx)
	if err != nil {
		logging.Error("sweep: reconcile broken thumbnails: %v", err)
	}

	metrics.SweepRunsTotal.Inc()
	now := time.Now()
	metrics.SweepLastRunTimestamp.Set(float64(now.Unix()))
	if err := s.db.SetLastSweepRun(ctx, now); err != nil {
		logging.Warn("sweep: failed to persist last run timestamp: %v", err)
	}

	logging.Info("sweep complete in %v: %d stuck uploads failed, %d orphan directories removed, %d broken thumbnails cleared",
		time.Since(start), stuck, orphans, broken)
	return nil
}

// reconcileStuckUploads transitions every row left at status=Processing
// (an unclean restart mid-pipeline, since in-memory upload state resets) to
// Failed. Their files are left in place for a human to reap, per the
// durable-state design: only the database row is corrected.
func (s *Sweeper) reconcileStuckUploads(ctx context.Context) (int, error) {
	rows, err := s.listAll(ctx, database.ListFilter{Status: database.StatusProcessing})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range rows {
		failed := database.StatusFailed
		if err := s.db.UpdateMediaFields(ctx, item.ID, database.Patch{Status: &failed}); err != nil {
			logging.Warn("sweep: failed to mark stuck upload %d (%s) as failed: %v", item.ID, item.Slug, err)
			continue
		}
		count++
		metrics.SweepItemsReconciled.WithLabelValues("stuck_upload_failed").Inc()
		s.recordAudit(ctx, audit.KindUploadFailed, item.ID, map[string]string{
			"slug": item.Slug, "reason": "interrupted",
		})
	}
	return count, nil
}

// reconcileOrphanFiles removes per-slug storage directories that have no
// corresponding media_items row at all. It never touches temp/, and never
// touches a directory whose slug still has a row regardless of that row's
// status, so a Draft row mid-upload or a Failed row left for inspection is
// never mistaken for an orphan.
func (s *Sweeper) reconcileOrphanFiles(ctx context.Context) (int, error) {
	known, err := s.knownSlugs(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, dir := range kindDirs {
		entries, err := s.listSlugDirs(dir)
		if err != nil {
			logging.Warn("sweep: failed to list %s: %v", dir, err)
			continue
		}
		for _, slug := range entries {
			if known[slug] {
				continue
			}
			rel := filepath.Join(dir, slug)
			if err := s.storage.Delete(rel); err != nil {
				logging.Warn("sweep: failed to delete orphan directory %s: %v", rel, err)
				continue
			}
			count++
			metrics.SweepItemsReconciled.WithLabelValues("orphan_file_removed").Inc()
			s.recordAudit(ctx, audit.KindFileDeleted, 0, map[string]string{"path": rel, "reason": "orphaned"})
		}
	}
	return count, nil
}

// reconcileBrokenThumbnails clears Thumbnail references that no longer
// resolve to a file on disk, so a deleted/corrupted thumbnail doesn't serve
// a 404 on every card render until the item is re-processed.
func (s *Sweeper) reconcileBrokenThumbnails(ctx context.Context) (int, error) {
	rows, err := s.listAll(ctx, database.ListFilter{Status: database.StatusActive})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range rows {
		if item.Thumbnail == "" || s.storage.Exists(item.Thumbnail) {
			continue
		}
		empty := ""
		if err := s.db.UpdateMediaFields(ctx, item.ID, database.Patch{Thumbnail: &empty}); err != nil {
			logging.Warn("sweep: failed to clear broken thumbnail for %d (%s): %v", item.ID, item.Slug, err)
			continue
		}
		count++
		metrics.SweepItemsReconciled.WithLabelValues("broken_thumbnail_cleared").Inc()
		s.recordAudit(ctx, audit.KindFileDeleted, item.ID, map[string]string{
			"slug": item.Slug, "reason": "broken_thumbnail",
		})
	}
	return count, nil
}

// listAll pages through every row matching filter; List caps a single page
// at 500 rows, so a storage root with more active items than that needs
// more than one call.
func (s *Sweeper) listAll(ctx context.Context, filter database.ListFilter) ([]*database.MediaItem, error) {
	var out []*database.MediaItem
	offset := 0
	for {
		page, err := s.db.List(ctx, filter, database.Pagination{Offset: offset, Limit: pageSize}, database.Sort{Key: database.SortCreatedAt})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		offset += pageSize
	}
}

// knownSlugs returns every slug present in media_items, any kind or status.
func (s *Sweeper) knownSlugs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.listAll(ctx, database.ListFilter{})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(rows))
	for _, item := range rows {
		known[item.Slug] = true
	}
	return known, nil
}

// listSlugDirs returns the immediate subdirectory names under a kind
// subtree (one per slug).
func (s *Sweeper) listSlugDirs(kindDir string) ([]string, error) {
	return s.storage.ListDir(kindDir)
}

func (s *Sweeper) recordAudit(ctx context.Context, kind audit.Kind, resourceID int64, detail map[string]string) {
	resourceRef := "sweep"
	if resourceID != 0 {
		resourceRef = strconv.FormatInt(resourceID, 10)
	}
	s.ring.Append(audit.Entry{Kind: kind, ResourceID: resourceRef, ActorID: "sweeper", Timestamp: time.Now(), Detail: detail})
	if err := s.db.InsertAuditLog(ctx, string(kind), resourceRef, "sweeper", detail); err != nil {
		logging.Warn("sweep: failed to write durable audit mirror: %v", err)
	}
}
