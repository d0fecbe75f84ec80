package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-viewer/internal/apperr"
	"media-viewer/internal/audit"
	"media-viewer/internal/config"
	"media-viewer/internal/database"
	"media-viewer/internal/logging"
	"media-viewer/internal/memory"
	"media-viewer/internal/metrics"
	"media-viewer/internal/storage"
	"media-viewer/internal/transcoder"
)

// Request is what a caller (an HTTP handler, a CLI import command — neither
// owned by this package) supplies to start one upload.
type Request struct {
	OwnerID     int64
	Filename    string
	MimeType    string
	Visibility  database.Visibility
	GroupID     *int64
	Title       string
	Description string
	Source      io.Reader
}

// job is the internal state one upload carries through the pipeline.
type job struct {
	uploadID   string
	mediaID    int64
	slug       string
	kind       database.MediaKind
	ownerID    int64
	req        Request
	tempPath   string // relative to storage root
	progress   *Progress
	cancel     context.CancelFunc
	started    time.Time
	bytesTotal int64
}

// Pipeline runs uploads through validate→extract→thumbnail→poster→
// transcode→move→db, bounded by a fixed-size worker pool and a per-owner
// concurrency gate.
type Pipeline struct {
	db      *database.Database
	storage *storage.Manager
	trans   *transcoder.Transcoder
	stats   *audit.Store
	ring    *audit.Ring
	mem     *memory.Monitor

	maxPerUser int
	sem        chan struct{}

	mu       sync.Mutex
	active   map[int64]int
	jobs     map[string]*job
	slugLock map[string]*sync.Mutex
}

// New constructs a Pipeline. cfg supplies the per-user concurrency gate and
// worker pool size; trans is used only for video kinds. mem may be nil, in
// which case jobs never throttle on memory pressure; otherwise each job
// blocks once, before its first stage, while the monitor reports memory critical, since
// transcode/thumbnail/poster generation are this process's heaviest
// allocators.
func New(db *database.Database, store *storage.Manager, trans *transcoder.Transcoder, stats *audit.Store, ring *audit.Ring, cfg *config.Config, mem *memory.Monitor) *Pipeline {
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Pipeline{
		db:         db,
		storage:    store,
		trans:      trans,
		stats:      stats,
		ring:       ring,
		mem:        mem,
		maxPerUser: cfg.MaxConcurrentUploadsPerUser,
		sem:        make(chan struct{}, poolSize),
		active:     make(map[int64]int),
		jobs:       make(map[string]*job),
		slugLock:   make(map[string]*sync.Mutex),
	}
}

// Submit validates the per-user concurrency gate, reserves a Draft row, and
// enqueues the upload for background processing. It returns the upload id
// immediately; processing happens on a pipeline-owned goroutine using its
// own background context so a cancelled caller request doesn't orphan the
// upload mid-transcode — cancellation is instead explicit, via Cancel.
func (p *Pipeline) Submit(ctx context.Context, req Request) (string, error) {
	if req.Source == nil {
		return "", apperr.New(apperr.Validation, "upload source is required")
	}
	kind := classifyMIME(req.MimeType)
	if kind == "" {
		metrics.UploadsRejectedTotal.WithLabelValues("invalid_kind").Inc()
		return "", apperr.New(apperr.Validation, fmt.Sprintf("unsupported MIME type %q", req.MimeType))
	}

	p.mu.Lock()
	if p.active[req.OwnerID] >= p.maxPerUser {
		p.mu.Unlock()
		metrics.UploadsRejectedTotal.WithLabelValues("per_user_limit").Inc()
		return "", apperr.New(apperr.Conflict, "maximum concurrent uploads reached for this user")
	}
	p.active[req.OwnerID]++
	p.mu.Unlock()

	rec := &database.MediaItem{
		Kind:        kind,
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		Visibility:  req.Visibility,
		OwnerID:     &req.OwnerID,
		GroupID:     req.GroupID,
		Title:       req.Title,
		Description: req.Description,
		Status:      database.StatusDraft,
	}
	slugSeed := strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	rec.Slug = database.NormalizeSlug(slugSeed)

	id, slug, err := p.db.CreateMedia(ctx, rec, false)
	if err != nil {
		p.releaseSlot(req.OwnerID)
		return "", err
	}

	uploadID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.Background())

	j := &job{
		uploadID: uploadID,
		mediaID:  id,
		slug:     slug,
		kind:     kind,
		ownerID:  req.OwnerID,
		req:      req,
		progress: newProgress(),
		cancel:   cancel,
		started:  time.Now(),
	}

	p.mu.Lock()
	p.jobs[uploadID] = j
	p.mu.Unlock()

	p.ring.Append(audit.Entry{
		Kind: audit.KindUploadStarted, ResourceID: uploadID, ActorID: fmt.Sprintf("user-%d", req.OwnerID),
		Timestamp: time.Now(), Detail: map[string]string{"slug": slug, "kind": string(kind)},
	})

	metrics.UploadQueueDepth.Inc()
	go p.run(jobCtx, j)

	return uploadID, nil
}

// Cancel requests cooperative teardown of an in-flight upload. It is a
// no-op error if the upload is unknown or already finished.
func (p *Pipeline) Cancel(uploadID string) error {
	p.mu.Lock()
	j, ok := p.jobs[uploadID]
	p.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown upload id")
	}
	j.progress.Cancel()
	j.cancel()
	if p.trans != nil {
		p.trans.Cancel(j.slug)
	}
	return nil
}

// Status returns a point-in-time progress snapshot for an upload.
func (p *Pipeline) Status(uploadID string) (Snapshot, bool) {
	p.mu.Lock()
	j, ok := p.jobs[uploadID]
	p.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return j.progress.Snapshot(), true
}

func (p *Pipeline) releaseSlot(ownerID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[ownerID] > 0 {
		p.active[ownerID]--
	}
}

func (p *Pipeline) slugMutex(slug string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.slugLock[slug]
	if !ok {
		m = &sync.Mutex{}
		p.slugLock[slug] = m
	}
	return m
}

// run executes the full pipeline for one job, bounded by the worker pool
// semaphore, and always finalizes bookkeeping (metrics, audit, DB status,
// per-user slot release) regardless of outcome.
func (p *Pipeline) run(ctx context.Context, j *job) {
	p.sem <- struct{}{}
	metrics.UploadQueueDepth.Dec()
	defer func() { <-p.sem }()

	metrics.UploadsInProgress.Inc()
	defer metrics.UploadsInProgress.Dec()

	lock := p.slugMutex(j.slug)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.jobs, j.uploadID)
		p.mu.Unlock()
		p.releaseSlot(j.ownerID)
	}()

	if p.mem != nil && !p.mem.WaitIfPaused() {
		return
	}

	st := &state{pipeline: p, job: j}
	err := st.execute(ctx)

	duration := time.Since(j.started)
	actor := fmt.Sprintf("user-%d", j.ownerID)

	switch {
	case err == nil:
		metrics.UploadsTotal.WithLabelValues("ready").Inc()
		p.stats.RecordUpload(audit.UploadRecord{
			UploadID: j.uploadID, Slug: j.slug, Kind: string(j.kind), Status: "ready",
			BytesTotal: j.bytesTotal, Duration: duration, FinishedAt: time.Now(),
		})
		p.ring.Append(audit.Entry{Kind: audit.KindUploadCompleted, ResourceID: j.uploadID, ActorID: actor, Timestamp: time.Now()})

	case apperr.IsCancelled(err):
		metrics.UploadsTotal.WithLabelValues("cancelled").Inc()
		p.stats.RecordUpload(audit.UploadRecord{
			UploadID: j.uploadID, Slug: j.slug, Kind: string(j.kind), Status: "cancelled",
			FailedAt: j.progress.Snapshot().Stage, BytesTotal: j.bytesTotal, Duration: duration, FinishedAt: time.Now(),
		})
		p.ring.Append(audit.Entry{Kind: audit.KindUploadCancelled, ResourceID: j.uploadID, ActorID: actor, Timestamp: time.Now()})
		_ = p.db.UpdateMediaFields(context.Background(), j.mediaID, database.Patch{Status: statusPtr(database.StatusFailed)})

	default:
		stage := j.progress.Snapshot().Stage
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		kind, _ := apperr.KindOf(err)
		p.stats.RecordErrorKind(string(kind))
		p.stats.RecordUpload(audit.UploadRecord{
			UploadID: j.uploadID, Slug: j.slug, Kind: string(j.kind), Status: "failed",
			FailedAt: stage, Reason: err.Error(), BytesTotal: j.bytesTotal, Duration: duration, FinishedAt: time.Now(),
		})
		p.ring.Append(audit.Entry{
			Kind: audit.KindUploadFailed, ResourceID: j.uploadID, ActorID: actor, Timestamp: time.Now(),
			Detail: map[string]string{"stage": stage, "reason": err.Error()},
		})
		logging.Warn("upload %s (%s) failed at stage %s: %v", j.uploadID, j.slug, stage, err)
		_ = p.db.UpdateMediaFields(context.Background(), j.mediaID, database.Patch{Status: statusPtr(database.StatusFailed)})
	}

	if j.tempPath != "" {
		if cleanupErr := p.storage.Delete(j.tempPath); cleanupErr != nil {
			logging.Warn("failed to clean up temp upload path %s: %v", j.tempPath, cleanupErr)
		}
	}
}

func statusPtr(s database.Status) *database.Status { return &s }

// classifyMIME maps a MIME string to the media kind it belongs to. Returns
// "" for anything outside the three supported kinds.
func classifyMIME(mime string) database.MediaKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "video/"):
		return database.KindVideo
	case strings.HasPrefix(mime, "image/"):
		return database.KindImage
	case mime == "application/pdf", mime == "text/csv", mime == "text/plain", mime == "text/markdown":
		return database.KindDocument
	default:
		return ""
	}
}

// withRetryOnce retries fn exactly once if its first failure looks
// transient (an infra hiccup rather than a permanent rejection), per the
// pipeline's stage-level retry policy.
func withRetryOnce(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !isTransient(err) {
		return err
	}
	metrics.UploadStageRetries.WithLabelValues(stage).Inc()
	logging.Warn("stage %s failed transiently, retrying once: %v", stage, err)
	return fn(ctx)
}

func isTransient(err error) bool {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case apperr.External, apperr.Storage:
		return true
	default:
		return false
	}
}
