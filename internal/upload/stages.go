package upload

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"media-viewer/internal/apperr"
	"media-viewer/internal/database"
	"media-viewer/internal/mediaitem"
	"media-viewer/internal/metrics"
	"media-viewer/internal/streaming"
	"media-viewer/internal/transcoder"
)

// state carries the mutable, in-progress result of running one job through
// the seven pipeline stages. Fields accumulate until the db stage persists
// them in a single Patch, so a failure before that point leaves the
// database row untouched beyond its Processing status.
type state struct {
	pipeline *Pipeline
	job      *job

	item    mediaitem.MediaItem
	meta    mediaitem.Metadata
	preview mediaitem.Preview

	hlsMasterPath string
	thumbPath     string
}

// execute transitions the row from Draft to Processing, then runs
// validate→extract→thumbnail→poster→transcode→move→db in order, stopping
// at the first failure. Each stage is timed and recorded to the audit
// Store and Prometheus regardless of outcome.
func (s *state) execute(ctx context.Context) error {
	processing := database.StatusProcessing
	if err := s.pipeline.db.UpdateMediaFields(ctx, s.job.mediaID, database.Patch{Status: &processing}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	stages := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"validate", s.validate},
		{"extract", s.extract},
		{"thumbnail", s.thumbnail},
		{"poster", s.poster},
		{"transcode", s.transcode},
		{"move", s.move},
		{"db", s.persist},
	}

	for _, st := range stages {
		if ctx.Err() != nil {
			s.job.progress.Fail(st.name)
			return apperr.New(apperr.Cancelled, "upload cancelled before stage "+st.name)
		}

		s.job.progress.Enter(st.name)
		start := time.Now()
		err := withRetryOnce(ctx, st.name, st.fn)
		d := time.Since(start)

		s.pipeline.stats.RecordStage(st.name, d, err != nil)
		statusLabel := "ok"
		if err != nil {
			statusLabel = "failed"
		}
		metrics.UploadStageDuration.WithLabelValues(st.name, statusLabel).Observe(d.Seconds())

		if err != nil {
			s.job.progress.Fail(st.name)
			if ctx.Err() != nil {
				return apperr.New(apperr.Cancelled, "upload cancelled during stage "+st.name)
			}
			return fmt.Errorf("stage %s: %w", st.name, err)
		}
		s.job.progress.Advance(st.name)
	}
	return nil
}

// tempSourcePath is where intake writes the client's upload before any
// stage touches it, relative to the storage root.
func (s *state) tempSourcePath() string {
	return filepath.Join("temp", s.job.uploadID, "source"+filepath.Ext(s.job.req.Filename))
}

// kindDir is the top-level storage subtree for this job's media kind.
func (s *state) kindDir() string {
	switch s.job.kind {
	case database.KindVideo:
		return "videos"
	case database.KindImage:
		return "images"
	default:
		return "documents"
	}
}

// streamingConfigFor returns intake timeout parameters scaled to kind: a
// multi-gigabyte video upload is allowed a longer idle grace period than a
// small image or document.
func streamingConfigFor(kind database.MediaKind) streaming.TimeoutWriterConfig {
	cfg := streaming.DefaultTimeoutWriterConfig()
	if kind == database.KindVideo {
		cfg.IdleTimeout = 5 * time.Minute
		cfg.WriteTimeout = 2 * time.Minute
	}
	return cfg
}

// validate streams the request body into temp storage (subject to the
// timeout reader's stall protection) and constructs the matching
// mediaitem.MediaItem, then asks it to validate itself.
func (s *state) validate(ctx context.Context) error {
	j := s.job
	j.tempPath = s.tempSourcePath()

	reader := streaming.NewTimeoutReader(ctx, j.req.Source, streamingConfigFor(j.kind))
	defer reader.Close()

	written, err := s.pipeline.storage.WriteAtomic(j.tempPath, reader)
	if err != nil {
		return err
	}
	j.bytesTotal = written

	absPath, err := s.pipeline.storage.AbsPath(j.tempPath)
	if err != nil {
		return err
	}

	rec := &database.MediaItem{
		Kind:     j.kind,
		Filename: j.req.Filename,
		MimeType: j.req.MimeType,
		Size:     written,
		Slug:     j.slug,
	}

	var grabber mediaitem.FrameGrabber
	if j.kind == database.KindVideo {
		grabber = s.pipeline.trans
	}

	item, err := mediaitem.New(rec, absPath, grabber)
	if err != nil {
		return err
	}
	s.item = item

	result := item.Validate(ctx)
	if !result.OK {
		return apperr.New(apperr.Validation, fmt.Sprintf("%v", result.Errors))
	}
	return nil
}

// extract pulls kind-specific metadata (dimensions, duration, codec, page
// count, ...) out of the validated item for later persistence.
func (s *state) extract(ctx context.Context) error {
	meta, err := s.item.ExtractMetadata(ctx)
	if err != nil {
		return err
	}
	s.meta = meta
	return nil
}

// thumbnail generates the item's preview pair and writes the thumbnail
// half to its final storage location. The poster stage below writes the
// other half; both draw from this single GeneratePreview call so a
// video's frame grab or an image's resize only happens once.
func (s *state) thumbnail(ctx context.Context) error {
	preview, err := s.item.GeneratePreview(ctx)
	if err != nil {
		return err
	}
	s.preview = preview

	if len(preview.Thumbnail) == 0 {
		return nil
	}
	s.thumbPath = filepath.Join(s.kindDir(), s.job.slug, "thumbnail"+thumbnailExt(s.job.kind))
	_, err = s.pipeline.storage.WriteAtomic(s.thumbPath, bytes.NewReader(preview.Thumbnail))
	return err
}

// poster writes the secondary preview variant: a video's poster frame or
// an image's medium-size rendition. Documents have none.
func (s *state) poster(ctx context.Context) error {
	if len(s.preview.Secondary) == 0 {
		return nil
	}
	name := "poster.jpg"
	if s.job.kind == database.KindImage {
		name = "medium.webp"
	}
	posterPath := filepath.Join(s.kindDir(), s.job.slug, name)
	_, err := s.pipeline.storage.WriteAtomic(posterPath, bytes.NewReader(s.preview.Secondary))
	return err
}

// transcode produces the HLS rendition ladder for videos. Image and
// document kinds have nothing to do here; the stage still counts toward
// progress so StageWeights stays meaningful across all three kinds.
func (s *state) transcode(ctx context.Context) error {
	if s.job.kind != database.KindVideo {
		return nil
	}
	if s.pipeline.trans == nil || !s.pipeline.trans.IsEnabled() {
		return apperr.New(apperr.Processing, "transcoding is not available on this host")
	}

	srcAbs, err := s.pipeline.storage.AbsPath(s.job.tempPath)
	if err != nil {
		return err
	}
	outRel := filepath.Join(s.kindDir(), s.job.slug)
	if err := s.pipeline.storage.MkdirAll(outRel); err != nil {
		return err
	}
	outAbs, err := s.pipeline.storage.AbsPath(outRel)
	if err != nil {
		return err
	}

	result, err := s.pipeline.trans.Transcode(ctx, transcoder.Job{
		Slug:       s.job.slug,
		SourcePath: srcAbs,
		OutputDir:  outAbs,
	})
	if err != nil {
		return err
	}

	s.hlsMasterPath = filepath.Join(outRel, filepath.Base(result.MasterPlaylistPath))
	for _, rung := range result.Rungs {
		s.pipeline.stats.RecordRung(rung.Name, 0, 0, false)
	}
	return nil
}

// move relocates the validated source out of temp storage into the item's
// permanent location. Videos keep their original alongside the ladder for
// re-transcoding if the rung set ever changes; images and documents are
// moved directly under their final slug directory.
func (s *state) move(ctx context.Context) error {
	ext := filepath.Ext(s.job.req.Filename)
	finalPath := filepath.Join(s.kindDir(), s.job.slug, "original"+ext)
	if err := s.pipeline.storage.Move(s.job.tempPath, finalPath); err != nil {
		return err
	}
	s.job.tempPath = "" // moved; nothing left for run()'s cleanup to delete
	return nil
}

// persist applies every field gathered above to the media_items row in a
// single patch and transitions Status from Processing to Active. The
// storage path itself is never patched: it follows the fixed
// kind/slug/original{ext} convention every other stage already derives,
// so there is nothing for the Draft-time value to drift from.
func (s *state) persist(ctx context.Context) error {
	status := database.StatusActive
	return s.pipeline.db.UpdateMediaFields(ctx, s.job.mediaID, s.buildPatch(status))
}

func (s *state) buildPatch(status database.Status) database.Patch {
	p := database.Patch{Status: &status}

	if s.thumbPath != "" {
		p.Thumbnail = &s.thumbPath
	}
	if s.meta.Width > 0 {
		p.Width = &s.meta.Width
	}
	if s.meta.Height > 0 {
		p.Height = &s.meta.Height
	}
	if s.meta.AspectRatio != "" {
		p.AspectRatio = &s.meta.AspectRatio
	}
	if s.meta.DurationSeconds > 0 {
		p.Duration = &s.meta.DurationSeconds
	}
	if s.meta.Codec != "" {
		p.Codec = &s.meta.Codec
	}
	if s.meta.FPS > 0 {
		p.FPS = &s.meta.FPS
	}
	if s.hlsMasterPath != "" {
		p.HLSMasterPath = &s.hlsMasterPath
	}
	if s.meta.DominantColor != "" {
		p.DominantColor = &s.meta.DominantColor
	}
	if s.meta.ExifJSON != "" {
		p.ExifJSON = &s.meta.ExifJSON
	}
	if s.meta.PageCount > 0 {
		p.PageCount = &s.meta.PageCount
	}
	if s.meta.Author != "" {
		p.Author = &s.meta.Author
	}
	if s.meta.Language != "" {
		p.Language = &s.meta.Language
	}
	if s.meta.RowCount > 0 {
		p.RowCount = &s.meta.RowCount
	}
	if s.meta.ColumnCount > 0 {
		p.ColumnCount = &s.meta.ColumnCount
	}
	if s.meta.CSVDelimiter != "" {
		p.CSVDelimiter = &s.meta.CSVDelimiter
	}
	return p
}

func thumbnailExt(kind database.MediaKind) string {
	if kind == database.KindImage {
		return ".webp"
	}
	return ".jpg"
}
