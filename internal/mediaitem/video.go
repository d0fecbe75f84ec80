package mediaitem

import (
	"context"
	"fmt"

	"media-viewer/internal/apperr"
	"media-viewer/internal/database"
)

// minClampDurationFactor is the fraction of a short clip's own duration used
// to place the poster frame when the clip is too short for the usual 5s mark.
const minClampDurationFactor = 0.5

// shortClipThresholdSeconds is the duration below which thumbnail/poster
// timestamps are clamped instead of using the fixed 2s/5s marks.
const shortClipThresholdSeconds = 5.0

// Video is the Video-kind MediaItem implementation. Frame probing and
// extraction are delegated to a FrameGrabber (satisfied by
// internal/transcoder) so this package never imports ffmpeg process
// management directly.
type Video struct {
	rec     *database.MediaItem
	absPath string
	grabber FrameGrabber
}

func (v *Video) MediaType() database.MediaKind { return database.KindVideo }

func (v *Video) Validate(ctx context.Context) ValidationResult {
	var errs []string

	if v.rec.Size <= 0 || v.rec.Size > maxBytesFor(database.KindVideo) {
		errs = append(errs, fmt.Sprintf("video size %d exceeds limit %d", v.rec.Size, maxBytesFor(database.KindVideo)))
	}
	if !mimeAllowed(database.KindVideo, v.rec.MimeType) {
		errs = append(errs, fmt.Sprintf("mime type %q not allowed for videos", v.rec.MimeType))
	}
	if !sanitizeFilename(v.rec.Filename) {
		errs = append(errs, "filename is not sanitizable")
	}
	if v.grabber == nil {
		errs = append(errs, "no frame grabber available to probe container")
	} else {
		probe, err := v.grabber.ProbeVideo(ctx, v.absPath)
		if err != nil {
			errs = append(errs, fmt.Sprintf("video container is not probeable: %v", err))
		} else if probe.Width == 0 || probe.Height == 0 {
			errs = append(errs, "video has no decodable video stream")
		} else if probe.DurationSeconds <= 0 {
			errs = append(errs, "video has zero or unknown duration")
		}
	}

	if len(errs) > 0 {
		return fail(errs...)
	}
	return pass()
}

func (v *Video) ExtractMetadata(ctx context.Context) (Metadata, error) {
	if v.grabber == nil {
		return Metadata{}, apperr.New(apperr.Processing, "no frame grabber configured for video metadata extraction")
	}
	probe, err := v.grabber.ProbeVideo(ctx, v.absPath)
	if err != nil {
		return Metadata{}, apperr.WrapStage("extract", "probe video container", err)
	}
	return Metadata{
		Width:           probe.Width,
		Height:          probe.Height,
		AspectRatio:     aspectRatioLabel(probe.Width, probe.Height),
		DurationSeconds: probe.DurationSeconds,
		Codec:           probe.Codec,
		FPS:             probe.FPS,
	}, nil
}

// GeneratePreview grabs a thumbnail frame at 2s and a poster frame at 5s,
// clamping both marks to duration*minClampDurationFactor for clips shorter
// than shortClipThresholdSeconds so the mark never lands past end-of-stream.
func (v *Video) GeneratePreview(ctx context.Context) (Preview, error) {
	if v.grabber == nil {
		return Preview{}, apperr.New(apperr.Processing, "no frame grabber configured for video preview generation")
	}

	probe, err := v.grabber.ProbeVideo(ctx, v.absPath)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "probe video before frame grab", err)
	}

	thumbAt := 2.0
	posterAt := 5.0
	if probe.DurationSeconds < shortClipThresholdSeconds {
		clamped := probe.DurationSeconds * minClampDurationFactor
		thumbAt = clamped
		posterAt = clamped
	}

	thumb, err := v.grabber.GrabFrame(ctx, v.absPath, thumbAt)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "grab video thumbnail frame", err)
	}
	poster, err := v.grabber.GrabFrame(ctx, v.absPath, posterAt)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "grab video poster frame", err)
	}

	return Preview{Thumbnail: thumb, Secondary: poster}, nil
}

func (v *Video) RenderCardHTML() string {
	return fmt.Sprintf(
		`<div class="media-card media-card--video"><img src="%s" alt="%s" loading="lazy"><span class="media-card__duration">%s</span></div>`,
		htmlEscape(v.rec.Thumbnail), htmlEscape(v.rec.Title), formatDuration(v.rec.DurationSeconds),
	)
}

func (v *Video) RenderPlayerHTML() string {
	return fmt.Sprintf(
		`<video controls poster="%s" data-hls-src="%s"></video>`,
		htmlEscape(v.rec.Thumbnail), htmlEscape(v.rec.HLSMasterPath),
	)
}

func (v *Video) PublicURL() string {
	return "/media/" + v.rec.Slug
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
