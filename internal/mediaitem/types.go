package mediaitem

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"media-viewer/internal/apperr"
	"media-viewer/internal/config"
	"media-viewer/internal/database"
)

// ValidationResult is the outcome of MediaItem.Validate. A non-empty Errors
// slice means the item fails validation; callers should not proceed to
// ExtractMetadata/GeneratePreview on a failing result.
type ValidationResult struct {
	OK     bool
	Errors []string
}

func fail(errs ...string) ValidationResult { return ValidationResult{OK: false, Errors: errs} }
func pass() ValidationResult               { return ValidationResult{OK: true} }

// Metadata holds the kind-specific fields extract_metadata discovers. Only
// fields relevant to the item's kind are populated; the rest are zero.
type Metadata struct {
	Width, Height int
	AspectRatio   string

	DurationSeconds float64
	Codec           string
	FPS             float64

	DominantColor string
	ExifJSON      string

	PageCount    int
	Author       string
	Language     string
	RowCount     int
	ColumnCount  int
	CSVDelimiter string
}

// Preview is the output of generate_preview: a thumbnail and, where the
// kind defines one, a second larger/poster variant. Both are raw bytes;
// callers are responsible for writing them through internal/storage.
type Preview struct {
	Thumbnail []byte
	Secondary []byte // medium-size image variant, or video poster frame
}

// MediaItem is the polymorphic capability set the Media Item
// Contract defines over {Video, Image, Document}. Signatures are
// variant-agnostic; each implementation interprets them per its kind.
type MediaItem interface {
	MediaType() database.MediaKind
	Validate(ctx context.Context) ValidationResult
	ExtractMetadata(ctx context.Context) (Metadata, error)
	GeneratePreview(ctx context.Context) (Preview, error)
	RenderCardHTML() string
	RenderPlayerHTML() string
	PublicURL() string
}

// allowedMIME is the per-kind MIME allow-list validate() enforces.
var allowedMIME = map[database.MediaKind]map[string]bool{
	database.KindVideo: {
		"video/mp4": true, "video/quicktime": true, "video/webm": true,
		"video/x-matroska": true, "video/mpeg": true,
	},
	database.KindImage: {
		"image/jpeg": true, "image/png": true, "image/webp": true, "image/gif": true,
	},
	database.KindDocument: {
		"application/pdf": true, "text/csv": true, "text/plain": true, "text/markdown": true,
	},
}

func mimeAllowed(kind database.MediaKind, mime string) bool {
	return allowedMIME[kind][strings.ToLower(mime)]
}

func maxBytesFor(kind database.MediaKind) int64 {
	switch kind {
	case database.KindVideo:
		return config.MaxVideoBytes
	case database.KindImage:
		return config.MaxImageBytes
	case database.KindDocument:
		return config.MaxDocumentBytes
	default:
		return 0
	}
}

// FrameGrabber is the subset of internal/transcoder's capability this
// package needs: probing a container and grabbing a single frame as a
// JPEG. Accepting it as an interface keeps mediaitem decoupled from the
// transcoder's ffmpeg process-management internals.
type FrameGrabber interface {
	ProbeVideo(ctx context.Context, path string) (VideoProbe, error)
	GrabFrame(ctx context.Context, path string, atSeconds float64) ([]byte, error)
}

// VideoProbe is the subset of ffprobe output ExtractMetadata needs.
type VideoProbe struct {
	Width, Height   int
	DurationSeconds float64
	Codec           string
	FPS             float64
}

// New dispatches on rec.Kind to build the matching implementation. absPath
// is the already-resolved filesystem path (via internal/storage.AbsPath)
// for the stored artifact; grabber is nil for non-video kinds.
func New(rec *database.MediaItem, absPath string, grabber FrameGrabber) (MediaItem, error) {
	switch rec.Kind {
	case database.KindVideo:
		return &Video{rec: rec, absPath: absPath, grabber: grabber}, nil
	case database.KindImage:
		return &Image{rec: rec, absPath: absPath}, nil
	case database.KindDocument:
		return &Document{rec: rec, absPath: absPath}, nil
	default:
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("unknown media kind %q", rec.Kind))
	}
}

func aspectRatioLabel(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	g := gcd(w, h)
	return fmt.Sprintf("%d:%d", w/g, h/g)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func sanitizeFilename(name string) bool {
	base := filepath.Base(name)
	return base != "." && base != ".." && base != "" && !strings.ContainsAny(base, "\x00")
}

// htmlEscape escapes a value for inclusion in an HTML attribute, used by
// each kind's RenderCardHTML/RenderPlayerHTML.
func htmlEscape(s string) string {
	return html.EscapeString(s)
}
