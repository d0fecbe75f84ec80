package mediaitem

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"media-viewer/internal/apperr"
	"media-viewer/internal/database"
	"media-viewer/internal/logging"
	"media-viewer/internal/media"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

const (
	thumbnailMaxDimension = 300
	mediumMaxDimension    = 1200
	histogramSampleSize   = 64 // downsampled square used for dominant-color histogram
)

// Image is the Image-kind MediaItem implementation, grounded on the
// internal/media image-loading (LoadImageConstrained, vips
// fast-path with imaging.Resize fallback).
type Image struct {
	rec     *database.MediaItem
	absPath string
}

func (i *Image) MediaType() database.MediaKind { return database.KindImage }

func (i *Image) Validate(ctx context.Context) ValidationResult {
	var errs []string

	if i.rec.Size <= 0 || i.rec.Size > maxBytesFor(database.KindImage) {
		errs = append(errs, fmt.Sprintf("image size %d exceeds limit %d", i.rec.Size, maxBytesFor(database.KindImage)))
	}
	if !mimeAllowed(database.KindImage, i.rec.MimeType) {
		errs = append(errs, fmt.Sprintf("mime type %q not allowed for images", i.rec.MimeType))
	}
	if !sanitizeFilename(i.rec.Filename) {
		errs = append(errs, "filename is not sanitizable")
	}

	if _, err := media.GetImageDimensions(i.absPath); err != nil {
		errs = append(errs, fmt.Sprintf("image is not decodable: %v", err))
	}

	if len(errs) > 0 {
		return fail(errs...)
	}
	return pass()
}

func (i *Image) ExtractMetadata(ctx context.Context) (Metadata, error) {
	dims, err := media.GetImageDimensions(i.absPath)
	if err != nil {
		return Metadata{}, apperr.WrapStage("extract", "probe image dimensions", err)
	}

	m := Metadata{
		Width:       dims.Width,
		Height:      dims.Height,
		AspectRatio: aspectRatioLabel(dims.Width, dims.Height),
	}

	if strings.EqualFold(i.rec.MimeType, "image/jpeg") {
		if exif, err := readJPEGExif(i.absPath); err == nil {
			m.ExifJSON = exif.toJSON()
		} else {
			logging.Debug("EXIF parse failed for %s: %v", i.absPath, err)
		}
	}

	color, err := i.dominantColor()
	if err != nil {
		logging.Debug("dominant color extraction failed for %s: %v", i.absPath, err)
	} else {
		m.DominantColor = color
	}

	return m, nil
}

// dominantColor downsamples the image to a small histogram source image
// (reusing the constrained-load path) and averages its pixels,
// returning a #rrggbb string.
func (i *Image) dominantColor() (string, error) {
	img, err := media.LoadImageConstrained(i.absPath, histogramSampleSize, histogramSampleSize*histogramSampleSize)
	if err != nil {
		return "", err
	}
	small := imaging.Resize(img, histogramSampleSize, histogramSampleSize, imaging.Box)

	var rSum, gSum, bSum, count uint64
	bounds := small.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return "", fmt.Errorf("empty histogram source")
	}
	return fmt.Sprintf("#%02x%02x%02x", rSum/count, gSum/count, bSum/count), nil
}

func (i *Image) GeneratePreview(ctx context.Context) (Preview, error) {
	thumb, err := i.renderVariant(thumbnailMaxDimension)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "generate image thumbnail", err)
	}
	medium, err := i.renderVariant(mediumMaxDimension)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "generate medium image variant", err)
	}
	return Preview{Thumbnail: thumb, Secondary: medium}, nil
}

// renderVariant produces a variant no larger than maxDim on its longest
// side. With govips available it is WebP-encoded; otherwise it falls back to
// imaging.Resize (Lanczos3) and is JPEG-encoded, so the fallback output is
// not WebP. This follows internal/media's vips-optional idiom.
func (i *Image) renderVariant(maxDim int) ([]byte, error) {
	if media.IsVipsAvailable() {
		ref, err := vips.LoadImageFromFile(i.absPath, vips.NewImportParams())
		if err == nil {
			defer ref.Close()
			if err := ref.Thumbnail(maxDim, maxDim, vips.InterestingNone); err != nil {
				return nil, err
			}
			out, _, err := ref.ExportWebp(&vips.WebpExportParams{Quality: 82})
			if err == nil {
				return out, nil
			}
			logging.Debug("vips webp export failed for %s: %v, falling back", i.absPath, err)
		}
	}

	img, err := media.LoadImageConstrained(i.absPath, maxDim, maxDim*maxDim)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := scaledDims(bounds.Dx(), bounds.Dy(), maxDim)
	resized := imaging.Resize(img, w, h, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scaledDims(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w > h {
		return maxDim, h * maxDim / w
	}
	return w * maxDim / h, maxDim
}

func (i *Image) RenderCardHTML() string {
	return fmt.Sprintf(
		`<div class="media-card media-card--image"><img src="%s" alt="%s" loading="lazy"></div>`,
		htmlEscape(i.rec.Thumbnail), htmlEscape(i.rec.Title),
	)
}

func (i *Image) RenderPlayerHTML() string {
	return fmt.Sprintf(
		`<picture><source srcset="%s" type="image/webp"><img src="%s" alt="%s"></picture>`,
		htmlEscape(i.rec.Thumbnail), htmlEscape(i.rec.StoragePath), htmlEscape(i.rec.Title),
	)
}

func (i *Image) PublicURL() string {
	return "/media/" + i.rec.Slug
}
