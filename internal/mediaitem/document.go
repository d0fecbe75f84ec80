package mediaitem

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"media-viewer/internal/apperr"
	"media-viewer/internal/database"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfRenderTimeout = 30 * time.Second

// Document is the Document-kind MediaItem implementation, covering PDF,
// CSV, and plain-text/markdown files. PDF page counts come from pdfcpu;
// preview rendering shells out to pdftoppm the same way this codebase shells out
// to ffmpeg for video frames, since no pack library rasterizes a PDF page
// to an image.
type Document struct {
	rec     *database.MediaItem
	absPath string
}

func (d *Document) MediaType() database.MediaKind { return database.KindDocument }

func (d *Document) Validate(ctx context.Context) ValidationResult {
	var errs []string

	if d.rec.Size <= 0 || d.rec.Size > maxBytesFor(database.KindDocument) {
		errs = append(errs, fmt.Sprintf("document size %d exceeds limit %d", d.rec.Size, maxBytesFor(database.KindDocument)))
	}
	if !mimeAllowed(database.KindDocument, d.rec.MimeType) {
		errs = append(errs, fmt.Sprintf("mime type %q not allowed for documents", d.rec.MimeType))
	}
	if !sanitizeFilename(d.rec.Filename) {
		errs = append(errs, "filename is not sanitizable")
	}

	switch strings.ToLower(d.rec.MimeType) {
	case "application/pdf":
		if err := api.ValidateFile(d.absPath, model.NewDefaultConfiguration()); err != nil {
			errs = append(errs, fmt.Sprintf("pdf is not valid: %v", err))
		}
	case "text/csv", "text/plain", "text/markdown":
		info, err := os.Stat(d.absPath)
		if err != nil || info.Size() == 0 {
			errs = append(errs, "text document is empty or unreadable")
		}
	}

	if len(errs) > 0 {
		return fail(errs...)
	}
	return pass()
}

func (d *Document) ExtractMetadata(ctx context.Context) (Metadata, error) {
	switch strings.ToLower(d.rec.MimeType) {
	case "application/pdf":
		return d.extractPDFMetadata()
	case "text/csv":
		return d.extractCSVMetadata()
	case "text/plain", "text/markdown":
		return d.extractTextMetadata()
	default:
		return Metadata{}, apperr.New(apperr.Validation, fmt.Sprintf("unsupported document mime %q", d.rec.MimeType))
	}
}

func (d *Document) extractPDFMetadata() (Metadata, error) {
	count, err := api.PageCountFile(d.absPath)
	if err != nil {
		return Metadata{}, apperr.WrapStage("extract", "count pdf pages", err)
	}
	return Metadata{PageCount: count}, nil
}

func (d *Document) extractCSVMetadata() (Metadata, error) {
	f, err := os.Open(d.absPath)
	if err != nil {
		return Metadata{}, apperr.WrapStage("extract", "open csv for row count", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows rather than failing the whole scan

	var rows, cols int
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		rows++
		if len(record) > cols {
			cols = len(record)
		}
	}

	return Metadata{RowCount: rows, ColumnCount: cols, CSVDelimiter: ","}, nil
}

func (d *Document) extractTextMetadata() (Metadata, error) {
	f, err := os.Open(d.absPath)
	if err != nil {
		return Metadata{}, apperr.WrapStage("extract", "open text document for word count", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	words := 0
	for scanner.Scan() {
		words++
	}

	return Metadata{RowCount: words, Language: "und"}, nil
}

// GeneratePreview renders a first-page thumbnail for PDFs via pdftoppm, a
// small header table for CSVs, and nothing (the caller falls back to a
// generic icon) for plain text/markdown.
func (d *Document) GeneratePreview(ctx context.Context) (Preview, error) {
	switch strings.ToLower(d.rec.MimeType) {
	case "application/pdf":
		return d.generatePDFPreview(ctx)
	case "text/csv":
		return d.generateCSVPreview()
	default:
		return Preview{}, nil
	}
}

func (d *Document) generatePDFPreview(ctx context.Context) (Preview, error) {
	pdftoppm, err := exec.LookPath("pdftoppm")
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "locate pdftoppm binary", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, pdfRenderTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, pdftoppm,
		"-jpeg", "-f", "1", "-l", "1", "-scale-to", "600", d.absPath, "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", fmt.Sprintf("pdftoppm failed: %s", stderr.String()), err)
	}
	if stdout.Len() == 0 {
		return Preview{}, apperr.New(apperr.Processing, "pdftoppm produced no output")
	}

	return Preview{Thumbnail: stdout.Bytes()}, nil
}

func (d *Document) generateCSVPreview() (Preview, error) {
	f, err := os.Open(d.absPath)
	if err != nil {
		return Preview{}, apperr.WrapStage("thumbnail", "open csv for preview table", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var b strings.Builder
	b.WriteString(`<table class="media-preview-table">`)
	for i := 0; i < 10; i++ {
		record, err := r.Read()
		if err != nil {
			break
		}
		b.WriteString("<tr>")
		for _, cell := range record {
			b.WriteString("<td>")
			b.WriteString(htmlEscape(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")

	return Preview{Thumbnail: []byte(b.String())}, nil
}

func (d *Document) RenderCardHTML() string {
	icon := documentIcon(d.rec.MimeType)
	return fmt.Sprintf(
		`<div class="media-card media-card--document"><span class="media-card__icon">%s</span><span class="media-card__title">%s</span></div>`,
		icon, htmlEscape(d.rec.Title),
	)
}

func (d *Document) RenderPlayerHTML() string {
	switch strings.ToLower(d.rec.MimeType) {
	case "application/pdf":
		return fmt.Sprintf(`<iframe class="pdf-viewer" src="%s"></iframe>`, htmlEscape(d.rec.StoragePath))
	case "text/csv":
		return fmt.Sprintf(`<div class="csv-viewer" data-src="%s"></div>`, htmlEscape(d.rec.StoragePath))
	case "text/markdown":
		return fmt.Sprintf(`<div class="markdown-viewer" data-src="%s"></div>`, htmlEscape(d.rec.StoragePath))
	default:
		return fmt.Sprintf(`<pre class="text-viewer" data-src="%s"></pre>`, htmlEscape(d.rec.StoragePath))
	}
}

func (d *Document) PublicURL() string {
	return "/media/" + d.rec.Slug
}

func documentIcon(mime string) string {
	switch strings.ToLower(mime) {
	case "application/pdf":
		return "pdf"
	case "text/csv":
		return "csv"
	case "text/markdown":
		return "md"
	default:
		return "txt"
	}
}
