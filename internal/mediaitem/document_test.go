package mediaitem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-viewer/internal/database"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDocumentExtractCSVMetadata(t *testing.T) {
	path := writeTempFile(t, "data.csv", "name,age\nalice,30\nbob,40\n")
	doc := &Document{
		rec:     &database.MediaItem{MimeType: "text/csv"},
		absPath: path,
	}

	m, err := doc.ExtractMetadata(nil)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if m.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", m.RowCount)
	}
	if m.ColumnCount != 2 {
		t.Errorf("ColumnCount = %d, want 2", m.ColumnCount)
	}
}

func TestDocumentExtractTextMetadataCountsWords(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "the quick brown fox jumps")
	doc := &Document{
		rec:     &database.MediaItem{MimeType: "text/plain"},
		absPath: path,
	}

	m, err := doc.ExtractMetadata(nil)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if m.RowCount != 5 {
		t.Errorf("word count = %d, want 5", m.RowCount)
	}
}

func TestDocumentValidateRejectsEmptyTextFile(t *testing.T) {
	path := writeTempFile(t, "empty.txt", "")
	doc := &Document{
		rec: &database.MediaItem{
			Size:     0,
			MimeType: "text/plain",
			Filename: "empty.txt",
		},
		absPath: path,
	}

	result := doc.Validate(nil)
	if result.OK {
		t.Error("expected Validate to fail for an empty text document")
	}
}

func TestDocumentGenerateCSVPreviewProducesTable(t *testing.T) {
	path := writeTempFile(t, "data.csv", "a,b\n1,2\n")
	doc := &Document{
		rec:     &database.MediaItem{MimeType: "text/csv"},
		absPath: path,
	}

	preview, err := doc.generateCSVPreview()
	if err != nil {
		t.Fatalf("generateCSVPreview: %v", err)
	}
	html := string(preview.Thumbnail)
	if !strings.Contains(html, "<table") || !strings.Contains(html, "<td>1</td>") {
		t.Errorf("unexpected csv preview html: %s", html)
	}
}

func TestDocumentIcon(t *testing.T) {
	cases := map[string]string{
		"application/pdf": "pdf",
		"text/csv":        "csv",
		"text/markdown":   "md",
		"text/plain":      "txt",
	}
	for mime, want := range cases {
		if got := documentIcon(mime); got != want {
			t.Errorf("documentIcon(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestDocumentPublicURL(t *testing.T) {
	doc := &Document{rec: &database.MediaItem{Slug: "report-q3"}}
	if got := doc.PublicURL(); got != "/media/report-q3" {
		t.Errorf("PublicURL() = %q, want /media/report-q3", got)
	}
}
