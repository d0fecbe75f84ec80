package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestTimeoutReaderReadsThrough(t *testing.T) {
	ctx := context.Background()
	src := bytes.NewReader([]byte("hello upload"))
	config := DefaultTimeoutWriterConfig()

	tr := NewTimeoutReader(ctx, src, config)
	defer tr.Close()

	got, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello upload" {
		t.Errorf("got %q", got)
	}

	bytesRead, _ := tr.Stats()
	if bytesRead != int64(len("hello upload")) {
		t.Errorf("bytesRead = %d, want %d", bytesRead, len("hello upload"))
	}
}

func TestTimeoutReaderCloseIsIdempotentAndBlocksFurtherReads(t *testing.T) {
	ctx := context.Background()
	src := bytes.NewReader([]byte("data"))
	config := DefaultTimeoutWriterConfig()

	tr := NewTimeoutReader(ctx, src, config)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, err := tr.Read(make([]byte, 4))
	if !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("expected ErrStreamCanceled after close, got %v", err)
	}
}

func TestTimeoutReaderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := bytes.NewReader([]byte("data"))
	config := DefaultTimeoutWriterConfig()

	tr := NewTimeoutReader(ctx, src, config)
	defer tr.Close()

	cancel()
	time.Sleep(10 * time.Millisecond)

	_, err := tr.Read(make([]byte, 4))
	if err == nil {
		t.Error("expected read to fail after context cancellation")
	}
}
