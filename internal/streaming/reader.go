package streaming

import (
	"context"
	"io"
	"sync"
	"time"
)

// TimeoutReader wraps an io.Reader with per-read timeout and idle-stall
// detection, mirroring TimeoutWriter's protections for the intake side: a
// client uploading a large source file that stalls mid-transfer shouldn't
// tie up a worker slot indefinitely.
type TimeoutReader struct {
	r         io.Reader
	ctx       context.Context
	cancel    context.CancelFunc
	config    TimeoutWriterConfig
	startTime time.Time
	lastRead  time.Time
	bytesRead int64
	mu        sync.Mutex
	closed    bool
}

// NewTimeoutReader creates a new timeout-protected reader.
func NewTimeoutReader(ctx context.Context, r io.Reader, config TimeoutWriterConfig) *TimeoutReader {
	readerCtx, cancel := context.WithCancel(ctx)

	tr := &TimeoutReader{
		r:         r,
		ctx:       readerCtx,
		cancel:    cancel,
		config:    config,
		startTime: time.Now(),
		lastRead:  time.Now(),
	}

	go tr.idleChecker()

	return tr
}

// Read implements io.Reader with timeout protection.
func (tr *TimeoutReader) Read(p []byte) (int, error) {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return 0, ErrStreamCanceled
	}
	tr.mu.Unlock()

	select {
	case <-tr.ctx.Done():
		return 0, tr.contextError()
	default:
	}

	if tr.config.MaxDuration > 0 && time.Since(tr.startTime) > tr.config.MaxDuration {
		return 0, ErrWriteTimeout
	}

	type readResult struct {
		n   int
		err error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		n, err := tr.r.Read(p)
		resultCh <- readResult{n, err}
	}()

	select {
	case result := <-resultCh:
		if result.n > 0 {
			tr.mu.Lock()
			tr.lastRead = time.Now()
			tr.bytesRead += int64(result.n)
			bytesRead := tr.bytesRead
			tr.mu.Unlock()

			if tr.config.OnProgress != nil && bytesRead%(1024*1024) < int64(result.n) {
				tr.config.OnProgress(bytesRead, time.Since(tr.startTime))
			}
		}
		return result.n, result.err

	case <-time.After(tr.config.WriteTimeout):
		tr.cancel()
		return 0, ErrWriteTimeout

	case <-tr.ctx.Done():
		return 0, tr.contextError()
	}
}

func (tr *TimeoutReader) idleChecker() {
	if tr.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(tr.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tr.mu.Lock()
			idle := time.Since(tr.lastRead)
			closed := tr.closed
			tr.mu.Unlock()

			if closed {
				return
			}
			if idle > tr.config.IdleTimeout {
				tr.cancel()
				return
			}

		case <-tr.ctx.Done():
			return
		}
	}
}

func (tr *TimeoutReader) contextError() error {
	if tr.ctx.Err() == context.Canceled {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close marks the reader as closed.
func (tr *TimeoutReader) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return nil
	}
	tr.closed = true
	tr.cancel()
	return nil
}

// Stats returns read statistics.
func (tr *TimeoutReader) Stats() (bytesRead int64, duration time.Duration) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.bytesRead, time.Since(tr.startTime)
}
