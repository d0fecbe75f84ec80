/*
Package streaming provides timeout-protected io.Reader/io.Writer wrappers
used by the upload pipeline to keep a stalled client or a wedged disk from
tying up a worker slot indefinitely.

# Overview

A large upload or a slow destination filesystem can hold a pipeline worker
hostage. TimeoutReader guards the intake side (reading the client's
multipart upload body); TimeoutWriter and CopyWithTimeout guard a copy onto
a slow destination (the pipeline's move stage renames instead and does
not use them). Both enforce a per-operation
timeout and an idle-stall timeout, and both are plain io.Reader/io.Writer
wrappers with no dependency on net/http.

# Key Features

  - Per-operation timeouts: individual reads/writes are bounded by configurable timeouts
  - Idle detection: a stream with no data flow for IdleTimeout is terminated
  - Chunked writes: large writes are split into smaller pieces for responsive cancellation
  - Context cancellation: an upload's ctx.Done() tears the stream down promptly
  - Progress callbacks: optional monitoring of bytes transferred

# Basic Usage

	config := streaming.DefaultTimeoutWriterConfig()
	n, err := streaming.CopyWithTimeout(ctx, dest, uploadedFile, config)
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		log.Printf("move failed: %v", err)
	}

Reading an upload body with the same protection:

	tr := streaming.NewTimeoutReader(ctx, multipartFile, config)
	defer tr.Close()
	_, err := io.Copy(destFile, tr)

# Configuration

TimeoutWriterConfig controls both TimeoutReader and TimeoutWriter:

	type TimeoutWriterConfig struct {
		WriteTimeout time.Duration // max time for a single read/write
		IdleTimeout  time.Duration // max time with no data flow
		MaxDuration  time.Duration // absolute cap on stream lifetime, 0 = unlimited
		ChunkSize    int           // write chunking granularity, 0 = disabled
		OnProgress   func(bytesTransferred int64, duration time.Duration)
	}

# Error Handling

	var (
		ErrWriteTimeout   = errors.New("write timeout exceeded")
		ErrClientGone     = errors.New("client disconnected")
		ErrStreamCanceled = errors.New("stream canceled")
	)

Check these with errors.Is after a Read/Write/Copy call fails.

# Thread Safety

TimeoutReader and TimeoutWriter are safe for concurrent use, though typical
usage is a single goroutine per stream. Internal state is mutex-protected;
the idle checker runs in its own goroutine per instance.
*/
package streaming
