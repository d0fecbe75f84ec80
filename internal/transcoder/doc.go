// Package transcoder produces an offline HLS rendition ladder from an
// uploaded video and extracts single-frame previews for thumbnails and
// posters.
//
// Unlike a just-in-time streaming transcoder, this package runs once per
// upload: given a source file it probes codec/resolution/duration, picks
// every rung of the fixed quality ladder no taller than the source, and
// encodes each rung to its own HLS playlist with 6-second segments before
// writing a master playlist that references them all.
//
// # GPU acceleration
//
// GPU encoder selection and capability probing (NVENC, VAAPI, VideoToolbox)
// happen once at construction via New, and the detected encoder is reused
// for every rung of every Transcode call. Detection falls back to the CPU
// libx264 encoder whenever no GPU encoder is available or fails its own
// one-frame test encode.
//
// # Usage
//
//	trans := transcoder.New("auto", true)
//	result, err := trans.Transcode(ctx, transcoder.Job{
//	    Slug:       "my-video",
//	    SourcePath: "/path/to/source.mov",
//	    OutputDir:  "/storage/videos/my-video",
//	})
//
// # Cancellation
//
// Transcode registers its in-flight ffmpeg process under the job's slug so
// a caller can Cancel(slug) from another goroutine, or rely on ctx
// cancellation. Call Cleanup() during application shutdown to terminate any
// processes still running.
package transcoder
