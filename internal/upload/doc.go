// Package upload implements the asynchronous upload pipeline: intake of a
// client-supplied file, a bounded worker pool, and the seven-stage
// validate/extract/thumbnail/poster/transcode/move/db sequence that turns a
// Draft media_items row into an Active one (or a Failed one, with the
// failing stage recorded).
//
// Processing happens off the caller's goroutine: Submit enqueues a job and
// returns an upload id immediately; Status polls progress; Cancel requests
// cooperative teardown of an in-flight job, the same background-work shape
// as a bounded-concurrency directory scan, adapted from "rescan a directory"
// to "run one upload through its pipeline."
package upload
