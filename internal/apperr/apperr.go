// Package apperr defines the error taxonomy shared across the media
// processing and access-control substrate.
//
// Every package in this module wraps failures in an *Error carrying one of
// the Kind values below, so callers can branch on failure category with
// errors.As instead of string-matching messages the way the rest of the
// stack wraps errors with fmt.Errorf("...: %w", err).
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure.
type Kind string

const (
	// Validation marks rejected input: too big, wrong kind, bad MIME, unsafe path.
	Validation Kind = "validation"
	// NotFound marks a missing resource, slug, upload id, or key.
	NotFound Kind = "not_found"
	// Conflict marks a duplicate slug under strict policy, or an upload limit exceeded.
	Conflict Kind = "conflict"
	// Forbidden marks an access-control denial surfaced outside the engine's own AccessDecision value.
	Forbidden Kind = "forbidden"
	// Processing marks a stage-level upload pipeline failure.
	Processing Kind = "processing"
	// Storage marks a filesystem I/O failure or a path-escape attempt.
	Storage Kind = "storage"
	// Database marks a query or transaction failure.
	Database Kind = "database"
	// External marks a non-zero exit or signal from an external process (ffmpeg, ffprobe).
	External Kind = "external"
	// Cancelled marks a user-initiated abort.
	Cancelled Kind = "cancelled"
	// Interrupted marks a process restart that occurred mid-processing.
	Interrupted Kind = "interrupted"
)

// Error is the typed error value returned by this module's packages.
type Error struct {
	Kind  Kind
	Stage string // set only for Processing errors; the pipeline stage that failed
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: stage=%s: %s: %v", e.Kind, e.Stage, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s: stage=%s: %s", e.Kind, e.Stage, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.NotFound) work by comparing Kind against a
// sentinel *Error with only Kind set (see the New* helpers below).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Stage == "" && t.Msg == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WrapStage constructs a Processing error tagged with the pipeline stage that failed.
func WrapStage(stage, msg string, cause error) *Error {
	return &Error{Kind: Processing, Stage: stage, Msg: msg, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is* helpers for the common checks callers need without importing Kind constants everywhere.

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return hasKind(err, NotFound) }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return hasKind(err, Conflict) }

// IsValidation reports whether err is a Validation error.
func IsValidation(err error) bool { return hasKind(err, Validation) }

// IsCancelled reports whether err is a Cancelled error.
func IsCancelled(err error) bool { return hasKind(err, Cancelled) }

func hasKind(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
