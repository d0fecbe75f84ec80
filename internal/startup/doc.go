// Package startup handles the composition root's boot-time and shutdown
// logging.
//
// It provides:
//   - Build information and version reporting
//   - System environment logging (Go version, CPU count, container limits)
//   - Structured per-subsystem startup logging (database, transcoder,
//     upload pipeline, access engine, sweeper)
//   - Structured shutdown logging
//
// Environment variable loading and directory validation live in
// internal/config; this package only logs around what config and the rest
// of the composition root already decided.
package startup
