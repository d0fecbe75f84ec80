// Package database provides SQLite-backed storage for the media repository.
//
// It handles storage and retrieval of:
//   - MediaItem rows across the unified video/image/document schema, with
//     status-DAG transitions and a full-text search index over
//     title/description/filename
//   - Tags, attached to media items through a single junction table with
//     trigger-maintained usage counts
//   - Access groups, group memberships, and access keys consumed by the
//     access control engine
//   - An append-only audit log mirror
//
// The database uses WAL mode for improved concurrent read performance and
// includes automatic schema initialization and guarded migrations.
package database
