// Package storage implements the Storage Manager: scoped, retry-aware
// filesystem access for the media storage root, built on top of
// internal/filesystem the way file-serving handlers are built
// on top of it, but generalized into an explicit, reusable component the
// upload pipeline and media item contract can share.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-viewer/internal/apperr"
	"media-viewer/internal/filesystem"
	"media-viewer/internal/metrics"
)

// Manager scopes all filesystem access under a single root directory,
// rejecting any path that would escape it, and times every operation.
type Manager struct {
	root  string
	retry filesystem.RetryConfig
}

// New constructs a Manager rooted at root. root must already exist;
// New does not create it (internal/config.Load is responsible for that).
func New(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "resolve storage root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "stat storage root", err)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.Storage, "storage root is not a directory")
	}
	return &Manager{root: abs, retry: filesystem.DefaultRetryConfig()}, nil
}

// resolve validates rel and returns its absolute path under the root. It
// rejects absolute paths, ".." components, and (after resolving symlinks)
// any target that would land outside the root.
func (m *Manager) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", apperr.New(apperr.Validation, "path must be relative to the storage root")
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", apperr.New(apperr.Validation, "path escapes the storage root")
	}

	full := filepath.Join(m.root, cleaned)
	if !strings.HasPrefix(full, m.root+string(os.PathSeparator)) && full != m.root {
		return "", apperr.New(apperr.Validation, "path escapes the storage root")
	}

	// If the target (or an ancestor) already exists, resolve symlinks so a
	// symlink planted inside the root can't redirect writes elsewhere.
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		if !strings.HasPrefix(resolved, m.root+string(os.PathSeparator)) && resolved != m.root {
			return "", apperr.New(apperr.Validation, "path escapes the storage root via symlink")
		}
	}

	return full, nil
}

func (m *Manager) observe(op string, start time.Time, err error) {
	metrics.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOperationsTotal.WithLabelValues(op, status).Inc()
}

// WriteAtomic writes data to rel by writing to a sibling temp file, fsyncing
// it, then renaming it into place — the write is visible to readers either
// fully or not at all.
func (m *Manager) WriteAtomic(rel string, r io.Reader) (int64, error) {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("write_atomic", start, err)
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "create parent directory", err)
		m.observe("write_atomic", start, wrapped)
		return 0, wrapped
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "create temp file", err)
		m.observe("write_atomic", start, wrapped)
		return 0, wrapped
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	n, copyErr := io.Copy(tmp, r)
	if copyErr != nil {
		tmp.Close()
		wrapped := apperr.Wrap(apperr.Storage, "write temp file", copyErr)
		m.observe("write_atomic", start, wrapped)
		return n, wrapped
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		wrapped := apperr.Wrap(apperr.Storage, "fsync temp file", err)
		m.observe("write_atomic", start, wrapped)
		return n, wrapped
	}
	if err := tmp.Close(); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "close temp file", err)
		m.observe("write_atomic", start, wrapped)
		return n, wrapped
	}

	if err := filesystem.RenameWithRetry(tmpPath, full, m.retry); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "rename temp file into place", err)
		m.observe("write_atomic", start, wrapped)
		return n, wrapped
	}

	metrics.StorageBytesWritten.Add(float64(n))
	m.observe("write_atomic", start, nil)
	return n, nil
}

// Open returns a reader for rel. Callers must Close it.
func (m *Manager) Open(rel string) (*os.File, error) {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("open", start, err)
		return nil, err
	}
	f, err := filesystem.OpenWithRetry(full, m.retry)
	if err != nil {
		wrapped := toAppErr("open", err)
		m.observe("open", start, wrapped)
		return nil, wrapped
	}
	m.observe("open", start, nil)
	return f, nil
}

// Stat returns file info for rel.
func (m *Manager) Stat(rel string) (os.FileInfo, error) {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("stat", start, err)
		return nil, err
	}
	info, err := filesystem.StatWithRetry(full, m.retry)
	if err != nil {
		wrapped := toAppErr("stat", err)
		m.observe("stat", start, wrapped)
		return nil, wrapped
	}
	m.observe("stat", start, nil)
	return info, nil
}

// Exists reports whether rel exists under the storage root.
func (m *Manager) Exists(rel string) bool {
	_, err := m.Stat(rel)
	return err == nil
}

// Move atomically relocates srcRel to dstRel within the storage root,
// creating the destination's parent directories as needed.
func (m *Manager) Move(srcRel, dstRel string) error {
	start := time.Now()
	src, err := m.resolve(srcRel)
	if err != nil {
		m.observe("move", start, err)
		return err
	}
	dst, err := m.resolve(dstRel)
	if err != nil {
		m.observe("move", start, err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "create destination directory", err)
		m.observe("move", start, wrapped)
		return wrapped
	}
	if err := filesystem.RenameWithRetry(src, dst, m.retry); err != nil {
		wrapped := toAppErr("move", err)
		m.observe("move", start, wrapped)
		return wrapped
	}
	m.observe("move", start, nil)
	return nil
}

// Delete removes rel. Deleting a path that doesn't exist is not an error.
func (m *Manager) Delete(rel string) error {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("delete", start, err)
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "delete path", err)
		m.observe("delete", start, wrapped)
		return wrapped
	}
	m.observe("delete", start, nil)
	return nil
}

// Copy duplicates srcRel to dstRel, streaming through an atomic write so a
// reader never observes a partially-copied destination.
func (m *Manager) Copy(srcRel, dstRel string) (int64, error) {
	start := time.Now()
	src, err := m.Open(srcRel)
	if err != nil {
		m.observe("copy", start, err)
		return 0, err
	}
	defer src.Close()

	n, err := m.WriteAtomic(dstRel, src)
	m.observe("copy", start, err)
	return n, err
}

// MkdirAll creates rel (and any missing parents) under the storage root.
func (m *Manager) MkdirAll(rel string) error {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("mkdir", start, err)
		return err
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "create directory", err)
		m.observe("mkdir", start, wrapped)
		return wrapped
	}
	m.observe("mkdir", start, nil)
	return nil
}

// AbsPath returns the absolute filesystem path for rel without performing
// any I/O. It exists only for handing a path to an external process
// (ffmpeg); callers must not leak it outside the process boundary.
func (m *Manager) AbsPath(rel string) (string, error) {
	return m.resolve(rel)
}

// ListDir returns the names of rel's immediate subdirectories, ignoring
// plain files. A missing rel is not an error: it returns an empty slice,
// since a kind subtree (videos/images/documents) that has never received an
// upload legitimately doesn't exist yet.
func (m *Manager) ListDir(rel string) ([]string, error) {
	start := time.Now()
	full, err := m.resolve(rel)
	if err != nil {
		m.observe("list_dir", start, err)
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		m.observe("list_dir", start, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := apperr.Wrap(apperr.Storage, "list directory", err)
		m.observe("list_dir", start, wrapped)
		return nil, wrapped
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	m.observe("list_dir", start, nil)
	return dirs, nil
}

func toAppErr(op string, err error) *apperr.Error {
	if os.IsNotExist(err) {
		return apperr.Wrap(apperr.NotFound, op+": not found", err)
	}
	if os.IsExist(err) {
		return apperr.Wrap(apperr.Conflict, op+": already exists", err)
	}
	if os.IsPermission(err) {
		return apperr.Wrap(apperr.Forbidden, op+": permission denied", err)
	}
	return apperr.Wrap(apperr.Storage, op+": io error", err)
}
