package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	if c.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", c.MaxRetries)
	}
	if c.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", c.InitialBackoff)
	}
	if c.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", c.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	if isNFSStaleError(nil) {
		t.Error("nil should not be a stale error")
	}
	if isNFSStaleError(errors.New("boom")) {
		t.Error("a plain error should not be a stale error")
	}
	if !isNFSStaleError(syscall.ESTALE) {
		t.Error("syscall.ESTALE should be a stale error")
	}
}

func TestNewVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"storage":  "/data/storage",
		"database": "/data/database",
	})
	if vr == nil {
		t.Fatal("NewVolumeResolver returned nil")
	}
	if len(vr.mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(vr.mounts))
	}
}

func TestNewVolumeResolverEmpty(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{})
	if vr.Resolve("/anything") != "unknown" {
		t.Error("empty resolver should always resolve to unknown")
	}
}

func TestVolumeResolverResolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"storage":  "/data/storage",
		"database": "/data/database",
	})
	if got := vr.Resolve("/data/storage/videos/a.mp4"); got != "storage" {
		t.Errorf("Resolve = %q, want storage", got)
	}
	if got := vr.Resolve("/nowhere"); got != "unknown" {
		t.Errorf("Resolve = %q, want unknown", got)
	}
}

func TestVolumeResolverResolveLongestPrefixWins(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"storage": "/data/storage",
		"temp":    "/data/storage/temp",
	})
	if got := vr.Resolve("/data/storage/temp/upload-1"); got != "temp" {
		t.Errorf("Resolve = %q, want temp (longest prefix)", got)
	}
}

func TestVolumeResolverResolveNilResolver(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/anything"); got != "unknown" {
		t.Errorf("nil resolver Resolve = %q, want unknown", got)
	}
}

func TestSetDefaultVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{"storage": "/data/storage"})
	SetDefaultVolumeResolver(vr)
	defer SetDefaultVolumeResolver(nil)

	cfg := DefaultRetryConfig()
	if got := cfg.resolveVolume("/data/storage/a"); got != "storage" {
		t.Errorf("resolveVolume = %q, want storage", got)
	}
}

func TestRetryConfigResolveVolumeUsesConfigResolver(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.VolumeResolver = NewVolumeResolver(map[string]string{"database": "/data/database"})
	if got := cfg.resolveVolume("/data/database/media.db"); got != "database" {
		t.Errorf("resolveVolume = %q, want database", got)
	}
}

func TestStatWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry failed: %v", err)
	}
	if info.Size() != 1 {
		t.Errorf("Size = %d, want 1", info.Size())
	}
}

func TestStatWithRetryNotExist(t *testing.T) {
	_, err := StatWithRetry(filepath.Join(t.TempDir(), "missing"), DefaultRetryConfig())
	if !os.IsNotExist(err) {
		t.Fatalf("expected IsNotExist error, got %v", err)
	}
}

func TestOpenWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry failed: %v", err)
	}
	f.Close()
}

func TestReadDirWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("setup write failed: %v", err)
		}
	}

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestRenameWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")
	if err := os.WriteFile(oldPath, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	if err := RenameWithRetry(oldPath, newPath, DefaultRetryConfig()); err != nil {
		t.Fatalf("RenameWithRetry failed: %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
}

func TestWriteFileWithRetrySuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := WriteFileWithRetry(path, []byte("hello"), 0o600, DefaultRetryConfig()); err != nil {
		t.Fatalf("WriteFileWithRetry failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected file contents: %q, err=%v", data, err)
	}
}

// fakeObserver records every call made through the Observer interface.
type fakeObserver struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeObserver) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeObserver) ObserveOperation(_, _ string, _ float64, _ error)  { f.record("operation") }
func (f *fakeObserver) ObserveRetryAttempt(_, _ string)                  { f.record("attempt") }
func (f *fakeObserver) ObserveRetrySuccess(_, _ string)                  { f.record("success") }
func (f *fakeObserver) ObserveRetryFailure(_, _ string)                  { f.record("failure") }
func (f *fakeObserver) ObserveRetryDuration(_, _ string, _ float64)      { f.record("duration") }
func (f *fakeObserver) ObserveStaleError(_, _ string)                   { f.record("stale") }

func TestSetObserver(t *testing.T) {
	fo := &fakeObserver{}
	SetObserver(fo)
	defer SetObserver(nil)

	if observe() != fo {
		t.Fatal("observe() did not return the configured observer")
	}
}

func TestSetObserverToNil(t *testing.T) {
	SetObserver(nil)
	if observe() != nil {
		t.Fatal("observe() should return nil when unset")
	}
}

func TestStatWithRetryCallsObserverOnSuccess(t *testing.T) {
	fo := &fakeObserver{}
	SetObserver(fo)
	defer SetObserver(nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o600)

	if _, err := StatWithRetry(path, DefaultRetryConfig()); err != nil {
		t.Fatalf("StatWithRetry failed: %v", err)
	}

	fo.mu.Lock()
	defer fo.mu.Unlock()
	if len(fo.calls) == 0 {
		t.Fatal("expected observer to be called")
	}
}

func TestRetryOperationNilObserverDoesNotPanic(t *testing.T) {
	SetObserver(nil)
	err := retryOperation("stat", "/nonexistent/path", DefaultRetryConfig(), func() error {
		return os.ErrNotExist
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected error: %v", err)
	}
}
