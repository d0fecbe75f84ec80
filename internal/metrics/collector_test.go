package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testValue(c prometheus.Collector) float64 {
	return testutil.ToFloat64(c)
}

type mockStatsProvider struct {
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	return m.stats
}

type mockStorageHealthChecker struct {
	mu                    sync.Mutex
	checkStorageHealthCnt int
	updateDBMetricsCnt    int
}

func (m *mockStorageHealthChecker) CheckStorageHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkStorageHealthCnt++
}

func (m *mockStorageHealthChecker) UpdateDBMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateDBMetricsCnt++
}

func (m *mockStorageHealthChecker) getCheckStorageHealthCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkStorageHealthCnt
}

func TestNewCollector(t *testing.T) {
	provider := &mockStatsProvider{}
	c := NewCollector(provider, "/tmp/test.db", time.Second)
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.statsProvider != provider {
		t.Error("statsProvider not set")
	}
}

func TestCollectorSetStorageHealthChecker(t *testing.T) {
	c := NewCollector(&mockStatsProvider{}, "", time.Second)
	checker := &mockStorageHealthChecker{}
	c.SetStorageHealthChecker(checker)

	c.collect()

	if checker.getCheckStorageHealthCount() != 1 {
		t.Errorf("CheckStorageHealth called %d times, want 1", checker.getCheckStorageHealthCount())
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(&mockStatsProvider{}, "", 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}

func TestCollectorCollectUpdatesMediaGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TotalVideos:    3,
		TotalImages:    5,
		TotalDocuments: 2,
		TotalTags:      9,
	}}
	c := NewCollector(provider, "", time.Minute)
	c.collect()

	if v := testValue(MediaItemsTotal.WithLabelValues("video", "ready")); v != 3 {
		t.Errorf("video count = %v, want 3", v)
	}
	if v := testValue(MediaTagsTotal); v != 9 {
		t.Errorf("tags count = %v, want 9", v)
	}
}

func TestCollectorDBSizeMetrics(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "media.db")
	if err := os.WriteFile(dbPath, []byte("fake-sqlite-db"), 0o600); err != nil {
		t.Fatalf("failed to write fixture db: %v", err)
	}

	c := NewCollector(&mockStatsProvider{}, dbPath, time.Minute)
	c.collectDBSize()

	if v := testValue(DBSizeBytes.WithLabelValues("main")); v == 0 {
		t.Error("expected DBSizeBytes main to be non-zero")
	}
}

func TestCollectorTranscoderCacheSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.ts"), []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	c := NewCollector(&mockStatsProvider{}, "", time.Minute)
	c.SetTranscoderCacheDir(dir)
	c.collectTranscoderCacheSize()

	if v := testValue(TranscoderCacheSizeBytes); v != 10 {
		t.Errorf("cache size = %v, want 10", v)
	}
}

func TestInitializeMetricsDoesNotPanic(t *testing.T) {
	InitializeMetrics()
}

func TestNewFilesystemObserver(t *testing.T) {
	observer := NewFilesystemObserver()
	if observer == nil {
		t.Fatal("NewFilesystemObserver returned nil")
	}
	observer.ObserveOperation("storage", "read", 0.01, nil)
	observer.ObserveRetryAttempt("stat", "storage")
	observer.ObserveRetrySuccess("stat", "storage")
	observer.ObserveRetryFailure("stat", "storage")
	observer.ObserveRetryDuration("stat", "storage", 0.5)
	observer.ObserveStaleError("stat", "storage")
}
