package audit

import (
	"sync"
	"time"
)

// StageStat accumulates count/sum/min/max/failures for one pipeline stage.
type StageStat struct {
	Count      int64
	SumSeconds float64
	MinSeconds float64
	MaxSeconds float64
	Failures   int64
}

func (s *StageStat) observe(d time.Duration, failed bool) {
	secs := d.Seconds()
	if s.Count == 0 || secs < s.MinSeconds {
		s.MinSeconds = secs
	}
	if secs > s.MaxSeconds {
		s.MaxSeconds = secs
	}
	s.Count++
	s.SumSeconds += secs
	if failed {
		s.Failures++
	}
}

// AvgSeconds returns the mean stage duration, or 0 if no samples exist.
func (s StageStat) AvgSeconds() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.SumSeconds / float64(s.Count)
}

// RungStat accumulates per-rendition-rung transcode statistics.
type RungStat struct {
	Count        int64
	TotalSeconds float64
	TotalBytes   int64
	Failures     int64
}

// Summary is the cheap, coarse-grained snapshot returned by Store.Summary().
type Summary struct {
	TotalUploads      int64
	SuccessfulUploads int64
	FailedUploads     int64
	CancelledUploads  int64
	TotalBytes        int64
	TotalSeconds      float64
}

// Detailed is the full snapshot returned by Store.Detailed().
type Detailed struct {
	Summary
	Stages      map[string]StageStat
	Rungs       map[string]RungStat
	ErrorKinds  map[string]int64
	RecentCount int
}

// Store holds running totals, per-stage statistics, per-rung statistics, an
// error-kind taxonomy, and a bounded history of recent UploadRecords.
//
// Writers take the exclusive lock; summary/detailed reads take the shared
// lock, matching the RWMutex-guarded Database.stats pattern in
// internal/database/database.go.
type Store struct {
	mu sync.RWMutex

	totalUploads      int64
	successfulUploads int64
	failedUploads     int64
	cancelledUploads  int64
	totalBytes        int64
	totalSeconds      float64

	stages     map[string]StageStat
	rungs      map[string]RungStat
	errorKinds map[string]int64

	history    []UploadRecord
	historyCap int
	historyPos int
	historyLen int
}

// UploadRecord is a terminal snapshot of one upload's lifecycle, retained in
// the Store's bounded history for post-mortem inspection.
type UploadRecord struct {
	UploadID   string
	Slug       string
	Kind       string // video | image | document
	Status     string // ready | failed | cancelled
	FailedAt   string // stage name, empty if not failed
	Reason     string
	BytesTotal int64
	Duration   time.Duration
	FinishedAt time.Time
}

// NewStore constructs a Store with the given bounded history capacity.
func NewStore(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = 1
	}
	return &Store{
		stages:     make(map[string]StageStat),
		rungs:      make(map[string]RungStat),
		errorKinds: make(map[string]int64),
		history:    make([]UploadRecord, historyCap),
		historyCap: historyCap,
	}
}

// RecordStage records one stage execution's duration and outcome.
func (s *Store) RecordStage(stage string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stages[stage]
	st.observe(d, failed)
	s.stages[stage] = st
}

// RecordRung records one HLS rung encode's duration, output size, and outcome.
func (s *Store) RecordRung(rung string, d time.Duration, bytes int64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rungs[rung]
	r.Count++
	r.TotalSeconds += d.Seconds()
	r.TotalBytes += bytes
	if failed {
		r.Failures++
	}
	s.rungs[rung] = r
}

// RecordErrorKind increments the count for the given apperr.Kind string.
func (s *Store) RecordErrorKind(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorKinds[kind]++
}

// RecordUpload finalizes totals and appends rec to the bounded history.
func (s *Store) RecordUpload(rec UploadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalUploads++
	s.totalBytes += rec.BytesTotal
	s.totalSeconds += rec.Duration.Seconds()

	switch rec.Status {
	case "ready":
		s.successfulUploads++
	case "cancelled":
		s.cancelledUploads++
	default:
		s.failedUploads++
	}

	s.history[s.historyPos] = rec
	s.historyPos = (s.historyPos + 1) % s.historyCap
	if s.historyLen < s.historyCap {
		s.historyLen++
	}
}

// Summary returns the coarse running totals.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		TotalUploads:      s.totalUploads,
		SuccessfulUploads: s.successfulUploads,
		FailedUploads:     s.failedUploads,
		CancelledUploads:  s.cancelledUploads,
		TotalBytes:        s.totalBytes,
		TotalSeconds:      s.totalSeconds,
	}
}

// Detailed returns the full snapshot, including per-stage/per-rung
// breakdowns and the error taxonomy. Maps are copied to avoid exposing
// internal state to concurrent mutation.
func (s *Store) Detailed() Detailed {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages := make(map[string]StageStat, len(s.stages))
	for k, v := range s.stages {
		stages[k] = v
	}
	rungs := make(map[string]RungStat, len(s.rungs))
	for k, v := range s.rungs {
		rungs[k] = v
	}
	errKinds := make(map[string]int64, len(s.errorKinds))
	for k, v := range s.errorKinds {
		errKinds[k] = v
	}

	return Detailed{
		Summary: Summary{
			TotalUploads:      s.totalUploads,
			SuccessfulUploads: s.successfulUploads,
			FailedUploads:     s.failedUploads,
			CancelledUploads:  s.cancelledUploads,
			TotalBytes:        s.totalBytes,
			TotalSeconds:      s.totalSeconds,
		},
		Stages:      stages,
		Rungs:       rungs,
		ErrorKinds:  errKinds,
		RecentCount: s.historyLen,
	}
}

// RecentUploads returns the retained upload records, most recent first.
func (s *Store) RecentUploads() []UploadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UploadRecord, s.historyLen)
	for i := 0; i < s.historyLen; i++ {
		idx := (s.historyPos - 1 - i + s.historyCap) % s.historyCap
		out[i] = s.history[idx]
	}
	return out
}
