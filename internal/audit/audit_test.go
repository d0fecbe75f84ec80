package audit

import (
	"testing"
	"time"
)

func TestRingAppendAndSnapshotOrder(t *testing.T) {
	r := NewRing(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Append(Entry{Kind: KindUploadStarted, ResourceID: "a", Timestamp: base})
	r.Append(Entry{Kind: KindUploadCompleted, ResourceID: "b", Timestamp: base.Add(time.Second)})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}
	if snap[0].ResourceID != "a" || snap[1].ResourceID != "b" {
		t.Fatalf("Snapshot order wrong: %+v", snap)
	}
}

func TestRingOverflowDropsOldest(t *testing.T) {
	r := NewRing(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Append(Entry{ResourceID: "1", Timestamp: base})
	r.Append(Entry{ResourceID: "2", Timestamp: base.Add(time.Second)})
	r.Append(Entry{ResourceID: "3", Timestamp: base.Add(2 * time.Second)})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2 (capacity)", len(snap))
	}
	if snap[0].ResourceID != "2" || snap[1].ResourceID != "3" {
		t.Fatalf("expected oldest entry dropped, got %+v", snap)
	}
}

func TestFailedAttemptsInWindow(t *testing.T) {
	r := NewRing(10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Append(Entry{
		Kind: KindAccessDecision, ActorID: "alice",
		Timestamp: now.Add(-90 * time.Second),
		Detail:    map[string]string{"granted": "false"},
	})
	r.Append(Entry{
		Kind: KindAccessDecision, ActorID: "alice",
		Timestamp: now.Add(-30 * time.Second),
		Detail:    map[string]string{"granted": "false"},
	})
	r.Append(Entry{
		Kind: KindAccessDecision, ActorID: "alice",
		Timestamp: now.Add(-10 * time.Second),
		Detail:    map[string]string{"granted": "true"},
	})

	got := r.FailedAttemptsInWindow("alice", time.Minute, now)
	if got != 1 {
		t.Fatalf("FailedAttemptsInWindow = %d, want 1 (only the -30s denial is in-window)", got)
	}
}

func TestStoreRecordUploadAndSummary(t *testing.T) {
	s := NewStore(5)

	s.RecordStage("transcode", 2*time.Second, false)
	s.RecordStage("transcode", 4*time.Second, true)
	s.RecordRung("720p", 10*time.Second, 1024, false)
	s.RecordErrorKind("external")

	s.RecordUpload(UploadRecord{UploadID: "u1", Status: "ready", BytesTotal: 100, Duration: time.Second})
	s.RecordUpload(UploadRecord{UploadID: "u2", Status: "failed", FailedAt: "transcode", BytesTotal: 50, Duration: time.Second})

	sum := s.Summary()
	if sum.TotalUploads != 2 || sum.SuccessfulUploads != 1 || sum.FailedUploads != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	det := s.Detailed()
	if det.Stages["transcode"].Count != 2 || det.Stages["transcode"].Failures != 1 {
		t.Fatalf("unexpected transcode stage stat: %+v", det.Stages["transcode"])
	}
	if det.Rungs["720p"].Count != 1 {
		t.Fatalf("unexpected rung stat: %+v", det.Rungs["720p"])
	}
	if det.ErrorKinds["external"] != 1 {
		t.Fatalf("unexpected error kind count: %+v", det.ErrorKinds)
	}

	recent := s.RecentUploads()
	if len(recent) != 2 || recent[0].UploadID != "u2" {
		t.Fatalf("expected most-recent-first history, got %+v", recent)
	}
}

func TestStoreHistoryBoundedCapacity(t *testing.T) {
	s := NewStore(2)
	for i := 0; i < 5; i++ {
		s.RecordUpload(UploadRecord{UploadID: string(rune('a' + i)), Status: "ready"})
	}
	recent := s.RecentUploads()
	if len(recent) != 2 {
		t.Fatalf("RecentUploads len = %d, want 2 (bounded)", len(recent))
	}
	if recent[0].UploadID != "e" || recent[1].UploadID != "d" {
		t.Fatalf("expected last two uploads retained most-recent-first, got %+v", recent)
	}
}
