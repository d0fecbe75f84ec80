package mediaitem

import (
	"context"
	"testing"

	"media-viewer/internal/database"
)

// stubGrabber is a FrameGrabber test double; grabbedAt records every
// timestamp GrabFrame was called with so tests can assert clamping.
type stubGrabber struct {
	probe     VideoProbe
	probeErr  error
	frame     []byte
	frameErr  error
	grabbedAt []float64
}

func (s *stubGrabber) ProbeVideo(ctx context.Context, path string) (VideoProbe, error) {
	return s.probe, s.probeErr
}

func (s *stubGrabber) GrabFrame(ctx context.Context, path string, atSeconds float64) ([]byte, error) {
	s.grabbedAt = append(s.grabbedAt, atSeconds)
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

func newTestVideo(g FrameGrabber) *Video {
	return &Video{
		rec: &database.MediaItem{
			Kind:     database.KindVideo,
			Size:     1024,
			MimeType: "video/mp4",
			Filename: "clip.mp4",
		},
		absPath: "/tmp/clip.mp4",
		grabber: g,
	}
}

func TestVideoValidatePassesOnHealthyProbe(t *testing.T) {
	v := newTestVideo(&stubGrabber{probe: VideoProbe{Width: 1920, Height: 1080, DurationSeconds: 30}})
	result := v.Validate(context.Background())
	if !result.OK {
		t.Errorf("expected Validate to pass, got errors: %v", result.Errors)
	}
}

func TestVideoValidateFailsWithoutGrabber(t *testing.T) {
	v := newTestVideo(nil)
	result := v.Validate(context.Background())
	if result.OK {
		t.Error("expected Validate to fail without a frame grabber")
	}
}

func TestVideoValidateFailsOnZeroDuration(t *testing.T) {
	v := newTestVideo(&stubGrabber{probe: VideoProbe{Width: 1920, Height: 1080, DurationSeconds: 0}})
	result := v.Validate(context.Background())
	if result.OK {
		t.Error("expected Validate to fail on zero duration")
	}
}

func TestVideoGeneratePreviewUsesFixedMarksForLongClip(t *testing.T) {
	g := &stubGrabber{probe: VideoProbe{Width: 1920, Height: 1080, DurationSeconds: 30}, frame: []byte("jpeg")}
	v := newTestVideo(g)

	preview, err := v.GeneratePreview(context.Background())
	if err != nil {
		t.Fatalf("GeneratePreview: %v", err)
	}
	if string(preview.Thumbnail) != "jpeg" || string(preview.Secondary) != "jpeg" {
		t.Error("expected both thumbnail and secondary to come from GrabFrame")
	}
	if len(g.grabbedAt) != 2 || g.grabbedAt[0] != 2.0 || g.grabbedAt[1] != 5.0 {
		t.Errorf("expected marks at [2 5] for a long clip, got %v", g.grabbedAt)
	}
}

func TestVideoGeneratePreviewClampsMarksForShortClip(t *testing.T) {
	g := &stubGrabber{probe: VideoProbe{Width: 1920, Height: 1080, DurationSeconds: 2}, frame: []byte("jpeg")}
	v := newTestVideo(g)

	if _, err := v.GeneratePreview(context.Background()); err != nil {
		t.Fatalf("GeneratePreview: %v", err)
	}
	want := 2.0 * minClampDurationFactor
	if len(g.grabbedAt) != 2 || g.grabbedAt[0] != want || g.grabbedAt[1] != want {
		t.Errorf("expected both marks clamped to %v for a short clip, got %v", want, g.grabbedAt)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{45, "0:45"},
		{90, "1:30"},
		{3661, "1:01:01"},
	}
	for _, c := range cases {
		if got := formatDuration(c.seconds); got != c.want {
			t.Errorf("formatDuration(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
