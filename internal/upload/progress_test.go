package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressPercentAccumulatesStageWeights(t *testing.T) {
	p := newProgress()
	assert.Zero(t, p.Percent(), "expected 0%% before any stage completes")

	p.Advance("validate")
	p.Advance("extract")

	want := (0.02 + 0.05) * 100
	assert.InDelta(t, want, p.Percent(), 0.001)
}

func TestProgressSnapshotReflectsCurrentStage(t *testing.T) {
	p := newProgress()
	p.Enter("thumbnail")
	p.Advance("validate")
	p.Advance("extract")

	snap := p.Snapshot()
	assert.Equal(t, "thumbnail", snap.Stage)
	assert.False(t, snap.Failed)
	assert.False(t, snap.Cancelled)
}

func TestProgressFailRecordsFailingStage(t *testing.T) {
	p := newProgress()
	p.Enter("transcode")
	p.Fail("transcode")

	snap := p.Snapshot()
	assert.True(t, snap.Failed)
	assert.Equal(t, "transcode", snap.FailedAt)
}

func TestProgressCancelIsIndependentOfFail(t *testing.T) {
	p := newProgress()
	p.Cancel()

	snap := p.Snapshot()
	assert.True(t, snap.Cancelled)
	assert.False(t, snap.Failed)
}

func TestProgressFullSequenceReaches100Percent(t *testing.T) {
	p := newProgress()
	for _, stage := range stageOrder {
		p.Advance(stage)
	}
	assert.InDelta(t, 100.0, p.Percent(), 0.001)
}
