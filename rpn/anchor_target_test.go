package rpn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/boxes"
)

// TestAssignExactMatchAnchor covers the end-to-end scenario: an anchor
// exactly matching the single ground truth box must be labeled foreground
// with a near-zero regression target.
func TestAssignExactMatchAnchor(t *testing.T) {
	gtBox := boxes.Box{10, 10, 50, 50}
	anchorSet := []boxes.Box{
		gtBox,
		{500, 500, 600, 600},
		{700, 100, 800, 180},
	}
	gt := []GroundTruth{{Box: gtBox, Class: 2}}

	assigner := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 1)
	targets := assigner.Assign(anchorSet, gt, 1000, 1000)

	require.Equal(t, 1, targets.Labels[0], "exact-match anchor should be foreground")
	assert.InDelta(t, 0, targets.Targets[0].DX, 1e-5)
	assert.InDelta(t, 0, targets.Targets[0].DY, 1e-5)
	assert.InDelta(t, 0, targets.Targets[0].DW, 1e-5)
	assert.InDelta(t, 0, targets.Targets[0].DH, 1e-5)

	for c := 0; c < 4; c++ {
		assert.Equal(t, float32(1), targets.InsideWeights[c],
			"foreground row should have unit inside weights")
	}
	assert.Equal(t, float32(0), targets.InsideWeights[4],
		"background row should have zero inside weights")
}

// TestAssignForcedPositive checks that a ground truth no anchor clears the
// foreground threshold for still receives its single best-overlapping
// anchor as a positive.
func TestAssignForcedPositive(t *testing.T) {
	// Best IoU is well below 0.7 but above zero.
	anchorSet := []boxes.Box{
		{0, 0, 100, 100},
		{40, 40, 140, 140},
		{300, 300, 400, 400},
	}
	gt := []GroundTruth{{Box: boxes.Box{0, 0, 60, 100}, Class: 1}}

	assigner := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 1)
	targets := assigner.Assign(anchorSet, gt, 1000, 1000)

	assert.Equal(t, 1, targets.Labels[0], "best-overlap anchor should be forced foreground")
	assert.GreaterOrEqual(t, targets.NumForeground(), 1,
		"every overlapped ground truth needs at least one positive anchor")
}

func TestAssignBorderPolicy(t *testing.T) {
	anchorSet := []boxes.Box{
		{-5, 10, 40, 60},  // spills past the left edge
		{10, 10, 60, 60},  // inside
		{950, 10, 1010, 60}, // spills past the right edge
	}
	gt := []GroundTruth{{Box: boxes.Box{10, 10, 60, 60}, Class: 1}}

	assigner := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 1)
	targets := assigner.Assign(anchorSet, gt, 1000, 1000)

	assert.Equal(t, LabelIgnore, targets.Labels[0], "outside anchor should be ignored")
	assert.Equal(t, LabelIgnore, targets.Labels[2], "outside anchor should be ignored")
	assert.Equal(t, 1, targets.Labels[1])
}

// TestAssignForegroundCap verifies the batch balance policy on a dense grid
// where many anchors match the ground truth.
func TestAssignForegroundCap(t *testing.T) {
	cfg := DefaultAnchorTargetConfig()
	gen := anchors.DefaultGenerator(16)
	anchorSet := gen.Grid(40, 40)

	// Large ground truth boxes overlapping many anchors.
	gt := []GroundTruth{
		{Box: boxes.Box{100, 100, 280, 280}, Class: 1},
		{Box: boxes.Box{300, 300, 500, 480}, Class: 3},
	}

	assigner := NewAnchorTargetAssigner(cfg, 42)
	targets := assigner.Assign(anchorSet, gt, 640, 640)

	fg := targets.NumForeground()
	bg := targets.NumBackground()
	maxFg := int(cfg.FgFraction * float32(cfg.BatchSize))

	assert.LessOrEqual(t, fg, maxFg, "foreground count must respect the cap")
	assert.LessOrEqual(t, fg+bg, cfg.BatchSize, "sampled batch must respect the batch size")
	assert.Greater(t, fg, 0, "overlapped ground truth should yield positives")
}

func TestAssignZeroGroundTruth(t *testing.T) {
	gen := anchors.DefaultGenerator(16)
	anchorSet := gen.Grid(10, 10)

	assigner := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 9)
	targets := assigner.Assign(anchorSet, nil, 160, 160)

	assert.Equal(t, 0, targets.NumForeground(), "no ground truth means no foreground")
	for i, l := range targets.Labels {
		assert.Contains(t, []int{LabelIgnore, LabelBackground}, l,
			"anchor %d should be background or ignored", i)
	}
	for _, w := range targets.InsideWeights {
		assert.Equal(t, float32(0), w, "no row should contribute regression loss")
	}
}

// TestAssignReproducible pins the sampler seed and checks that assignment
// is deterministic across assigners.
func TestAssignReproducible(t *testing.T) {
	gen := anchors.DefaultGenerator(16)
	anchorSet := gen.Grid(30, 30)
	gt := []GroundTruth{{Box: boxes.Box{64, 64, 240, 240}, Class: 1}}

	a := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 1234)
	b := NewAnchorTargetAssigner(DefaultAnchorTargetConfig(), 1234)

	ta := a.Assign(anchorSet, gt, 480, 480)
	tb := b.Assign(anchorSet, gt, 480, 480)

	assert.Equal(t, ta.Labels, tb.Labels, "same seed must reproduce labels")
	assert.Equal(t, ta.Targets, tb.Targets, "same seed must reproduce targets")
}
