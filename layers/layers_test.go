package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/rpn"
)

// testGenerator is a compact 2-template configuration (16x16 and 32x32
// square anchors) that keeps grids small enough to reason about by hand.
func testGenerator() anchors.Generator {
	return anchors.Generator{
		BaseSize: 16,
		Stride:   16,
		Scales:   []float32{1, 2},
		Ratios:   []float32{1},
	}
}

func scoreMap(k, h, w int) *tensor.Dense {
	return tensor.New(tensor.WithShape(2*k, h, w), tensor.WithBacking(make([]float32, 2*k*h*w)))
}

func deltaMap(k, h, w int) *tensor.Dense {
	return tensor.New(tensor.WithShape(4*k, h, w), tensor.WithBacking(make([]float32, 4*k*h*w)))
}

func gtTable(rows ...[5]float32) *tensor.Dense {
	data := make([]float32, 0, len(rows)*5)
	for _, r := range rows {
		data = append(data, r[:]...)
	}
	return tensor.New(tensor.WithShape(len(rows), 5), tensor.WithBacking(data))
}

func TestAnchorTargetLayerForward(t *testing.T) {
	gen := testGenerator()
	layer := NewAnchorTargetLayer(gen, rpn.DefaultAnchorTargetConfig(), 64, 64, 1)

	// One object exactly on the 16x16 anchor at grid cell (1,1), plus a
	// padding row that must be dropped.
	gt := gtTable(
		[5]float32{16, 16, 32, 32, 1},
		[5]float32{0, 0, 0, 0, 0},
	)

	out, err := layer.Forward([]*tensor.Dense{scoreMap(2, 4, 4), gt})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, tensor.Shape{2, 4, 4}, out[0].Shape())
	assert.Equal(t, tensor.Shape{8, 4, 4}, out[1].Shape())
	assert.Equal(t, tensor.Shape{8, 4, 4}, out[2].Shape())

	labels := out[0].Float32s()
	deltas := out[1].Float32s()
	weights := out[2].Float32s()

	// Anchor (row 1, col 1, template 0) is channel 0, position 1*4+1.
	plane := 16
	pos := 5
	assert.Equal(t, float32(1), labels[pos], "exact-match anchor should be foreground")
	for c := 0; c < 4; c++ {
		assert.InDelta(t, 0, deltas[c*plane+pos], 1e-5, "self-match delta should be near zero")
		assert.Equal(t, float32(1), weights[c*plane+pos])
	}

	for _, l := range labels {
		assert.Contains(t, []float32{-1, 0, 1}, l)
	}
}

func TestProposalLayerForward(t *testing.T) {
	gen := testGenerator()
	cfg := rpn.DefaultProposalConfig()
	cfg.PostNMSTopN = 8
	layer := NewProposalLayer(gen, cfg, 64, 64)

	scores := scoreMap(2, 4, 4)
	deltas := deltaMap(2, 4, 4)

	// Foreground half is channels [2,4); boost the 16x16 anchor at cell
	// (1,1), which decodes (with zero deltas) to the box (16,16,32,32).
	plane := 16
	scores.Float32s()[2*plane+5] = 0.9

	out, err := layer.Forward([]*tensor.Dense{scores, deltas})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, tensor.Shape{8, 4}, out[0].Shape())
	assert.Equal(t, tensor.Shape{8}, out[1].Shape())

	rois := out[0].Float32s()
	assert.InDelta(t, 16, rois[0], 1e-4)
	assert.InDelta(t, 16, rois[1], 1e-4)
	assert.InDelta(t, 32, rois[2], 1e-4)
	assert.InDelta(t, 32, rois[3], 1e-4)
	assert.Equal(t, float32(0.9), out[1].Float32s()[0])
}

func TestProposalLayerRejectsMismatchedMaps(t *testing.T) {
	gen := testGenerator()
	layer := NewProposalLayer(gen, rpn.DefaultProposalConfig(), 64, 64)

	_, err := layer.Forward([]*tensor.Dense{scoreMap(2, 4, 4), deltaMap(2, 3, 4)})
	assert.Error(t, err, "spatially mismatched maps must be rejected")
}

func TestProposalTargetLayerForward(t *testing.T) {
	cfg := rpn.DefaultProposalTargetConfig(4)
	cfg.NumROIs = 16
	layer := NewProposalTargetLayer(cfg, 3)

	rois := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking([]float32{
		10, 10, 60, 60,
		100, 100, 180, 180,
		0, 0, 0, 0, // padding row
	}))
	gt := gtTable([5]float32{12, 12, 58, 58, 2})

	out, err := layer.Forward([]*tensor.Dense{rois, gt})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, tensor.Shape{16, 4}, out[0].Shape())
	assert.Equal(t, tensor.Shape{16}, out[1].Shape())
	assert.Equal(t, tensor.Shape{16, 16}, out[2].Shape())
	assert.Equal(t, tensor.Shape{16, 16}, out[3].Shape())

	for _, l := range out[1].Float32s() {
		assert.Contains(t, []float32{0, 2}, l, "labels come from the ground truth classes")
	}
}

func TestSmoothL1LossForwardBackward(t *testing.T) {
	loss := NewSmoothL1Loss(1)

	pred := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{0.5, 2.0}))
	target := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{0, 0}))
	weights := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 1}))

	out, err := loss.Forward([]*tensor.Dense{pred, target, weights})
	require.NoError(t, err)
	// 0.5*0.5^2 + (2 - 0.5) = 0.125 + 1.5
	assert.InDelta(t, 1.625, float64(out[0].Float32s()[0]), 1e-5)

	upstream := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{1}))
	grads, err := loss.Backward([]*tensor.Dense{upstream})
	require.NoError(t, err)
	require.Len(t, grads, 3)

	g := grads[0].Float32s()
	assert.InDelta(t, 0.5, float64(g[0]), 1e-5, "quadratic region gradient is sigma^2*d")
	assert.InDelta(t, 1.0, float64(g[1]), 1e-5, "linear region gradient is sign(d)")
	assert.Nil(t, grads[1], "targets take no gradient")
	assert.Nil(t, grads[2], "weights take no gradient")
}

func TestSmoothL1LossZeroWeightRows(t *testing.T) {
	loss := NewSmoothL1Loss(1)

	pred := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{5, 5}))
	target := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{0, 0}))
	weights := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{0, 0}))

	out, err := loss.Forward([]*tensor.Dense{pred, target, weights})
	require.NoError(t, err)
	assert.Equal(t, float32(0), out[0].Float32s()[0], "unweighted rows contribute no loss")

	upstream := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{1}))
	grads, err := loss.Backward([]*tensor.Dense{upstream})
	require.NoError(t, err)
	for _, g := range grads[0].Float32s() {
		assert.Equal(t, float32(0), g, "unweighted rows get no gradient")
	}
}

func TestIgnoreLabelMasksRows(t *testing.T) {
	layer := IgnoreLabel{Ignore: -1}

	pred := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float32{
		0.9, 0.1,
		0.5, 0.5,
		0.2, 0.8,
	}))
	labels := tensor.New(tensor.WithShape(3), tensor.WithBacking([]float32{1, -1, 0}))

	out, err := layer.Forward([]*tensor.Dense{pred, labels})
	require.NoError(t, err)
	require.Len(t, out, 3)

	maskedPred := out[0].Float32s()
	assert.Equal(t, float32(0.9), maskedPred[0], "counted rows pass through")
	assert.Equal(t, float32(0), maskedPred[2], "ignored rows are zeroed")
	assert.Equal(t, float32(0), maskedPred[3])

	assert.Equal(t, []float32{1, 0, 0}, out[1].Float32s(), "ignored labels clamp to 0")
	assert.Equal(t, []float32{1, 0, 1}, out[2].Float32s())
}
