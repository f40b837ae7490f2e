package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-frcnn/boxes"
)

func TestRegressROIsAppliesWinningClassDelta(t *testing.T) {
	cfg := Config{NumClasses: 3, MaxDetections: 4, ImageWidth: 640, ImageHeight: 640}
	roi := boxes.Box{100, 100, 200, 200}
	gt := boxes.Box{110, 105, 215, 198}
	delta := boxes.EncodeDelta(roi, gt)

	scores := []float32{0.1, 0.2, 0.7} // class 2 wins
	deltas := make([]float32, 4*cfg.NumClasses)
	deltas[4*2+0] = delta.DX
	deltas[4*2+1] = delta.DY
	deltas[4*2+2] = delta.DW
	deltas[4*2+3] = delta.DH

	out, err := RegressROIs([]boxes.Box{roi}, scores, deltas, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, out[0].Class)
	assert.Equal(t, float32(0.7), out[0].Score)
	assert.InDelta(t, float64(gt.X1), float64(out[0].Box.X1), 1e-2)
	assert.InDelta(t, float64(gt.Y1), float64(out[0].Box.Y1), 1e-2)
	assert.InDelta(t, float64(gt.X2), float64(out[0].Box.X2), 1e-2)
	assert.InDelta(t, float64(gt.Y2), float64(out[0].Box.Y2), 1e-2)
}

func TestRegressROIsBackgroundUnregressed(t *testing.T) {
	cfg := Config{NumClasses: 3, MaxDetections: 2, ImageWidth: 640, ImageHeight: 640}
	roi := boxes.Box{50, 50, 150, 150}

	scores := []float32{0.8, 0.1, 0.1} // background wins
	deltas := make([]float32, 4*cfg.NumClasses)
	for i := range deltas {
		deltas[i] = 0.5 // would move the box if applied
	}

	out, err := RegressROIs([]boxes.Box{roi}, scores, deltas, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, out[0].Class)
	assert.Equal(t, roi, out[0].Box, "background rows keep the raw ROI")
}

func TestRegressROIsClipsToImage(t *testing.T) {
	cfg := Config{NumClasses: 2, MaxDetections: 1, ImageWidth: 200, ImageHeight: 200}
	roi := boxes.Box{150, 150, 199, 199}

	scores := []float32{0.1, 0.9}
	// A large positive shift would push the box past the image edge.
	deltas := []float32{0, 0, 0, 0, 1.0, 1.0, 0.5, 0.5}

	out, err := RegressROIs([]boxes.Box{roi}, scores, deltas, cfg)
	require.NoError(t, err)

	b := out[0].Box
	assert.LessOrEqual(t, b.X2, float32(200))
	assert.LessOrEqual(t, b.Y2, float32(200))
	assert.GreaterOrEqual(t, b.X1, float32(0))
	assert.GreaterOrEqual(t, b.Y1, float32(0))
}

func TestRegressROIsSkipsPaddingAndPadsOutput(t *testing.T) {
	cfg := Config{NumClasses: 2, MaxDetections: 4, ImageWidth: 640, ImageHeight: 640}
	rois := []boxes.Box{
		{10, 10, 60, 60},
		{}, // proposal padding row
		{100, 100, 180, 180},
	}
	scores := []float32{
		0.3, 0.7,
		1.0, 0.0,
		0.6, 0.4,
	}
	deltas := make([]float32, len(rois)*4*cfg.NumClasses)

	out, err := RegressROIs(rois, scores, deltas, cfg)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, 1, out[0].Class)
	assert.Equal(t, 0, out[1].Class, "second row comes from the third roi")
	assert.Equal(t, boxes.Box{100, 100, 180, 180}, out[1].Box)
	assert.Equal(t, Detection{}, out[2], "tail rows are zero padding")
	assert.Equal(t, Detection{}, out[3])
}

func TestRegressROIsShapeMismatch(t *testing.T) {
	cfg := Config{NumClasses: 3, MaxDetections: 1, ImageWidth: 100, ImageHeight: 100}
	rois := []boxes.Box{{0, 0, 50, 50}}

	_, err := RegressROIs(rois, []float32{0.5}, make([]float32, 12), cfg)
	assert.Error(t, err, "short score rows must be rejected")

	_, err = RegressROIs(rois, []float32{0.5, 0.3, 0.2}, make([]float32, 4), cfg)
	assert.Error(t, err, "short delta rows must be rejected")
}
