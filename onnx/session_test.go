package onnx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPNConfigDefaults(t *testing.T) {
	cfg := RPNConfig{ModelPath: "model.onnx"}
	cfg.applyDefaults()

	assert.Equal(t, "image", cfg.InputName)
	assert.Equal(t, "rpn_cls_prob", cfg.ScoreOutput)
	assert.Equal(t, "rpn_bbox_pred", cfg.DeltaOutput)

	custom := RPNConfig{ModelPath: "model.onnx", InputName: "data", ScoreOutput: "s", DeltaOutput: "d"}
	custom.applyDefaults()
	assert.Equal(t, "data", custom.InputName)
	assert.Equal(t, "s", custom.ScoreOutput)
	assert.Equal(t, "d", custom.DeltaOutput)
}

func TestHeadConfigDefaults(t *testing.T) {
	cfg := HeadConfig{ModelPath: "model.onnx"}
	cfg.applyDefaults()

	assert.Equal(t, "image", cfg.InputName)
	assert.Equal(t, "rois", cfg.ROIName)
	assert.Equal(t, "cls_prob", cfg.ScoreOutput)
	assert.Equal(t, "bbox_regr", cfg.DeltaOutput)
}

func TestSessionConfigDefaultBuildsNoOptions(t *testing.T) {
	opts, err := SessionConfig{}.build()
	require.NoError(t, err)
	assert.Nil(t, opts, "the zero value keeps runtime defaults")

	opts, err = SessionConfig{Provider: CPUProvider}.build()
	require.NoError(t, err)
	assert.Nil(t, opts)
}

func TestNewSessionMissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.onnx")

	_, err := NewRPNSession(RPNConfig{ModelPath: missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpn model file")

	_, err = NewHeadSession(HeadConfig{ModelPath: missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "head model file")
}
