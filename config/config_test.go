package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnownConfigurations(t *testing.T) {
	tests := []struct {
		name       string
		dataset    Dataset
		baseModel  BaseModel
		numClasses int
		roiPoolDim int
		inputROIs  int
	}{
		{"grocery on alexnet", Grocery, AlexNet, 17, 6, 50},
		{"grocery on vgg16", Grocery, VGG16, 17, 7, 50},
		{"pascal on alexnet", Pascal, AlexNet, 21, 6, 200},
		{"pascal on vgg16", Pascal, VGG16, 21, 7, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New(tt.dataset, tt.baseModel)
			require.NoError(t, err)

			assert.Equal(t, tt.numClasses, cfg.NumClasses())
			assert.Equal(t, "__background__", cfg.Classes[0])
			assert.Equal(t, tt.roiPoolDim, cfg.ROIPoolDim)
			assert.Equal(t, tt.inputROIs, cfg.InputROIs)
			assert.Equal(t, 16, cfg.FeatureStride)
			assert.Equal(t, 1000, cfg.ImageWidth)
			assert.Equal(t, 1000, cfg.ImageHeight)
		})
	}
}

func TestNewUnknownIdentifiers(t *testing.T) {
	_, err := New("COCO", AlexNet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COCO")

	_, err = New(Grocery, "ResNet50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResNet50")
}

func TestNewOptions(t *testing.T) {
	cfg, err := New(Grocery, AlexNet, WithImageSize(850, 850), WithInputROIs(100))
	require.NoError(t, err)

	assert.Equal(t, 850, cfg.ImageWidth)
	assert.Equal(t, 850, cfg.ImageHeight)
	assert.Equal(t, 100, cfg.InputROIs)
}

func TestProposalTargetConfigSizing(t *testing.T) {
	cfg, err := New(Pascal, VGG16)
	require.NoError(t, err)

	pt := cfg.ProposalTargetConfig()
	assert.Equal(t, 21, pt.NumClasses)
	assert.Equal(t, 128, pt.NumROIs)
}
