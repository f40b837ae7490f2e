// Package config holds the immutable run configuration: dataset, backbone
// and image geometry. A Config is built once at startup and passed by
// reference; nothing mutates it afterwards.
package config

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-frcnn/rpn"
)

// Dataset identifies a known training/evaluation dataset.
type Dataset string

// BaseModel identifies a known backbone network.
type BaseModel string

const (
	Grocery Dataset = "Grocery"
	Pascal  Dataset = "Pascal"

	AlexNet BaseModel = "AlexNet"
	VGG16   BaseModel = "VGG16"
)

var groceryClasses = []string{
	"__background__", "avocado", "orange", "butter", "champagne", "eggBox",
	"gerkin", "joghurt", "ketchup", "orangeJuice", "onion", "pepper",
	"tomato", "water", "milk", "tabasco", "mustard",
}

var pascalClasses = []string{
	"__background__", "aeroplane", "bicycle", "bird", "boat", "bottle",
	"bus", "car", "cat", "chair", "cow", "diningtable", "dog", "horse",
	"motorbike", "person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
}

// Config is the resolved run configuration.
type Config struct {
	Dataset   Dataset
	BaseModel BaseModel

	// Classes includes __background__ at index 0.
	Classes []string

	// ImageWidth and ImageHeight are the padded network input dims.
	ImageWidth  int
	ImageHeight int

	// FeatureStride maps feature-map cells to input pixels.
	FeatureStride int
	// ROIPoolDim is the spatial output size of ROI pooling for the backbone.
	ROIPoolDim int
	// InputROIs is the per-image ground truth table capacity.
	InputROIs int

	// PadValue fills the borders left by aspect-preserving resize.
	PadValue uint8
}

// Option overrides a Config default.
type Option func(*Config)

// WithImageSize overrides the network input dimensions.
func WithImageSize(width, height int) Option {
	return func(c *Config) {
		c.ImageWidth = width
		c.ImageHeight = height
	}
}

// WithInputROIs overrides the ground truth table capacity.
func WithInputROIs(n int) Option {
	return func(c *Config) { c.InputROIs = n }
}

// New resolves a dataset and base model into a full configuration. Unknown
// identifiers are fatal: the returned error names the offending value and
// the caller is expected to abort.
func New(dataset Dataset, baseModel BaseModel, opts ...Option) (*Config, error) {
	cfg := &Config{
		Dataset:       dataset,
		BaseModel:     baseModel,
		ImageWidth:    1000,
		ImageHeight:   1000,
		FeatureStride: 16,
		PadValue:      114,
	}

	switch dataset {
	case Grocery:
		cfg.Classes = groceryClasses
		cfg.InputROIs = 50
	case Pascal:
		cfg.Classes = pascalClasses
		cfg.InputROIs = 200
	default:
		return nil, errors.Errorf("unknown dataset %q (want %q or %q)", dataset, Grocery, Pascal)
	}

	switch baseModel {
	case AlexNet:
		cfg.ROIPoolDim = 6
	case VGG16:
		cfg.ROIPoolDim = 7
	default:
		return nil, errors.Errorf("unknown base model %q (want %q or %q)", baseModel, AlexNet, VGG16)
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// NumClasses returns the class count including background.
func (c *Config) NumClasses() int {
	return len(c.Classes)
}

// ProposalTargetConfig returns the detection-head sampling policy sized to
// this configuration's class list.
func (c *Config) ProposalTargetConfig() rpn.ProposalTargetConfig {
	return rpn.DefaultProposalTargetConfig(c.NumClasses())
}
