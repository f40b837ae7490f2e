package onnx

import (
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/images"
)

// HeadConfig configures a detection-head session.
type HeadConfig struct {
	// ModelPath is the exported ROI-pooling + classifier head ONNX model.
	ModelPath string
	// InputName and ROIName are the image and (N,4) ROI inputs; default
	// "image" and "rois".
	InputName string
	ROIName   string
	// ScoreOutput and DeltaOutput are the (N,C) class scores and (N,4C)
	// per-class regression outputs; default "cls_prob" and "bbox_regr".
	ScoreOutput string
	DeltaOutput string
	// Session tunes the execution provider and threading.
	Session SessionConfig
}

func (c *HeadConfig) applyDefaults() {
	if c.InputName == "" {
		c.InputName = "image"
	}
	if c.ROIName == "" {
		c.ROIName = "rois"
	}
	if c.ScoreOutput == "" {
		c.ScoreOutput = "cls_prob"
	}
	if c.DeltaOutput == "" {
		c.DeltaOutput = "bbox_regr"
	}
}

// HeadSession runs the detection head over an image and its region
// proposals, producing per-ROI class scores and per-class box deltas for
// the inference box regressor.
type HeadSession struct {
	cfg     HeadConfig
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewHeadSession loads the model and prepares a session. The runtime
// environment must be initialized first.
func NewHeadSession(cfg HeadConfig) (*HeadSession, error) {
	cfg.applyDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "head model file %s", cfg.ModelPath)
	}

	opts, err := cfg.Session.build()
	if err != nil {
		return nil, err
	}
	if opts != nil {
		defer opts.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName, cfg.ROIName},
		[]string{cfg.ScoreOutput, cfg.DeltaOutput},
		opts,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "creating head session for %s", cfg.ModelPath)
	}

	log.Printf("head session ready: %s", cfg.ModelPath)
	return &HeadSession{cfg: cfg, session: session}, nil
}

// Run scores the given ROIs against the image.
//
// Returns:
//   - The (N,C) class score table and (N,4C) per-class delta table.
func (s *HeadSession) Run(input *images.Input, rois []boxes.Box) (classScores, classDeltas *tensor.Dense, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imageTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(input.Height), int64(input.Width)),
		input.Data,
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating image tensor")
	}
	defer imageTensor.Destroy()

	roiData := make([]float32, len(rois)*4)
	for i, b := range rois {
		roiData[i*4+0] = b.X1
		roiData[i*4+1] = b.Y1
		roiData[i*4+2] = b.X2
		roiData[i*4+3] = b.Y2
	}
	roiTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(rois)), 4), roiData)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating roi tensor")
	}
	defer roiTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{imageTensor, roiTensor}, outputs); err != nil {
		return nil, nil, errors.Wrap(err, "running head session")
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	classScores, err = denseFromOutput(outputs[0], s.cfg.ScoreOutput)
	if err != nil {
		return nil, nil, err
	}
	classDeltas, err = denseFromOutput(outputs[1], s.cfg.DeltaOutput)
	if err != nil {
		return nil, nil, err
	}
	return classScores, classDeltas, nil
}

// Close releases the session.
func (s *HeadSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	log.Printf("head session closed: %s", s.cfg.ModelPath)
	return err
}
