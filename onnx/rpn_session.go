package onnx

import (
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/images"
)

// RPNConfig configures a proposal-network session.
type RPNConfig struct {
	// ModelPath is the exported backbone + RPN head ONNX model.
	ModelPath string
	// InputName is the image input; defaults to "image".
	InputName string
	// ScoreOutput and DeltaOutput are the (1,2K,H,W) objectness and
	// (1,4K,H,W) regression outputs; default "rpn_cls_prob" and
	// "rpn_bbox_pred".
	ScoreOutput string
	DeltaOutput string
	// Session tunes the execution provider and threading.
	Session SessionConfig
}

func (c *RPNConfig) applyDefaults() {
	if c.InputName == "" {
		c.InputName = "image"
	}
	if c.ScoreOutput == "" {
		c.ScoreOutput = "rpn_cls_prob"
	}
	if c.DeltaOutput == "" {
		c.DeltaOutput = "rpn_bbox_pred"
	}
}

// RPNSession runs the backbone and proposal-network head of an exported
// detector, producing the score and delta maps the proposal layer consumes.
type RPNSession struct {
	cfg     RPNConfig
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewRPNSession loads the model and prepares a session. The runtime
// environment must be initialized first.
func NewRPNSession(cfg RPNConfig) (*RPNSession, error) {
	cfg.applyDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "rpn model file %s", cfg.ModelPath)
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
		[]string{cfg.InputName},
		[]string{cfg.ScoreOutput, cfg.DeltaOutput},
		opts,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "creating rpn session for %s", cfg.ModelPath)
	}

	log.Printf("rpn session ready: %s", cfg.ModelPath)
	return &RPNSession{cfg: cfg, session: session}, nil
}

// Run feeds a prepared image through the network.
//
// Returns:
//   - The (2K,H,W) score map and (4K,H,W) delta map, batch dim stripped.
func (s *RPNSession) Run(input *images.Input) (scores, deltas *tensor.Dense, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(input.Height), int64(input.Width)),
		input.Data,
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating image tensor")
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, nil, errors.Wrap(err, "running rpn session")
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	scores, err = denseFromOutput(outputs[0], s.cfg.ScoreOutput)
	if err != nil {
		return nil, nil, err
	}
	deltas, err = denseFromOutput(outputs[1], s.cfg.DeltaOutput)
	if err != nil {
		return nil, nil, err
	}
	return scores, deltas, nil
}

// Close releases the session.
func (s *RPNSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	log.Printf("rpn session closed: %s", s.cfg.ModelPath)
	return err
}

// denseFromOutput copies an ONNX output into a *tensor.Dense, dropping a
// leading batch dimension of 1 when present.
func denseFromOutput(value ort.Value, name string) (*tensor.Dense, error) {
	t, ok := value.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("output %s is not a float32 tensor", name)
	}

	shape := t.GetShape()
	dims := make([]int, 0, len(shape))
	for i, d := range shape {
		if i == 0 && d == 1 && len(shape) > 1 {
			continue
		}
		dims = append(dims, int(d))
	}

	data := append([]float32(nil), t.GetData()...)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}
