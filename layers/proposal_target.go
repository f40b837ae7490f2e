package layers

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/rpn"
)

// ProposalTargetLayer samples region proposals into a class-balanced
// training batch for the detection head.
//
// Inputs:
//   - 0: proposals (N,4) rows (x1,y1,x2,y2); zero rows are padding.
//   - 1: ground truth table (M,5) rows (x1,y1,x2,y2,class), class <= 0
//     rows are padding.
//
// Outputs:
//   - 0: sampled ROIs (R,4), R = NumROIs.
//   - 1: class labels (R,).
//   - 2: regression targets (R,4C), the 4 columns of class c at offset 4c.
//   - 3: inside weights (R,4C), 1 on the assigned-class columns of
//     foreground rows.
type ProposalTargetLayer struct {
	cfg      rpn.ProposalTargetConfig
	assigner *rpn.ProposalTargetAssigner
}

// NewProposalTargetLayer builds the layer; the seed fixes batch sampling.
func NewProposalTargetLayer(cfg rpn.ProposalTargetConfig, seed int64) *ProposalTargetLayer {
	return &ProposalTargetLayer{cfg: cfg, assigner: rpn.NewProposalTargetAssigner(cfg, seed)}
}

// Forward samples the fixed-size detection batch.
func (l *ProposalTargetLayer) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("proposal target layer wants 2 inputs, got %d", len(inputs))
	}

	proposals, err := boxRows(inputs[0])
	if err != nil {
		return nil, errors.Wrap(err, "proposals")
	}
	gt, err := groundTruthRows(inputs[1])
	if err != nil {
		return nil, errors.Wrap(err, "ground truth table")
	}

	targets := l.assigner.Assign(proposals, gt)

	r := l.cfg.NumROIs
	cols := 4 * l.cfg.NumClasses

	roiData := make([]float32, r*4)
	labelData := make([]float32, r)
	for i := 0; i < r; i++ {
		roiData[i*4+0] = targets.ROIs[i].X1
		roiData[i*4+1] = targets.ROIs[i].Y1
		roiData[i*4+2] = targets.ROIs[i].X2
		roiData[i*4+3] = targets.ROIs[i].Y2
		labelData[i] = float32(targets.Labels[i])
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(r, 4), tensor.WithBacking(roiData)),
		tensor.New(tensor.WithShape(r), tensor.WithBacking(labelData)),
		tensor.New(tensor.WithShape(r, cols), tensor.WithBacking(targets.Targets)),
		tensor.New(tensor.WithShape(r, cols), tensor.WithBacking(targets.InsideWeights)),
	}, nil
}

// boxRows parses an (N,4) table into boxes.
func boxRows(table *tensor.Dense) ([]boxes.Box, error) {
	shape := table.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return nil, errors.Errorf("want an (N,4) table, got shape %v", shape)
	}
	data := table.Float32s()

	out := make([]boxes.Box, shape[0])
	for i := range out {
		row := data[i*4 : i*4+4]
		out[i] = boxes.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
	}
	return out, nil
}
