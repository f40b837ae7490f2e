package layers

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/rpn"
)

// AnchorTargetLayer produces training targets for the region proposal
// network's objectness and regression heads.
//
// Inputs:
//   - 0: score map (2K,H,W), used only for its spatial geometry.
//   - 1: ground truth table (N,5) rows (x1,y1,x2,y2,class); rows with
//     class <= 0 are padding and are dropped.
//
// Outputs:
//   - 0: labels (K,H,W), values {-1,0,1}.
//   - 1: regression targets (4K,H,W).
//   - 2: inside weights (4K,H,W), 1 on foreground rows.
type AnchorTargetLayer struct {
	gen      anchors.Generator
	cache    *anchors.Cache
	assigner *rpn.AnchorTargetAssigner

	imageWidth  float32
	imageHeight float32
}

// NewAnchorTargetLayer builds the layer for one image geometry. The seed
// fixes the assigner's subsampling for reproducible batches.
func NewAnchorTargetLayer(
	gen anchors.Generator,
	cfg rpn.AnchorTargetConfig,
	imageWidth, imageHeight float32,
	seed int64,
) *AnchorTargetLayer {
	return &AnchorTargetLayer{
		gen:         gen,
		cache:       anchors.NewCache(gen),
		assigner:    rpn.NewAnchorTargetAssigner(cfg, seed),
		imageWidth:  imageWidth,
		imageHeight: imageHeight,
	}
}

// Forward assigns anchor targets and reshapes them into channel maps.
func (l *AnchorTargetLayer) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("anchor target layer wants 2 inputs, got %d", len(inputs))
	}

	k := l.gen.NumTemplates()
	h, w, err := mapGeometry(inputs[0], 2*k)
	if err != nil {
		return nil, errors.Wrap(err, "score map")
	}
	gt, err := groundTruthRows(inputs[1])
	if err != nil {
		return nil, errors.Wrap(err, "ground truth table")
	}

	anchorSet := l.cache.Get(h, w)
	targets := l.assigner.Assign(anchorSet, gt, l.imageWidth, l.imageHeight)

	labels := make([]float32, k*h*w)
	deltas := make([]float32, 4*k*h*w)
	weights := make([]float32, 4*k*h*w)

	plane := h * w
	for i, label := range targets.Labels {
		kk := i % k
		pos := i / k // row*w + col
		labels[kk*plane+pos] = float32(label)

		d := targets.Targets[i]
		for c, v := range [4]float32{d.DX, d.DY, d.DW, d.DH} {
			deltas[(4*kk+c)*plane+pos] = v
			weights[(4*kk+c)*plane+pos] = targets.InsideWeights[4*i+c]
		}
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(k, h, w), tensor.WithBacking(labels)),
		tensor.New(tensor.WithShape(4*k, h, w), tensor.WithBacking(deltas)),
		tensor.New(tensor.WithShape(4*k, h, w), tensor.WithBacking(weights)),
	}, nil
}

// mapGeometry validates a (C,H,W) map's channel count and returns its
// spatial dims.
func mapGeometry(m *tensor.Dense, wantChannels int) (h, w int, err error) {
	shape := m.Shape()
	if len(shape) != 3 {
		return 0, 0, errors.Errorf("want a (C,H,W) map, got shape %v", shape)
	}
	if shape[0] != wantChannels {
		return 0, 0, errors.Errorf("want %d channels, got %d", wantChannels, shape[0])
	}
	return shape[1], shape[2], nil
}

// groundTruthRows parses an (N,5) table, dropping class <= 0 padding rows.
func groundTruthRows(table *tensor.Dense) ([]rpn.GroundTruth, error) {
	shape := table.Shape()
	if len(shape) != 2 || shape[1] != 5 {
		return nil, errors.Errorf("want an (N,5) table, got shape %v", shape)
	}
	data := table.Float32s()

	gt := make([]rpn.GroundTruth, 0, shape[0])
	for i := 0; i < shape[0]; i++ {
		row := data[i*5 : i*5+5]
		class := int(row[4])
		if class <= 0 {
			continue
		}
		gt = append(gt, rpn.GroundTruth{
			Box:   boxes.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]},
			Class: class,
		})
	}
	return gt, nil
}
