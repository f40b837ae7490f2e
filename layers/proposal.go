package layers

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/rpn"
)

// ProposalLayer decodes the proposal network's raw outputs into a fixed-size
// set of region proposals.
//
// Inputs:
//   - 0: score map (2K,H,W); the foreground half occupies channels [K,2K).
//   - 1: delta map (4K,H,W).
//
// Outputs:
//   - 0: proposals (N,4) rows (x1,y1,x2,y2), N = PostNMSTopN, zero-padded.
//   - 1: proposal scores (N,), zero on padding rows.
type ProposalLayer struct {
	gen   anchors.Generator
	cache *anchors.Cache
	cfg   rpn.ProposalConfig

	imageWidth  float32
	imageHeight float32
}

// NewProposalLayer builds the layer for one image geometry.
func NewProposalLayer(
	gen anchors.Generator,
	cfg rpn.ProposalConfig,
	imageWidth, imageHeight float32,
) *ProposalLayer {
	return &ProposalLayer{
		gen:         gen,
		cache:       anchors.NewCache(gen),
		cfg:         cfg,
		imageWidth:  imageWidth,
		imageHeight: imageHeight,
	}
}

// Forward unpacks the channel maps into per-anchor rows and runs proposal
// decoding and suppression.
func (l *ProposalLayer) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("proposal layer wants 2 inputs, got %d", len(inputs))
	}

	k := l.gen.NumTemplates()
	h, w, err := mapGeometry(inputs[0], 2*k)
	if err != nil {
		return nil, errors.Wrap(err, "score map")
	}
	if _, _, err := mapGeometry(inputs[1], 4*k); err != nil {
		return nil, errors.Wrap(err, "delta map")
	}
	if dh, dw := inputs[1].Shape()[1], inputs[1].Shape()[2]; dh != h || dw != w {
		return nil, errors.Errorf("delta map is %dx%d, score map is %dx%d", dh, dw, h, w)
	}

	scoreData := inputs[0].Float32s()
	deltaData := inputs[1].Float32s()
	anchorSet := l.cache.Get(h, w)

	plane := h * w
	scores := make([]float32, len(anchorSet))
	deltas := make([]boxes.Delta, len(anchorSet))
	for i := range anchorSet {
		kk := i % k
		pos := i / k
		scores[i] = scoreData[(k+kk)*plane+pos]
		deltas[i] = boxes.Delta{
			DX: deltaData[(4*kk+0)*plane+pos],
			DY: deltaData[(4*kk+1)*plane+pos],
			DW: deltaData[(4*kk+2)*plane+pos],
			DH: deltaData[(4*kk+3)*plane+pos],
		}
	}

	proposals := rpn.Propose(anchorSet, scores, deltas, l.imageWidth, l.imageHeight, l.cfg)

	n := len(proposals)
	roiData := make([]float32, n*4)
	scoreOut := make([]float32, n)
	for i, p := range proposals {
		roiData[i*4+0] = p.Box.X1
		roiData[i*4+1] = p.Box.Y1
		roiData[i*4+2] = p.Box.X2
		roiData[i*4+3] = p.Box.Y2
		scoreOut[i] = p.Score
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(n, 4), tensor.WithBacking(roiData)),
		tensor.New(tensor.WithShape(n), tensor.WithBacking(scoreOut)),
	}, nil
}
