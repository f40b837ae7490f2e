package layers

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// IgnoreLabel filters ignored rows out of a classification batch before the
// loss. Rows whose label equals Ignore have their prediction columns zeroed
// and their label clamped to 0; a per-row mask tells the loss which rows to
// count.
type IgnoreLabel struct {
	Ignore float32
}

// Forward masks ignored rows.
//
// Inputs:
//   - 0: predictions (N,C).
//   - 1: labels (N,).
//
// Outputs:
//   - 0: predictions with ignored rows zeroed.
//   - 1: labels with ignored entries clamped to 0.
//   - 2: mask (N,), 1 on counted rows, 0 on ignored rows. Consumers weight
//     the per-row loss by this mask.
func (l IgnoreLabel) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("ignore label wants 2 inputs, got %d", len(inputs))
	}

	shape := inputs[0].Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("want (N,C) predictions, got shape %v", shape)
	}
	n, c := shape[0], shape[1]
	labels := inputs[1].Float32s()
	if len(labels) != n {
		return nil, errors.Errorf("%d labels for %d prediction rows", len(labels), n)
	}
	pred := inputs[0].Float32s()

	outPred := append([]float32(nil), pred...)
	outLabels := append([]float32(nil), labels...)
	mask := make([]float32, n)

	for i := 0; i < n; i++ {
		if labels[i] == l.Ignore {
			for j := 0; j < c; j++ {
				outPred[i*c+j] = 0
			}
			outLabels[i] = 0
			continue
		}
		mask[i] = 1
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(n, c), tensor.WithBacking(outPred)),
		tensor.New(tensor.WithShape(n), tensor.WithBacking(outLabels)),
		tensor.New(tensor.WithShape(n), tensor.WithBacking(mask)),
	}, nil
}
