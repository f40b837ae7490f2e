package layers

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// SmoothL1Loss is the robust regression loss used on box deltas, with the
// quadratic/linear transition controlled by sigma:
//
//	d = w * (pred - target)
//	loss(d) = 0.5 * sigma^2 * d^2          if |d| < 1/sigma^2
//	          |d| - 0.5/sigma^2            otherwise
//
// summed over all elements. The inside weights gate which elements
// contribute; rows with zero weight produce zero loss and zero gradient.
type SmoothL1Loss struct {
	Sigma float32

	// cached from the last Forward for the backward pass
	diff    []float32
	weights []float32
}

// NewSmoothL1Loss creates the loss with the given sigma (1 gives the
// classic smooth-L1 with the transition at |d| = 1).
func NewSmoothL1Loss(sigma float32) *SmoothL1Loss {
	return &SmoothL1Loss{Sigma: sigma}
}

// Forward computes the summed loss.
//
// Inputs:
//   - 0: predictions.
//   - 1: targets, same shape.
//   - 2: inside weights, same shape.
//
// Outputs:
//   - 0: scalar loss, shape (1,).
func (l *SmoothL1Loss) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if len(inputs) != 3 {
		return nil, errors.Errorf("smooth l1 loss wants 3 inputs, got %d", len(inputs))
	}
	pred := inputs[0].Float32s()
	target := inputs[1].Float32s()
	weights := inputs[2].Float32s()
	if len(target) != len(pred) || len(weights) != len(pred) {
		return nil, errors.Errorf(
			"shape mismatch: %d predictions, %d targets, %d weights",
			len(pred), len(target), len(weights))
	}

	sigma2 := l.Sigma * l.Sigma
	cut := 1 / sigma2

	l.diff = make([]float32, len(pred))
	l.weights = append(l.weights[:0], weights...)

	var sum float32
	for i := range pred {
		d := weights[i] * (pred[i] - target[i])
		l.diff[i] = d
		if abs := math32.Abs(d); abs < cut {
			sum += 0.5 * sigma2 * d * d
		} else {
			sum += abs - 0.5*cut
		}
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{sum})),
	}, nil
}

// Backward propagates the scalar upstream gradient to the predictions.
// Targets and weights take no gradient.
func (l *SmoothL1Loss) Backward(gradOutputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if l.diff == nil {
		return nil, errors.New("backward called before forward")
	}
	if len(gradOutputs) != 1 {
		return nil, errors.Errorf("smooth l1 loss wants 1 output gradient, got %d", len(gradOutputs))
	}
	upstream := gradOutputs[0].Float32s()[0]

	sigma2 := l.Sigma * l.Sigma
	cut := 1 / sigma2

	grad := make([]float32, len(l.diff))
	for i, d := range l.diff {
		var g float32
		if math32.Abs(d) < cut {
			g = sigma2 * d
		} else if d > 0 {
			g = 1
		} else if d < 0 {
			g = -1
		}
		grad[i] = upstream * l.weights[i] * g
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(len(grad)), tensor.WithBacking(grad)),
		nil,
		nil,
	}, nil
}
