// Package layers wraps the anchor and proposal algorithms behind a
// forward/backward layer contract at the tensor boundary, so a training
// graph or an inference engine can plug them in between network ops.
//
// All layers operate on *tensor.Dense with float32 backing. Score maps are
// laid out (2K,H,W) with the background half in channels [0,K) and the
// foreground half in [K,2K); delta maps are (4K,H,W) with the 4 components
// of template k in channels [4k,4k+4). Within a channel, position (row,col)
// corresponds to anchor index (row*W+col)*K + k.
package layers

import "gorgonia.org/tensor"

// Layer computes output tensors from input tensors.
type Layer interface {
	Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error)
}

// GradLayer is a Layer that can also propagate gradients, for use inside a
// training graph. Backward receives one gradient per Forward output and
// returns one gradient per Forward input (nil where an input takes no
// gradient, such as labels or ground truth).
type GradLayer interface {
	Layer
	Backward(gradOutputs []*tensor.Dense) ([]*tensor.Dense, error)
}
