// Package rpn - Region proposal generation and training target assignment
// for a two-stage detector.
package rpn

import "github.com/nvr-ai/go-frcnn/boxes"

// Label values shared by the anchor and proposal target assigners.
const (
	// LabelIgnore marks entries excluded from loss computation entirely.
	LabelIgnore = -1
	// LabelBackground is the background class; class 0 is reserved for it
	// and never used by ground truth.
	LabelBackground = 0
)

// GroundTruth is an annotated object box: corner-form coordinates plus a
// positive integer class label.
type GroundTruth struct {
	Box   boxes.Box
	Class int
}
