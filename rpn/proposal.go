package rpn

import (
	"sort"

	"github.com/nvr-ai/go-frcnn/boxes"
)

// ProposalConfig controls proposal decoding and suppression.
type ProposalConfig struct {
	// PreNMSTopN bounds the number of ranked candidates entering NMS.
	PreNMSTopN int
	// PostNMSTopN is the fixed output size; short results are zero-padded.
	PostNMSTopN int
	// NMSThreshold is the IoU above which overlapping proposals are
	// suppressed.
	NMSThreshold float32
	// MinSize drops decoded boxes narrower or shorter than this many input
	// pixels, after scaling by Scale.
	MinSize float32
	// Scale is the image resize factor applied to MinSize, so the minimum
	// is expressed in original-image pixels.
	Scale float32
}

// DefaultProposalConfig returns the training-time policy: 6000 candidates
// into NMS at threshold 0.7, 300 proposals out, 16-pixel minimum size.
func DefaultProposalConfig() ProposalConfig {
	return ProposalConfig{
		PreNMSTopN:   6000,
		PostNMSTopN:  300,
		NMSThreshold: 0.7,
		MinSize:      16,
		Scale:        1,
	}
}

// Proposal is a candidate object region: a decoded box, its foreground
// score, and the index of the anchor it was decoded from.
//
// Proposals are ephemeral; they are produced per forward pass and consumed
// by target assignment or box regression, never persisted.
type Proposal struct {
	Box   boxes.Box
	Score float32
	// Index is the originating anchor index, used as the deterministic
	// tie-break when scores are equal.
	Index int
}

// Propose turns per-anchor foreground scores and regression deltas into a
// ranked, deduplicated, fixed-size set of region proposals.
//
// Every anchor+delta pair is decoded into an absolute box, clipped to the
// image, and dropped if either side falls below the scaled minimum size.
// Survivors are ranked by descending score (anchor index breaks exact ties),
// truncated to the pre-NMS budget, greedily suppressed, and finally padded
// with zero boxes and scores up to PostNMSTopN so downstream tensor shapes
// stay fixed. Callers must treat score == 0 padding rows as non-detections.
//
// Arguments:
//   - anchorSet: The ordered anchor boxes.
//   - scores: Foreground score per anchor, aligned to anchorSet.
//   - deltas: Regression delta per anchor, aligned to anchorSet.
//   - imageWidth: Image width for clipping.
//   - imageHeight: Image height for clipping.
//   - cfg: Decode and suppression policy.
//
// Returns:
//   - Exactly cfg.PostNMSTopN proposals, zero-padded at the tail.
func Propose(
	anchorSet []boxes.Box,
	scores []float32,
	deltas []boxes.Delta,
	imageWidth, imageHeight float32,
	cfg ProposalConfig,
) []Proposal {
	minSize := cfg.MinSize * cfg.Scale

	candidates := make([]Proposal, 0, len(anchorSet))
	for i, anchor := range anchorSet {
		box := boxes.DecodeDelta(anchor, deltas[i]).Clip(imageWidth, imageHeight)
		if box.Width() < minSize || box.Height() < minSize {
			continue
		}
		candidates = append(candidates, Proposal{Box: box, Score: scores[i], Index: i})
	}

	// Candidates are appended in anchor order, so a stable sort on score
	// alone preserves anchor-index order across exact ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if cfg.PreNMSTopN > 0 && len(candidates) > cfg.PreNMSTopN {
		candidates = candidates[:cfg.PreNMSTopN]
	}

	kept := NonMaxSuppress(candidates, cfg.NMSThreshold, cfg.PostNMSTopN)

	// Fixed output shape: pad with zero rows.
	out := make([]Proposal, cfg.PostNMSTopN)
	copy(out, kept)
	return out
}
