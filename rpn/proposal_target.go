package rpn

import "github.com/nvr-ai/go-frcnn/boxes"

// ProposalTargetConfig controls how proposals are sampled into a
// class-balanced training batch for the detection head.
type ProposalTargetConfig struct {
	// NumROIs is the fixed output batch size.
	NumROIs int
	// FgFraction caps the foreground share of the batch.
	FgFraction float32
	// FgThreshold is the IoU at or above which a candidate takes the class
	// of its best-matching ground truth.
	FgThreshold float32
	// BgThresholdLo and BgThresholdHi bound the half-open IoU interval
	// [lo, hi) labeled background. Candidates outside both ranges are
	// dropped from consideration.
	BgThresholdLo float32
	BgThresholdHi float32
	// NumClasses is the class count including background, sizing the
	// per-class regression target columns.
	NumClasses int
}

// DefaultProposalTargetConfig returns the standard detection-head sampling
// policy: 128 ROIs with at most a quarter foreground, fg at IoU >= 0.5,
// bg in [0, 0.5).
func DefaultProposalTargetConfig(numClasses int) ProposalTargetConfig {
	return ProposalTargetConfig{
		NumROIs:       128,
		FgFraction:    0.25,
		FgThreshold:   0.5,
		BgThresholdLo: 0.0,
		BgThresholdHi: 0.5,
		NumClasses:    numClasses,
	}
}

// ProposalTargets is a fixed-size training batch for the detection head.
//
// Targets and InsideWeights have 4*NumClasses columns per ROI; foreground
// rows carry their encoded delta (and weight 1) only in the 4 columns of
// the assigned class, supporting class-specific regression heads.
type ProposalTargets struct {
	ROIs          []boxes.Box
	Labels        []int
	Targets       []float32
	InsideWeights []float32
}

// NumForeground counts ROIs with a positive class label.
func (t ProposalTargets) NumForeground() int {
	n := 0
	for _, l := range t.Labels {
		if l > 0 {
			n++
		}
	}
	return n
}

// ProposalTargetAssigner samples proposals into class-balanced detection
// batches.
type ProposalTargetAssigner struct {
	cfg     ProposalTargetConfig
	sampler *Sampler
}

// NewProposalTargetAssigner creates an assigner with an explicitly seeded
// sampler for reproducible batches.
func NewProposalTargetAssigner(cfg ProposalTargetConfig, seed int64) *ProposalTargetAssigner {
	return &ProposalTargetAssigner{cfg: cfg, sampler: NewSampler(seed)}
}

// Assign builds a fixed-size batch of (roi, label, regression target,
// inside weight) rows from proposals and ground truth.
//
// Ground truth boxes join the candidate pool so every object is guaranteed
// positive coverage. Candidates are labeled by best IoU against ground
// truth, sampled to the fixed batch size under the foreground cap, and the
// batch is padded by resampling with replacement when too few candidates
// exist, so the output shape is always constant. Padding rows are always
// labeled background, so the foreground count never exceeds the cap. With
// zero ground truth every sampled ROI is background with zero targets and
// weights.
//
// Arguments:
//   - proposals: Candidate boxes, typically the NMS output. Zero-padding
//     rows (degenerate boxes) are skipped.
//   - gt: Ground truth boxes for the image.
//
// Returns:
//   - A batch of exactly cfg.NumROIs rows.
func (p *ProposalTargetAssigner) Assign(proposals []boxes.Box, gt []GroundTruth) ProposalTargets {
	cols := 4 * p.cfg.NumClasses
	out := ProposalTargets{
		ROIs:          make([]boxes.Box, p.cfg.NumROIs),
		Labels:        make([]int, p.cfg.NumROIs),
		Targets:       make([]float32, p.cfg.NumROIs*cols),
		InsideWeights: make([]float32, p.cfg.NumROIs*cols),
	}

	// Pool: valid proposals plus every ground truth box.
	pool := make([]boxes.Box, 0, len(proposals)+len(gt))
	for _, b := range proposals {
		if b.Valid() {
			pool = append(pool, b)
		}
	}
	for _, g := range gt {
		pool = append(pool, g.Box)
	}
	if len(pool) == 0 {
		return out
	}

	maxIoU := make([]float32, len(pool))
	argmax := make([]int, len(pool))
	for i, b := range pool {
		argmax[i] = -1
		for g := range gt {
			if iou := boxes.IoU(b, gt[g].Box); iou > maxIoU[i] {
				maxIoU[i] = iou
				argmax[i] = g
			}
		}
	}

	var fg, bg []int
	for i := range pool {
		switch {
		case len(gt) > 0 && maxIoU[i] >= p.cfg.FgThreshold:
			fg = append(fg, i)
		case maxIoU[i] >= p.cfg.BgThresholdLo && maxIoU[i] < p.cfg.BgThresholdHi:
			bg = append(bg, i)
		}
	}

	fgCap := int(p.cfg.FgFraction * float32(p.cfg.NumROIs))
	fgKeep := p.sampler.Subsample(fg, fgCap)
	bgKeep := p.sampler.Subsample(bg, p.cfg.NumROIs-len(fgKeep))

	// Only the rows drawn from fgKeep carry a class label and regression
	// target; everything else in the batch, including every backfilled
	// duplicate, is background. This keeps the foreground count at or below
	// the cap no matter how the pool is composed.
	selected := make([]int, 0, p.cfg.NumROIs)
	foreground := make([]bool, 0, p.cfg.NumROIs)
	for _, i := range fgKeep {
		selected = append(selected, i)
		foreground = append(foreground, true)
	}
	for _, i := range bgKeep {
		selected = append(selected, i)
		foreground = append(foreground, false)
	}

	// Too few candidates: backfill by resampling with replacement so the
	// output shape stays fixed. Background rows are preferred as filler;
	// when none exist the foreground rows (or, failing that, the whole
	// pool) supply boxes, but the duplicates are still labeled background.
	if len(selected) < p.cfg.NumROIs {
		source := bgKeep
		if len(source) == 0 {
			source = fgKeep
		}
		if len(source) == 0 {
			source = make([]int, len(pool))
			for i := range pool {
				source[i] = i
			}
		}
		for _, i := range p.sampler.Choice(source, p.cfg.NumROIs-len(selected)) {
			selected = append(selected, i)
			foreground = append(foreground, false)
		}
	}

	for row, i := range selected {
		out.ROIs[row] = pool[i]
		if !foreground[row] || argmax[i] < 0 {
			continue
		}
		matched := gt[argmax[i]]
		out.Labels[row] = matched.Class

		delta := boxes.EncodeDelta(pool[i], matched.Box)
		base := row*cols + 4*matched.Class
		out.Targets[base+0] = delta.DX
		out.Targets[base+1] = delta.DY
		out.Targets[base+2] = delta.DW
		out.Targets[base+3] = delta.DH
		for c := 0; c < 4; c++ {
			out.InsideWeights[base+c] = 1
		}
	}
	return out
}
