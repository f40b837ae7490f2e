package rpn

import "github.com/nvr-ai/go-frcnn/boxes"

// AnchorTargetConfig controls how anchors are labeled against ground truth
// for RPN supervision.
type AnchorTargetConfig struct {
	// FgThreshold is the IoU at or above which an anchor is foreground.
	FgThreshold float32
	// BgThreshold is the IoU below which an anchor is background. Anchors
	// between the two thresholds are ignored.
	BgThreshold float32
	// BatchSize is the target number of sampled (non-ignored) anchors.
	BatchSize int
	// FgFraction caps the foreground share of the sampled batch.
	FgFraction float32
	// AllowedBorder is how far an anchor may extend past the image edge
	// before it is excluded from sampling.
	AllowedBorder float32
}

// DefaultAnchorTargetConfig returns the standard RPN assignment policy:
// fg >= 0.7, bg < 0.3, 256 samples with at most half foreground, and no
// border tolerance.
func DefaultAnchorTargetConfig() AnchorTargetConfig {
	return AnchorTargetConfig{
		FgThreshold:   0.7,
		BgThreshold:   0.3,
		BatchSize:     256,
		FgFraction:    0.5,
		AllowedBorder: 0,
	}
}

// AnchorTargets is the per-anchor supervision signal, aligned to the anchor
// set: label, regression delta to the matched ground truth, and the 4-column
// inside-weight mask that zeroes regression loss for non-foreground rows.
type AnchorTargets struct {
	// Labels holds -1 (ignore), 0 (background) or 1 (foreground) per anchor.
	Labels []int
	// Targets holds the encoded delta to the best-matching ground truth;
	// meaningful only where Labels is foreground.
	Targets []boxes.Delta
	// InsideWeights has 4 entries per anchor: 1 on foreground rows, 0
	// elsewhere.
	InsideWeights []float32
}

// NumForeground counts anchors labeled foreground.
func (t AnchorTargets) NumForeground() int {
	n := 0
	for _, l := range t.Labels {
		if l > 0 {
			n++
		}
	}
	return n
}

// NumBackground counts anchors labeled background.
func (t AnchorTargets) NumBackground() int {
	n := 0
	for _, l := range t.Labels {
		if l == LabelBackground {
			n++
		}
	}
	return n
}

// AnchorTargetAssigner labels anchors against per-image ground truth and
// computes their regression targets.
type AnchorTargetAssigner struct {
	cfg     AnchorTargetConfig
	sampler *Sampler
}

// NewAnchorTargetAssigner creates an assigner with an explicitly seeded
// sampler for reproducible subsampling.
func NewAnchorTargetAssigner(cfg AnchorTargetConfig, seed int64) *AnchorTargetAssigner {
	return &AnchorTargetAssigner{cfg: cfg, sampler: NewSampler(seed)}
}

// Assign produces labels, regression targets and inside weights aligned to
// the anchor set.
//
// Anchors extending past the allowed border are ignored outright. Among the
// rest, the per-anchor max IoU against ground truth decides the label, every
// ground truth additionally forces its single best-overlapping anchor to
// foreground, and the batch is then subsampled to the configured size and
// foreground fraction. With zero ground truth boxes all in-image anchors are
// background (subsampled to the batch size) and no forced-positive step runs.
//
// Arguments:
//   - anchorSet: The ordered anchor boxes (read-only).
//   - gt: Ground truth boxes for the image.
//   - imageWidth: Valid image region width in pixels.
//   - imageHeight: Valid image region height in pixels.
//
// Returns:
//   - The per-anchor supervision signal.
func (a *AnchorTargetAssigner) Assign(
	anchorSet []boxes.Box,
	gt []GroundTruth,
	imageWidth, imageHeight float32,
) AnchorTargets {
	n := len(anchorSet)
	targets := AnchorTargets{
		Labels:        make([]int, n),
		Targets:       make([]boxes.Delta, n),
		InsideWeights: make([]float32, 4*n),
	}
	for i := range targets.Labels {
		targets.Labels[i] = LabelIgnore
	}

	// Anchors outside the valid image region never participate.
	inside := make([]int, 0, n)
	border := a.cfg.AllowedBorder
	for i, anchor := range anchorSet {
		if anchor.X1 >= -border && anchor.Y1 >= -border &&
			anchor.X2 <= imageWidth+border && anchor.Y2 <= imageHeight+border {
			inside = append(inside, i)
		}
	}

	if len(gt) == 0 {
		for _, i := range inside {
			targets.Labels[i] = LabelBackground
		}
		a.subsample(&targets)
		return targets
	}

	// Per-anchor best match, and per-ground-truth best anchor for the
	// forced-positive step. Ties resolve to the lowest index for determinism.
	maxIoU := make([]float32, n)
	argmax := make([]int, n)
	gtBest := make([]float32, len(gt))
	gtArgmax := make([]int, len(gt))
	for g := range gt {
		gtArgmax[g] = -1
	}

	for _, i := range inside {
		argmax[i] = -1
		for g := range gt {
			iou := boxes.IoU(anchorSet[i], gt[g].Box)
			if iou > maxIoU[i] {
				maxIoU[i] = iou
				argmax[i] = g
			}
			if iou > gtBest[g] {
				gtBest[g] = iou
				gtArgmax[g] = i
			}
		}
	}

	for _, i := range inside {
		if maxIoU[i] < a.cfg.BgThreshold {
			targets.Labels[i] = LabelBackground
		}
	}

	// Every ground truth gets at least one positive anchor, provided some
	// anchor overlaps it at all.
	for g := range gt {
		if gtArgmax[g] >= 0 && gtBest[g] > 0 {
			i := gtArgmax[g]
			targets.Labels[i] = 1
			if argmax[i] < 0 {
				argmax[i] = g
			}
		}
	}

	for _, i := range inside {
		if maxIoU[i] >= a.cfg.FgThreshold {
			targets.Labels[i] = 1
		}
	}

	a.subsample(&targets)

	for i, label := range targets.Labels {
		if label <= 0 || argmax[i] < 0 {
			continue
		}
		targets.Targets[i] = boxes.EncodeDelta(anchorSet[i], gt[argmax[i]].Box)
		for c := 0; c < 4; c++ {
			targets.InsideWeights[4*i+c] = 1
		}
	}
	return targets
}

// subsample demotes excess foreground, then excess background, to ignore so
// the realized batch respects the size and balance policy.
func (a *AnchorTargetAssigner) subsample(t *AnchorTargets) {
	var fg, bg []int
	for i, l := range t.Labels {
		switch {
		case l > 0:
			fg = append(fg, i)
		case l == LabelBackground:
			bg = append(bg, i)
		}
	}

	maxFg := int(a.cfg.FgFraction * float32(a.cfg.BatchSize))
	if len(fg) > maxFg {
		keep := a.sampler.Subsample(fg, maxFg)
		demote(t.Labels, fg, keep)
		fg = keep
	}

	maxBg := a.cfg.BatchSize - len(fg)
	if maxBg < 0 {
		maxBg = 0
	}
	if len(bg) > maxBg {
		keep := a.sampler.Subsample(bg, maxBg)
		demote(t.Labels, bg, keep)
	}
}

// demote sets every index in all but not in keep to ignore.
func demote(labels []int, all, keep []int) {
	kept := make(map[int]bool, len(keep))
	for _, i := range keep {
		kept[i] = true
	}
	for _, i := range all {
		if !kept[i] {
			labels[i] = LabelIgnore
		}
	}
}
