package boxes

import "github.com/chewxy/math32"

// Delta encodes a box relative to a reference box: scale-normalized center
// offsets and log-space width/height ratios.
type Delta struct {
	DX, DY, DW, DH float32
}

// EncodeDelta computes the regression delta that maps the anchor onto the
// target box.
//
// The encoding follows the standard R-CNN parameterization:
//
//	dx = (gt.cx - anchor.cx) / anchor.w
//	dy = (gt.cy - anchor.cy) / anchor.h
//	dw = log(gt.w / anchor.w)
//	dh = log(gt.h / anchor.h)
//
// Both boxes are floored at 1 pixel per side (see Box.Center), so the log
// terms are always finite.
//
// Arguments:
//   - anchor: The reference box.
//   - gt: The target box.
//
// Returns:
//   - The delta such that DecodeDelta(anchor, delta) reproduces gt.
func EncodeDelta(anchor, gt Box) Delta {
	a := anchor.Center()
	g := gt.Center()
	return Delta{
		DX: (g.CX - a.CX) / a.W,
		DY: (g.CY - a.CY) / a.H,
		DW: math32.Log(g.W / a.W),
		DH: math32.Log(g.H / a.H),
	}
}

// DecodeDelta applies a regression delta to a reference box, inverting
// EncodeDelta.
//
// The decoded width and height are clipped to be non-negative. Coordinate
// clipping to image bounds is the caller's concern (see Box.Clip), since
// some call sites want unclipped boxes.
//
// Arguments:
//   - anchor: The reference box.
//   - d: The regression delta.
//
// Returns:
//   - The absolute-coordinate box described by the delta.
func DecodeDelta(anchor Box, d Delta) Box {
	a := anchor.Center()
	w := math32.Exp(d.DW) * a.W
	h := math32.Exp(d.DH) * a.H
	if w < 0 || math32.IsNaN(w) {
		w = 0
	}
	if h < 0 || math32.IsNaN(h) {
		h = 0
	}
	return CenterForm{
		CX: d.DX*a.W + a.CX,
		CY: d.DY*a.H + a.CY,
		W:  w,
		H:  h,
	}.Corners()
}
