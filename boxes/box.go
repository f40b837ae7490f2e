// Package boxes - Bounding box geometry for the proposal pipeline.
package boxes

import "fmt"

// Box is an axis-aligned bounding box in corner form.
//
// Coordinates are real-valued pixels in image space with X2 >= X1 and
// Y2 >= Y1 for well-formed boxes. Degenerate boxes (zero or negative area)
// are representable but must be filtered with Valid before use as regression
// references.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// CenterForm is the (center, size) representation of a box.
type CenterForm struct {
	CX, CY, W, H float32
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box.
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns the area of the box, or 0 for degenerate boxes.
func (b Box) Area() float32 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether the box has positive area.
func (b Box) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Clip constrains the box to the image region [0,width] x [0,height].
//
// The result may be degenerate when the box lies entirely outside the
// image; callers filter with Valid.
func (b Box) Clip(width, height float32) Box {
	return Box{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
}

// Center converts the box to center form.
//
// Width and height are floored at 1 pixel so that the log-space delta
// encoding never sees a degenerate size. Round-trips with Corners are exact
// within float32 tolerance for boxes at least 1 pixel wide and tall.
func (b Box) Center() CenterForm {
	w := b.Width()
	h := b.Height()
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return CenterForm{
		CX: b.X1 + 0.5*w,
		CY: b.Y1 + 0.5*h,
		W:  w,
		H:  h,
	}
}

// Corners converts a center-form box back to corner form.
func (c CenterForm) Corners() Box {
	return Box{
		X1: c.CX - 0.5*c.W,
		Y1: c.CY - 0.5*c.H,
		X2: c.CX + 0.5*c.W,
		Y2: c.CY + 0.5*c.H,
	}
}

func (b Box) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", b.X1, b.Y1, b.X2, b.Y2)
}

// IoU calculates the Intersection over Union between two boxes.
//
// The result is in [0, 1]: 1 for identical well-formed boxes, 0 when the
// boxes share no area. Zero-area boxes always yield 0, and the function is
// symmetric in its arguments.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - The IoU value between 0 and 1.
func IoU(a, b Box) float32 {
	// The intersection corner coordinates are the max of the starts and the
	// min of the ends.
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	// Inclusion-exclusion: union = areaA + areaB - intersection.
	areaA := a.Area()
	areaB := b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	return inter / (areaA + areaB - inter)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
