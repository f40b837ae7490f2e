// Package anchors - Reference box generation for the region proposal network.
package anchors

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-frcnn/boxes"
)

// Generator produces the fixed set of reference boxes tiled across a
// feature-map grid.
//
// A canonical template of len(Scales) x len(Ratios) boxes is built once,
// centered at the origin, and translated to every grid cell center at
// stride*(col+0.5), stride*(row+0.5). Generation is a pure function of the
// configuration and grid size: identical inputs always yield identical
// ordered sequences, which downstream index correspondence depends on.
type Generator struct {
	// BaseSize is the side length in input pixels of the unit anchor before
	// scale and aspect-ratio enumeration.
	BaseSize int
	// Stride maps feature-map cells to input-image pixels.
	Stride int
	// Scales are the multipliers applied to BaseSize.
	Scales []float32
	// Ratios are the height/width aspect ratios enumerated per scale.
	Ratios []float32
}

// DefaultGenerator returns the standard 3-scale x 3-ratio configuration
// used by the RPN, yielding 9 anchors per grid cell.
//
// Arguments:
//   - stride: Feature-map cell size in input pixels.
//
// Returns:
//   - A Generator with base size 16, scales {8, 16, 32} and ratios
//     {0.5, 1, 2}.
func DefaultGenerator(stride int) Generator {
	return Generator{
		BaseSize: 16,
		Stride:   stride,
		Scales:   []float32{8, 16, 32},
		Ratios:   []float32{0.5, 1, 2},
	}
}

// NumTemplates returns the number of anchors generated per grid cell.
func (g Generator) NumTemplates() int {
	return len(g.Scales) * len(g.Ratios)
}

// Template returns the canonical anchor set centered at the origin.
//
// For each (scale, ratio) pair the box area is (BaseSize*scale)^2 and the
// ratio is preserved as height/width:
//
//	w = BaseSize * scale / sqrt(ratio)
//	h = BaseSize * scale * sqrt(ratio)
//
// Ordering is scale-major so that template index k = si*len(Ratios) + ri.
func (g Generator) Template() []boxes.Box {
	template := make([]boxes.Box, 0, g.NumTemplates())
	for _, scale := range g.Scales {
		side := float32(g.BaseSize) * scale
		for _, ratio := range g.Ratios {
			sq := math32.Sqrt(ratio)
			w := side / sq
			h := side * sq
			template = append(template, boxes.CenterForm{CX: 0, CY: 0, W: w, H: h}.Corners())
		}
	}
	return template
}

// Grid tiles the canonical template across a height x width feature map.
//
// Anchor i corresponds to grid cell (i / K) in row-major order and template
// (i % K), where K = NumTemplates. This matches the flattened layout of the
// network's score and delta maps so that anchor i lines up with prediction
// channel group i.
//
// Arguments:
//   - height: Feature-map height in cells.
//   - width: Feature-map width in cells.
//
// Returns:
//   - The ordered sequence of height*width*K boxes in input-image
//     coordinates.
func (g Generator) Grid(height, width int) []boxes.Box {
	template := g.Template()
	k := len(template)
	out := make([]boxes.Box, 0, height*width*k)

	stride := float32(g.Stride)
	for row := 0; row < height; row++ {
		cy := stride * (float32(row) + 0.5)
		for col := 0; col < width; col++ {
			cx := stride * (float32(col) + 0.5)
			for _, t := range template {
				out = append(out, boxes.Box{
					X1: t.X1 + cx,
					Y1: t.Y1 + cy,
					X2: t.X2 + cx,
					Y2: t.Y2 + cy,
				})
			}
		}
	}
	return out
}

// Cache memoizes generated anchor sets per feature-map geometry.
//
// Anchor sets are immutable once generated: the cache writes an entry once
// per distinct (height, width) and thereafter serves the same read-only
// slice, so a fully initialized entry is safe to share across goroutines.
type Cache struct {
	gen Generator

	mu   sync.RWMutex
	sets map[[2]int][]boxes.Box
}

// NewCache creates an anchor cache over the given generator.
func NewCache(gen Generator) *Cache {
	return &Cache{
		gen:  gen,
		sets: make(map[[2]int][]boxes.Box),
	}
}

// Generator returns the generator backing the cache.
func (c *Cache) Generator() Generator {
	return c.gen
}

// Get returns the anchor set for a feature-map geometry, generating and
// caching it on first use. Callers must treat the returned slice as
// read-only.
func (c *Cache) Get(height, width int) []boxes.Box {
	key := [2]int{height, width}

	c.mu.RLock()
	set, ok := c.sets[key]
	c.mu.RUnlock()
	if ok {
		return set
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok = c.sets[key]; ok {
		return set
	}
	set = c.gen.Grid(height, width)
	c.sets[key] = set
	return set
}
