// Package images prepares input images for the detection network.
package images

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Input is a network-ready image tensor plus the geometry needed to map
// predictions back to source-image coordinates.
type Input struct {
	// Data is the CHW float32 pixel tensor, RGB channel order, values in
	// [0,255].
	Data []float32
	// Width and Height are the padded tensor dims.
	Width  int
	Height int
	// Scale is the resize factor applied to the source image; divide
	// network-space coordinates by it to recover source coordinates.
	Scale float32
	// PadX and PadY are the left/top padding offsets in network pixels.
	PadX int
	PadY int
}

// LoadResizeAndPad reads an image file and fits it into a width x height
// input tensor: aspect-preserving resize to the largest size that fits,
// then centered padding with the pad value on the uncovered borders.
//
// Arguments:
//   - path: Image file, JPEG or PNG.
//   - width: Target tensor width in pixels.
//   - height: Target tensor height in pixels.
//   - padValue: Gray level used for the padded borders.
//
// Returns:
//   - The prepared input, or an error when the file is missing or not a
//     decodable image.
func LoadResizeAndPad(path string, width, height int, padValue uint8) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "image file %s", path)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding image %s", path)
	}
	return ResizeAndPad(src, width, height, padValue), nil
}

// ResizeAndPad fits a decoded image into a width x height input tensor.
// See LoadResizeAndPad.
func ResizeAndPad(src image.Image, width, height int, padValue uint8) *Input {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scaleX := float32(width) / float32(srcW)
	scaleY := float32(height) / float32(srcH)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	newW := int(float32(srcW) * scale)
	newH := int(float32(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := resize.Resize(uint(newW), uint(newH), src, resize.Bilinear)

	padX := (width - newW) / 2
	padY := (height - newH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := color.RGBA{R: padValue, G: padValue, B: padValue, A: 255}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(padX, padY, padX+newW, padY+newH), resized, image.Point{}, draw.Src)

	plane := width * height
	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := canvas.At(x, y).RGBA()
			idx := y*width + x
			data[idx] = float32(r >> 8)
			data[plane+idx] = float32(g >> 8)
			data[2*plane+idx] = float32(b >> 8)
		}
	}

	return &Input{
		Data:   data,
		Width:  width,
		Height: height,
		Scale:  scale,
		PadX:   padX,
		PadY:   padY,
	}
}
