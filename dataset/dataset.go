// Package dataset reads the image-map and ROI-map files that pair training
// images with their ground truth boxes.
//
// The image map holds one tab-separated "index path label" line per image.
// The ROI map holds one "index |roiAndLabel x1 y1 x2 y2 class ..." line per
// image, five numbers per box; rows with class <= 0 are capacity padding and
// are dropped on read. Line order pairs the two files.
package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/rpn"
)

const roiMarker = "|roiAndLabel"

// ReadImageMap returns the ordered image paths from a map file. A missing
// or malformed file is a fatal precondition error.
func ReadImageMap(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "image map file %s", path)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, errors.Errorf("image map file %s line %d: want 'index path label', got %q", path, line, text)
		}
		paths = append(paths, fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "image map file %s", path)
	}
	return paths, nil
}

// ReadROIMap returns the per-image ground truth, one slice per map line,
// with sentinel (class <= 0) rows dropped. A missing or malformed file is a
// fatal precondition error, as is a class label at or above numClasses,
// which would index past the per-class regression columns downstream.
func ReadROIMap(path string, numClasses int) ([][]rpn.GroundTruth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "roi map file %s", path)
	}
	defer f.Close()

	var out [][]rpn.GroundTruth
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		gt, err := parseROILine(text, numClasses)
		if err != nil {
			return nil, errors.Wrapf(err, "roi map file %s line %d", path, line)
		}
		out = append(out, gt)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "roi map file %s", path)
	}
	return out, nil
}

func parseROILine(text string, numClasses int) ([]rpn.GroundTruth, error) {
	marker := strings.Index(text, roiMarker)
	if marker < 0 {
		return nil, errors.Errorf("missing %q marker in %q", roiMarker, text)
	}
	fields := strings.Fields(text[marker+len(roiMarker):])
	if len(fields)%5 != 0 {
		return nil, errors.Errorf("want 5 values per box, got %d values", len(fields))
	}

	var gt []rpn.GroundTruth
	for i := 0; i < len(fields); i += 5 {
		values := make([]float32, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(fields[i+j], 32)
			if err != nil {
				return nil, errors.Wrapf(err, "value %q", fields[i+j])
			}
			values[j] = float32(v)
		}
		class := int(values[4])
		if class <= 0 {
			continue
		}
		if class >= numClasses {
			return nil, errors.Errorf("class %d out of range for %d classes", class, numClasses)
		}
		gt = append(gt, rpn.GroundTruth{
			Box:   boxes.Box{X1: values[0], Y1: values[1], X2: values[2], Y2: values[3]},
			Class: class,
		})
	}
	return gt, nil
}

// Table packs ground truth into a fixed-capacity (capacity,5) row-major
// float32 table, padding with zero rows, for the tensor-boundary layers.
// Boxes beyond the capacity are dropped.
func Table(gt []rpn.GroundTruth, capacity int) []float32 {
	out := make([]float32, capacity*5)
	for i, g := range gt {
		if i >= capacity {
			break
		}
		out[i*5+0] = g.Box.X1
		out[i*5+1] = g.Box.Y1
		out[i*5+2] = g.Box.X2
		out[i*5+3] = g.Box.Y2
		out[i*5+4] = float32(g.Class)
	}
	return out
}
