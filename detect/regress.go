// Package detect turns detection-head outputs into final box predictions.
//
// The detection head scores each region of interest against every class and
// predicts one regression delta per class. This package applies the winning
// class's delta to each ROI, producing a fixed-capacity table of detections.
package detect

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-frcnn/boxes"
)

// Config controls box regression at inference time.
type Config struct {
	// NumClasses is the class count including background at index 0.
	NumClasses int
	// MaxDetections is the fixed output table size; short results are padded
	// with zero rows.
	MaxDetections int
	// ImageWidth and ImageHeight bound the regressed boxes.
	ImageWidth  float32
	ImageHeight float32
}

// Detection is one row of the output table: a regressed box, its predicted
// class, and the class score. Zero rows (Score == 0, Class == 0) are padding.
type Detection struct {
	Box   boxes.Box
	Class int
	Score float32
}

// RegressROIs applies class-specific regression deltas to regions of
// interest and returns a fixed-size detection table.
//
// For each valid ROI the predicted class is the argmax over its class
// scores. Foreground predictions decode the 4-column delta slice of the
// winning class and clip the result to the image; background predictions
// keep the ROI box unregressed. Padding ROIs (degenerate boxes) are skipped
// and surface as zero rows at the tail of the table.
//
// Arguments:
//   - rois: Candidate boxes, typically the proposal output incl. padding.
//   - classScores: Per-ROI class scores, NumClasses columns per row.
//   - classDeltas: Per-ROI regression deltas, 4*NumClasses columns per row,
//     the 4 columns of class c starting at offset 4*c.
//   - cfg: Class count, table capacity and image bounds.
//
// Returns:
//   - Exactly cfg.MaxDetections rows, zero-padded at the tail, or an error
//     when the score/delta slices do not match the ROI count.
func RegressROIs(rois []boxes.Box, classScores, classDeltas []float32, cfg Config) ([]Detection, error) {
	if len(classScores) != len(rois)*cfg.NumClasses {
		return nil, errors.Errorf(
			"class scores have %d values, want %d (%d rois x %d classes)",
			len(classScores), len(rois)*cfg.NumClasses, len(rois), cfg.NumClasses)
	}
	if len(classDeltas) != len(rois)*4*cfg.NumClasses {
		return nil, errors.Errorf(
			"class deltas have %d values, want %d (%d rois x 4x%d classes)",
			len(classDeltas), len(rois)*4*cfg.NumClasses, len(rois), cfg.NumClasses)
	}

	out := make([]Detection, cfg.MaxDetections)
	row := 0
	for i, roi := range rois {
		if row >= cfg.MaxDetections {
			break
		}
		if !roi.Valid() {
			continue
		}

		scores := classScores[i*cfg.NumClasses : (i+1)*cfg.NumClasses]
		class := argmax(scores)

		det := Detection{Box: roi, Class: class, Score: scores[class]}
		if class > 0 {
			base := i*4*cfg.NumClasses + 4*class
			d := boxes.Delta{
				DX: classDeltas[base+0],
				DY: classDeltas[base+1],
				DW: classDeltas[base+2],
				DH: classDeltas[base+3],
			}
			det.Box = boxes.DecodeDelta(roi, d).Clip(cfg.ImageWidth, cfg.ImageHeight)
		}
		out[row] = det
		row++
	}
	return out, nil
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
