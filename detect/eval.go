package detect

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/rpn"
)

// Evaluation holds per-class average precision for a detection run.
//
// AP and NumGroundTruth are indexed by class; index 0 is the background
// class and stays zero. Classes without any ground truth box keep AP 0 and
// are excluded from MeanAP.
type Evaluation struct {
	AP             []float32
	NumGroundTruth []int
	MeanAP         float32
}

// scoredDetection ties a detection of one class to the image it came from.
type scoredDetection struct {
	image int
	score float32
	box   boxes.Box
}

// EvaluateDetections computes per-class average precision and its mean over
// a detection run, PASCAL VOC style.
//
// Detections and ground truth are paired by image index. For each class the
// detections of that class are ranked by score; each one greedily claims the
// best-overlapping unclaimed ground truth box of its image, counting as a
// true positive at IoU >= iouThreshold and a false positive otherwise.
// Average precision integrates the precision envelope over recall. Padding
// rows (Class == 0) are ignored.
//
// Arguments:
//   - detections: Per-image detection tables, incl. zero padding rows.
//   - groundTruth: Per-image annotated boxes, same order and length.
//   - numClasses: Class count including background.
//   - iouThreshold: Overlap at or above which a detection matches a box.
//
// Returns:
//   - Per-class AP and the mean over classes that have ground truth, or an
//     error when the two per-image slices do not pair up.
func EvaluateDetections(detections [][]Detection, groundTruth [][]rpn.GroundTruth, numClasses int, iouThreshold float32) (Evaluation, error) {
	if len(detections) != len(groundTruth) {
		return Evaluation{}, errors.Errorf(
			"detections cover %d images, ground truth covers %d", len(detections), len(groundTruth))
	}

	eval := Evaluation{
		AP:             make([]float32, numClasses),
		NumGroundTruth: make([]int, numClasses),
	}
	for _, gt := range groundTruth {
		for _, g := range gt {
			if g.Class <= 0 || g.Class >= numClasses {
				return Evaluation{}, errors.Errorf(
					"ground truth class %d out of range for %d classes", g.Class, numClasses)
			}
			eval.NumGroundTruth[g.Class]++
		}
	}

	evaluated := 0
	var sum float32
	for class := 1; class < numClasses; class++ {
		if eval.NumGroundTruth[class] == 0 {
			continue
		}
		eval.AP[class] = classAP(detections, groundTruth, class, eval.NumGroundTruth[class], iouThreshold)
		sum += eval.AP[class]
		evaluated++
	}
	if evaluated > 0 {
		eval.MeanAP = sum / float32(evaluated)
	}
	return eval, nil
}

func classAP(detections [][]Detection, groundTruth [][]rpn.GroundTruth, class, numGT int, iouThreshold float32) float32 {
	var ranked []scoredDetection
	for img, dets := range detections {
		for _, d := range dets {
			if d.Class != class {
				continue
			}
			ranked = append(ranked, scoredDetection{image: img, score: d.Score, box: d.Box})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	// One claimed-flag slice per image, lazily over the class's boxes.
	claimed := make([][]bool, len(groundTruth))
	for img, gt := range groundTruth {
		claimed[img] = make([]bool, len(gt))
	}

	tp := make([]int, len(ranked))
	for rank, det := range ranked {
		best := -1
		var bestIoU float32
		for i, g := range groundTruth[det.image] {
			if g.Class != class || claimed[det.image][i] {
				continue
			}
			if iou := boxes.IoU(det.box, g.Box); iou > bestIoU {
				bestIoU = iou
				best = i
			}
		}
		if best >= 0 && bestIoU >= iouThreshold {
			claimed[det.image][best] = true
			tp[rank] = 1
		}
	}

	// Precision envelope over recall, integrated at each recall step.
	precision := make([]float32, len(ranked))
	recall := make([]float32, len(ranked))
	cum := 0
	for i := range ranked {
		cum += tp[i]
		precision[i] = float32(cum) / float32(i+1)
		recall[i] = float32(cum) / float32(numGT)
	}
	for i := len(precision) - 2; i >= 0; i-- {
		if precision[i+1] > precision[i] {
			precision[i] = precision[i+1]
		}
	}

	var ap float32
	var prev float32
	for i := range ranked {
		if recall[i] > prev {
			ap += (recall[i] - prev) * precision[i]
			prev = recall[i]
		}
	}
	return ap
}
