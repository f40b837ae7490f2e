// Command frcnn-eval runs the full two-stage detection pipeline over a
// dataset: prepared images go through the exported proposal network, the
// proposal layer turns score/delta maps into regions, the detection head
// scores the regions and the box regressor produces final detections. When a
// ROI map with ground truth is given, the run is scored with per-class
// average precision and mAP.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/boxes"
	"github.com/nvr-ai/go-frcnn/config"
	"github.com/nvr-ai/go-frcnn/dataset"
	"github.com/nvr-ai/go-frcnn/detect"
	"github.com/nvr-ai/go-frcnn/images"
	"github.com/nvr-ai/go-frcnn/layers"
	"github.com/nvr-ai/go-frcnn/onnx"
	"github.com/nvr-ai/go-frcnn/profiler"
	"github.com/nvr-ai/go-frcnn/rpn"
	"gorgonia.org/tensor"
)

// evalIoUThreshold is the overlap at which a detection counts as matching a
// ground truth box during mAP scoring.
const evalIoUThreshold = 0.5

func main() {
	var (
		datasetName    string
		baseModelName  string
		rpnModelPath   string
		headModelPath  string
		onnxLibPath    string
		imageMapPath   string
		roiMapPath     string
		scoreThreshold float64
	)
	flag.StringVar(&datasetName, "dataset", "Grocery", "Dataset identifier (Grocery or Pascal)")
	flag.StringVar(&baseModelName, "base-model", "AlexNet", "Backbone identifier (AlexNet or VGG16)")
	flag.StringVar(&rpnModelPath, "rpn-model", "frcnn_rpn.onnx", "Path to the exported backbone+RPN ONNX model")
	flag.StringVar(&headModelPath, "head-model", "frcnn_head.onnx", "Path to the exported detection head ONNX model")
	flag.StringVar(&onnxLibPath, "onnx-lib", "", "Path to the onnxruntime shared library (empty for system default)")
	flag.StringVar(&imageMapPath, "img-map", "test.imgMap.txt", "Path to the image map file")
	flag.StringVar(&roiMapPath, "roi-map", "test.GTRois.txt", "Path to the ROI map file with ground truth boxes (empty to skip mAP)")
	flag.Float64Var(&scoreThreshold, "score-threshold", 0.5, "Minimum class score for a reported detection")
	flag.Parse()

	cfg, err := config.New(config.Dataset(datasetName), config.BaseModel(baseModelName))
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	imagePaths, err := dataset.ReadImageMap(imageMapPath)
	if err != nil {
		log.Fatalf("dataset error: %v", err)
	}

	var groundTruth [][]rpn.GroundTruth
	if roiMapPath != "" {
		groundTruth, err = dataset.ReadROIMap(roiMapPath, cfg.NumClasses())
		if err != nil {
			log.Fatalf("dataset error: %v", err)
		}
		if len(groundTruth) != len(imagePaths) {
			log.Fatalf("dataset error: %s lists %d images, %s lists %d",
				imageMapPath, len(imagePaths), roiMapPath, len(groundTruth))
		}
	}

	if err := onnx.Initialize(onnxLibPath); err != nil {
		log.Fatalf("onnx runtime error: %v", err)
	}
	defer onnx.Destroy()

	rpnSession, err := onnx.NewRPNSession(onnx.RPNConfig{ModelPath: rpnModelPath})
	if err != nil {
		log.Fatalf("rpn session error: %v", err)
	}
	defer rpnSession.Close()

	headSession, err := onnx.NewHeadSession(onnx.HeadConfig{ModelPath: headModelPath})
	if err != nil {
		log.Fatalf("head session error: %v", err)
	}
	defer headSession.Close()

	fmt.Printf("evaluating %d images (%s on %s, %d classes)\n",
		len(imagePaths), cfg.Dataset, cfg.BaseModel, cfg.NumClasses())

	gen := anchors.DefaultGenerator(cfg.FeatureStride)
	timer := profiler.NewStageTimer()
	collected := make([][]detect.Detection, 0, len(imagePaths))
	for _, path := range imagePaths {
		detections, err := evalImage(path, cfg, gen, rpnSession, headSession, timer)
		if err != nil {
			log.Fatalf("evaluating %s: %v", path, err)
		}
		collected = append(collected, detections)

		reported := 0
		for _, d := range detections {
			if d.Class == 0 || d.Score < float32(scoreThreshold) {
				continue
			}
			reported++
			fmt.Printf("%s: %s %.3f (%.1f,%.1f,%.1f,%.1f)\n",
				path, cfg.Classes[d.Class], d.Score, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
		}
		if reported == 0 {
			fmt.Printf("%s: no detections above %.2f\n", path, scoreThreshold)
		}
	}

	if groundTruth != nil {
		eval, err := detect.EvaluateDetections(collected, groundTruth, cfg.NumClasses(), evalIoUThreshold)
		if err != nil {
			log.Fatalf("evaluation error: %v", err)
		}
		fmt.Println()
		for class := 1; class < cfg.NumClasses(); class++ {
			if eval.NumGroundTruth[class] == 0 {
				continue
			}
			fmt.Printf("AP %-16s %.4f (%d boxes)\n", cfg.Classes[class], eval.AP[class], eval.NumGroundTruth[class])
		}
		fmt.Printf("mAP %.4f\n", eval.MeanAP)
	}

	fmt.Printf("\nstage timings:\n%s", timer.Report())
}

// evalImage runs one image through proposal generation and box regression,
// returning detections in network-input coordinates.
func evalImage(
	path string,
	cfg *config.Config,
	gen anchors.Generator,
	rpnSession *onnx.RPNSession,
	headSession *onnx.HeadSession,
	timer *profiler.StageTimer,
) ([]detect.Detection, error) {
	stop := timer.Start("prepare")
	input, err := images.LoadResizeAndPad(path, cfg.ImageWidth, cfg.ImageHeight, cfg.PadValue)
	stop()
	if err != nil {
		return nil, err
	}

	stop = timer.Start("rpn")
	scores, deltas, err := rpnSession.Run(input)
	stop()
	if err != nil {
		return nil, err
	}

	proposalCfg := rpn.DefaultProposalConfig()
	proposalCfg.Scale = input.Scale

	stop = timer.Start("proposals")
	layer := layers.NewProposalLayer(gen, proposalCfg, float32(cfg.ImageWidth), float32(cfg.ImageHeight))
	out, err := layer.Forward([]*tensor.Dense{scores, deltas})
	stop()
	if err != nil {
		return nil, err
	}
	rois := boxesFromTable(out[0])

	stop = timer.Start("head")
	classScores, classDeltas, err := headSession.Run(input, rois)
	stop()
	if err != nil {
		return nil, err
	}

	defer timer.Start("regress")()
	return detect.RegressROIs(rois, classScores.Float32s(), classDeltas.Float32s(), detect.Config{
		NumClasses:    cfg.NumClasses(),
		MaxDetections: len(rois),
		ImageWidth:    float32(cfg.ImageWidth),
		ImageHeight:   float32(cfg.ImageHeight),
	})
}

func boxesFromTable(table *tensor.Dense) []boxes.Box {
	data := table.Float32s()
	n := table.Shape()[0]
	out := make([]boxes.Box, n)
	for i := 0; i < n; i++ {
		out[i] = boxes.Box{X1: data[i*4], Y1: data[i*4+1], X2: data[i*4+2], Y2: data[i*4+3]}
	}
	return out
}
