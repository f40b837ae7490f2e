// Command rpn-train builds the proposal-network training losses around a
// synthetic batch: anchor targets are assigned on the host, the objectness
// cross entropy runs as a gorgonia graph with gradients bound, and the box
// regression uses the smooth-L1 layer. It demonstrates the full target
// pipeline without needing a trained backbone.
package main

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-frcnn/anchors"
	"github.com/nvr-ai/go-frcnn/layers"
	"github.com/nvr-ai/go-frcnn/rpn"
)

var (
	imgWidth  = float32(512)
	imgHeight = float32(512)
	featH     = 32
	featW     = 32
	stride    = 16
	seed      = int64(42)
)

func main() {
	gen := anchors.DefaultGenerator(stride)
	k := gen.NumTemplates()
	plane := featH * featW
	n := plane * k

	rng := rand.New(rand.NewSource(seed))

	// Synthetic network outputs: raw objectness logits and box deltas.
	scoreData := make([]float32, 2*k*plane)
	for i := range scoreData {
		scoreData[i] = rng.Float32()*2 - 1
	}
	deltaData := make([]float32, 4*k*plane)
	for i := range deltaData {
		deltaData[i] = rng.Float32()*0.2 - 0.1
	}

	// Synthetic scene: two objects.
	gt := tensor.New(tensor.WithShape(2, 5), tensor.WithBacking([]float32{
		64, 64, 192, 192, 1,
		250, 300, 420, 440, 2,
	}))
	scoreMap := tensor.New(tensor.WithShape(2*k, featH, featW), tensor.WithBacking(scoreData))

	atl := layers.NewAnchorTargetLayer(gen, rpn.DefaultAnchorTargetConfig(), imgWidth, imgHeight, seed)
	targets, err := atl.Forward([]*tensor.Dense{scoreMap, gt})
	if err != nil {
		fmt.Printf("Can't assign anchor targets due the error: %s\n", err.Error())
		return
	}
	labelMap := targets[0].Float32s()

	// Per-anchor (bg, fg) logit rows aligned with the anchor ordering, plus
	// the per-anchor label.
	logitData := make([]float32, n*2)
	labelData := make([]float32, n)
	for i := 0; i < n; i++ {
		kk := i % k
		pos := i / k
		logitData[i*2+0] = scoreData[kk*plane+pos]
		logitData[i*2+1] = scoreData[(k+kk)*plane+pos]
		labelData[i] = labelMap[kk*plane+pos]
	}

	logitRows := tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(logitData))
	labelRows := tensor.New(tensor.WithShape(n), tensor.WithBacking(labelData))

	masked, err := layers.IgnoreLabel{Ignore: -1}.Forward([]*tensor.Dense{logitRows, labelRows})
	if err != nil {
		fmt.Printf("Can't mask ignored anchors due the error: %s\n", err.Error())
		return
	}
	clampedLabels := masked[1].Float32s()
	mask := masked[2].Float32s()

	// One-hot label rows gated by the mask; ignored anchors contribute no
	// cross entropy.
	onehotData := make([]float32, n*2)
	counted := float32(0)
	for i := 0; i < n; i++ {
		if mask[i] == 0 {
			continue
		}
		onehotData[i*2+int(clampedLabels[i])] = 1
		counted++
	}

	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float32, G.WithShape(n, 2), G.WithName("rpn_cls_score"))
	onehot := G.NewMatrix(g, tensor.Float32, G.WithShape(n, 2), G.WithName("rpn_labels_onehot"))

	probs := G.Must(G.SoftMax(logits, 1))
	logProbs := G.Must(G.Log(probs))
	clsLoss := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(onehot, logProbs))))))

	if _, err := G.Grad(clsLoss, logits); err != nil {
		fmt.Printf("Can't build gradient due the error: %s\n", err.Error())
		return
	}

	if err := G.Let(logits, logitRows); err != nil {
		fmt.Printf("Can't let logits due the error: %s\n", err.Error())
		return
	}
	if err := G.Let(onehot, tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(onehotData))); err != nil {
		fmt.Printf("Can't let labels due the error: %s\n", err.Error())
		return
	}

	tm := G.NewTapeMachine(g, G.BindDualValues(logits))
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		fmt.Printf("Can't run tape machine due the error: %s\n", err.Error())
		return
	}

	// Box regression loss on the host, reusing the same layer the training
	// graph wraps.
	smooth := layers.NewSmoothL1Loss(3)
	regOut, err := smooth.Forward([]*tensor.Dense{
		tensor.New(tensor.WithShape(4*k, featH, featW), tensor.WithBacking(deltaData)),
		targets[1],
		targets[2],
	})
	if err != nil {
		fmt.Printf("Can't compute smooth l1 loss due the error: %s\n", err.Error())
		return
	}
	upstream := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{1}))
	regGrads, err := smooth.Backward([]*tensor.Dense{upstream})
	if err != nil {
		fmt.Printf("Can't backprop smooth l1 loss due the error: %s\n", err.Error())
		return
	}

	clsValue := clsLoss.Value().Data().(float32)
	logitsGrad, err := logits.Grad()
	if err != nil {
		fmt.Printf("Can't read logits gradient due the error: %s\n", err.Error())
		return
	}

	fmt.Printf("anchors=%d counted=%.0f cls_loss=%.4f cls_loss_mean=%.4f\n",
		n, counted, clsValue, clsValue/counted)
	fmt.Printf("reg_loss=%.4f grad_elems=%d cls_grad_elems=%d\n",
		regOut[0].Float32s()[0], len(regGrads[0].Float32s()), logitsGrad.Size())
}
