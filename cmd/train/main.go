// deconvnet-train: minimal external training-loop driver. It trains the
// classifier head on synthetic data and applies the filter-RMS projection
// after every update, which is the sequencing the core is designed around:
// forward, external update, then NormalizeFilters, never interleaved with a
// visualization.
//
// Usage:
//
//	train --model=tiny --steps=20 --lr=0.01
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"deconvnet/nn"
	"deconvnet/tensor"
	"deconvnet/utils"
)

var (
	modelType  = flag.String("model", "tiny", "Model type: zf, tiny")
	steps      = flag.Int("steps", 10, "Number of training steps")
	batchSize  = flag.Int("batch", 2, "Batch size")
	lr         = flag.Float64("lr", 0.01, "Learning rate")
	radius     = flag.Float64("radius", nn.DefaultFilterRadius, "Filter RMS radius")
	seed       = flag.Int64("seed", 42, "Random seed")
	outputFile = flag.String("output", "", "Output checkpoint file (JSON)")
	verbose    = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg, err := buildConfig(*modelType)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println("deconvnet trainer (classifier head only)")
	fmt.Printf("  Model:         %s\n", *modelType)
	fmt.Printf("  Steps:         %d\n", *steps)
	fmt.Printf("  Batch size:    %d\n", *batchSize)
	fmt.Printf("  Learning rate: %.4f\n", *lr)
	fmt.Printf("  RMS radius:    %.3f\n", *radius)
	fmt.Println()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	model, err := nn.New(cfg, *seed)
	if err != nil {
		log.Fatalf("Failed to build network: %v", err)
	}
	stats.ModelInitTime = time.Since(start)

	rng := rand.New(rand.NewSource(*seed))
	loss := nn.CrossEntropyLoss{}

	for step := 1; step <= *steps; step++ {
		input, labels := syntheticBatch(rng, *batchSize, cfg.FCUnits)

		start = time.Now()
		state, err := model.Forward(input)
		if err != nil {
			log.Fatalf("Step %d forward failed: %v", step, err)
		}
		stats.ForwardPassTime += time.Since(start)

		lossVal, err := loss.Forward(state.Logits, labels)
		if err != nil {
			log.Fatalf("Step %d loss failed: %v", step, err)
		}

		start = time.Now()
		if err := updateHead(model, state, labels, *lr); err != nil {
			log.Fatalf("Step %d update failed: %v", step, err)
		}
		stats.UpdateTime += time.Since(start)

		// The projection runs once per update, outside the gradient logic.
		start = time.Now()
		normed := model.NormalizeFilters(*radius)
		stats.NormalizeTime += time.Since(start)

		rescaled := 0
		for _, info := range normed {
			rescaled += len(info.Indices)
		}
		fmt.Printf("Step %d/%d | Loss: %.6f | Filters rescaled: %d\n", step, *steps, lossVal, rescaled)
	}

	if *outputFile != "" {
		ckpt := utils.NewCheckpoint(model.Params())
		if err := utils.SaveCheckpoint(*outputFile, ckpt); err != nil {
			log.Fatalf("Failed to save checkpoint: %v", err)
		}
		fmt.Printf("Saved checkpoint to %s\n", *outputFile)
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, *steps)
}

func buildConfig(modelType string) (utils.Config, error) {
	switch modelType {
	case "zf":
		return utils.DefaultConfig(), nil
	case "tiny":
		return utils.Config{
			Conv1Channels: 8,
			Conv2Channels: 8,
			Conv3Channels: 8,
			Conv4Channels: 8,
			KernelSize:    7,
			FCUnits:       10,
		}, nil
	default:
		return utils.Config{}, fmt.Errorf("unknown model type %q: want zf or tiny", modelType)
	}
}

// syntheticBatch generates random inputs and labels at the network's fixed
// 224x224 input resolution.
func syntheticBatch(rng *rand.Rand, batch, classes int) (*tensor.Tensor, []int) {
	input := tensor.New(batch, 3, 224, 224)
	for i := range input.Data {
		input.Data[i] = rng.Float64()
	}
	labels := make([]int, batch)
	for i := range labels {
		labels[i] = rng.Intn(classes)
	}
	return input, labels
}

// updateHead applies one SGD step to the classifier head. The closed-form
// softmax cross-entropy gradient keeps the driver free of any backprop
// machinery in the core.
func updateHead(model *nn.Network, state *nn.ModelState, labels []int, lr float64) error {
	grad, err := nn.CrossEntropyLoss{}.Backward(state.Logits, labels)
	if err != nil {
		return err
	}

	features := state.FinalFeatures()
	batch := features.Shape[0]
	flat, err := features.Reshape(batch, len(features.Data)/batch)
	if err != nil {
		return err
	}

	fc := model.Classifier()
	inDim, outDim := fc.InDim(), fc.OutDim()
	for b := 0; b < batch; b++ {
		x := flat.Data[b*inDim : (b+1)*inDim]
		g := grad.Data[b*outDim : (b+1)*outDim]
		for c := 0; c < outDim; c++ {
			gc := g[c]
			if gc == 0 {
				continue
			}
			fc.B.Data[c] -= lr * gc
			row := fc.W.Data[c*inDim : (c+1)*inDim]
			for j := range row {
				row[j] -= lr * gc * x[j]
			}
		}
	}
	return nil
}
