// deconvnet-visualize: project a convolutional stage's strongest activation
// back into input-pixel space and write it as a PNG.
//
// Usage:
//
//	visualize --layer=3 --checkpoint=weights.json --out=recon.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"deconvnet/nn"
	"deconvnet/tensor"
	"deconvnet/utils"
)

var (
	layer      = flag.Int("layer", 1, "Stage to visualize (1-based)")
	checkpoint = flag.String("checkpoint", "", "Optional checkpoint file (JSON)")
	outFile    = flag.String("out", "reconstruction.png", "Output PNG path")
	seed       = flag.Int64("seed", 42, "Random seed for weights and input")
	verbose    = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg := utils.DefaultConfig()
	if *layer < 1 || *layer > 4 {
		log.Fatalf("layer must be in 1..4, got %d", *layer)
	}
	fmt.Println("deconvnet visualizer")
	fmt.Printf("  Layer:      %d\n", *layer)
	fmt.Printf("  Checkpoint: %s\n", orNone(*checkpoint))
	fmt.Printf("  Output:     %s\n", *outFile)
	fmt.Println()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	model, err := nn.New(cfg, *seed)
	if err != nil {
		log.Fatalf("Failed to build network: %v", err)
	}
	stats.ModelInitTime = time.Since(start)

	if *checkpoint != "" {
		ckpt, err := utils.LoadCheckpoint(*checkpoint)
		if err != nil {
			log.Fatalf("Failed to load checkpoint: %v", err)
		}
		if err := model.LoadParams(ckpt.Tensors()); err != nil {
			log.Fatalf("Failed to apply checkpoint: %v", err)
		}
		fmt.Printf("Loaded %d parameter tensors\n", len(ckpt.Params))
	}

	// Synthetic input; a real driver would feed image data here.
	rng := rand.New(rand.NewSource(*seed))
	input := tensor.New(1, 3, 224, 224)
	for i := range input.Data {
		input.Data[i] = rng.Float64()
	}

	fmt.Println("Running forward pass...")
	start = time.Now()
	state, err := model.Forward(input)
	if err != nil {
		log.Fatalf("Forward pass failed: %v", err)
	}
	stats.ForwardPassTime = time.Since(start)

	// Keep only the strongest activation of the chosen stage, as in the
	// original deconvnet procedure, and project it back to pixels.
	featureMaps := isolateStrongest(state.LayerStates[*layer-1].Output)

	fmt.Println("Projecting back to input space...")
	start = time.Now()
	recon, err := model.Visualize(featureMaps, state, *layer)
	if err != nil {
		log.Fatalf("Visualization failed: %v", err)
	}
	stats.VisualizationTime = time.Since(start)

	if err := writePNG(*outFile, recon); err != nil {
		log.Fatalf("Failed to write %s: %v", *outFile, err)
	}
	fmt.Printf("Wrote %s (%dx%d)\n", *outFile, recon.Shape[3], recon.Shape[2])

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, 1)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// isolateStrongest returns a copy of t with every element zeroed except the
// single largest activation.
func isolateStrongest(t *tensor.Tensor) *tensor.Tensor {
	best := 0
	for i, v := range t.Data {
		if v > t.Data[best] {
			best = i
		}
	}
	out := tensor.New(t.Shape...)
	out.Data[best] = t.Data[best]
	return out
}

// writePNG maps the reconstruction's per-channel values onto [0, 255] and
// encodes the first batch element as an RGB image.
func writePNG(path string, recon *tensor.Tensor) error {
	if len(recon.Shape) != 4 || recon.Shape[1] != 3 {
		return fmt.Errorf("expected [1, 3, H, W] reconstruction, got %v", recon.Shape)
	}
	height, width := recon.Shape[2], recon.Shape[3]

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range recon.Data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	scale := 0.0
	if hi > lo {
		scale = 255.0 / (hi - lo)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	plane := height * width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*width + x
			img.Set(x, y, color.RGBA{
				R: uint8((recon.Data[pos] - lo) * scale),
				G: uint8((recon.Data[plane+pos] - lo) * scale),
				B: uint8((recon.Data[2*plane+pos] - lo) * scale),
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
