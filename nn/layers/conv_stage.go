package layers

import (
	"fmt"
	"math"
	"math/rand"

	"deconvnet/tensor"
)

// LayerState captures one forward invocation of a ConvStage: the pooled
// output plus everything needed to exactly reverse that call. Instances are
// never mutated after creation.
type LayerState struct {
	// Output is the post-pool tensor [batch, outC, H/2, W/2].
	Output *tensor.Tensor
	// PrePool is the post-activation, pre-pool tensor [batch, outC, H, W].
	PrePool *tensor.Tensor
	// PoolIndices has one entry per Output element: the flat index into
	// PrePool.Data of the window position that attained the maximum.
	PoolIndices []int
}

// Clone returns a copy whose Output is deep-copied; PrePool and PoolIndices
// are shared since they are read-only after creation.
func (s *LayerState) Clone() *LayerState {
	return &LayerState{
		Output:      s.Output.Clone(),
		PrePool:     s.PrePool,
		PoolIndices: s.PoolIndices,
	}
}

// ConvStage is one feature-extraction stage: convolution, batch
// normalization, ReLU, then 2x2 stride-2 max pooling with recorded argmax
// positions.
type ConvStage struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	// W is the convolution weight [outC, inC, k, k]; B is the bias [outC].
	// A paired DeconvStage reads W through the stage pointer, so the tensor
	// must be updated in place rather than replaced.
	W *tensor.Tensor
	B *tensor.Tensor

	BN *BatchNorm2D
}

// NewConvStage creates a stage with the given geometry. Padding is derived
// from kernel size and stride so that a stride-1 stage preserves the spatial
// size for odd kernels, and a stride-2 stage halves it.
func NewConvStage(inChannels, outChannels, kernelSize, stride int, rng *rand.Rand) *ConvStage {
	padding := ((stride - 1) + kernelSize - 1) / 2

	c := &ConvStage{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		W:           tensor.New(outChannels, inChannels, kernelSize, kernelSize),
		B:           tensor.New(outChannels),
		BN:          NewBatchNorm2D(outChannels),
	}

	// He initialization
	scale := math.Sqrt(2.0 / float64(inChannels*kernelSize*kernelSize))
	for i := range c.W.Data {
		c.W.Data[i] = (rng.Float64()*2 - 1) * scale
	}

	return c
}

func (c *ConvStage) InChannels() int  { return c.inChannels }
func (c *ConvStage) OutChannels() int { return c.outChannels }
func (c *ConvStage) KernelSize() int  { return c.kernelSize }
func (c *ConvStage) Stride() int      { return c.stride }
func (c *ConvStage) Padding() int     { return c.padding }

// Forward runs the stage on x of shape [batch, inC, H, W] and returns the
// per-call LayerState.
func (c *ConvStage) Forward(x *tensor.Tensor) (*LayerState, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("ConvStage: input must be 4D [batch, channels, height, width], got %v", x.Shape)
	}
	if x.Shape[1] != c.inChannels {
		return nil, fmt.Errorf("ConvStage: configured for %d input channels, got %d", c.inChannels, x.Shape[1])
	}

	conv := c.convolve(x)

	normed, err := c.BN.Forward(conv)
	if err != nil {
		return nil, err
	}

	prePool := tensor.ReLU(normed)

	output, indices := maxPool2x2(prePool)

	return &LayerState{Output: output, PrePool: prePool, PoolIndices: indices}, nil
}

// convolve computes the zero-padded strided convolution of x with c.W, c.B.
func (c *ConvStage) convolve(x *tensor.Tensor) *tensor.Tensor {
	batch, height, width := x.Shape[0], x.Shape[2], x.Shape[3]
	k, s, p := c.kernelSize, c.stride, c.padding
	outH := (height+2*p-k)/s + 1
	outW := (width+2*p-k)/s + 1

	out := tensor.New(batch, c.outChannels, outH, outW)

	inPlane := height * width
	outPlane := outH * outW
	kk := k * k

	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.outChannels; oc++ {
			outBase := (b*c.outChannels + oc) * outPlane
			wBase := oc * c.inChannels * kk
			bias := c.B.Data[oc]
			for ic := 0; ic < c.inChannels; ic++ {
				inBase := (b*c.inChannels + ic) * inPlane
				wicBase := wBase + ic*kk
				for kh := 0; kh < k; kh++ {
					for kw := 0; kw < k; kw++ {
						w := c.W.Data[wicBase+kh*k+kw]
						if w == 0 {
							continue
						}
						for oh := 0; oh < outH; oh++ {
							inH := oh*s + kh - p
							if inH < 0 || inH >= height {
								continue
							}
							rowIn := inBase + inH*width
							rowOut := outBase + oh*outW
							for ow := 0; ow < outW; ow++ {
								inW := ow*s + kw - p
								if inW < 0 || inW >= width {
									continue
								}
								out.Data[rowOut+ow] += w * x.Data[rowIn+inW]
							}
						}
					}
				}
			}
			if bias != 0 {
				for i := 0; i < outPlane; i++ {
					out.Data[outBase+i] += bias
				}
			}
		}
	}

	return out
}

// maxPool2x2 applies 2x2 stride-2 max pooling to x and records, for each
// output element, the flat index into x.Data of the selected input position.
// Odd trailing rows/columns are dropped.
func maxPool2x2(x *tensor.Tensor) (*tensor.Tensor, []int) {
	batch, channels, height, width := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := height/2, width/2

	out := tensor.New(batch, channels, outH, outW)
	indices := make([]int, len(out.Data))

	plane := height * width
	outPlane := outH * outW

	for b := 0; b < batch; b++ {
		for ch := 0; ch < channels; ch++ {
			inBase := (b*channels + ch) * plane
			outBase := (b*channels + ch) * outPlane
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					top := inBase + (2*oh)*width + 2*ow
					best := top
					for _, cand := range [3]int{top + 1, top + width, top + width + 1} {
						if x.Data[cand] > x.Data[best] {
							best = cand
						}
					}
					pos := outBase + oh*outW + ow
					out.Data[pos] = x.Data[best]
					indices[pos] = best
				}
			}
		}
	}

	return out, indices
}
