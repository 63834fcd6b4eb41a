package layers

import (
	"fmt"

	"deconvnet/tensor"
)

// DeconvStage reverses one ConvStage: it unpools an activation back to its
// pre-pool positions, then applies the transposed convolution of the paired
// stage's kernels.
//
// The stage holds a reference to its ConvStage rather than a copy of the
// weights, so parameter updates made between forward passes are visible the
// next time the stage is reversed. Callers must not run a reversal while the
// paired stage's weights are being written.
type DeconvStage struct {
	conv *ConvStage
}

// NewDeconvStage pairs a reversal stage with conv.
func NewDeconvStage(conv *ConvStage) *DeconvStage {
	return &DeconvStage{conv: conv}
}

// Conv returns the paired forward stage.
func (d *DeconvStage) Conv() *ConvStage { return d.conv }

// Forward reverses the paired stage for one specific forward call, described
// by state. x must have the shape of that call's pooled output.
func (d *DeconvStage) Forward(x *tensor.Tensor, state *LayerState) (*tensor.Tensor, error) {
	if state == nil || state.PrePool == nil || state.PoolIndices == nil {
		return nil, fmt.Errorf("DeconvStage: layer state is missing pooling records")
	}
	if len(x.Data) != len(state.PoolIndices) {
		return nil, fmt.Errorf("DeconvStage: input has %d elements but pooling recorded %d", len(x.Data), len(state.PoolIndices))
	}

	unpooled := unpool(x, state)
	return d.convTranspose(unpooled), nil
}

// unpool scatters x back to the argmax positions recorded during the forward
// pass, producing a tensor of exactly the pre-pool shape. Positions that were
// not selected stay zero.
func unpool(x *tensor.Tensor, state *LayerState) *tensor.Tensor {
	out := tensor.New(state.PrePool.Shape...)
	for i, idx := range state.PoolIndices {
		out.Data[idx] = x.Data[i]
	}
	return out
}

// convTranspose applies the transposed convolution of the paired stage's
// weights, spatially flipped, with the stage's stride and padding and no
// bias. An extra output padding of 1 is applied only when the forward stride
// exceeds 1, recovering the exact pre-convolution size of the documented
// stride-2 pipeline; the rule is unverified for other geometries.
func (d *DeconvStage) convTranspose(x *tensor.Tensor) *tensor.Tensor {
	c := d.conv
	batch, height, width := x.Shape[0], x.Shape[2], x.Shape[3]
	k, s, p := c.kernelSize, c.stride, c.padding

	outputPadding := 0
	if s > 1 {
		outputPadding = 1
	}
	outH := (height-1)*s - 2*p + k + outputPadding
	outW := (width-1)*s - 2*p + k + outputPadding

	out := tensor.New(batch, c.inChannels, outH, outW)

	inPlane := height * width
	outPlane := outH * outW
	kk := k * k

	// Scatter form of the transposed convolution. The kernel is read with
	// both spatial axes reversed (180-degree rotation), and weights are read
	// from the paired stage at call time so later updates are reflected.
	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.outChannels; oc++ {
			inBase := (b*c.outChannels + oc) * inPlane
			wBase := oc * c.inChannels * kk
			for ic := 0; ic < c.inChannels; ic++ {
				outBase := (b*c.inChannels + ic) * outPlane
				wicBase := wBase + ic*kk
				for kh := 0; kh < k; kh++ {
					for kw := 0; kw < k; kw++ {
						w := c.W.Data[wicBase+(k-1-kh)*k+(k-1-kw)]
						if w == 0 {
							continue
						}
						for ih := 0; ih < height; ih++ {
							oh := ih*s + kh - p
							if oh < 0 || oh >= outH {
								continue
							}
							rowIn := inBase + ih*width
							rowOut := outBase + oh*outW
							for iw := 0; iw < width; iw++ {
								ow := iw*s + kw - p
								if ow < 0 || ow >= outW {
									continue
								}
								out.Data[rowOut+ow] += w * x.Data[rowIn+iw]
							}
						}
					}
				}
			}
		}
	}

	return out
}
