package layers

import (
	"fmt"
	"math"

	"deconvnet/tensor"

	"gonum.org/v1/gonum/stat"
)

// BatchNorm2D normalizes each channel of a 4-D activation tensor and applies
// a learned per-channel affine scale/shift.
//
// In training mode the batch statistics of the current call are used and the
// running estimates are updated; in eval mode the running estimates are used.
type BatchNorm2D struct {
	numFeatures int
	eps         float64
	momentum    float64
	training    bool

	// Learned affine parameters
	Gamma *tensor.Tensor // [numFeatures]
	Beta  *tensor.Tensor // [numFeatures]

	// Running statistics, updated in training mode
	RunningMean *tensor.Tensor // [numFeatures]
	RunningVar  *tensor.Tensor // [numFeatures]
}

// NewBatchNorm2D creates a batch normalization layer over numFeatures channels.
func NewBatchNorm2D(numFeatures int) *BatchNorm2D {
	bn := &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         1e-5,
		momentum:    0.1,
		training:    true,
		Gamma:       tensor.New(numFeatures),
		Beta:        tensor.New(numFeatures),
		RunningMean: tensor.New(numFeatures),
		RunningVar:  tensor.New(numFeatures),
	}
	for i := 0; i < numFeatures; i++ {
		bn.Gamma.Data[i] = 1.0
		bn.RunningVar.Data[i] = 1.0
	}
	return bn
}

// SetTraining switches between batch statistics and running statistics.
func (bn *BatchNorm2D) SetTraining(training bool) { bn.training = training }

// NumFeatures returns the number of normalized channels.
func (bn *BatchNorm2D) NumFeatures() int { return bn.numFeatures }

// Forward normalizes x of shape [batch, numFeatures, H, W].
func (bn *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("BatchNorm2D: input must be 4D, got %v", x.Shape)
	}
	batch, channels, height, width := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if channels != bn.numFeatures {
		return nil, fmt.Errorf("BatchNorm2D: expected %d channels, got %d", bn.numFeatures, channels)
	}

	out := tensor.New(x.Shape...)
	plane := height * width
	scratch := make([]float64, batch*plane)

	for c := 0; c < channels; c++ {
		// Gather the channel across the whole batch
		n := 0
		for b := 0; b < batch; b++ {
			base := (b*channels + c) * plane
			n += copy(scratch[n:], x.Data[base:base+plane])
		}
		vals := scratch[:n]

		var mean, variance float64
		if bn.training {
			mean = stat.Mean(vals, nil)
			// Biased variance: normalization uses the batch statistic itself.
			for _, v := range vals {
				d := v - mean
				variance += d * d
			}
			variance /= float64(n)

			// Running estimates use the unbiased variance.
			unbiased := variance
			if n > 1 {
				unbiased = variance * float64(n) / float64(n-1)
			}
			bn.RunningMean.Data[c] = (1-bn.momentum)*bn.RunningMean.Data[c] + bn.momentum*mean
			bn.RunningVar.Data[c] = (1-bn.momentum)*bn.RunningVar.Data[c] + bn.momentum*unbiased
		} else {
			mean = bn.RunningMean.Data[c]
			variance = bn.RunningVar.Data[c]
		}

		invStd := 1.0 / math.Sqrt(variance+bn.eps)
		gamma := bn.Gamma.Data[c]
		beta := bn.Beta.Data[c]
		for b := 0; b < batch; b++ {
			base := (b*channels + c) * plane
			for i := 0; i < plane; i++ {
				out.Data[base+i] = (x.Data[base+i]-mean)*invStd*gamma + beta
			}
		}
	}

	return out, nil
}
