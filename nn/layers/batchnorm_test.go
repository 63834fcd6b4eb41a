package layers

import (
	"math/rand"
	"testing"

	"deconvnet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchNormCentersAndScales(t *testing.T) {
	bn := NewBatchNorm2D(2)

	x := tensor.New(2, 2, 3, 3)
	rng := rand.New(rand.NewSource(7))
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()*3 + 5
	}

	out, err := bn.Forward(x)
	require.NoError(t, err)
	require.Equal(t, x.Shape, out.Shape)

	// With gamma=1, beta=0 each channel is standardized over batch and
	// spatial positions.
	plane := 9
	for c := 0; c < 2; c++ {
		var sum, sumSq float64
		n := 0
		for b := 0; b < 2; b++ {
			base := (b*2 + c) * plane
			for i := 0; i < plane; i++ {
				v := out.Data[base+i]
				sum += v
				sumSq += v * v
				n++
			}
		}
		mean := sum / float64(n)
		variance := sumSq/float64(n) - mean*mean
		assert.InDelta(t, 0.0, mean, 1e-9, "channel %d mean", c)
		assert.InDelta(t, 1.0, variance, 1e-4, "channel %d variance", c)
	}
}

func TestBatchNormAffine(t *testing.T) {
	bn := NewBatchNorm2D(1)
	bn.Gamma.Data[0] = 2.0
	bn.Beta.Data[0] = -1.0

	x := tensor.New(1, 1, 2, 2)
	copy(x.Data, []float64{-1, 0, 1, 2})

	out, err := bn.Forward(x)
	require.NoError(t, err)

	// Standardized values are scaled by gamma then shifted by beta, so the
	// batch mean of the output equals beta.
	mean := (out.Data[0] + out.Data[1] + out.Data[2] + out.Data[3]) / 4
	assert.InDelta(t, -1.0, mean, 1e-9)
}

func TestBatchNormEvalUsesRunningStats(t *testing.T) {
	bn := NewBatchNorm2D(1)
	bn.SetTraining(false)
	bn.RunningMean.Data[0] = 10
	bn.RunningVar.Data[0] = 4

	x := tensor.New(1, 1, 1, 2)
	copy(x.Data, []float64{10, 14})

	out, err := bn.Forward(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out.Data[0], 1e-5)
	assert.InDelta(t, 2.0, out.Data[1], 1e-3)
}

func TestBatchNormTrainingUpdatesRunningStats(t *testing.T) {
	bn := NewBatchNorm2D(1)

	x := tensor.New(1, 1, 2, 2)
	copy(x.Data, []float64{2, 2, 2, 2})

	_, err := bn.Forward(x)
	require.NoError(t, err)

	// momentum 0.1: running mean moves from 0 toward the batch mean 2.
	assert.InDelta(t, 0.2, bn.RunningMean.Data[0], 1e-12)
}

func TestBatchNormRejectsChannelMismatch(t *testing.T) {
	bn := NewBatchNorm2D(3)
	_, err := bn.Forward(tensor.New(1, 2, 4, 4))
	require.Error(t, err)

	_, err = bn.Forward(tensor.New(2, 4, 4))
	require.Error(t, err)
}
