package nn

import (
	"math"
	"math/rand"
	"testing"

	"deconvnet/nn/layers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterRMS(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(w)))
}

// normTestNetwork has one 2-filter stage with 1x2x2 kernels.
func normTestNetwork(t *testing.T) *Network {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	stages := []*layers.ConvStage{layers.NewConvStage(1, 2, 2, 1, rng)}
	n, err := FromStages(stages, layers.NewLinear(4, 2, rng))
	require.NoError(t, err)
	return n
}

func TestNormalizeExactScale(t *testing.T) {
	n := normTestNetwork(t)
	w := n.Stage(1).W
	for i := range w.Data {
		w.Data[i] = 0.5 // RMS of every filter is exactly 0.5
	}

	info := n.NormalizeFilters(0.1)

	require.Contains(t, info, 0)
	require.Equal(t, []int{0, 1}, info[0].Indices)
	for _, scale := range info[0].Scales {
		assert.InDelta(t, 0.2, scale, 1e-12)
	}

	filterSize := len(w.Data) / 2
	for f := 0; f < 2; f++ {
		rms := filterRMS(w.Data[f*filterSize : (f+1)*filterSize])
		assert.InDelta(t, 0.1, rms, 1e-6)
	}
}

func TestNormalizeLeavesSmallFiltersUntouched(t *testing.T) {
	n := normTestNetwork(t)
	w := n.Stage(1).W
	filterSize := len(w.Data) / 2

	// Filter 0 under the radius, filter 1 well over it.
	for i := 0; i < filterSize; i++ {
		w.Data[i] = 0.01
		w.Data[filterSize+i] = 3.0
	}
	before := append([]float64(nil), w.Data...)

	info := n.NormalizeFilters(0.1)

	require.Contains(t, info, 0)
	assert.Equal(t, []int{1}, info[0].Indices)

	// Under-threshold filter is bit-for-bit unchanged.
	assert.Equal(t, before[:filterSize], w.Data[:filterSize])

	rms := filterRMS(w.Data[filterSize:])
	assert.LessOrEqual(t, rms, 0.1+1e-9)
}

func TestNormalizeIdempotent(t *testing.T) {
	n := normTestNetwork(t)
	w := n.Stage(1).W
	rng := rand.New(rand.NewSource(9))
	for i := range w.Data {
		w.Data[i] = rng.NormFloat64()
	}

	n.NormalizeFilters(0.1)
	after := append([]float64(nil), w.Data...)

	info := n.NormalizeFilters(0.1)
	assert.Empty(t, info, "second application must rescale nothing")
	assert.Equal(t, after, w.Data)
}

func TestNormalizeNoExceedingFilters(t *testing.T) {
	n := normTestNetwork(t)
	for i := range n.Stage(1).W.Data {
		n.Stage(1).W.Data[i] = 0.001
	}
	assert.Empty(t, n.NormalizeFilters(0.1))
}
