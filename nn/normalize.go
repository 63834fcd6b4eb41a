package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultFilterRadius is the RMS radius used by ZF2013.
const DefaultFilterRadius = 0.1

// FilterNormInfo records which filters of a stage were rescaled and the
// factor applied to each. Diagnostic only.
type FilterNormInfo struct {
	Indices []int
	Scales  []float64
}

// NormalizeFilters projects every convolution filter whose RMS exceeds
// radius back onto the radius, leaving other filters untouched. It is a
// weight-space projection meant to run once after each parameter update,
// outside any gradient computation, and is idempotent: after one pass no
// filter's RMS can still exceed the radius.
//
// The returned map is keyed by 0-based stage index and contains only stages
// with at least one rescaled filter.
func (n *Network) NormalizeFilters(radius float64) map[int]*FilterNormInfo {
	info := make(map[int]*FilterNormInfo)
	for i, s := range n.stages {
		filterSize := len(s.W.Data) / s.OutChannels()
		var rescaled *FilterNormInfo
		for f := 0; f < s.OutChannels(); f++ {
			w := s.W.Data[f*filterSize : (f+1)*filterSize]
			rms := math.Sqrt(floats.Dot(w, w) / float64(filterSize))
			if rms <= radius {
				continue
			}
			scale := radius / rms
			floats.Scale(scale, w)
			if rescaled == nil {
				rescaled = &FilterNormInfo{}
			}
			rescaled.Indices = append(rescaled.Indices, f)
			rescaled.Scales = append(rescaled.Scales, scale)
		}
		if rescaled != nil {
			info[i] = rescaled
		}
	}
	return info
}
