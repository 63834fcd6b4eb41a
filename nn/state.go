package nn

import (
	"deconvnet/nn/layers"
	"deconvnet/tensor"
)

// ModelState aggregates one full forward pass. It is created once per
// Forward call and never mutated afterwards, so it can be read by multiple
// consumers.
type ModelState struct {
	// Logits is the classifier output [batch, classes].
	Logits *tensor.Tensor
	// LayerStates holds one record per stage, index 0 = first stage.
	LayerStates []*layers.LayerState
	// Features is the pre-flatten output of the final stage, if captured.
	Features *tensor.Tensor
}

// FinalFeatures returns the explicit feature capture when present and falls
// back to the last stage's pooled output otherwise.
func (m *ModelState) FinalFeatures() *tensor.Tensor {
	if m.Features != nil {
		return m.Features
	}
	return m.LayerStates[len(m.LayerStates)-1].Output
}
