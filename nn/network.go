package nn

import (
	"fmt"
	"math/rand"

	"deconvnet/nn/layers"
	"deconvnet/tensor"
	"deconvnet/utils"
)

// inputChannels is the number of channels of the network input (RGB).
const inputChannels = 3

// finalSpatial is the spatial side of the last stage's pooled output for the
// documented 224x224 pipeline: 224 -> conv s2 112 -> pool 56 -> pool 28 ->
// pool 14 -> pool 7. The classifier input size is derived from it.
const finalSpatial = 7

// Network orders the convolutional stages, their mirrored reversal stages,
// and the linear classifier.
type Network struct {
	stages  []*layers.ConvStage
	deconv  []*layers.DeconvStage
	pairing []int // stage index -> index into deconv, fixed at construction
	fc      *layers.Linear
}

// New builds the four-stage network described by cfg. The first stage runs
// at stride 2, the remaining stages at stride 1. Weight initialization is
// deterministic in seed.
func New(cfg utils.Config, seed int64) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("network config: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))

	channels := []int{cfg.Conv1Channels, cfg.Conv2Channels, cfg.Conv3Channels, cfg.Conv4Channels}
	stages := make([]*layers.ConvStage, 0, len(channels))
	in := inputChannels
	for i, out := range channels {
		stride := 1
		if i == 0 {
			stride = 2
		}
		stages = append(stages, layers.NewConvStage(in, out, cfg.KernelSize, stride, rng))
		in = out
	}

	fc := layers.NewLinear(cfg.Conv4Channels*finalSpatial*finalSpatial, cfg.FCUnits, rng)

	return FromStages(stages, fc)
}

// FromStages assembles a network from explicit stages and classifier,
// verifying that consecutive stages agree on channel counts. The mirrored
// deconvolution stages and the pairing table are built here, once.
func FromStages(stages []*layers.ConvStage, fc *layers.Linear) (*Network, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("network needs at least one stage")
	}
	for i := 1; i < len(stages); i++ {
		if stages[i].InChannels() != stages[i-1].OutChannels() {
			return nil, fmt.Errorf("stage %d expects %d input channels but stage %d produces %d",
				i+1, stages[i].InChannels(), i, stages[i-1].OutChannels())
		}
	}

	n := len(stages)
	deconv := make([]*layers.DeconvStage, n)
	pairing := make([]int, n)
	for i, s := range stages {
		deconv[n-1-i] = layers.NewDeconvStage(s)
		pairing[i] = n - 1 - i
	}

	return &Network{stages: stages, deconv: deconv, pairing: pairing, fc: fc}, nil
}

// NumStages returns the number of convolutional stages.
func (n *Network) NumStages() int { return len(n.stages) }

// Stage returns the 1-indexed convolutional stage.
func (n *Network) Stage(i int) *layers.ConvStage { return n.stages[i-1] }

// Classifier returns the linear classification head.
func (n *Network) Classifier() *layers.Linear { return n.fc }

// SetTraining switches every normalization layer between batch and running
// statistics.
func (n *Network) SetTraining(training bool) {
	for _, s := range n.stages {
		s.BN.SetTraining(training)
	}
}

// Forward runs x of shape [batch, 3, H, W] through every stage in order,
// then flattens the final output and applies the classifier. The returned
// ModelState carries the per-stage records needed to reverse this exact
// call.
func (n *Network) Forward(x *tensor.Tensor) (*ModelState, error) {
	states := make([]*layers.LayerState, 0, len(n.stages))

	cur := x
	for i, stage := range n.stages {
		state, err := stage.Forward(cur)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if i == len(n.stages)-1 {
			// The final record is cloned so downstream consumers of the
			// feature capture cannot alias the aggregated state.
			state = state.Clone()
		}
		states = append(states, state)
		cur = state.Output
	}

	features := cur
	batch := features.Shape[0]
	flat, err := features.Reshape(batch, len(features.Data)/batch)
	if err != nil {
		return nil, fmt.Errorf("flatten features: %w", err)
	}

	logits, err := n.fc.Forward(flat)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	return &ModelState{Logits: logits, LayerStates: states, Features: features}, nil
}

// Visualize projects featureMaps at the given 1-indexed stage back to
// input-pixel space, consuming the pooling records of the forward call that
// produced state. Supplying records from a different forward call than the
// feature maps is undefined; no cross-check is performed. Callers must not
// interleave weight updates with a running visualization.
func (n *Network) Visualize(featureMaps *tensor.Tensor, state *ModelState, layer int) (*tensor.Tensor, error) {
	if layer < 1 || layer > len(n.stages) {
		return nil, fmt.Errorf("layer %d not supported for visualization: want 1..%d", layer, len(n.stages))
	}

	x := featureMaps
	for stage := layer; stage >= 1; stage-- {
		d := n.deconv[n.pairing[stage-1]]
		out, err := d.Forward(x, state.LayerStates[stage-1])
		if err != nil {
			return nil, fmt.Errorf("reversing stage %d: %w", stage, err)
		}
		x = out
	}
	return x, nil
}

// Params returns the persisted-parameter mapping: dotted names to the live
// parameter tensors. The deconvolution stages contribute no entries of
// their own.
func (n *Network) Params() map[string]*tensor.Tensor {
	params := make(map[string]*tensor.Tensor)
	for i, s := range n.stages {
		prefix := fmt.Sprintf("conv_layers.%d.", i)
		params[prefix+"conv.weight"] = s.W
		params[prefix+"conv.bias"] = s.B
		params[prefix+"bn.weight"] = s.BN.Gamma
		params[prefix+"bn.bias"] = s.BN.Beta
		params[prefix+"bn.running_mean"] = s.BN.RunningMean
		params[prefix+"bn.running_var"] = s.BN.RunningVar
	}
	params["fc.weight"] = n.fc.W
	params["fc.bias"] = n.fc.B
	return params
}

// LoadParams applies every recognized entry of params to the network.
// Unrecognized names are ignored and missing names are tolerated, so a
// partial mapping always loads; a recognized name with the wrong shape is an
// error. Values are copied into the existing tensors in place, keeping the
// storage the deconvolution stages reference.
func (n *Network) LoadParams(params map[string]*tensor.Tensor) error {
	own := n.Params()
	for name, src := range params {
		dst, ok := own[name]
		if !ok {
			continue
		}
		if !tensor.SameShape(src, dst) {
			return fmt.Errorf("parameter %q: shape %v does not fit %v", name, src.Shape, dst.Shape)
		}
		copy(dst.Data, src.Data)
	}
	return nil
}
