package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"deconvnet/tensor"
)

// WeightData is one serialized parameter tensor.
type WeightData struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint is the persisted-parameter document: a flat mapping from dotted
// parameter name (e.g. "conv_layers.0.conv.weight") to tensor data. Loading
// is lenient by construction; consumers decide which names they recognize
// and ignore the rest.
type Checkpoint struct {
	Version string                 `json:"version"`
	Params  map[string]*WeightData `json:"params"`
}

// NewCheckpoint wraps a live parameter mapping into a serializable document,
// copying the tensor data.
func NewCheckpoint(params map[string]*tensor.Tensor) *Checkpoint {
	ckpt := &Checkpoint{Version: "1", Params: make(map[string]*WeightData, len(params))}
	for name, t := range params {
		ckpt.Params[name] = &WeightData{
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float64(nil), t.Data...),
		}
	}
	return ckpt
}

// Tensors converts the checkpoint back into a parameter mapping.
func (c *Checkpoint) Tensors() map[string]*tensor.Tensor {
	params := make(map[string]*tensor.Tensor, len(c.Params))
	for name, wd := range c.Params {
		t := tensor.New(wd.Shape...)
		copy(t.Data, wd.Data)
		params[name] = t
	}
	return params
}

// SaveCheckpoint writes a checkpoint to a JSON file.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadCheckpoint reads a checkpoint from a JSON file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &ckpt, nil
}
