package nn

import (
	"fmt"
	"math"

	"deconvnet/tensor"
)

// Softmax applies the softmax function row-wise to logits [batch, classes].
func Softmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("Softmax: logits must be 2D [batch, classes], got %v", logits.Shape)
	}
	batch, classes := logits.Shape[0], logits.Shape[1]
	out := tensor.New(batch, classes)
	for b := 0; b < batch; b++ {
		row := logits.Data[b*classes : (b+1)*classes]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		expSum := 0.0
		outRow := out.Data[b*classes : (b+1)*classes]
		for i, v := range row {
			e := math.Exp(v - maxLogit)
			outRow[i] = e
			expSum += e
		}
		for i := range outRow {
			outRow[i] /= expSum
		}
	}
	return out, nil
}

// CrossEntropyLoss is softmax cross-entropy over integer class labels. It is
// used only by external training drivers; the core never computes loss.
type CrossEntropyLoss struct{}

// Forward returns the mean negative log-likelihood of labels under the
// row-wise softmax of logits.
func (CrossEntropyLoss) Forward(logits *tensor.Tensor, labels []int) (float64, error) {
	probs, err := Softmax(logits)
	if err != nil {
		return 0, err
	}
	batch, classes := logits.Shape[0], logits.Shape[1]
	if len(labels) != batch {
		return 0, fmt.Errorf("CrossEntropyLoss: %d labels for batch of %d", len(labels), batch)
	}
	total := 0.0
	for b, label := range labels {
		if label < 0 || label >= classes {
			return 0, fmt.Errorf("CrossEntropyLoss: label %d out of range [0, %d)", label, classes)
		}
		total += -math.Log(math.Max(probs.Data[b*classes+label], 1e-12))
	}
	return total / float64(batch), nil
}

// Backward returns the gradient of the mean loss with respect to the logits:
// (softmax - one_hot) / batch.
func (CrossEntropyLoss) Backward(logits *tensor.Tensor, labels []int) (*tensor.Tensor, error) {
	grad, err := Softmax(logits)
	if err != nil {
		return nil, err
	}
	batch, classes := logits.Shape[0], logits.Shape[1]
	if len(labels) != batch {
		return nil, fmt.Errorf("CrossEntropyLoss: %d labels for batch of %d", len(labels), batch)
	}
	inv := 1.0 / float64(batch)
	for b, label := range labels {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("CrossEntropyLoss: label %d out of range [0, %d)", label, classes)
		}
		grad.Data[b*classes+label] -= 1
		for i := b * classes; i < (b+1)*classes; i++ {
			grad.Data[i] *= inv
		}
	}
	return grad, nil
}
