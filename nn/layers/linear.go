package layers

import (
	"fmt"
	"math"
	"math/rand"

	"deconvnet/tensor"

	"gonum.org/v1/gonum/mat"
)

// Linear is a fully-connected layer mapping [batch, inDim] to [batch, outDim].
type Linear struct {
	inDim  int
	outDim int

	// W is [outDim, inDim]; B is [outDim].
	W *tensor.Tensor
	B *tensor.Tensor
}

// NewLinear creates a layer with uniform Kaiming-style initialization.
func NewLinear(inDim, outDim int, rng *rand.Rand) *Linear {
	l := &Linear{
		inDim:  inDim,
		outDim: outDim,
		W:      tensor.New(outDim, inDim),
		B:      tensor.New(outDim),
	}
	bound := 1.0 / math.Sqrt(float64(inDim))
	for i := range l.W.Data {
		l.W.Data[i] = (rng.Float64()*2 - 1) * bound
	}
	return l
}

func (l *Linear) InDim() int  { return l.inDim }
func (l *Linear) OutDim() int { return l.outDim }

// Forward computes x*W^T + B for a batch of row vectors.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("Linear: input must be 2D [batch, features], got %v", x.Shape)
	}
	batch, features := x.Shape[0], x.Shape[1]
	if features != l.inDim {
		return nil, fmt.Errorf("Linear: expected %d input features, got %d", l.inDim, features)
	}

	xm := mat.NewDense(batch, l.inDim, x.Data)
	wm := mat.NewDense(l.outDim, l.inDim, l.W.Data)

	var y mat.Dense
	y.Mul(xm, wm.T())

	out := tensor.New(batch, l.outDim)
	copy(out.Data, y.RawMatrix().Data)
	for b := 0; b < batch; b++ {
		row := out.Data[b*l.outDim : (b+1)*l.outDim]
		for j := range row {
			row[j] += l.B.Data[j]
		}
	}

	return out, nil
}
