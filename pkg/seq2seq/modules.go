package seq2seq

import (
	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// normEps is added to the standard deviation in every layer norm.
const normEps = 1e-6

// Seq is a batch of equal-length hidden-state sequences stored as a
// (Batch*Len, d_model) tensor.
type Seq struct {
	X     *torch.Tensor
	Batch int
	Len   int
}

// with returns a sequence with the same layout holding x.
func (s Seq) with(x *torch.Tensor) Seq {
	return Seq{X: x, Batch: s.Batch, Len: s.Len}
}

// Context carries what a layer needs besides its input: the encoder
// memory for cross-attention, the masks, and the training state.
type Context struct {
	// Memory is the encoder output; nil inside the encoder.
	Memory  *Seq
	SrcMask *Mask
	TgtMask *Mask
	// Train enables dropout.
	Train bool
	RNG   *rand.Rand
}

func (c *Context) dropout(x *torch.Tensor, p float64) *torch.Tensor {
	if c == nil || !c.Train {
		return x
	}
	return torch.Dropout(x, p, c.RNG)
}

func (c *Context) rng() *rand.Rand {
	if c == nil || !c.Train {
		return nil
	}
	return c.RNG
}

// Layer transforms a sequence given optional memory and masks.
type Layer interface {
	Forward(x Seq, ctx *Context) (Seq, error)
	Parameters() []*torch.Tensor
}

// Linear is an affine projection x @ W + B.
type Linear struct {
	W *torch.Tensor
	B *torch.Tensor
}

// NewLinear returns a Glorot-initialized projection from in to out
// features with a zero bias.
func NewLinear(name string, in, out int, src rand.Source) *Linear {
	return &Linear{
		W: torch.NewParam(name+".weight", torch.XavierUniform(in, out, src)),
		B: torch.NewParam(name+".bias", mat.NewDense(1, out, nil)),
	}
}

// Forward applies the projection to every row.
func (l *Linear) Forward(x *torch.Tensor) *torch.Tensor {
	return torch.Linear(x, l.W, l.B)
}

// Parameters returns the weight and bias.
func (l *Linear) Parameters() []*torch.Tensor {
	return []*torch.Tensor{l.W, l.B}
}

// LayerNorm normalizes each row with a learned gain and bias.
type LayerNorm struct {
	Gain *torch.Tensor
	Bias *torch.Tensor
}

// NewLayerNorm returns a layer norm over size features initialized to the
// identity.
func NewLayerNorm(name string, size int) *LayerNorm {
	ones := make([]float64, size)
	for i := range ones {
		ones[i] = 1
	}
	return &LayerNorm{
		Gain: torch.NewParam(name+".gain", mat.NewDense(1, size, ones)),
		Bias: torch.NewParam(name+".bias", mat.NewDense(1, size, nil)),
	}
}

// Forward normalizes x.
func (n *LayerNorm) Forward(x *torch.Tensor) *torch.Tensor {
	return torch.LayerNorm(x, n.Gain, n.Bias, normEps)
}

// Parameters returns the gain and bias.
func (n *LayerNorm) Parameters() []*torch.Tensor {
	return []*torch.Tensor{n.Gain, n.Bias}
}
