package seq2seq

import (
	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
)

// Generator projects hidden states to log-probabilities over the target
// vocabulary.
type Generator struct {
	Proj *Linear
}

// NewGenerator returns a projection from dModel to vocab.
func NewGenerator(dModel, vocab int, src rand.Source) *Generator {
	return &Generator{Proj: NewLinear("generator", dModel, vocab, src)}
}

// Forward returns (rows, vocab) log-probabilities.
func (g *Generator) Forward(x *torch.Tensor) *torch.Tensor {
	return torch.LogSoftmax(g.Proj.Forward(x))
}

// Parameters returns the projection's parameters.
func (g *Generator) Parameters() []*torch.Tensor {
	return g.Proj.Parameters()
}
