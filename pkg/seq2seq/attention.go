package seq2seq

import (
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// MultiHeadAttention projects queries, keys and values, attends in Heads
// parallel subspaces and projects the concatenated heads back.
type MultiHeadAttention struct {
	Heads   int
	DModel  int
	Dropout float64
	Query   *Linear
	Key     *Linear
	Value   *Linear
	Output  *Linear

	// Weights holds the attention probabilities of the last forward call,
	// one (Lq, Lk) matrix per sequence and head, indexed b*Heads+h.
	Weights []*mat.Dense
}

// NewMultiHeadAttention returns an attention block, failing when heads
// does not divide dModel.
func NewMultiHeadAttention(name string, heads, dModel int, dropout float64, src rand.Source) (*MultiHeadAttention, error) {
	if heads <= 0 || dModel%heads != 0 {
		return nil, fmt.Errorf("%w: d_model=%d heads=%d", ErrHeadsDivide, dModel, heads)
	}
	return &MultiHeadAttention{
		Heads:   heads,
		DModel:  dModel,
		Dropout: dropout,
		Query:   NewLinear(name+".query", dModel, dModel, src),
		Key:     NewLinear(name+".key", dModel, dModel, src),
		Value:   NewLinear(name+".value", dModel, dModel, src),
		Output:  NewLinear(name+".output", dModel, dModel, src),
	}, nil
}

// Attend attends from query to key/value. Positions hidden by mask get zero
// weight; a nil mask hides nothing.
func (m *MultiHeadAttention) Attend(query, key, value Seq, mask *Mask, ctx *Context) (Seq, error) {
	if query.Batch != key.Batch || key.Batch != value.Batch || key.Len != value.Len {
		return Seq{}, fmt.Errorf("attention inputs disagree: query %dx%d key %dx%d value %dx%d",
			query.Batch, query.Len, key.Batch, key.Len, value.Batch, value.Len)
	}
	var masker torch.Masker
	if mask != nil {
		masker = mask
	}
	shape := torch.AttentionShape{
		Batch:    query.Batch,
		Heads:    m.Heads,
		QueryLen: query.Len,
		KeyLen:   key.Len,
	}
	heads, weights, err := torch.Attention(
		m.Query.Forward(query.X),
		m.Key.Forward(key.X),
		m.Value.Forward(value.X),
		shape, masker, m.Dropout, ctx.rng(),
	)
	if err != nil {
		return Seq{}, err
	}
	m.Weights = weights
	return query.with(m.Output.Forward(heads)), nil
}

// Parameters returns the four projections' parameters.
func (m *MultiHeadAttention) Parameters() []*torch.Tensor {
	var out []*torch.Tensor
	for _, l := range []*Linear{m.Query, m.Key, m.Value, m.Output} {
		out = append(out, l.Parameters()...)
	}
	return out
}
