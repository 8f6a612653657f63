package seq2seq

import (
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
)

// Sublayer wraps a block with pre-normalization, dropout and a residual
// connection: x + dropout(f(norm(x))).
type Sublayer struct {
	Norm    *LayerNorm
	Dropout float64
}

// NewSublayer returns a sublayer over size features.
func NewSublayer(name string, size int, dropout float64) *Sublayer {
	return &Sublayer{Norm: NewLayerNorm(name+".norm", size), Dropout: dropout}
}

// Apply runs f on the normalized input and adds the result back to x.
func (s *Sublayer) Apply(x Seq, ctx *Context, f func(Seq) (Seq, error)) (Seq, error) {
	y, err := f(x.with(s.Norm.Forward(x.X)))
	if err != nil {
		return Seq{}, err
	}
	return x.with(torch.Add(x.X, ctx.dropout(y.X, s.Dropout))), nil
}

// Parameters returns the norm parameters.
func (s *Sublayer) Parameters() []*torch.Tensor {
	return s.Norm.Parameters()
}

// FeedForward is the position-wise block W2(dropout(relu(W1 x))).
type FeedForward struct {
	W1      *Linear
	W2      *Linear
	Dropout float64
}

// NewFeedForward returns a block expanding dModel to dFF and back.
func NewFeedForward(name string, dModel, dFF int, dropout float64, src rand.Source) *FeedForward {
	return &FeedForward{
		W1:      NewLinear(name+".w1", dModel, dFF, src),
		W2:      NewLinear(name+".w2", dFF, dModel, src),
		Dropout: dropout,
	}
}

// Forward applies the block to every position.
func (f *FeedForward) Forward(x Seq, ctx *Context) (Seq, error) {
	h := ctx.dropout(torch.ReLU(f.W1.Forward(x.X)), f.Dropout)
	return x.with(f.W2.Forward(h)), nil
}

// Parameters returns both projections' parameters.
func (f *FeedForward) Parameters() []*torch.Tensor {
	return append(f.W1.Parameters(), f.W2.Parameters()...)
}

// EncoderLayer is self-attention followed by a feed-forward block, each in
// its own sublayer.
type EncoderLayer struct {
	SelfAttn    *MultiHeadAttention
	FeedForward *FeedForward
	Sublayers   [2]*Sublayer
}

// NewEncoderLayer returns an encoder layer with freshly initialized
// parameters.
func NewEncoderLayer(name string, cfg Config, src rand.Source) (*EncoderLayer, error) {
	attn, err := NewMultiHeadAttention(name+".self_attn", cfg.Heads, cfg.DModel, cfg.Dropout, src)
	if err != nil {
		return nil, err
	}
	return &EncoderLayer{
		SelfAttn:    attn,
		FeedForward: NewFeedForward(name+".ff", cfg.DModel, cfg.DFF, cfg.Dropout, src),
		Sublayers: [2]*Sublayer{
			NewSublayer(name+".sub0", cfg.DModel, cfg.Dropout),
			NewSublayer(name+".sub1", cfg.DModel, cfg.Dropout),
		},
	}, nil
}

// Forward attends over x under the source mask.
func (l *EncoderLayer) Forward(x Seq, ctx *Context) (Seq, error) {
	x, err := l.Sublayers[0].Apply(x, ctx, func(n Seq) (Seq, error) {
		return l.SelfAttn.Attend(n, n, n, ctx.SrcMask, ctx)
	})
	if err != nil {
		return Seq{}, err
	}
	return l.Sublayers[1].Apply(x, ctx, func(n Seq) (Seq, error) {
		return l.FeedForward.Forward(n, ctx)
	})
}

// Parameters returns every parameter of the layer.
func (l *EncoderLayer) Parameters() []*torch.Tensor {
	out := l.SelfAttn.Parameters()
	out = append(out, l.FeedForward.Parameters()...)
	for _, s := range l.Sublayers {
		out = append(out, s.Parameters()...)
	}
	return out
}

// DecoderLayer is masked self-attention, cross-attention over the encoder
// memory and a feed-forward block, each in its own sublayer.
type DecoderLayer struct {
	SelfAttn    *MultiHeadAttention
	SrcAttn     *MultiHeadAttention
	FeedForward *FeedForward
	Sublayers   [3]*Sublayer
}

// NewDecoderLayer returns a decoder layer with freshly initialized
// parameters.
func NewDecoderLayer(name string, cfg Config, src rand.Source) (*DecoderLayer, error) {
	self, err := NewMultiHeadAttention(name+".self_attn", cfg.Heads, cfg.DModel, cfg.Dropout, src)
	if err != nil {
		return nil, err
	}
	cross, err := NewMultiHeadAttention(name+".src_attn", cfg.Heads, cfg.DModel, cfg.Dropout, src)
	if err != nil {
		return nil, err
	}
	return &DecoderLayer{
		SelfAttn:    self,
		SrcAttn:     cross,
		FeedForward: NewFeedForward(name+".ff", cfg.DModel, cfg.DFF, cfg.Dropout, src),
		Sublayers: [3]*Sublayer{
			NewSublayer(name+".sub0", cfg.DModel, cfg.Dropout),
			NewSublayer(name+".sub1", cfg.DModel, cfg.Dropout),
			NewSublayer(name+".sub2", cfg.DModel, cfg.Dropout),
		},
	}, nil
}

// Forward decodes x against ctx.Memory. The target mask keeps each position
// from seeing later ones; the source mask hides memory padding.
func (l *DecoderLayer) Forward(x Seq, ctx *Context) (Seq, error) {
	if ctx == nil || ctx.Memory == nil {
		return Seq{}, fmt.Errorf("decoder layer needs encoder memory")
	}
	m := *ctx.Memory
	x, err := l.Sublayers[0].Apply(x, ctx, func(n Seq) (Seq, error) {
		return l.SelfAttn.Attend(n, n, n, ctx.TgtMask, ctx)
	})
	if err != nil {
		return Seq{}, err
	}
	x, err = l.Sublayers[1].Apply(x, ctx, func(n Seq) (Seq, error) {
		return l.SrcAttn.Attend(n, m, m, ctx.SrcMask, ctx)
	})
	if err != nil {
		return Seq{}, err
	}
	return l.Sublayers[2].Apply(x, ctx, func(n Seq) (Seq, error) {
		return l.FeedForward.Forward(n, ctx)
	})
}

// Parameters returns every parameter of the layer.
func (l *DecoderLayer) Parameters() []*torch.Tensor {
	out := l.SelfAttn.Parameters()
	out = append(out, l.SrcAttn.Parameters()...)
	out = append(out, l.FeedForward.Parameters()...)
	for _, s := range l.Sublayers {
		out = append(out, s.Parameters()...)
	}
	return out
}

// Stack runs independently parameterized layers in order and normalizes
// the result once more.
type Stack struct {
	Layers []Layer
	Norm   *LayerNorm
}

// Forward runs every layer then the final norm.
func (s *Stack) Forward(x Seq, ctx *Context) (Seq, error) {
	var err error
	for i, l := range s.Layers {
		x, err = l.Forward(x, ctx)
		if err != nil {
			return Seq{}, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return x.with(s.Norm.Forward(x.X)), nil
}

// Parameters returns every layer's parameters followed by the final norm.
func (s *Stack) Parameters() []*torch.Tensor {
	var out []*torch.Tensor
	for _, l := range s.Layers {
		out = append(out, l.Parameters()...)
	}
	return append(out, s.Norm.Parameters()...)
}

// NewEncoder returns a stack of cfg.Layers encoder layers.
func NewEncoder(cfg Config, src rand.Source) (*Stack, error) {
	layers := make([]Layer, cfg.Layers)
	for i := range layers {
		l, err := NewEncoderLayer(fmt.Sprintf("encoder.%d", i), cfg, src)
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}
	return &Stack{Layers: layers, Norm: NewLayerNorm("encoder.norm", cfg.DModel)}, nil
}

// NewDecoder returns a stack of cfg.Layers decoder layers.
func NewDecoder(cfg Config, src rand.Source) (*Stack, error) {
	layers := make([]Layer, cfg.Layers)
	for i := range layers {
		l, err := NewDecoderLayer(fmt.Sprintf("decoder.%d", i), cfg, src)
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}
	return &Stack{Layers: layers, Norm: NewLayerNorm("decoder.norm", cfg.DModel)}, nil
}
