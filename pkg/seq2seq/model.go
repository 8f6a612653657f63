package seq2seq

import (
	"fmt"
	"time"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
)

// Model is the encoder-decoder translation model.
type Model struct {
	// Config is the configuration the model was built with.
	Config Config
	// SrcVocab and TgtVocab are the vocabulary sizes.
	SrcVocab int
	TgtVocab int

	SrcEmbed  *Embeddings
	TgtEmbed  *Embeddings
	Position  *PositionalEncoding
	Encoder   *Stack
	Decoder   *Stack
	Generator *Generator

	training bool
	rng      *rand.Rand
}

// BuildModel returns a model with Glorot-uniform initialized weights. The
// configuration is validated before anything is allocated.
func BuildModel(srcVocab, tgtVocab int, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if srcVocab <= 0 || tgtVocab <= 0 {
		return nil, fmt.Errorf("vocabulary sizes must be positive, got %d and %d", srcVocab, tgtVocab)
	}
	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)
	encoder, err := NewEncoder(cfg, src)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(cfg, src)
	if err != nil {
		return nil, err
	}
	return &Model{
		Config:    cfg,
		SrcVocab:  srcVocab,
		TgtVocab:  tgtVocab,
		SrcEmbed:  NewEmbeddings("src_embed", srcVocab, cfg.DModel, src),
		TgtEmbed:  NewEmbeddings("tgt_embed", tgtVocab, cfg.DModel, src),
		Position:  NewPositionalEncoding(cfg.DModel, cfg.MaxLen, cfg.Dropout),
		Encoder:   encoder,
		Decoder:   decoder,
		Generator: NewGenerator(cfg.DModel, tgtVocab, src),
		rng:       rand.New(rand.NewSource(seed + 1)),
	}, nil
}

// SetTraining switches dropout on or off.
func (m *Model) SetTraining(training bool) {
	m.training = training
}

// Training reports whether dropout is active.
func (m *Model) Training() bool {
	return m.training
}

func (m *Model) context(memory *Seq, srcMask, tgtMask *Mask) *Context {
	return &Context{
		Memory:  memory,
		SrcMask: srcMask,
		TgtMask: tgtMask,
		Train:   m.training,
		RNG:     m.rng,
	}
}

func (m *Model) embed(e *Embeddings, ids [][]int, ctx *Context) (Seq, error) {
	x, err := e.Forward(ids)
	if err != nil {
		return Seq{}, err
	}
	return m.Position.Forward(x, ctx)
}

// Encode returns the encoder memory for src.
func (m *Model) Encode(src [][]int, srcMask *Mask) (Seq, error) {
	ctx := m.context(nil, srcMask, nil)
	x, err := m.embed(m.SrcEmbed, src, ctx)
	if err != nil {
		return Seq{}, fmt.Errorf("embedding source: %w", err)
	}
	return m.Encoder.Forward(x, ctx)
}

// Decode returns the decoder hidden states for tgt given the memory.
func (m *Model) Decode(memory Seq, srcMask *Mask, tgt [][]int, tgtMask *Mask) (Seq, error) {
	ctx := m.context(&memory, srcMask, tgtMask)
	x, err := m.embed(m.TgtEmbed, tgt, ctx)
	if err != nil {
		return Seq{}, fmt.Errorf("embedding target: %w", err)
	}
	return m.Decoder.Forward(x, ctx)
}

// Forward encodes src and decodes tgt, returning the decoder hidden
// states. Apply Generator to obtain log-probabilities.
func (m *Model) Forward(src, tgt [][]int, srcMask, tgtMask *Mask) (Seq, error) {
	memory, err := m.Encode(src, srcMask)
	if err != nil {
		return Seq{}, err
	}
	return m.Decode(memory, srcMask, tgt, tgtMask)
}

// Parameters returns every trainable tensor in a fixed order.
func (m *Model) Parameters() []*torch.Tensor {
	var out []*torch.Tensor
	out = append(out, m.SrcEmbed.Parameters()...)
	out = append(out, m.TgtEmbed.Parameters()...)
	out = append(out, m.Encoder.Parameters()...)
	out = append(out, m.Decoder.Parameters()...)
	return append(out, m.Generator.Parameters()...)
}

// NumParameters returns the total number of scalar parameters.
func (m *Model) NumParameters() int {
	var n int
	for _, p := range m.Parameters() {
		r, c := p.Dims()
		n += r * c
	}
	return n
}

// ZeroGradient resets every parameter gradient.
func (m *Model) ZeroGradient() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}
