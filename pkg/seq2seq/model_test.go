package seq2seq

import (
	"bytes"
	"math"
	"testing"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyConfig() Config {
	return Config{
		Layers:  2,
		DModel:  8,
		DFF:     16,
		Heads:   2,
		Dropout: 0.1,
		MaxLen:  32,
		Seed:    7,
	}
}

func tinyBatch(t *testing.T) *Batch {
	t.Helper()
	b, err := NewBatch(
		[][]int{{3, 4, 5, 6}, {7, 8}},
		[][]int{{1, 9, 10, 11, 2}, {1, 12, 2}},
		0,
	)
	require.NoError(t, err)
	return b
}

func TestBuildModelRejectsBadConfig(t *testing.T) {
	cfg := tinyConfig()
	cfg.Heads = 3
	_, err := BuildModel(10, 10, cfg)
	assert.ErrorIs(t, err, ErrHeadsDivide)

	_, err = NewMultiHeadAttention("attn", 3, 8, 0, nil)
	assert.ErrorIs(t, err, ErrHeadsDivide)

	_, err = BuildModel(0, 10, tinyConfig())
	assert.Error(t, err)

	cfg = tinyConfig()
	cfg.Dropout = 1
	_, err = BuildModel(10, 10, cfg)
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLayersOwnTheirParameters(t *testing.T) {
	m, err := BuildModel(16, 16, tinyConfig())
	require.NoError(t, err)

	seen := make(map[*torch.Tensor]bool)
	names := make(map[string]bool)
	for _, p := range m.Parameters() {
		assert.False(t, seen[p], "parameter %s shared", p.Name)
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		seen[p] = true
		names[p.Name] = true
	}

	first := m.Encoder.Layers[0].(*EncoderLayer).SelfAttn.Query.W
	second := m.Encoder.Layers[1].(*EncoderLayer).SelfAttn.Query.W
	assert.NotSame(t, first.Value, second.Value)
	before := second.Value.At(0, 0)
	first.Value.Set(0, 0, before+1)
	assert.Equal(t, before, second.Value.At(0, 0))
}

func TestPositionalEncoding(t *testing.T) {
	pe := NewPositionalEncoding(4, 10, 0)
	assert.Equal(t, []float64{0, 1, 0, 1}, pe.At(0))
	row := pe.At(3)
	assert.InDelta(t, math.Sin(3), row[0], 1e-12)
	assert.InDelta(t, math.Cos(3), row[1], 1e-12)
	assert.InDelta(t, math.Sin(3/100.0), row[2], 1e-12)
	assert.InDelta(t, math.Cos(3/100.0), row[3], 1e-12)

	m, err := BuildModel(16, 16, tinyConfig())
	require.NoError(t, err)
	long := make([]int, 33)
	_, err = m.Encode([][]int{long}, nil)
	assert.ErrorIs(t, err, ErrSequenceTooLong)
}

func TestForwardShapes(t *testing.T) {
	m, err := BuildModel(16, 20, tinyConfig())
	require.NoError(t, err)
	b := tinyBatch(t)

	out, err := m.Forward(b.Src, b.Tgt, b.SrcMask, b.TgtMask)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Batch)
	assert.Equal(t, 4, out.Len)
	r, c := out.X.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 8, c)

	logp := m.Generator.Forward(out.X)
	r, c = logp.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 20, c)
	for i := 0; i < r; i++ {
		var sum float64
		for _, v := range logp.Value.RawRowView(i) {
			sum += math.Exp(v)
		}
		assert.InDelta(t, 1, sum, 1e-9)
	}
}

func TestAttentionIgnoresPadding(t *testing.T) {
	m, err := BuildModel(16, 16, tinyConfig())
	require.NoError(t, err)
	b := tinyBatch(t)
	_, err = m.Forward(b.Src, b.Tgt, b.SrcMask, b.TgtMask)
	require.NoError(t, err)

	enc := m.Encoder.Layers[0].(*EncoderLayer).SelfAttn
	require.Len(t, enc.Weights, 4)
	for h := 0; h < 2; h++ {
		w := enc.Weights[1*2+h]
		for i := 0; i < 4; i++ {
			assert.Zero(t, w.At(i, 2))
			assert.Zero(t, w.At(i, 3))
			assert.InDelta(t, 1, w.At(i, 0)+w.At(i, 1), 1e-12)
		}
	}

	dec := m.Decoder.Layers[0].(*DecoderLayer).SelfAttn
	for _, w := range dec.Weights {
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				assert.Zero(t, w.At(i, j))
			}
		}
	}
}

// A change to a later target token must not affect earlier decoder
// outputs.
func TestDecoderIsCausal(t *testing.T) {
	m, err := BuildModel(16, 16, tinyConfig())
	require.NoError(t, err)
	src := [][]int{{3, 4, 5}}
	srcMask := PaddingMask(src, 0)

	a, err := m.Forward(src, [][]int{{1, 6, 7}}, srcMask, SubsequentMask(3))
	require.NoError(t, err)
	b, err := m.Forward(src, [][]int{{1, 6, 9}}, srcMask, SubsequentMask(3))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		assert.InDeltaSlice(t, a.X.Value.RawRowView(i), b.X.Value.RawRowView(i), 1e-12)
	}
	assert.NotEqual(t, a.X.Value.RawRowView(2), b.X.Value.RawRowView(2))
}

func TestModelGradient(t *testing.T) {
	m, err := BuildModel(16, 16, tinyConfig())
	require.NoError(t, err)
	b := tinyBatch(t)
	crit, err := NewLabelSmoothing(16, 0, 0.1)
	require.NoError(t, err)
	target := append(append([]int{}, b.TgtY[0]...), b.TgtY[1]...)

	loss := func() *torch.Tensor {
		out, err := m.Forward(b.Src, b.Tgt, b.SrcMask, b.TgtMask)
		require.NoError(t, err)
		l, err := crit.Loss(m.Generator.Forward(out.X), target)
		require.NoError(t, err)
		return l
	}

	require.NoError(t, loss().Backward())
	params := []*torch.Tensor{
		m.SrcEmbed.Table,
		m.Encoder.Layers[0].(*EncoderLayer).SelfAttn.Query.W,
		m.Decoder.Layers[1].(*DecoderLayer).SrcAttn.Key.W,
		m.Decoder.Layers[0].(*DecoderLayer).FeedForward.W1.B,
		m.Decoder.Norm.Gain,
	}
	const eps = 1e-6
	for _, p := range params {
		require.NotNil(t, p.Grad, p.Name)
		for _, ix := range [][2]int{{3, 1}, {0, 5}} {
			i, j := ix[0], ix[1]
			if r, _ := p.Dims(); i >= r {
				i = 0
			}
			orig := p.Value.At(i, j)
			p.Value.Set(i, j, orig+eps)
			lp := loss().Scalar()
			p.Value.Set(i, j, orig-eps)
			lm := loss().Scalar()
			p.Value.Set(i, j, orig)
			assert.InDelta(t, (lp-lm)/(2*eps), p.Grad.At(i, j), 1e-4, "%s[%d,%d]", p.Name, i, j)
		}
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	m, err := BuildModel(16, 20, tinyConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, m))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, m.SrcVocab, loaded.SrcVocab)
	assert.Equal(t, m.TgtVocab, loaded.TgtVocab)
	assert.Equal(t, m.Config.DModel, loaded.Config.DModel)
	assert.Equal(t, m.Config.Dropout, loaded.Config.Dropout)
	want, got := m.Parameters(), loaded.Parameters()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Value.RawMatrix().Data, got[i].Value.RawMatrix().Data, want[i].Name)
	}

	_, err = Load(bytes.NewReader(make([]byte, 4*headerLen)))
	assert.Error(t, err)
}
