package torch

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Masker reports whether query position i of sequence b may attend to key
// position j.
type Masker interface {
	Allowed(b, i, j int) bool
}

// AttentionShape describes how the rows and columns of the attention inputs
// split into sequences and heads.
type AttentionShape struct {
	Batch    int
	Heads    int
	QueryLen int
	KeyLen   int
}

// block returns the rows of sequence b and the columns of head h.
func block(m *mat.Dense, b, rows, h, dk int) *mat.Dense {
	return m.Slice(b*rows, (b+1)*rows, h*dk, (h+1)*dk).(*mat.Dense)
}

// Attention is scaled dot-product attention over every (sequence, head)
// pair, computed concurrently.
//
// Scores at positions the mask disallows are replaced by MaskedFill before
// the softmax, so they receive zero weight. With dropout > 0 and a non-nil
// rng, the attention probabilities are dropped out before they weight the
// values. The returned weights are the probabilities before dropout, one
// (QueryLen, KeyLen) matrix per sequence and head, indexed b*Heads+h.
//
// Parameters:
//   - q: queries (Batch*QueryLen, D)
//   - k: keys (Batch*KeyLen, D)
//   - v: values (Batch*KeyLen, D)
//   - s: batch, head and length layout
//   - mask: may be nil
func Attention(q, k, v *Tensor, s AttentionShape, mask Masker, dropout float64, rng *rand.Rand) (*Tensor, []*mat.Dense, error) {
	qr, D := q.Dims()
	kr, kc := k.Dims()
	vr, vc := v.Dims()
	switch {
	case s.Heads <= 0 || D%s.Heads != 0:
		return nil, nil, fmt.Errorf("width %d does not split into %d heads", D, s.Heads)
	case s.Batch <= 0 || s.QueryLen <= 0 || s.KeyLen <= 0:
		return nil, nil, fmt.Errorf("empty attention shape %+v", s)
	case qr != s.Batch*s.QueryLen:
		return nil, nil, fmt.Errorf("queries have %d rows, want %d", qr, s.Batch*s.QueryLen)
	case kr != s.Batch*s.KeyLen || vr != kr:
		return nil, nil, fmt.Errorf("keys/values have %d/%d rows, want %d", kr, vr, s.Batch*s.KeyLen)
	case kc != D || vc != D:
		return nil, nil, fmt.Errorf("keys/values have width %d/%d, want %d", kc, vc, D)
	}
	dk := D / s.Heads
	scale := 1 / math.Sqrt(float64(dk))
	Tq, Tk := s.QueryLen, s.KeyLen

	// rng is not safe for concurrent use, so dropout masks are drawn up front.
	drops := make([]*mat.Dense, s.Batch*s.Heads)
	if dropout > 0 && rng != nil {
		keep := 1 / (1 - dropout)
		for i := range drops {
			data := make([]float64, Tq*Tk)
			for j := range data {
				if rng.Float64() >= dropout {
					data[j] = keep
				}
			}
			drops[i] = mat.NewDense(Tq, Tk, data)
		}
	}

	disallow := func(m *mat.Dense, b int, fill float64) {
		if mask == nil {
			return
		}
		for i := 0; i < Tq; i++ {
			for j := 0; j < Tk; j++ {
				if !mask.Allowed(b, i, j) {
					m.Set(i, j, fill)
				}
			}
		}
	}

	probs := make([]*mat.Dense, s.Batch*s.Heads)
	out := mat.NewDense(qr, D, nil)
	var wg sync.WaitGroup
	for b := 0; b < s.Batch; b++ {
		for h := 0; h < s.Heads; h++ {
			wg.Add(1)
			go func(b, h int) {
				defer wg.Done()
				idx := b*s.Heads + h
				qs := block(q.Value, b, Tq, h, dk)
				ks := block(k.Value, b, Tk, h, dk)
				vs := block(v.Value, b, Tk, h, dk)

				scores := mat.NewDense(Tq, Tk, nil)
				scores.Mul(qs, ks.T())
				scores.Scale(scale, scores)
				disallow(scores, b, MaskedFill)

				p := mat.NewDense(Tq, Tk, nil)
				SoftmaxForward(p.RawMatrix().Data, scores.RawMatrix().Data, Tq, Tk)
				probs[idx] = p

				pd := p
				if drops[idx] != nil {
					pd = new(mat.Dense)
					pd.MulElem(p, drops[idx])
				}
				var head mat.Dense
				head.Mul(pd, vs)
				block(out, b, Tq, h, dk).Copy(&head)
			}(b, h)
		}
	}
	wg.Wait()

	return newNode(out, func(g *mat.Dense) {
		dq := mat.NewDense(qr, D, nil)
		dkey := mat.NewDense(kr, D, nil)
		dv := mat.NewDense(vr, D, nil)
		var wg sync.WaitGroup
		for b := 0; b < s.Batch; b++ {
			for h := 0; h < s.Heads; h++ {
				wg.Add(1)
				go func(b, h int) {
					defer wg.Done()
					idx := b*s.Heads + h
					qs := block(q.Value, b, Tq, h, dk)
					ks := block(k.Value, b, Tk, h, dk)
					vs := block(v.Value, b, Tk, h, dk)
					gs := block(g, b, Tq, h, dk)
					p, drop := probs[idx], drops[idx]

					pd := p
					if drop != nil {
						pd = new(mat.Dense)
						pd.MulElem(p, drop)
					}
					var dvh mat.Dense
					dvh.Mul(pd.T(), gs)

					dp := mat.NewDense(Tq, Tk, nil)
					dp.Mul(gs, vs.T())
					if drop != nil {
						dp.MulElem(dp, drop)
					}
					ds := mat.NewDense(Tq, Tk, nil)
					SoftmaxBackward(ds.RawMatrix().Data, dp.RawMatrix().Data, p.RawMatrix().Data, Tq, Tk)
					disallow(ds, b, 0)
					ds.Scale(scale, ds)

					var dqh, dkh mat.Dense
					dqh.Mul(ds, ks)
					dkh.Mul(ds.T(), qs)
					block(dq, b, Tq, h, dk).Copy(&dqh)
					block(dkey, b, Tk, h, dk).Copy(&dkh)
					block(dv, b, Tk, h, dk).Copy(&dvh)
				}(b, h)
			}
		}
		wg.Wait()
		q.accumulate(dq)
		k.accumulate(dkey)
		v.accumulate(dv)
	}, q, k, v), probs, nil
}
