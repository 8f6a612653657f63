package torch

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// MatMul returns a @ b.
func MatMul(a, b *Tensor) *Tensor {
	var out mat.Dense
	out.Mul(a.Value, b.Value)
	return newNode(&out, func(g *mat.Dense) {
		if a.requiresGrad {
			var da mat.Dense
			da.Mul(g, b.Value.T())
			a.accumulate(&da)
		}
		if b.requiresGrad {
			var db mat.Dense
			db.Mul(a.Value.T(), g)
			b.accumulate(&db)
		}
	}, a, b)
}

// Linear returns x @ w + bias, with bias broadcast over rows.
//
// Parameters:
//   - x: input (N, in)
//   - w: weight (in, out)
//   - bias: (1, out), or nil
func Linear(x, w, bias *Tensor) *Tensor {
	var out mat.Dense
	out.Mul(x.Value, w.Value)
	if bias != nil {
		b := bias.Value.RawRowView(0)
		r, _ := out.Dims()
		for i := 0; i < r; i++ {
			row := out.RawRowView(i)
			for j := range row {
				row[j] += b[j]
			}
		}
	}
	return newNode(&out, func(g *mat.Dense) {
		if x.requiresGrad {
			var dx mat.Dense
			dx.Mul(g, w.Value.T())
			x.accumulate(&dx)
		}
		if w.requiresGrad {
			var dw mat.Dense
			dw.Mul(x.Value.T(), g)
			w.accumulate(&dw)
		}
		if bias != nil && bias.requiresGrad {
			r, c := g.Dims()
			db := mat.NewDense(1, c, nil)
			drow := db.RawRowView(0)
			for i := 0; i < r; i++ {
				for j, v := range g.RawRowView(i) {
					drow[j] += v
				}
			}
			bias.accumulate(db)
		}
	}, x, w, bias)
}

// Add returns a + b for tensors of identical shape.
func Add(a, b *Tensor) *Tensor {
	var out mat.Dense
	out.Add(a.Value, b.Value)
	return newNode(&out, func(g *mat.Dense) {
		a.accumulate(g)
		b.accumulate(g)
	}, a, b)
}

// Scale returns s * a.
func Scale(a *Tensor, s float64) *Tensor {
	var out mat.Dense
	out.Scale(s, a.Value)
	return newNode(&out, func(g *mat.Dense) {
		var da mat.Dense
		da.Scale(s, g)
		a.accumulate(&da)
	}, a)
}

// ReLU returns max(a, 0) element-wise.
func ReLU(a *Tensor) *Tensor {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	in := raw(a.Value)
	ReluForward(out.RawMatrix().Data, in)
	return newNode(out, func(g *mat.Dense) {
		da := make([]float64, r*c)
		ReluBackward(da, in, raw(g))
		a.accumulateRaw(da)
	}, a)
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p). It is the identity when p <= 0 or rng is nil.
func Dropout(a *Tensor, p float64, rng *rand.Rand) *Tensor {
	if p <= 0 || rng == nil {
		return a
	}
	r, c := a.Dims()
	keep := make([]float64, r*c)
	scale := 1 / (1 - p)
	for i := range keep {
		if rng.Float64() >= p {
			keep[i] = scale
		}
	}
	mask := mat.NewDense(r, c, keep)
	var out mat.Dense
	out.MulElem(a.Value, mask)
	return newNode(&out, func(g *mat.Dense) {
		var da mat.Dense
		da.MulElem(g, mask)
		a.accumulate(&da)
	}, a)
}

// Embedding gathers the rows of table named by ids.
func Embedding(table *Tensor, ids []int) (*Tensor, error) {
	V, C := table.Dims()
	for _, ix := range ids {
		if ix < 0 || ix >= V {
			return nil, fmt.Errorf("embedding id %d out of range [0, %d)", ix, V)
		}
	}
	out := mat.NewDense(len(ids), C, nil)
	EmbeddingForward(out.RawMatrix().Data, ids, raw(table.Value), C)
	return newNode(out, func(g *mat.Dense) {
		dtable := make([]float64, V*C)
		EmbeddingBackward(dtable, raw(g), ids, C)
		table.accumulateRaw(dtable)
	}, table), nil
}

// Rows returns the rows of a listed in idx, in order.
func Rows(a *Tensor, idx []int) *Tensor {
	_, c := a.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, ix := range idx {
		out.SetRow(i, a.Value.RawRowView(ix))
	}
	return newNode(out, func(g *mat.Dense) {
		r, _ := a.Dims()
		da := mat.NewDense(r, c, nil)
		for i, ix := range idx {
			row := da.RawRowView(ix)
			for j, v := range g.RawRowView(i) {
				row[j] += v
			}
		}
		a.accumulate(da)
	}, a)
}

// LayerNorm normalizes each row of x and applies gain and bias, both (1, C).
func LayerNorm(x, gain, bias *Tensor, eps float64) *Tensor {
	N, C := x.Dims()
	out := mat.NewDense(N, C, nil)
	mean := make([]float64, N)
	std := make([]float64, N)
	in := raw(x.Value)
	w := gain.Value.RawRowView(0)
	b := bias.Value.RawRowView(0)
	LayernormForward(out.RawMatrix().Data, mean, std, in, w, b, N, C, eps)
	return newNode(out, func(g *mat.Dense) {
		dx := make([]float64, N*C)
		dw := make([]float64, C)
		db := make([]float64, C)
		LayernormBackward(dx, dw, db, raw(g), in, w, mean, std, N, C, eps)
		x.accumulateRaw(dx)
		gain.accumulate(mat.NewDense(1, C, dw))
		bias.accumulate(mat.NewDense(1, C, db))
	}, x, gain, bias)
}

// LogSoftmax applies log-softmax to each row.
func LogSoftmax(a *Tensor) *Tensor {
	N, V := a.Dims()
	out := mat.NewDense(N, V, nil)
	LogSoftmaxForward(out.RawMatrix().Data, raw(a.Value), N, V)
	return newNode(out, func(g *mat.Dense) {
		da := make([]float64, N*V)
		LogSoftmaxBackward(da, raw(g), out.RawMatrix().Data, N, V)
		a.accumulateRaw(da)
	}, a)
}

// KLDivSum returns the summed KL divergence between target and the
// distribution whose log-probabilities are logProbs, as a 1x1 tensor.
// Entries where the target is zero contribute nothing.
func KLDivSum(logProbs *Tensor, target *mat.Dense) (*Tensor, error) {
	r, c := logProbs.Dims()
	if tr, tc := target.Dims(); tr != r || tc != c {
		return nil, fmt.Errorf("target shape %dx%d does not match log-probabilities %dx%d", tr, tc, r, c)
	}
	t := raw(target)
	loss := KLDivForward(raw(logProbs.Value), t)
	return newNode(mat.NewDense(1, 1, []float64{loss}), func(g *mat.Dense) {
		dx := make([]float64, r*c)
		KLDivBackward(dx, t, g.At(0, 0))
		logProbs.accumulateRaw(dx)
	}, logProbs), nil
}
