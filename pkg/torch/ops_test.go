package torch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func positiveDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 0.1 + rng.Float64()
	}
	return mat.NewDense(r, c, data)
}

// reduce turns y into a scalar with fixed positive weights so every output
// element contributes to the gradient.
func reduce(t *testing.T, y *Tensor, weights *mat.Dense) *Tensor {
	t.Helper()
	loss, err := KLDivSum(y, weights)
	require.NoError(t, err)
	return loss
}

// checkGrad compares the analytic gradient of every element of p with a
// central finite difference of forward.
func checkGrad(t *testing.T, forward func() *Tensor, params ...*Tensor) {
	t.Helper()
	for _, p := range params {
		p.ZeroGrad()
	}
	require.NoError(t, forward().Backward())
	const eps = 1e-6
	for _, p := range params {
		require.NotNil(t, p.Grad, "no gradient reached %s", p.Name)
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.Value.At(i, j)
				p.Value.Set(i, j, orig+eps)
				lp := forward().Scalar()
				p.Value.Set(i, j, orig-eps)
				lm := forward().Scalar()
				p.Value.Set(i, j, orig)
				num := (lp - lm) / (2 * eps)
				assert.InDelta(t, num, p.Grad.At(i, j), 1e-5, "%s[%d,%d]", p.Name, i, j)
			}
		}
	}
}

func TestMatMulGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := NewParam("a", randDense(rng, 3, 4))
	b := NewParam("b", randDense(rng, 4, 2))
	w := positiveDense(rng, 3, 2)
	checkGrad(t, func() *Tensor { return reduce(t, MatMul(a, b), w) }, a, b)
}

func TestLinearGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := NewParam("x", randDense(rng, 5, 3))
	w := NewParam("w", randDense(rng, 3, 4))
	b := NewParam("b", randDense(rng, 1, 4))
	target := positiveDense(rng, 5, 4)
	checkGrad(t, func() *Tensor { return reduce(t, Linear(x, w, b), target) }, x, w, b)
}

func TestLinearWithoutBias(t *testing.T) {
	x := Constant(mat.NewDense(1, 2, []float64{1, 2}))
	w := Constant(mat.NewDense(2, 1, []float64{3, 4}))
	assert.Equal(t, 11.0, Linear(x, w, nil).Value.At(0, 0))
}

func TestAddScaleGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := NewParam("a", randDense(rng, 2, 3))
	b := NewParam("b", randDense(rng, 2, 3))
	w := positiveDense(rng, 2, 3)
	checkGrad(t, func() *Tensor { return reduce(t, Scale(Add(a, b), 1.5), w) }, a, b)
}

func TestReLUGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	data := make([]float64, 12)
	for i := range data {
		data[i] = 0.2 + rng.Float64()
		if i%2 == 0 {
			data[i] = -data[i]
		}
	}
	a := NewParam("a", mat.NewDense(3, 4, data))
	w := positiveDense(rng, 3, 4)
	checkGrad(t, func() *Tensor { return reduce(t, ReLU(a), w) }, a)
	assert.Equal(t, 0.0, ReLU(a).Value.At(0, 0))
}

func TestDropout(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := NewParam("a", positiveDense(rng, 4, 5))
	w := positiveDense(rng, 4, 5)

	t.Run("identity when disabled", func(t *testing.T) {
		assert.Same(t, a, Dropout(a, 0.5, nil))
		assert.Same(t, a, Dropout(a, 0, rand.New(rand.NewSource(1))))
	})

	t.Run("survivors are scaled", func(t *testing.T) {
		out := Dropout(a, 0.5, rand.New(rand.NewSource(9)))
		r, c := out.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := out.Value.At(i, j)
				if v != 0 {
					assert.InDelta(t, 2*a.Value.At(i, j), v, 1e-12)
				}
			}
		}
	})

	t.Run("gradient", func(t *testing.T) {
		checkGrad(t, func() *Tensor {
			return reduce(t, Dropout(a, 0.3, rand.New(rand.NewSource(7))), w)
		}, a)
	})
}

func TestEmbeddingGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	table := NewParam("table", randDense(rng, 5, 3))
	ids := []int{4, 1, 4, 0}
	w := positiveDense(rng, 4, 3)
	checkGrad(t, func() *Tensor {
		out, err := Embedding(table, ids)
		require.NoError(t, err)
		return reduce(t, out, w)
	}, table)

	_, err := Embedding(table, []int{5})
	assert.Error(t, err)
	_, err = Embedding(table, []int{-1})
	assert.Error(t, err)
}

func TestRowsGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := NewParam("a", randDense(rng, 4, 2))
	idx := []int{3, 1, 3}
	w := positiveDense(rng, 3, 2)
	checkGrad(t, func() *Tensor { return reduce(t, Rows(a, idx), w) }, a)
	assert.Equal(t, a.Value.RawRowView(3), Rows(a, idx).Value.RawRowView(0))
}

func TestLayerNorm(t *testing.T) {
	t.Run("unbiased std with eps added", func(t *testing.T) {
		x := Constant(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
		gain := Constant(mat.NewDense(1, 4, []float64{1, 1, 1, 1}))
		bias := Constant(mat.NewDense(1, 4, nil))
		out := LayerNorm(x, gain, bias, 1e-6)
		std := math.Sqrt(5.0 / 3.0)
		for j, v := range []float64{1, 2, 3, 4} {
			assert.InDelta(t, (v-2.5)/(std+1e-6), out.Value.At(0, j), 1e-12)
		}
	})

	t.Run("constant row yields bias", func(t *testing.T) {
		x := Constant(mat.NewDense(1, 3, []float64{7, 7, 7}))
		gain := Constant(mat.NewDense(1, 3, []float64{2, 2, 2}))
		bias := Constant(mat.NewDense(1, 3, []float64{0.5, -1, 3}))
		out := LayerNorm(x, gain, bias, 1e-6)
		assert.Equal(t, []float64{0.5, -1, 3}, out.Value.RawRowView(0))
	})

	t.Run("gradient", func(t *testing.T) {
		rng := rand.New(rand.NewSource(8))
		x := NewParam("x", randDense(rng, 3, 5))
		gain := NewParam("gain", positiveDense(rng, 1, 5))
		bias := NewParam("bias", randDense(rng, 1, 5))
		w := positiveDense(rng, 3, 5)
		checkGrad(t, func() *Tensor { return reduce(t, LayerNorm(x, gain, bias, 1e-6), w) }, x, gain, bias)
	})
}

func TestLogSoftmax(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	a := NewParam("a", randDense(rng, 3, 6))
	out := LogSoftmax(a)
	for i := 0; i < 3; i++ {
		var sum float64
		for _, v := range out.Value.RawRowView(i) {
			sum += math.Exp(v)
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}
	w := positiveDense(rng, 3, 6)
	checkGrad(t, func() *Tensor { return reduce(t, LogSoftmax(a), w) }, a)
}

func TestKLDivSum(t *testing.T) {
	logp := Constant(mat.NewDense(1, 3, []float64{math.Log(0.5), math.Log(0.25), math.Log(0.25)}))

	loss, err := KLDivSum(logp, mat.NewDense(1, 3, []float64{0.5, 0.25, 0.25}))
	require.NoError(t, err)
	assert.InDelta(t, 0, loss.Scalar(), 1e-12)

	loss, err = KLDivSum(logp, mat.NewDense(1, 3, []float64{1, 0, 0}))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), loss.Scalar(), 1e-12)

	_, err = KLDivSum(logp, mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestBackwardRequiresScalar(t *testing.T) {
	p := NewParam("p", mat.NewDense(2, 2, nil))
	err := Scale(p, 2).Backward()
	assert.ErrorIs(t, err, ErrNotScalar)
}

func TestConstantsBuildNoGraph(t *testing.T) {
	a := Constant(mat.NewDense(1, 1, []float64{2}))
	out := Scale(a, 3)
	assert.False(t, out.RequiresGrad())
	require.NoError(t, out.Backward())
	assert.Nil(t, a.Grad)
}

func TestXavierUniformBounds(t *testing.T) {
	m := XavierUniform(30, 20, rand.NewSource(1))
	limit := math.Sqrt(6.0 / 50.0)
	r, c := m.Dims()
	require.Equal(t, 30, r)
	require.Equal(t, 20, c)
	for _, v := range m.RawMatrix().Data {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}
}
