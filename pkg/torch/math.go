package torch

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MaskedFill is the score written to attention positions that must not be
// attended to. exp(MaskedFill - max) underflows to exactly zero.
const MaskedFill = -1e9

// EmbeddingForward gathers rows of the embedding table.
//
// Parameters:
//   - out: output activations (N, C)
//   - ids: token ids (N), each an index into table
//   - table: embedding weights (V, C)
//   - C: embedding dimension
func EmbeddingForward(out []float64, ids []int, table []float64, C int) {
	for n, ix := range ids {
		copy(out[n*C:(n+1)*C], table[ix*C:(ix+1)*C])
	}
}

// EmbeddingBackward scatters the output gradient back onto the rows that
// were gathered. Repeated ids accumulate.
func EmbeddingBackward(dtable []float64, dout []float64, ids []int, C int) {
	for n, ix := range ids {
		drow := dtable[ix*C : (ix+1)*C]
		for i, d := range dout[n*C : (n+1)*C] {
			drow[i] += d
		}
	}
}

// LayernormForward normalizes every row of inp.
//
// The denominator is the unbiased standard deviation plus eps, so a row of
// identical values yields bias instead of NaN.
//
// Parameters:
//   - out: output activations (N, C)
//   - mean: per-row mean (N)
//   - std: per-row unbiased standard deviation (N)
//   - inp: input activations (N, C)
//   - weight: learnable scale (C)
//   - bias: learnable shift (C)
//   - N: number of rows
//   - C: features per row, at least 2
func LayernormForward(out, mean, std, inp, weight, bias []float64, N, C int, eps float64) {
	for n := 0; n < N; n++ {
		x := inp[n*C : (n+1)*C]
		m := floats.Sum(x) / float64(C)
		var v float64
		for _, xi := range x {
			v += (xi - m) * (xi - m)
		}
		s := math.Sqrt(v / float64(C-1))
		denom := s + eps
		o := out[n*C : (n+1)*C]
		for i, xi := range x {
			o[i] = weight[i]*(xi-m)/denom + bias[i]
		}
		mean[n] = m
		std[n] = s
	}
}

// LayernormBackward accumulates gradients for LayernormForward.
//
// With d = x - mean, s the unbiased std and D = s + eps:
//
//	dx_i = (g_i - mean(g)) / D - d_i * sum(g*d) / (D^2 * (C-1) * s)
//
// where g = dout * weight.
func LayernormBackward(dinp, dweight, dbias, dout, inp, weight, mean, std []float64, N, C int, eps float64) {
	g := make([]float64, C)
	for n := 0; n < N; n++ {
		x := inp[n*C : (n+1)*C]
		do := dout[n*C : (n+1)*C]
		dx := dinp[n*C : (n+1)*C]
		m, s := mean[n], std[n]
		denom := s + eps
		var gMean, gd float64
		for i := range x {
			g[i] = do[i] * weight[i]
			gMean += g[i]
			gd += g[i] * (x[i] - m)
			dweight[i] += do[i] * (x[i] - m) / denom
			dbias[i] += do[i]
		}
		gMean /= float64(C)
		var coef float64
		if s > 0 {
			coef = gd / (denom * denom * float64(C-1) * s)
		}
		for i := range x {
			dx[i] += (g[i]-gMean)/denom - (x[i]-m)*coef
		}
	}
}

// LogSoftmaxForward computes a numerically stable log-softmax per row.
func LogSoftmaxForward(out, inp []float64, N, V int) {
	for n := 0; n < N; n++ {
		row := inp[n*V : (n+1)*V]
		lse := floats.LogSumExp(row)
		o := out[n*V : (n+1)*V]
		for i, x := range row {
			o[i] = x - lse
		}
	}
}

// LogSoftmaxBackward accumulates dinp given the forward output out.
//
//	dx_i = g_i - softmax_i * sum(g)
func LogSoftmaxBackward(dinp, dout, out []float64, N, V int) {
	for n := 0; n < N; n++ {
		g := dout[n*V : (n+1)*V]
		o := out[n*V : (n+1)*V]
		sum := floats.Sum(g)
		dx := dinp[n*V : (n+1)*V]
		for i := range g {
			dx[i] += g[i] - math.Exp(o[i])*sum
		}
	}
}

// SoftmaxForward writes the softmax of each row of scores into probs.
// Rows where every score is MaskedFill come out uniform, matching what a
// masked_fill followed by softmax produces.
func SoftmaxForward(probs, scores []float64, N, V int) {
	for n := 0; n < N; n++ {
		row := scores[n*V : (n+1)*V]
		p := probs[n*V : (n+1)*V]
		maxval := floats.Max(row)
		var sum float64
		for i, s := range row {
			p[i] = math.Exp(s - maxval)
			sum += p[i]
		}
		floats.Scale(1/sum, p)
	}
}

// SoftmaxBackward converts a gradient with respect to probabilities into a
// gradient with respect to the pre-softmax scores.
//
//	dscore_i = p_i * (dp_i - sum_j dp_j p_j)
func SoftmaxBackward(dscores, dprobs, probs []float64, N, V int) {
	for n := 0; n < N; n++ {
		p := probs[n*V : (n+1)*V]
		dp := dprobs[n*V : (n+1)*V]
		dot := floats.Dot(dp, p)
		ds := dscores[n*V : (n+1)*V]
		for i := range p {
			ds[i] = p[i] * (dp[i] - dot)
		}
	}
}

// ReluForward clamps negative activations to zero.
func ReluForward(out, inp []float64) {
	for i, x := range inp {
		if x > 0 {
			out[i] = x
		} else {
			out[i] = 0
		}
	}
}

// ReluBackward passes the gradient where the input was positive.
func ReluBackward(dinp, inp, dout []float64) {
	for i, x := range inp {
		if x > 0 {
			dinp[i] += dout[i]
		}
	}
}

// KLDivForward returns sum(t * (log t - x)) over entries where t > 0.
// x holds log-probabilities and t a target distribution.
func KLDivForward(logProbs, target []float64) float64 {
	var loss float64
	for i, t := range target {
		if t > 0 {
			loss += t * (math.Log(t) - logProbs[i])
		}
	}
	return loss
}

// KLDivBackward accumulates d(loss)/d(logProbs) = -t * dloss.
func KLDivBackward(dlogProbs, target []float64, dloss float64) {
	for i, t := range target {
		dlogProbs[i] -= t * dloss
	}
}
