package seq2seq

import (
	"math"
	"testing"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

type recordingOptimizer struct {
	rates  []float64
	zeroed int
}

func (r *recordingOptimizer) Step(lr float64) { r.rates = append(r.rates, lr) }
func (r *recordingOptimizer) ZeroGrad()       { r.zeroed++ }

func TestNoamRateShape(t *testing.T) {
	o := NewNoamOpt(512, 2, 100, &recordingOptimizer{})
	assert.Zero(t, o.Rate(0))
	assert.Zero(t, o.Rate(-3))
	for step := 1; step < 100; step++ {
		assert.Less(t, o.Rate(step), o.Rate(step+1), "warmup step %d", step)
	}
	for step := 101; step < 400; step++ {
		assert.Greater(t, o.Rate(step), o.Rate(step+1), "decay step %d", step)
	}
	peak := 2 * math.Pow(512, -0.5) * math.Pow(100, -0.5)
	assert.InDelta(t, peak, o.Rate(100), 1e-15)
}

func TestNoamStepUsesIncrementedCounter(t *testing.T) {
	rec := &recordingOptimizer{}
	o := NewNoamOpt(16, 1, 4, rec)
	o.Step()
	o.Step()
	assert.Equal(t, 2, o.Steps())
	assert.Equal(t, []float64{o.Rate(1), o.Rate(2)}, rec.rates)
	assert.Equal(t, o.Rate(2), o.CurrentRate())
	o.ZeroGrad()
	assert.Equal(t, 1, rec.zeroed)
}

func TestAdamMovesAgainstGradient(t *testing.T) {
	p := torch.NewParam("p", mat.NewDense(1, 2, []float64{1, -1}))
	loss, err := torch.KLDivSum(p, mat.NewDense(1, 2, []float64{1, 0.5}))
	assert.NoError(t, err)
	assert.NoError(t, loss.Backward())

	adam := NewAdam([]*torch.Tensor{p}, DefaultOptimizerConfig())
	adam.Step(0.1)
	// The gradient is -target, so both entries grow by about lr.
	assert.InDelta(t, 1.1, p.Value.At(0, 0), 1e-6)
	assert.InDelta(t, -0.9, p.Value.At(0, 1), 1e-6)

	adam.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad.RawRowView(0))
}
