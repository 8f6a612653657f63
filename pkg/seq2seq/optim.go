package seq2seq

import (
	"math"

	"github.com/conneroisu/soltranslator/pkg/torch"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update at the given learning rate.
	Step(lr float64)
	// ZeroGrad clears every gradient.
	ZeroGrad()
}

// Adam is an implementation of the Adam optimizer with decoupled weight
// decay.
type Adam struct {
	Params      []*torch.Tensor
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	// firstMoments and secondMoments are the running gradient estimates,
	// one slice per parameter.
	firstMoments  [][]float64
	secondMoments [][]float64
	t             int
}

// NewAdam returns an Adam optimizer over params.
func NewAdam(params []*torch.Tensor, cfg OptimizerConfig) *Adam {
	return &Adam{
		Params:      params,
		Beta1:       cfg.Beta1,
		Beta2:       cfg.Beta2,
		Eps:         cfg.Eps,
		WeightDecay: cfg.WeightDecay,
	}
}

// Step updates every parameter that has a gradient.
func (a *Adam) Step(lr float64) {
	if a.firstMoments == nil {
		a.firstMoments = make([][]float64, len(a.Params))
		a.secondMoments = make([][]float64, len(a.Params))
		for i, p := range a.Params {
			r, c := p.Dims()
			a.firstMoments[i] = make([]float64, r*c)
			a.secondMoments[i] = make([]float64, r*c)
		}
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range a.Params {
		if p.Grad == nil {
			continue
		}
		params := p.Value.RawMatrix().Data
		grads := p.Grad.RawMatrix().Data
		m, v := a.firstMoments[i], a.secondMoments[i]
		for j, g := range grads {
			// update the first and second moment estimates
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			// correct the bias
			mHat := m[j] / c1
			vHat := v[j] / c2
			params[j] -= lr * (mHat/(math.Sqrt(vHat)+a.Eps) + a.WeightDecay*params[j])
		}
	}
}

// ZeroGrad clears every parameter gradient.
func (a *Adam) ZeroGrad() {
	for _, p := range a.Params {
		p.ZeroGrad()
	}
}

// NoamOpt drives an optimizer with the warmup-then-decay schedule
//
//	rate(t) = factor * d_model^-0.5 * min(t^-0.5, t * warmup^-1.5)
type NoamOpt struct {
	Optimizer Optimizer
	ModelSize int
	Factor    float64
	Warmup    int

	step int
	rate float64
}

// NewNoamOpt wraps opt.
func NewNoamOpt(modelSize int, factor float64, warmup int, opt Optimizer) *NoamOpt {
	return &NoamOpt{Optimizer: opt, ModelSize: modelSize, Factor: factor, Warmup: warmup}
}

// StandardOptimizer returns Adam under the default schedule for model.
func StandardOptimizer(model *Model) *NoamOpt {
	cfg := DefaultOptimizerConfig()
	return NewNoamOpt(model.Config.DModel, cfg.Factor, cfg.Warmup, NewAdam(model.Parameters(), cfg))
}

// Step increments the step counter, computes the rate for the new step and
// applies the wrapped optimizer with it.
func (o *NoamOpt) Step() {
	o.step++
	o.rate = o.Rate(o.step)
	o.Optimizer.Step(o.rate)
}

// ZeroGrad clears the wrapped optimizer's gradients.
func (o *NoamOpt) ZeroGrad() {
	o.Optimizer.ZeroGrad()
}

// Rate returns the learning rate at step t. Steps before the first update
// have rate 0.
func (o *NoamOpt) Rate(t int) float64 {
	if t <= 0 {
		return 0
	}
	ft := float64(t)
	return o.Factor * math.Pow(float64(o.ModelSize), -0.5) *
		math.Min(math.Pow(ft, -0.5), ft*math.Pow(float64(o.Warmup), -1.5))
}

// Steps returns the number of updates applied.
func (o *NoamOpt) Steps() int { return o.step }

// CurrentRate returns the rate used by the last update.
func (o *NoamOpt) CurrentRate() float64 { return o.rate }
