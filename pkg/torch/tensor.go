// Package torch contains the differentiable tensor operations used by the
// translation model: a small reverse-mode autograd over gonum matrices and
// the flat-slice kernels behind every op.
package torch

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNotScalar is returned by Backward when called on a non 1x1 tensor.
var ErrNotScalar = errors.New("backward requires a 1x1 tensor")

// Tensor is a 2-D value in the computation graph.
//
// Activations of a batch are stored as (B*T, C): row b*T+t holds position t
// of sequence b.
type Tensor struct {
	// Value is the forward result.
	Value *mat.Dense
	// Grad is the accumulated gradient, allocated on first use.
	Grad *mat.Dense
	// Name identifies parameters in checkpoints and logs.
	Name string

	requiresGrad bool
	parents      []*Tensor
	backward     func(grad *mat.Dense)
}

// NewParam returns a leaf tensor that collects gradients.
func NewParam(name string, value *mat.Dense) *Tensor {
	return &Tensor{Value: value, Name: name, requiresGrad: true}
}

// Constant returns a leaf tensor that never collects gradients.
func Constant(value *mat.Dense) *Tensor {
	return &Tensor{Value: value}
}

// newNode links an op result to its inputs. The backward closure is dropped
// when no input needs a gradient, so evaluation builds no graph.
func newNode(value *mat.Dense, backward func(grad *mat.Dense), parents ...*Tensor) *Tensor {
	t := &Tensor{Value: value}
	for _, p := range parents {
		if p != nil && p.requiresGrad {
			t.requiresGrad = true
			break
		}
	}
	if t.requiresGrad {
		t.parents = parents
		t.backward = backward
	}
	return t
}

// Dims returns the rows and columns of the value.
func (t *Tensor) Dims() (int, int) {
	return t.Value.Dims()
}

// RequiresGrad reports whether gradients flow into t.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Scalar returns the single element of a 1x1 tensor.
func (t *Tensor) Scalar() float64 {
	return t.Value.At(0, 0)
}

// ZeroGrad resets the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	if t.Grad != nil {
		t.Grad.Zero()
	}
}

// accumulate adds g into t.Grad.
func (t *Tensor) accumulate(g mat.Matrix) {
	if !t.requiresGrad {
		return
	}
	if t.Grad == nil {
		r, c := t.Value.Dims()
		t.Grad = mat.NewDense(r, c, nil)
	}
	t.Grad.Add(t.Grad, g)
}

// accumulateRaw adds a flat row-major slice into t.Grad.
func (t *Tensor) accumulateRaw(g []float64) {
	if !t.requiresGrad {
		return
	}
	r, c := t.Value.Dims()
	t.accumulate(mat.NewDense(r, c, g))
}

// Backward seeds a 1x1 tensor with gradient 1 and propagates it to every
// tensor that requires a gradient.
func (t *Tensor) Backward() error {
	if r, c := t.Dims(); r != 1 || c != 1 {
		return fmt.Errorf("%w: got %dx%d", ErrNotScalar, r, c)
	}
	return t.BackwardWith(mat.NewDense(1, 1, []float64{1}))
}

// BackwardWith propagates seed, which must match the shape of t.
func (t *Tensor) BackwardWith(seed *mat.Dense) error {
	r, c := t.Dims()
	if sr, sc := seed.Dims(); sr != r || sc != c {
		return fmt.Errorf("seed shape %dx%d does not match tensor %dx%d", sr, sc, r, c)
	}
	if !t.requiresGrad {
		return nil
	}
	topo := make([]*Tensor, 0)
	visited := make(map[*Tensor]struct{})
	var build func(node *Tensor)
	build = func(node *Tensor) {
		if _, ok := visited[node]; ok {
			return
		}
		visited[node] = struct{}{}
		for _, p := range node.parents {
			if p != nil && p.requiresGrad {
				build(p)
			}
		}
		topo = append(topo, node)
	}
	build(t)
	t.accumulate(seed)
	for i := len(topo) - 1; i >= 0; i-- {
		node := topo[i]
		if node.backward != nil && node.Grad != nil {
			node.backward(node.Grad)
		}
	}
	return nil
}

// XavierUniform returns a (rows, cols) matrix drawn from the Glorot uniform
// distribution U(-a, a) with a = sqrt(6 / (rows + cols)). A nil src uses the
// global source.
func XavierUniform(rows, cols int, src rand.Source) *mat.Dense {
	a := math.Sqrt(6 / float64(rows+cols))
	dist := distuv.Uniform{Min: -a, Max: a, Src: src}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(rows, cols, data)
}

// raw returns the row-major backing slice of m, copying when m is a view.
func raw(m *mat.Dense) []float64 {
	r, c := m.Dims()
	rm := m.RawMatrix()
	if rm.Stride == c {
		return rm.Data[:r*c]
	}
	return mat.DenseCopyOf(m).RawMatrix().Data
}
