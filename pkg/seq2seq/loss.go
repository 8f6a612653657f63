package seq2seq

import (
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"gonum.org/v1/gonum/mat"
)

// LabelSmoothing scores log-probabilities against a smoothed target: the
// true token gets 1-Smoothing, the remaining mass is spread evenly over
// every other non-pad token, and pad targets contribute nothing.
type LabelSmoothing struct {
	Size       int
	PaddingIdx int
	Smoothing  float64
	Confidence float64
}

// NewLabelSmoothing returns a criterion over a vocabulary of size tokens.
func NewLabelSmoothing(size, paddingIdx int, smoothing float64) (*LabelSmoothing, error) {
	switch {
	case size <= 2:
		return nil, fmt.Errorf("label smoothing needs more than 2 classes, got %d", size)
	case paddingIdx < 0 || paddingIdx >= size:
		return nil, fmt.Errorf("padding index %d out of range [0, %d)", paddingIdx, size)
	case smoothing < 0 || smoothing >= 1:
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %g", smoothing)
	}
	return &LabelSmoothing{
		Size:       size,
		PaddingIdx: paddingIdx,
		Smoothing:  smoothing,
		Confidence: 1 - smoothing,
	}, nil
}

// TrueDist returns the (len(target), Size) smoothed target distribution.
func (l *LabelSmoothing) TrueDist(target []int) *mat.Dense {
	dist := mat.NewDense(len(target), l.Size, nil)
	fill := l.Smoothing / float64(l.Size-2)
	for i, y := range target {
		row := dist.RawRowView(i)
		if y == l.PaddingIdx {
			continue
		}
		for j := range row {
			row[j] = fill
		}
		row[y] = l.Confidence
		row[l.PaddingIdx] = 0
	}
	return dist
}

// Loss returns the summed KL divergence between the smoothed targets and
// logProbs, a (len(target), Size) tensor.
func (l *LabelSmoothing) Loss(logProbs *torch.Tensor, target []int) (*torch.Tensor, error) {
	for i, y := range target {
		if y < 0 || y >= l.Size {
			return nil, fmt.Errorf("target %d at position %d out of range [0, %d)", y, i, l.Size)
		}
	}
	return torch.KLDivSum(logProbs, l.TrueDist(target))
}

// LossCompute turns decoder output into a loss value, updating parameters
// when it is training.
type LossCompute interface {
	// Compute returns the unnormalized loss of x against y. norm is the
	// number of non-pad tokens in y.
	Compute(x Seq, y [][]int, norm int) (float64, error)
}

// SimpleLossCompute applies the generator and criterion, then
// backpropagates the summed loss and steps Opt when it is set.
type SimpleLossCompute struct {
	Generator *Generator
	Criterion *LabelSmoothing
	Opt       *NoamOpt
}

// Compute implements LossCompute.
func (s *SimpleLossCompute) Compute(x Seq, y [][]int, norm int) (float64, error) {
	target := make([]int, 0, x.Batch*x.Len)
	for _, row := range y {
		target = append(target, row...)
	}
	loss, err := s.Criterion.Loss(s.Generator.Forward(x.X), target)
	if err != nil {
		return 0, err
	}
	if s.Opt != nil {
		if err := loss.Backward(); err != nil {
			return 0, err
		}
		s.Opt.Step()
		s.Opt.ZeroGrad()
	}
	return loss.Scalar(), nil
}
