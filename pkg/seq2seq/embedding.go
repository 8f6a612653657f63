package seq2seq

import (
	"fmt"
	"math"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Embeddings maps token ids to vectors scaled by sqrt(d_model).
type Embeddings struct {
	Table  *torch.Tensor
	DModel int
}

// NewEmbeddings returns a (vocab, dModel) lookup table.
func NewEmbeddings(name string, vocab, dModel int, src rand.Source) *Embeddings {
	return &Embeddings{
		Table:  torch.NewParam(name+".table", torch.XavierUniform(vocab, dModel, src)),
		DModel: dModel,
	}
}

// Forward embeds a batch of equal-length id sequences.
func (e *Embeddings) Forward(ids [][]int) (Seq, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return Seq{}, fmt.Errorf("cannot embed an empty batch")
	}
	L := len(ids[0])
	flat := make([]int, 0, len(ids)*L)
	for b, row := range ids {
		if len(row) != L {
			return Seq{}, fmt.Errorf("sequence %d has length %d, want %d", b, len(row), L)
		}
		flat = append(flat, row...)
	}
	x, err := torch.Embedding(e.Table, flat)
	if err != nil {
		return Seq{}, err
	}
	return Seq{X: torch.Scale(x, math.Sqrt(float64(e.DModel))), Batch: len(ids), Len: L}, nil
}

// Parameters returns the lookup table.
func (e *Embeddings) Parameters() []*torch.Tensor {
	return []*torch.Tensor{e.Table}
}

// PositionalEncoding adds fixed sinusoidal position signals:
//
//	PE(p, 2i)   = sin(p / 10000^(2i/d))
//	PE(p, 2i+1) = cos(p / 10000^(2i/d))
type PositionalEncoding struct {
	Dropout float64
	table   *mat.Dense
}

// NewPositionalEncoding precomputes the signal for positions [0, maxLen).
func NewPositionalEncoding(dModel, maxLen int, dropout float64) *PositionalEncoding {
	pe := mat.NewDense(maxLen, dModel, nil)
	for p := 0; p < maxLen; p++ {
		row := pe.RawRowView(p)
		for i := 0; i < dModel; i += 2 {
			angle := float64(p) * math.Exp(-float64(i)*math.Log(10000)/float64(dModel))
			row[i] = math.Sin(angle)
			if i+1 < dModel {
				row[i+1] = math.Cos(angle)
			}
		}
	}
	return &PositionalEncoding{Dropout: dropout, table: pe}
}

// MaxLen returns the longest supported sequence.
func (pe *PositionalEncoding) MaxLen() int {
	r, _ := pe.table.Dims()
	return r
}

// At returns the encoding of position p.
func (pe *PositionalEncoding) At(p int) []float64 {
	return pe.table.RawRowView(p)
}

// Forward adds the first x.Len rows of the table to every sequence of x.
func (pe *PositionalEncoding) Forward(x Seq, ctx *Context) (Seq, error) {
	if x.Len > pe.MaxLen() {
		return Seq{}, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, x.Len, pe.MaxLen())
	}
	_, d := x.X.Dims()
	signal := mat.NewDense(x.Batch*x.Len, d, nil)
	for b := 0; b < x.Batch; b++ {
		dst := signal.Slice(b*x.Len, (b+1)*x.Len, 0, d).(*mat.Dense)
		dst.Copy(pe.table.Slice(0, x.Len, 0, d))
	}
	return x.with(ctx.dropout(torch.Add(x.X, torch.Constant(signal)), pe.Dropout)), nil
}

// Parameters returns nothing; the table is fixed.
func (pe *PositionalEncoding) Parameters() []*torch.Tensor {
	return nil
}
