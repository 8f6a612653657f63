package seq2seq

import "fmt"

// Mask is a boolean attention mask of shape (Batch, Rows, Cols) where
// false hides a key position. Batch or Rows of 1 broadcast.
type Mask struct {
	Batch, Rows, Cols int
	allowed           []bool
}

// NewMask returns a mask with every position hidden.
func NewMask(batch, rows, cols int) *Mask {
	return &Mask{Batch: batch, Rows: rows, Cols: cols, allowed: make([]bool, batch*rows*cols)}
}

func (m *Mask) offset(b, i, j int) int {
	if m.Batch == 1 {
		b = 0
	}
	if m.Rows == 1 {
		i = 0
	}
	return (b*m.Rows+i)*m.Cols + j
}

// Allowed reports whether query i of sequence b may attend to key j. A nil
// mask allows everything.
func (m *Mask) Allowed(b, i, j int) bool {
	if m == nil {
		return true
	}
	return m.allowed[m.offset(b, i, j)]
}

// Set marks position (b, i, j).
func (m *Mask) Set(b, i, j int, allowed bool) {
	m.allowed[m.offset(b, i, j)] = allowed
}

// PaddingMask returns a (len(ids), 1, L) mask that is true where the token
// is not pad. All rows of ids must have the same length L.
func PaddingMask(ids [][]int, pad int) *Mask {
	L := 0
	if len(ids) > 0 {
		L = len(ids[0])
	}
	m := NewMask(len(ids), 1, L)
	for b, row := range ids {
		for j, id := range row {
			m.Set(b, 0, j, id != pad)
		}
	}
	return m
}

// SubsequentMask returns the (1, size, size) causal mask: (i, j) is true
// iff j <= i.
func SubsequentMask(size int) *Mask {
	m := NewMask(1, size, size)
	for i := 0; i < size; i++ {
		for j := 0; j <= i; j++ {
			m.Set(0, i, j, true)
		}
	}
	return m
}

// And returns the element-wise conjunction of a and b, broadcasting
// dimensions of size 1.
func And(a, b *Mask) (*Mask, error) {
	dim := func(x, y int) (int, error) {
		switch {
		case x == y, y == 1:
			return x, nil
		case x == 1:
			return y, nil
		}
		return 0, fmt.Errorf("cannot broadcast mask dimensions %d and %d", x, y)
	}
	batch, err := dim(a.Batch, b.Batch)
	if err != nil {
		return nil, err
	}
	rows, err := dim(a.Rows, b.Rows)
	if err != nil {
		return nil, err
	}
	if a.Cols != b.Cols {
		return nil, fmt.Errorf("mask key lengths differ: %d and %d", a.Cols, b.Cols)
	}
	m := NewMask(batch, rows, a.Cols)
	for bi := 0; bi < batch; bi++ {
		for i := 0; i < rows; i++ {
			for j := 0; j < a.Cols; j++ {
				m.Set(bi, i, j, a.Allowed(bi, i, j) && b.Allowed(bi, i, j))
			}
		}
	}
	return m, nil
}

// StandardMask hides both padding and future positions of the decoder
// input tgt.
func StandardMask(tgt [][]int, pad int) *Mask {
	L := 0
	if len(tgt) > 0 {
		L = len(tgt[0])
	}
	m, err := And(PaddingMask(tgt, pad), SubsequentMask(L))
	if err != nil {
		// Both masks are built with key length L.
		panic(err)
	}
	return m
}
