package seq2seq

import (
	"cmp"
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/vocab"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
)

// Batch holds padded source and target ids with their masks. The target is
// split for teacher forcing: Tgt drops the last token and feeds the
// decoder, TgtY drops the first and is what the loss scores.
type Batch struct {
	Src     [][]int
	SrcMask *Mask
	Tgt     [][]int
	TgtY    [][]int
	TgtMask *Mask
	// NTokens counts the non-pad tokens of TgtY.
	NTokens int
}

// padRows returns rows right-padded with pad to the longest row.
func padRows(rows [][]int, pad int) [][]int {
	L := 0
	for _, r := range rows {
		L = max(L, len(r))
	}
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = make([]int, L)
		copy(out[i], r)
		for j := len(r); j < L; j++ {
			out[i][j] = pad
		}
	}
	return out
}

// NewBatch pads src and tgt and derives the masks. tgt may be nil for
// source-only batches; otherwise it needs one row per source with at least
// two tokens.
func NewBatch(src, tgt [][]int, pad int) (*Batch, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	for i, s := range src {
		if len(s) == 0 {
			return nil, fmt.Errorf("source %d is empty", i)
		}
	}
	b := &Batch{Src: padRows(src, pad)}
	b.SrcMask = PaddingMask(b.Src, pad)
	if tgt == nil {
		return b, nil
	}
	if len(tgt) != len(src) {
		return nil, fmt.Errorf("%d targets for %d sources", len(tgt), len(src))
	}
	for i, t := range tgt {
		if len(t) < 2 {
			return nil, fmt.Errorf("target %d has %d tokens, need at least 2", i, len(t))
		}
	}
	full := padRows(tgt, pad)
	b.Tgt = make([][]int, len(full))
	b.TgtY = make([][]int, len(full))
	for i, row := range full {
		b.Tgt[i] = row[:len(row)-1]
		b.TgtY[i] = row[1:]
		for _, id := range b.TgtY[i] {
			if id != pad {
				b.NTokens++
			}
		}
	}
	b.TgtMask = StandardMask(b.Tgt, pad)
	return b, nil
}

// Example is one encoded (description, code) pair.
type Example struct {
	Src []int
	Tgt []int
}

// SizeAccumulator is the running state of BatchSize for one batch under
// construction.
type SizeAccumulator struct {
	MaxSrc int
	MaxTgt int
}

// BatchSize returns the padded token count of a batch of count examples
// whose newest member is ex, and the updated accumulator. count == 1 starts
// a new batch and discards acc.
func BatchSize(ex Example, count int, acc SizeAccumulator) (int, SizeAccumulator) {
	if count == 1 {
		acc = SizeAccumulator{}
	}
	acc.MaxSrc = max(acc.MaxSrc, len(ex.Src))
	acc.MaxTgt = max(acc.MaxTgt, len(ex.Tgt)+2)
	return count * max(acc.MaxSrc, acc.MaxTgt), acc
}

// Batcher packs examples into batches whose padded size stays within
// MaxTokens.
type Batcher struct {
	MaxTokens int
	Pad       int
	// SortByLength orders examples by source then target length before
	// packing, reducing padding.
	SortByLength bool
	// Shuffle, when set, shuffles the order of the finished batches.
	Shuffle *rand.Rand
}

// Pack groups examples. A batch is emitted when its size reaches MaxTokens;
// when adding an example overshoots, the batch is emitted without it and
// the example starts the next one.
func (bt Batcher) Pack(examples []Example) [][]Example {
	if bt.SortByLength {
		examples = slices.Clone(examples)
		slices.SortStableFunc(examples, func(a, b Example) int {
			if c := cmp.Compare(len(a.Src), len(b.Src)); c != 0 {
				return c
			}
			return cmp.Compare(len(a.Tgt), len(b.Tgt))
		})
	}
	var (
		out     [][]Example
		current []Example
		acc     SizeAccumulator
		size    int
	)
	for _, ex := range examples {
		current = append(current, ex)
		size, acc = BatchSize(ex, len(current), acc)
		switch {
		case size == bt.MaxTokens:
			out = append(out, current)
			current = nil
		case size > bt.MaxTokens:
			if len(current) > 1 {
				out = append(out, current[:len(current)-1])
			}
			current = []Example{ex}
			_, acc = BatchSize(ex, 1, acc)
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	if bt.Shuffle != nil {
		bt.Shuffle.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

// Batches packs examples and builds a Batch from each group.
func (bt Batcher) Batches(examples []Example) ([]*Batch, error) {
	groups := bt.Pack(examples)
	out := make([]*Batch, 0, len(groups))
	for i, g := range groups {
		src := make([][]int, len(g))
		tgt := make([][]int, len(g))
		for j, ex := range g {
			src[j], tgt[j] = ex.Src, ex.Tgt
		}
		b, err := NewBatch(src, tgt, bt.Pad)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// MakeExamples tokenizes and encodes parallel descriptions and code. Every
// target is framed by the start and end tokens.
func MakeExamples(descs, codes []string, srcVocab, tgtVocab *vocab.Vocabulary) ([]Example, error) {
	if len(descs) != len(codes) {
		return nil, fmt.Errorf("%d descriptions for %d code blocks", len(descs), len(codes))
	}
	start, end := tgtVocab.ID(vocab.StartToken), tgtVocab.ID(vocab.EndToken)
	out := make([]Example, 0, len(descs))
	for i := range descs {
		src := srcVocab.Encode(vocab.TokenizeDescription(descs[i]))
		if len(src) == 0 {
			continue
		}
		code := tgtVocab.Encode(vocab.TokenizeCode(codes[i]))
		tgt := make([]int, 0, len(code)+2)
		tgt = append(tgt, start)
		tgt = append(tgt, code...)
		tgt = append(tgt, end)
		out = append(out, Example{Src: src, Tgt: tgt})
	}
	return out, nil
}
