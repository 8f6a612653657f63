package seq2seq

import (
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/torch"
	"github.com/conneroisu/soltranslator/pkg/vocab"
	"gonum.org/v1/gonum/floats"
)

// GreedyDecode translates one source sequence by repeatedly appending the
// most probable next token, starting from start. It stops after end or
// maxLen tokens and returns the generated ids without start and end.
// maxLen is capped at the positional encoding length.
func GreedyDecode(model *Model, src []int, maxLen, start, end int) ([]int, error) {
	maxLen = min(maxLen, model.Position.MaxLen())
	training := model.Training()
	model.SetTraining(false)
	defer model.SetTraining(training)

	b, err := NewBatch([][]int{src}, nil, vocab.PadID)
	if err != nil {
		return nil, err
	}
	memory, err := model.Encode(b.Src, b.SrcMask)
	if err != nil {
		return nil, err
	}
	ys := []int{start}
	for len(ys) < maxLen {
		out, err := model.Decode(memory, b.SrcMask, [][]int{ys}, SubsequentMask(len(ys)))
		if err != nil {
			return nil, fmt.Errorf("decoding step %d: %w", len(ys), err)
		}
		logp := model.Generator.Forward(torch.Rows(out.X, []int{len(ys) - 1}))
		next := floats.MaxIdx(logp.Value.RawRowView(0))
		if next == end {
			break
		}
		ys = append(ys, next)
	}
	return ys[1:], nil
}

// Translator turns descriptions into code tokens with a trained model.
type Translator struct {
	Model *Model
	Src   *vocab.Vocabulary
	Tgt   *vocab.Vocabulary
	// MaxLen bounds the generated sequence, start token included.
	MaxLen int
}

// Translate tokenizes description, decodes it greedily and returns the
// generated code tokens.
func (t *Translator) Translate(description string) ([]string, error) {
	src := t.Src.Encode(vocab.TokenizeDescription(description))
	if len(src) == 0 {
		return nil, fmt.Errorf("description has no tokens")
	}
	maxLen := t.MaxLen
	if maxLen <= 0 {
		maxLen = 2*len(src) + 10
	}
	ids, err := GreedyDecode(t.Model, src, maxLen, t.Tgt.ID(vocab.StartToken), t.Tgt.ID(vocab.EndToken))
	if err != nil {
		return nil, err
	}
	return t.Tgt.Decode(ids), nil
}
