// Package vocab tokenizes contract descriptions and code and maps tokens to
// integer ids over a closed vocabulary.
package vocab

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Reserved tokens and their ids.
const (
	PadToken     = "pad_tkn"
	UnknownToken = "unk_tkn"
	StartToken   = "sos_tkn"
	EndToken     = "eos_tkn"

	PadID     = 0
	UnknownID = 1
)

// ErrInvalidRange is returned when the numeric literal range is empty.
var ErrInvalidRange = errors.New("numeric range must satisfy lo < hi")

// Spec is the closed set of inputs a vocabulary is built from.
type Spec struct {
	// Structure holds fixed punctuation and framing tokens.
	Structure []string
	// Names holds the allowed variable names.
	Names []string
	// Extra holds template and expression wording.
	Extra []string
	// Syntax holds type and visibility keywords.
	Syntax []string
	// Lo and Hi bound the numeric literals [Lo, Hi).
	Lo, Hi int
}

// Vocabulary is an immutable bijection between tokens and ids in [0, Len()).
type Vocabulary struct {
	tokens []string
	index  *trie
}

// Build returns the vocabulary of spec. Tokens are lower-cased and
// deduplicated; pad and unknown take ids 0 and 1 and the remaining tokens
// are numbered in lexicographic order, so equal specs give equal mappings.
func Build(spec Spec) (*Vocabulary, error) {
	if spec.Lo >= spec.Hi {
		return nil, fmt.Errorf("%w: got [%d, %d)", ErrInvalidRange, spec.Lo, spec.Hi)
	}
	set := make(map[string]struct{})
	add := func(tokens []string) {
		for _, tok := range tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				set[tok] = struct{}{}
			}
		}
	}
	add(spec.Structure)
	add(spec.Names)
	add(spec.Extra)
	add(spec.Syntax)
	for n := spec.Lo; n < spec.Hi; n++ {
		set[strconv.Itoa(n)] = struct{}{}
	}
	delete(set, PadToken)
	delete(set, UnknownToken)

	rest := maps.Keys(set)
	slices.Sort(rest)
	tokens := make([]string, 0, len(rest)+2)
	tokens = append(tokens, PadToken, UnknownToken)
	tokens = append(tokens, rest...)
	return &Vocabulary{tokens: tokens, index: newTrie(tokens)}, nil
}

// BuildDescription builds the source vocabulary for description text.
func BuildDescription(names, syntax []string, lo, hi int, extra ...string) (*Vocabulary, error) {
	return Build(Spec{
		Structure: DescriptionStructure,
		Names:     names,
		Extra:     append(slices.Clone(DescriptionKeywords), extra...),
		Syntax:    syntax,
		Lo:        lo,
		Hi:        hi,
	})
}

// BuildCode builds the target vocabulary for code, including the start and
// end tokens that frame every target sequence.
func BuildCode(names, syntax []string, lo, hi int, extra ...string) (*Vocabulary, error) {
	return Build(Spec{
		Structure: CodeStructure,
		Names:     names,
		Extra:     append(slices.Clone(CodeKeywords), extra...),
		Syntax:    syntax,
		Lo:        lo,
		Hi:        hi,
	})
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// Pad returns the padding id.
func (v *Vocabulary) Pad() int { return PadID }

// Unknown returns the fallback id for unseen tokens.
func (v *Vocabulary) Unknown() int { return UnknownID }

// ID returns the id of token, or the unknown id when token is not in the
// vocabulary. Lookup is case-insensitive.
func (v *Vocabulary) ID(token string) int {
	if id, ok := v.index.Lookup(strings.ToLower(token)); ok {
		return id
	}
	return UnknownID
}

// Contains reports whether token has its own id.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.index.Lookup(strings.ToLower(token))
	return ok
}

// Token returns the token with the given id, or the unknown token when id
// is out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return UnknownToken
	}
	return v.tokens[id]
}

// Encode maps tokens to ids.
func (v *Vocabulary) Encode(tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = v.ID(tok)
	}
	return ids
}

// Decode maps ids to tokens.
func (v *Vocabulary) Decode(ids []int) []string {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = v.Token(id)
	}
	return tokens
}

// Tokens returns a copy of the tokens in id order.
func (v *Vocabulary) Tokens() []string {
	return slices.Clone(v.tokens)
}
