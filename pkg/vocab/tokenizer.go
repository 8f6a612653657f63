package vocab

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Tokenizer splits text into lower-case tokens, isolating a fixed set of
// punctuation characters.
type Tokenizer struct {
	punct *regexp2.Regexp
}

var (
	// Description isolates : [ ] , and .
	Description = &Tokenizer{punct: regexp2.MustCompile(`([:\[\],.])`, regexp2.None)}
	// Code isolates { } ( ) . ; and ,
	Code = &Tokenizer{punct: regexp2.MustCompile(`([{}().;,])`, regexp2.None)}
)

// Tokenize returns the tokens of text. It never fails; the empty string
// yields no tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	lower := strings.ToLower(text)
	spaced, err := t.punct.Replace(lower, " $1 ", -1, -1)
	if err != nil {
		// Replace only fails on a match timeout, which is never set.
		spaced = lower
	}
	return strings.Fields(spaced)
}

// TokenizeDescription tokenizes natural-language contract text.
func TokenizeDescription(text string) []string {
	return Description.Tokenize(text)
}

// TokenizeCode tokenizes Solidity-like source.
func TokenizeCode(text string) []string {
	return Code.Tokenize(text)
}

// Join rejoins tokens with single spaces.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}
