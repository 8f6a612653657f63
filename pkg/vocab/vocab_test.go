package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSmallVocabulary(t *testing.T) {
	v, err := Build(Spec{
		Structure: DescriptionStructure,
		Names:     []string{"a", "b"},
		Syntax:    []string{"uint", "public"},
		Lo:        0,
		Hi:        3,
	})
	require.NoError(t, err)

	for _, tok := range []string{"unk_tkn", "pad_tkn", "a", "b", "uint", "public", "0", "1", "2", "[", "]", ":", ","} {
		assert.True(t, v.Contains(tok), tok)
	}
	assert.False(t, v.Contains("3"))
	assert.Equal(t, UnknownID, v.ID("3"))
	assert.Equal(t, PadID, v.ID(PadToken))
	assert.Equal(t, UnknownID, v.ID(UnknownToken))
}

func TestBuildRejectsEmptyRange(t *testing.T) {
	_, err := Build(Spec{Lo: 5, Hi: 5})
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = BuildCode(nil, nil, 3, -1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestVocabularyBijection(t *testing.T) {
	v, err := BuildCode(DefaultNames(), Syntax(), -20, 20)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for id := 0; id < v.Len(); id++ {
		tok := v.Token(id)
		assert.False(t, seen[tok], "duplicate token %q", tok)
		seen[tok] = true
		assert.Equal(t, id, v.ID(tok))
	}
	for _, tok := range v.Tokens() {
		assert.Equal(t, tok, v.Token(v.ID(tok)))
	}
	assert.True(t, v.Contains(StartToken))
	assert.True(t, v.Contains(EndToken))
}

func TestVocabularyIsDeterministic(t *testing.T) {
	a, err := BuildDescription(DefaultNames(), Syntax(), -5, 5)
	require.NoError(t, err)
	b, err := BuildDescription(DefaultNames(), Syntax(), -5, 5)
	require.NoError(t, err)
	assert.Equal(t, a.Tokens(), b.Tokens())
}

func TestVocabularyCaseInsensitive(t *testing.T) {
	v, err := BuildDescription([]string{"X"}, []string{"UINT"}, 0, 1)
	require.NoError(t, err)
	assert.True(t, v.Contains("x"))
	assert.Equal(t, v.ID("uint"), v.ID("Uint"))
	assert.NotEqual(t, UnknownID, v.ID("UINT"))
}

func TestUnknownFallback(t *testing.T) {
	v, err := BuildDescription(DefaultNames(), Syntax(), 0, 10)
	require.NoError(t, err)

	ids := v.Encode([]string{"a", "zebra", "10000", ""})
	assert.Equal(t, []int{v.ID("a"), UnknownID, UnknownID, UnknownID}, ids)
	assert.Equal(t, UnknownToken, v.Token(-1))
	assert.Equal(t, UnknownToken, v.Token(v.Len()))
	assert.Equal(t, []string{"a", UnknownToken}, v.Decode([]int{v.ID("a"), v.Len() + 3}))
}

func TestTrieLookup(t *testing.T) {
	tr := newTrie([]string{"for", "function", "f"})
	id, ok := tr.Lookup("function")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	_, ok = tr.Lookup("fun")
	assert.False(t, ok)
	_, ok = tr.Lookup("")
	assert.False(t, ok)
	id, ok = tr.Lookup("f")
	assert.True(t, ok)
	assert.Equal(t, 2, id)
}
