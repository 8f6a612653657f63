package vocab

// trie is a byte trie mapping whole tokens to ids.
type trie struct {
	children map[byte]*trie
	data     int
	end      bool
}

// newTrie creates a trie holding data, where each token maps to its index.
func newTrie(data []string) *trie {
	t := &trie{children: map[byte]*trie{}}
	for i, word := range data {
		t.Insert(word, i)
	}
	return t
}

// Insert stores word under data, replacing any previous id. The empty word
// is ignored.
func (t *trie) Insert(word string, data int) {
	if len(word) == 0 {
		return
	}
	cur := t
	for i := 0; i < len(word); i++ {
		next := cur.children[word[i]]
		if next == nil {
			next = &trie{children: map[byte]*trie{}}
			cur.children[word[i]] = next
		}
		cur = next
	}
	cur.end = true
	cur.data = data
}

// Lookup returns the id stored for exactly word.
func (t *trie) Lookup(word string) (int, bool) {
	cur := t
	for i := 0; i < len(word); i++ {
		cur = cur.children[word[i]]
		if cur == nil {
			return 0, false
		}
	}
	if !cur.end {
		return 0, false
	}
	return cur.data, true
}
