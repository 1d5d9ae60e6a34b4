package dsa

import "strings"

// SuffixMatcher finds the longest registered suffix of a name. Suffixes are
// stored reversed so the match is a prefix lookup in the radix tree.
// Matching is case-insensitive.
type SuffixMatcher[V any] struct {
	trie *Trie[V]
}

// NewSuffixMatcher creates an empty matcher.
func NewSuffixMatcher[V any]() *SuffixMatcher[V] {
	return &SuffixMatcher[V]{trie: NewTrie[V]()}
}

// Add registers value for names ending in suffix.
func (m *SuffixMatcher[V]) Add(suffix string, value V) {
	m.trie.Insert(reverse(strings.ToLower(suffix)), value)
}

// Match returns the value of the longest suffix that name ends with.
func (m *SuffixMatcher[V]) Match(name string) (V, bool) {
	_, v, ok := m.trie.LongestPrefix(reverse(strings.ToLower(name)))
	return v, ok
}

// Suffixes returns the registered suffixes.
func (m *SuffixMatcher[V]) Suffixes() []string {
	keys := m.trie.Keys()
	for i, k := range keys {
		keys[i] = reverse(k)
	}
	return keys
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
