// Package dsa provides small data structures shared by the simulator.
// Uses go-radix for a compressed prefix tree (radix tree).
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for a typed compressed prefix tree.
//
// Time Complexity: O(k) where k is key length
type Trie[V any] struct {
	tree *radix.Tree
	size int
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{
		tree: radix.New(),
	}
}

// Insert adds or replaces a key-value pair.
func (t *Trie[V]) Insert(key string, value V) {
	_, updated := t.tree.Insert(key, value)
	if !updated {
		t.size++
	}
}

// Search looks up an exact key.
func (t *Trie[V]) Search(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// Size returns the number of keys in the tree.
func (t *Trie[V]) Size() int {
	return t.size
}

// Keys returns all keys in lexical order.
func (t *Trie[V]) Keys() []string {
	var keys []string
	t.tree.Walk(func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return false
	})
	return keys
}

// LongestPrefix returns the longest key that is a prefix of the query.
func (t *Trie[V]) LongestPrefix(query string) (string, V, bool) {
	key, val, found := t.tree.LongestPrefix(query)
	if !found {
		var zero V
		return "", zero, false
	}
	v, ok := val.(V)
	if !ok {
		var zero V
		return "", zero, false
	}
	return key, v, true
}
