package dsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrieInsertSearch(t *testing.T) {
	tr := NewTrie[int]()
	tr.Insert("abc", 1)
	tr.Insert("abd", 2)
	tr.Insert("abc", 3)

	assert.Equal(t, 2, tr.Size())
	v, ok := tr.Search("abc")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = tr.Search("ab")
	assert.False(t, ok)
	assert.Equal(t, []string{"abc", "abd"}, tr.Keys())
}

func TestTrieLongestPrefix(t *testing.T) {
	tr := NewTrie[string]()
	tr.Insert("a", "short")
	tr.Insert("abc", "long")

	key, v, ok := tr.LongestPrefix("abcdef")
	assert.True(t, ok)
	assert.Equal(t, "abc", key)
	assert.Equal(t, "long", v)

	_, _, ok = tr.LongestPrefix("xyz")
	assert.False(t, ok)
}

func TestSuffixMatcher(t *testing.T) {
	m := NewSuffixMatcher[string]()
	m.Add(".nc", "gcode")
	m.Add(".tpl", "tpl")
	m.Add(".cam.tpl", "cam")

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"part.nc", "gcode", true},
		{"PART.NC", "gcode", true},
		{"dir/part.tpl", "tpl", true},
		{"part.cam.tpl", "cam", true},
		{"part.txt", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.ElementsMatch(t, []string{".nc", ".tpl", ".cam.tpl"}, m.Suffixes())
}
