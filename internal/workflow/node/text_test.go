package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateByRunes(t *testing.T) {
	assert.Equal(t, "", TruncateByRunes("abc", 0))
	assert.Equal(t, "abc", TruncateByRunes("abc", 5))
	assert.Equal(t, "凯尔", TruncateByRunes("凯尔死了", 2))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "短句", Snippet("  短句 ", 10))
	assert.Equal(t, "一二三...", Snippet("一二三四五", 3))
}

func TestRuneOffset(t *testing.T) {
	s := "凯尔说：走"
	assert.Equal(t, 0, RuneOffset(s, 0))
	assert.Equal(t, 2, RuneOffset(s, len("凯尔")))
	assert.Equal(t, 5, RuneOffset(s, 1000))
}
