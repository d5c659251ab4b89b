package milvus

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPartitionName(t *testing.T) {
	assert.Equal(t, "book_1f0e_aa", PartitionName("1f0e-aa"))
}

func TestBeforeChapterFilter(t *testing.T) {
	assert.Equal(t, `book_id == "b1" && chapter_order < 12`, beforeChapterFilter("b1", 12))
	assert.Equal(t, `book_id == "b1"`, beforeChapterFilter("b1", 0))
}

func TestChapterSummariesSchema(t *testing.T) {
	s := ChapterSummariesSchema(0)
	assert.Equal(t, CollectionChapterSummaries, s.CollectionName)
	for _, f := range s.Fields {
		if f.Name == fieldVector {
			assert.Equal(t, "1024", f.TypeParams["dim"])
		}
	}
}

func TestTruncateBytes(t *testing.T) {
	s := strings.Repeat("剑", 10)
	got := truncateBytes(s, 10)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 10)
	assert.Equal(t, "abc", truncateBytes("abc", 10))
}
