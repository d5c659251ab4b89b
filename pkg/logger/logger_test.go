package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextCarriesChapterFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithChapter(context.Background(), "book-1", "ch-3")
	ctx = WithContext(ctx, RequestIDKey, "req-9")
	Error(ctx, "extraction failed", errors.New("boom"), "stage", "summary")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "book-1", line["book_id"])
	assert.Equal(t, "ch-3", line["chapter_id"])
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "summary", line["stage"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}

func TestSlogContextMethodsCarryFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	ctx := WithContext(context.Background(), JobIDKey, "job-7")
	Default().InfoContext(ctx, "job started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job-7", line["job_id"])
	src, ok := line["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, src["file"], "logger_test.go")
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	SetLevel("debug")
	Debug(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}
