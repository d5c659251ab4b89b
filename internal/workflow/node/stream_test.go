package node

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeStream_Collect(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "先读章节"},
		{Role: schema.Assistant, Content: `{"summary":`},
		{Role: schema.Assistant, Content: `"凯尔离开王都"}`},
	})

	s := PipeStream(context.Background(), reader)
	content, reasoning, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"凯尔离开王都"}`, content)
	assert.Equal(t, "先读章节", reasoning)
}

func TestPipeStream_EndsWithDone(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{{Role: schema.Assistant, Content: "a"}})
	s := PipeStream(context.Background(), reader)

	var chunks []StreamChunk
	for c := range s.C {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Content)
	assert.True(t, chunks[1].Done)
}

func TestPipeStream_Cancel(t *testing.T) {
	msgs := make([]*schema.Message, 100)
	for i := range msgs {
		msgs[i] = &schema.Message{Role: schema.Assistant, Content: "x"}
	}
	s := PipeStream(context.Background(), schema.StreamReaderFromArray(msgs))
	<-s.C
	s.Cancel()
	for range s.C {
	}
}
