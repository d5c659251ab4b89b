package node

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// StreamChunk 流式输出的一个片段；Done 或 Err 出现后通道关闭
type StreamChunk struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Err       error  `json:"-"`
}

// Stream 可取消的流式读取句柄
type Stream struct {
	C      <-chan StreamChunk
	cancel context.CancelFunc
}

// Cancel 停止底层读取
func (s *Stream) Cancel() {
	s.cancel()
}

// Collect 读完全部片段，返回拼接后的正文与推理内容
func (s *Stream) Collect() (content, reasoning string, err error) {
	var cb, rb strings.Builder
	for chunk := range s.C {
		if chunk.Err != nil {
			return cb.String(), rb.String(), chunk.Err
		}
		cb.WriteString(chunk.Content)
		rb.WriteString(chunk.Reasoning)
	}
	return cb.String(), rb.String(), nil
}

// PipeStream 将 Eino StreamReader 转为通道；读取方只需消费到 Done 或 Err
func PipeStream(ctx context.Context, reader *schema.StreamReader[*schema.Message]) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan StreamChunk, 16)

	go func() {
		defer close(out)
		defer reader.Close()

		send := func(c StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if ctx.Err() != nil {
				return
			}
			msg, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamChunk{Done: true})
				return
			}
			if err != nil {
				send(StreamChunk{Err: err})
				return
			}
			if msg == nil || (msg.Content == "" && msg.ReasoningContent == "") {
				continue
			}
			if !send(StreamChunk{Content: msg.Content, Reasoning: msg.ReasoningContent}) {
				return
			}
		}
	}()

	return &Stream{C: out, cancel: cancel}
}
