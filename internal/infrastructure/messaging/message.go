// Package messaging 提供基于 Redis Stream 的抽取任务队列
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/pkg/logger"
)

// 消息类型与抽取任务类型一一对应
const (
	MessageTypeChapterExtract = string(entity.JobTypeChapterExtract)
	MessageTypeBookExtract    = string(entity.JobTypeBookExtract)
)

// Stream 流名称
type Stream string

const StreamExtraction Stream = "stream:memory:extraction"

// DLQStream 超过重试上限的消息转入的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

const ConsumerGroupExtractor ConsumerGroup = "cg-memory-extractor"

// 随消息传递的日志关联字段
var propagatedKeys = []logger.ContextKey{logger.RequestIDKey, logger.TraceIDKey}

// Message 流中 data 字段的 JSON 结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	BookID    string            `json:"book_id"`
	ChapterID string            `json:"chapter_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ExtractionJobMessage 抽取任务载荷；只携带任务 ID，状态与进度以数据库为准
type ExtractionJobMessage struct {
	JobID     string `json:"job_id"`
	BookID    string `json:"book_id"`
	ChapterID string `json:"chapter_id,omitempty"`
	JobType   string `json:"job_type"`
}

// NewJobMessage 把抽取任务封装为消息，并带上 ctx 中的请求 ID 与 trace ID
func NewJobMessage(ctx context.Context, job *entity.ExtractionJob) (*Message, error) {
	payload, err := json.Marshal(&ExtractionJobMessage{
		JobID:     job.ID,
		BookID:    job.BookID,
		ChapterID: job.ChapterID,
		JobType:   string(job.JobType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	msg := &Message{
		ID:        job.ID,
		Type:      string(job.JobType),
		BookID:    job.BookID,
		ChapterID: job.ChapterID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	for _, key := range propagatedKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			if msg.Metadata == nil {
				msg.Metadata = make(map[string]string, len(propagatedKeys))
			}
			msg.Metadata[string(key)] = v
		}
	}
	return msg, nil
}

// Context 在消费端恢复书籍、章节、任务以及生产端的请求与 trace ID
func (m *Message) Context(ctx context.Context) context.Context {
	ctx = logger.WithChapter(ctx, m.BookID, m.ChapterID)
	ctx = logger.WithContext(ctx, logger.JobIDKey, m.ID)
	for _, key := range propagatedKeys {
		if v := m.Metadata[string(key)]; v != "" {
			ctx = logger.WithContext(ctx, key, v)
		}
	}
	return ctx
}

// JobPayload 解析抽取任务载荷，缺少任务 ID 视为格式错误
func (m *Message) JobPayload() (*ExtractionJobMessage, error) {
	var p ExtractionJobMessage
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", m.ID, err)
	}
	if p.JobID == "" {
		return nil, fmt.Errorf("message %s has no job id", m.ID)
	}
	return &p, nil
}

// BackoffConfig 失败重投的指数退避
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起步，倍数 2，上限 1 分钟
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重投前的等待时间，不超过 Max
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	d := c.Initial
	for range retryCount {
		d = time.Duration(float64(d) * c.Multiplier)
		if d >= c.Max {
			return c.Max
		}
	}
	return d
}
