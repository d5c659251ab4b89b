package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/workflow/port"
)

var tracer = otel.Tracer("messaging")

var _ port.JobQueue = (*Producer)(nil)

const defaultMaxLen = 100000

// Producer 向 Redis Stream 追加消息；流按 MAXLEN ~ 近似裁剪
type Producer struct {
	client *redis.Client
	maxLen int64
}

func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish 把消息序列化到 data 字段，返回流内消息 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "messaging.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	span.SetAttributes(attribute.String("stream.message_id", id))
	return id, nil
}

// Enqueue 投递抽取任务
func (p *Producer) Enqueue(ctx context.Context, job *entity.ExtractionJob) error {
	msg, err := NewJobMessage(ctx, job)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, StreamExtraction, msg)
	return err
}
