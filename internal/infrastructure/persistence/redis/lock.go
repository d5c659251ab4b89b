package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-memory-api/pkg/logger"
)

// releaseScript 仅在持有者令牌匹配时删除锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX 的分布式锁与防抖
type Locker struct {
	client *Client
}

// NewLocker 创建分布式锁
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire 尝试获取锁，锁过期前必须调用 release
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.client.Key("lock", key)
	ctx, span := tracer.Start(ctx, "redis.Lock.Acquire",
		trace.WithAttributes(attribute.String("redis.key", fullKey)))
	defer span.End()

	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	span.SetAttributes(attribute.Bool("redis.lock.acquired", ok))
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// 调用方上下文可能已取消，释放使用独立上下文
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client.rdb, []string{fullKey}, token).Err(); err != nil {
			logger.Warn(rctx, "failed to release lock", "key", fullKey, "error", err)
		}
	}
	return release, true, nil
}

// Claim 防抖：窗口内只有第一次调用成功
func (l *Locker) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	fullKey := l.client.Key("debounce", key)
	ctx, span := tracer.Start(ctx, "redis.Debounce.Claim",
		trace.WithAttributes(attribute.String("redis.key", fullKey)))
	defer span.End()

	ok, err := l.client.rdb.SetNX(ctx, fullKey, time.Now().UnixMilli(), window).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to claim debounce window: %w", err)
	}
	return ok, nil
}
