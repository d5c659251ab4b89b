package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"novel-memory-api/internal/domain/entity"
)

var cacheTracer = otel.Tracer("redis.cache")

// ReportCache 实时审查报告缓存
type ReportCache struct {
	client *Client
	group  singleflight.Group
}

// NewReportCache 创建报告缓存
func NewReportCache(client *Client) *ReportCache {
	return &ReportCache{client: client}
}

func (c *ReportCache) key(chapterID string) string {
	return c.client.Key("review", "realtime", chapterID)
}

// PutReport 缓存章节最近一次实时审查报告
func (c *ReportCache) PutReport(ctx context.Context, chapterID string, report *entity.ReviewReport, ttl time.Duration) error {
	key := c.key(chapterID)
	ctx, span := cacheTracer.Start(ctx, "cache.PutReport",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	data, err := json.Marshal(report)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// GetReport 读取缓存报告，并发读取同一章节时合并为一次请求
func (c *ReportCache) GetReport(ctx context.Context, chapterID string) (*entity.ReviewReport, error) {
	key := c.key(chapterID)
	ctx, span := cacheTracer.Start(ctx, "cache.GetReport",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	v, err, shared := c.group.Do(key, func() (any, error) {
		raw, err := c.client.Get(ctx, key)
		if err != nil {
			if IsNil(err) {
				return nil, nil
			}
			return nil, err
		}
		var report entity.ReviewReport
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
		}
		return &report, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if v == nil {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	// singleflight 共享结果，返回独立副本
	report := *v.(*entity.ReviewReport)
	return &report, nil
}
