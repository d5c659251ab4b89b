// Package milvus 提供章节摘要的向量召回索引
package milvus

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-memory-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const connectTimeout = 10 * time.Second

// Client 封装 Milvus 连接；集合名统一经 CollectionName 加前缀
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 建立连接。连接失败时调用方应降级为关闭召回，而不是阻断启动
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c, err := client.NewClient(ctx, client.Config{
		Address:  net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Username: cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{milvus: c, config: cfg}, nil
}

func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 以摘要集合是否可查询作为就绪依据
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.HasCollection(ctx, CollectionChapterSummaries); err != nil {
		return fmt.Errorf("milvus unavailable: %w", err)
	}
	return nil
}

// CollectionName 加上配置的前缀，如 novel_chapter_summaries
func (c *Client) CollectionName(name string) string {
	if c.config.CollectionPrefix == "" {
		return name
	}
	return c.config.CollectionPrefix + "_" + name
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	full := c.CollectionName(name)
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", full)))
	defer span.End()

	ok, err := c.milvus.HasCollection(ctx, full)
	if err != nil {
		span.RecordError(err)
	}
	return ok, err
}

// LoadCollection 同步加载集合，返回时集合可检索
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	full := c.CollectionName(name)
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", full)))
	defer span.End()

	if err := c.milvus.LoadCollection(ctx, full, false); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
