// Package embedding 把摘要与查询文本转换为向量，供 Milvus 召回使用
package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"novel-memory-api/internal/config"
)

// Client 包装 Eino Embedder；dim > 0 时校验返回向量维度与集合定义一致
type Client struct {
	embedder embedding.Embedder
	dim      int
}

// New 包装任意 Eino Embedder
func New(embedder embedding.Embedder, dim int) *Client {
	return &Client{embedder: embedder, dim: dim}
}

// NewEinoEmbedder 连接 OpenAI 兼容的 Embedding 服务
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	embedCfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	}
	if cfg.Dimension > 0 {
		dim := cfg.Dimension
		embedCfg.Dimensions = &dim
	}

	e, err := openai.NewEmbedder(ctx, embedCfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return New(e, cfg.Dimension), nil
}

// EmbedOne 单条文本转 float32 向量，Milvus FloatVector 字段使用 float32
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vectors))
	}
	if c.dim > 0 && len(vectors[0]) != c.dim {
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(vectors[0]), c.dim)
	}

	out := make([]float32, len(vectors[0]))
	for i, f := range vectors[0] {
		out[i] = float32(f)
	}
	return out, nil
}
