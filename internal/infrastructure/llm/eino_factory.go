// Package llm 管理摘要、抽取与审查使用的生成模型客户端
package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"golang.org/x/sync/singleflight"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/workflow/port"
)

var _ port.ChatModelFactory = (*EinoFactory)(nil)

// EinoFactory 按提供商名称惰性创建 OpenAI 兼容的 ChatModel，创建后进程内复用
type EinoFactory struct {
	cfg    *config.LLMConfig
	models sync.Map // name -> model.BaseChatModel
	group  singleflight.Group
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{cfg: &cfg.LLM}
}

// Get 空名称取默认提供商；同一提供商并发首次获取只创建一次
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.cfg.DefaultProvider
	}
	if m, ok := f.models.Load(name); ok {
		return m.(model.BaseChatModel), nil
	}

	v, err, _ := f.group.Do(name, func() (any, error) {
		if m, ok := f.models.Load(name); ok {
			return m, nil
		}
		m, err := f.build(ctx, name)
		if err != nil {
			return nil, err
		}
		f.models.Store(name, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(model.BaseChatModel), nil
}

// Default 默认提供商的 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

// Providers 已配置的提供商名称，按字母序
func (f *EinoFactory) Providers() []string {
	return slices.Sorted(maps.Keys(f.cfg.Providers))
}

func (f *EinoFactory) build(ctx context.Context, name string) (model.BaseChatModel, error) {
	p, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", name)
	}

	// 提供商未单独配置超时时使用全局生成超时
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	temperature := float32(p.Temperature)

	chatCfg := &openai.ChatModelConfig{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: &temperature,
		Timeout:     timeout,
	}
	if p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		chatCfg.MaxTokens = &maxTokens
	}

	m, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("create chat model %s: %w", name, err)
	}
	return m, nil
}
