// Package chain 封装单次模型调用：模板渲染、结构化输出约束与结果解析
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	einocb "novel-memory-api/internal/infrastructure/eino/callback"
	wfmodel "novel-memory-api/internal/workflow/model"
	wfnode "novel-memory-api/internal/workflow/node"
	workflowport "novel-memory-api/internal/workflow/port"
	workflowprompt "novel-memory-api/internal/workflow/prompt"
)

// ParseError 模型输出无法解析为预期结构，Raw 保留原文供排查
type ParseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s output: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError 判断是否为解析失败
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// jsonRequest 一次结构化输出调用
type jsonRequest struct {
	Workflow   string
	Provider   string
	Prompt     workflowprompt.PromptID
	Vars       map[string]any
	SchemaName string
	Schema     map[string]any
}

// JSONChain 渲染模板并调用模型，优先使用 json_schema 约束，提供商不支持时降级为纯 Prompt 约束
type JSONChain struct {
	factory  workflowport.ChatModelFactory
	registry *workflowprompt.Registry
	retry    wfnode.RetryPolicy
}

// NewJSONChain 创建结构化输出调用链
func NewJSONChain(factory workflowport.ChatModelFactory) *JSONChain {
	return &JSONChain{
		factory:  factory,
		registry: workflowprompt.NewRegistry(),
		retry:    wfnode.DefaultRetryPolicy,
	}
}

func (c *JSONChain) messages(ctx context.Context, req *jsonRequest) ([]*schema.Message, error) {
	tpl, err := c.registry.ChatTemplate(req.Prompt)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, req.Vars)
}

func (c *JSONChain) generate(ctx context.Context, req *jsonRequest) (string, wfmodel.LLMUsageMeta, error) {
	meta := wfmodel.LLMUsageMeta{Provider: strings.TrimSpace(req.Provider)}
	if c == nil || c.factory == nil {
		return "", meta, fmt.Errorf("llm factory not configured")
	}

	ctx = einocb.WithWorkflowProvider(ctx, req.Workflow, req.Provider)
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(req.Provider))
	if err != nil {
		return "", meta, err
	}

	msgs, err := c.messages(ctx, req)
	if err != nil {
		return "", meta, err
	}

	outMsg, err := wfnode.Retry(ctx, c.retry, func(ctx context.Context) (*schema.Message, error) {
		msg, err := chatModel.Generate(ctx, msgs, c.options(req, true)...)
		if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
			msg, err = chatModel.Generate(ctx, msgs, c.options(req, false)...)
		}
		return msg, err
	})
	if err != nil {
		return "", meta, err
	}
	if outMsg == nil {
		return "", meta, fmt.Errorf("empty llm response")
	}

	meta.GeneratedAt = time.Now().UTC()
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		meta.PromptTokens = outMsg.ResponseMeta.Usage.PromptTokens
		meta.CompletionTokens = outMsg.ResponseMeta.Usage.CompletionTokens
	}
	return outMsg.Content, meta, nil
}

func (c *JSONChain) stream(ctx context.Context, req *jsonRequest) (*wfnode.Stream, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}

	ctx = einocb.WithWorkflowProvider(ctx, req.Workflow, req.Provider)
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(req.Provider))
	if err != nil {
		return nil, err
	}

	msgs, err := c.messages(ctx, req)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, msgs, c.options(req, true)...)
	if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		if reader != nil {
			reader.Close()
		}
		reader, err = chatModel.Stream(ctx, msgs, c.options(req, false)...)
	}
	if err != nil {
		return nil, err
	}
	return wfnode.PipeStream(ctx, reader), nil
}

func (c *JSONChain) options(req *jsonRequest, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 1)
	if enableSchema && req.Schema != nil {
		opts = append(opts, wfnode.ResponseFormatOption(req.SchemaName, req.Schema))
	}
	return opts
}

// schemaCache 每个输出结构只反射一次
type schemaCache struct {
	once   sync.Once
	schema map[string]any
}

func (s *schemaCache) get(build func() (map[string]any, error)) map[string]any {
	s.once.Do(func() {
		m, err := build()
		if err == nil {
			s.schema = m
		}
	})
	return s.schema
}
