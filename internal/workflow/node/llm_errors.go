package node

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LLMErrorKind 模型调用失败的类别
type LLMErrorKind int

const (
	LLMErrorOther LLMErrorKind = iota
	// LLMErrorUnsupportedFormat 提供商不支持 response_format，应去掉 schema 约束重试一次
	LLMErrorUnsupportedFormat
	LLMErrorRateLimited
	LLMErrorServer
	LLMErrorTimeout
)

// ClassifyLLMError 按错误文本归类；各提供商的 SDK 错误类型不统一，只能匹配消息
func ClassifyLLMError(err error) LLMErrorKind {
	if err == nil {
		return LLMErrorOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LLMErrorTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "response_format", "json_schema", "response_schema"),
		strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return LLMErrorUnsupportedFormat
	case containsAny(msg, "429", "rate limit", "too many requests"):
		return LLMErrorRateLimited
	case containsAny(msg, "500", "502", "503", "internal server error", "server_error", "bad gateway"):
		return LLMErrorServer
	default:
		return LLMErrorOther
	}
}

// IsResponseFormatUnsupportedError 判断提供商是否拒绝了 response_format
func IsResponseFormatUnsupportedError(err error) bool {
	return ClassifyLLMError(err) == LLMErrorUnsupportedFormat
}

// IsRetryableLLMError 限流与服务端错误可重试；超时不重试，避免放大抽取耗时
func IsRetryableLLMError(err error) bool {
	switch ClassifyLLMError(err) {
	case LLMErrorRateLimited, LLMErrorServer:
		return true
	default:
		return false
	}
}

// RetryPolicy 模型调用重试策略；限流等待时间是服务端错误的 RateLimitFactor 倍
type RetryPolicy struct {
	Attempts        int
	Backoff         time.Duration
	RateLimitFactor int
}

// DefaultRetryPolicy 三次尝试，服务端错误退避 2s/4s，限流退避 10s/20s
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 2 * time.Second, RateLimitFactor: 5}

// Retry 执行 fn，遇到可重试错误时按指数退避重试；ctx 取消时立即返回
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(policy.Attempts, 1)
	var (
		out T
		err error
	)
	for i := 0; i < attempts; i++ {
		out, err = fn(ctx)
		if err == nil || !IsRetryableLLMError(err) || i == attempts-1 {
			return out, err
		}

		wait := policy.Backoff << i
		if ClassifyLLMError(err) == LLMErrorRateLimited && policy.RateLimitFactor > 1 {
			wait *= time.Duration(policy.RateLimitFactor)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C:
		}
	}
	return out, err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
