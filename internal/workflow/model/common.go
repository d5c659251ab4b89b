// Package model 定义工作流的输入输出结构
package model

import "time"

// LLMUsageMeta 一次模型调用的用量
type LLMUsageMeta struct {
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Add 累加用量
func (m *LLMUsageMeta) Add(other LLMUsageMeta) {
	m.PromptTokens += other.PromptTokens
	m.CompletionTokens += other.CompletionTokens
	if other.Model != "" {
		m.Model = other.Model
	}
	if other.GeneratedAt.After(m.GeneratedAt) {
		m.GeneratedAt = other.GeneratedAt
	}
}
