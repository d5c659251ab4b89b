// Package prompt 管理内嵌的提示词模板。
// 每个模板由 templates/<id>.system.txt 与 templates/<id>.user.txt 组成，变量使用 {name} 语法。
package prompt

import (
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识，版本号写在 ID 里，改动提示词时新增版本而不是覆盖
type PromptID string

const (
	PromptSummaryV1          PromptID = "memory_summary_v1"
	PromptEventsV1           PromptID = "memory_events_v1"
	PromptStateChangesV1     PromptID = "memory_state_changes_v1"
	PromptForeshadowDetectV1 PromptID = "memory_foreshadow_detect_v1"
	PromptReviewRuleV1       PromptID = "review_rule_v1"
)

var knownPrompts = []PromptID{
	PromptSummaryV1,
	PromptEventsV1,
	PromptStateChangesV1,
	PromptForeshadowDetectV1,
	PromptReviewRuleV1,
}

// Registry 按 ID 解析并缓存 ChatTemplate，可并发使用
type Registry struct {
	cache sync.Map // PromptID -> einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{}
}

// ChatTemplate 首次访问时从内嵌文件构建模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}
	if tpl, ok := r.cache.Load(id); ok {
		return tpl.(einoprompt.ChatTemplate), nil
	}
	if !slices.Contains(knownPrompts, id) {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}

	tpl, err := build(id)
	if err != nil {
		return nil, err
	}
	// 并发首次构建时以先写入者为准，保证返回同一实例
	actual, _ := r.cache.LoadOrStore(id, tpl)
	return actual.(einoprompt.ChatTemplate), nil
}

func build(id PromptID) (einoprompt.ChatTemplate, error) {
	system, err := readPart(id, "system")
	if err != nil {
		return nil, err
	}
	user, err := readPart(id, "user")
	if err != nil {
		return nil, err
	}
	return einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	), nil
}

func readPart(id PromptID, role string) (string, error) {
	b, err := templatesFS.ReadFile(path.Join("templates", string(id)+"."+role+".txt"))
	if err != nil {
		return "", fmt.Errorf("read %s template of %s: %w", role, id, err)
	}
	return strings.TrimSpace(string(b)), nil
}
