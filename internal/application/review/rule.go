// Package review 实现分级一致性审查：规则目录、规则执行引擎、问题生命周期与实时审查
package review

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
	apperrors "novel-memory-api/pkg/errors"
)

// Rule 一条审查规则；Check 只读取上下文，不写存储
type Rule interface {
	Name() string
	Title() string
	Description() string
	Level() entity.ReviewLevel
	Type() entity.ReviewType
	// Priority 越小越先执行
	Priority() int
	RequiresAI() bool
	Check(ctx context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error)
}

// RuleInfo 规则目录项
type RuleInfo struct {
	Name        string             `json:"name"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Level       entity.ReviewLevel `json:"level"`
	Tier        string             `json:"tier"`
	Type        entity.ReviewType  `json:"type"`
	Priority    int                `json:"priority"`
	RequiresAI  bool               `json:"requires_ai"`
	Enabled     bool               `json:"enabled"`
}

// ruleMeta 规则的静态描述，规则名即问题类型
type ruleMeta struct {
	typ         entity.ReviewType
	title       string
	description string
	priority    int
	ai          bool
}

func (m ruleMeta) Name() string              { return string(m.typ) }
func (m ruleMeta) Title() string             { return m.title }
func (m ruleMeta) Description() string       { return m.description }
func (m ruleMeta) Level() entity.ReviewLevel { return m.typ.DefaultLevel() }
func (m ruleMeta) Type() entity.ReviewType   { return m.typ }
func (m ruleMeta) Priority() int             { return m.priority }
func (m ruleMeta) RequiresAI() bool          { return m.ai }

// newIssue 以规则默认级别创建一条 open 问题
func (m ruleMeta) newIssue(rc *memory.ReviewContext, title, description string, confidence float64) *entity.ReviewIssue {
	return &entity.ReviewIssue{
		BookID:       rc.Chapter.BookID,
		ChapterID:    rc.Chapter.ID,
		ChapterOrder: rc.Chapter.OrderNum,
		Level:        m.Level(),
		Type:         m.typ,
		Title:        title,
		Description:  description,
		Confidence:   entity.Float64Ptr(confidence),
		Status:       entity.IssueStatusOpen,
		RuleName:     m.Name(),
	}
}

// SortRules 按优先级升序，同优先级按名称
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority() != rules[j].Priority() {
			return rules[i].Priority() < rules[j].Priority()
		}
		return rules[i].Name() < rules[j].Name()
	})
}

// ParseLevels 解析级别过滤参数，空输入表示全部级别
func ParseLevels(values []string) ([]entity.ReviewLevel, error) {
	var levels []entity.ReviewLevel
	seen := make(map[entity.ReviewLevel]struct{})
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			l, err := entity.ParseReviewLevel(part)
			if err != nil {
				return nil, apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err)
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			levels = append(levels, l)
		}
	}
	return levels, nil
}

// scanParagraphs 逐段遍历，回调参数为段落序号、段落文本与段首在全文中的 rune 偏移
func scanParagraphs(chapter *entity.Chapter, fn func(index int, text string, offset int) bool) {
	offset := 0
	for i, p := range chapter.Paragraphs() {
		if !fn(i, p, offset) {
			return
		}
		offset += utf8.RuneCountInString(p) + 1
	}
}

// runeWindow 取 [start-before, end+after) 的 rune 片段，下标均为 rune 偏移
func runeWindow(runes []rune, start, end, before, after int) string {
	from := max(start-before, 0)
	to := min(end+after, len(runes))
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
