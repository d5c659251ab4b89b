package entity

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ReviewLevel 问题级别，error > warning > suggestion > info
type ReviewLevel string

const (
	ReviewLevelError      ReviewLevel = "error"      // Level A
	ReviewLevelWarning    ReviewLevel = "warning"    // Level B
	ReviewLevelSuggestion ReviewLevel = "suggestion" // Level C
	ReviewLevelInfo       ReviewLevel = "info"       // Level D
)

// AllReviewLevels 按严重度降序
var AllReviewLevels = []ReviewLevel{ReviewLevelError, ReviewLevelWarning, ReviewLevelSuggestion, ReviewLevelInfo}

// Severity 严重度，数值越大越严重
func (l ReviewLevel) Severity() int {
	switch l {
	case ReviewLevelError:
		return 4
	case ReviewLevelWarning:
		return 3
	case ReviewLevelSuggestion:
		return 2
	case ReviewLevelInfo:
		return 1
	}
	return 0
}

// Valid 是否为合法级别
func (l ReviewLevel) Valid() bool {
	return l.Severity() > 0
}

// Tier 级别对应的 A-D 档位
func (l ReviewLevel) Tier() string {
	switch l {
	case ReviewLevelError:
		return "A"
	case ReviewLevelWarning:
		return "B"
	case ReviewLevelSuggestion:
		return "C"
	case ReviewLevelInfo:
		return "D"
	}
	return ""
}

// ParseReviewLevel 解析级别，同时接受 A-D 档位写法
func ParseReviewLevel(s string) (ReviewLevel, error) {
	switch s {
	case "A", "a":
		return ReviewLevelError, nil
	case "B", "b":
		return ReviewLevelWarning, nil
	case "C", "c":
		return ReviewLevelSuggestion, nil
	case "D", "d":
		return ReviewLevelInfo, nil
	}
	l := ReviewLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown review level %q", s)
	}
	return l, nil
}

// ReviewType 问题类型
type ReviewType string

const (
	// Level A
	ReviewTypeCharacterDeathConflict ReviewType = "character_death_conflict"
	ReviewTypeNameInconsistency      ReviewType = "name_inconsistency"
	ReviewTypeTimelineConflict       ReviewType = "timeline_conflict"
	ReviewTypePowerLevelConflict     ReviewType = "power_level_conflict"
	ReviewTypeLocationConflict       ReviewType = "location_conflict"
	// Level B
	ReviewTypePersonalityDeviation ReviewType = "personality_deviation"
	ReviewTypeAbilityExceeded      ReviewType = "ability_exceeded"
	ReviewTypeSettingConflict      ReviewType = "setting_conflict"
	ReviewTypeItemAnomaly          ReviewType = "item_anomaly"
	// Level C
	ReviewTypeCausalityDoubt      ReviewType = "causality_doubt"
	ReviewTypePacingIssue         ReviewType = "pacing_issue"
	ReviewTypeEmotionAbrupt       ReviewType = "emotion_abrupt"
	ReviewTypeForeshadowForgotten ReviewType = "foreshadow_forgotten"
	// Level D
	ReviewTypeViewpointDrift     ReviewType = "viewpoint_drift"
	ReviewTypeStyleInconsistency ReviewType = "style_inconsistency"
)

var reviewTypeLevels = map[ReviewType]ReviewLevel{
	ReviewTypeCharacterDeathConflict: ReviewLevelError,
	ReviewTypeNameInconsistency:      ReviewLevelError,
	ReviewTypeTimelineConflict:       ReviewLevelError,
	ReviewTypePowerLevelConflict:     ReviewLevelError,
	ReviewTypeLocationConflict:       ReviewLevelError,
	ReviewTypePersonalityDeviation:   ReviewLevelWarning,
	ReviewTypeAbilityExceeded:        ReviewLevelWarning,
	ReviewTypeSettingConflict:        ReviewLevelWarning,
	ReviewTypeItemAnomaly:            ReviewLevelWarning,
	ReviewTypeCausalityDoubt:         ReviewLevelSuggestion,
	ReviewTypePacingIssue:            ReviewLevelSuggestion,
	ReviewTypeEmotionAbrupt:          ReviewLevelSuggestion,
	ReviewTypeForeshadowForgotten:    ReviewLevelSuggestion,
	ReviewTypeViewpointDrift:         ReviewLevelInfo,
	ReviewTypeStyleInconsistency:     ReviewLevelInfo,
}

// DefaultLevel 类型所属的默认级别
func (t ReviewType) DefaultLevel() ReviewLevel {
	return reviewTypeLevels[t]
}

// Valid 是否为已知类型
func (t ReviewType) Valid() bool {
	_, ok := reviewTypeLevels[t]
	return ok
}

// IssueStatus 问题状态
type IssueStatus string

const (
	IssueStatusOpen    IssueStatus = "open"
	IssueStatusFixed   IssueStatus = "fixed"
	IssueStatusIgnored IssueStatus = "ignored"
)

// Valid 是否为合法状态
func (s IssueStatus) Valid() bool {
	return s == IssueStatusOpen || s == IssueStatusFixed || s == IssueStatusIgnored
}

// IsTerminal fixed 与 ignored 为终态
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusFixed || s == IssueStatusIgnored
}

// ErrIssueTransition 问题状态迁移非法
var ErrIssueTransition = errors.New("illegal review issue status transition")

// IssueLocation 问题位置
type IssueLocation struct {
	Paragraph     *int   `json:"paragraph,omitempty"`
	StartOffset   *int   `json:"start_offset,omitempty"`
	EndOffset     *int   `json:"end_offset,omitempty"`
	OriginalText  string `json:"original_text,omitempty"`
	CharacterName string `json:"character_name,omitempty"`
}

// IssueReference 冲突参照物
type IssueReference struct {
	ChapterID    string `json:"chapter_id,omitempty"`
	ChapterOrder *int   `json:"chapter_order,omitempty"`
	EventID      string `json:"event_id,omitempty"`
	ForeshadowID string `json:"foreshadow_id,omitempty"`
	Text         string `json:"text,omitempty"`
}

// ReviewIssue 审查问题
type ReviewIssue struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	BookID       string          `json:"book_id" gorm:"type:uuid;not null;index"`
	ChapterID    string          `json:"chapter_id" gorm:"type:uuid;not null;index:idx_issue_chapter_dedup,priority:1"`
	ChapterOrder int             `json:"chapter_order" gorm:"not null"`
	Level        ReviewLevel     `json:"level" gorm:"type:varchar(20);not null;index"`
	Type         ReviewType      `json:"type" gorm:"type:varchar(40);not null"`
	Title        string          `json:"title" gorm:"type:varchar(255)"`
	Description  string          `json:"description" gorm:"type:text"`
	Location     *IssueLocation  `json:"location,omitempty" gorm:"type:jsonb;serializer:json"`
	Suggestion   string          `json:"suggestion,omitempty" gorm:"type:text"`
	Reference    *IssueReference `json:"reference,omitempty" gorm:"type:jsonb;serializer:json"`
	Confidence   *float64        `json:"confidence,omitempty" gorm:"type:numeric(3,2)"`
	Status       IssueStatus     `json:"status" gorm:"type:varchar(20);default:'open';index"`
	DedupKey     string          `json:"dedup_key" gorm:"type:varchar(512);index:idx_issue_chapter_dedup,priority:2"`
	RuleName     string          `json:"rule_name,omitempty" gorm:"type:varchar(100)"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ReviewIssue) TableName() string {
	return "review_issues"
}

// IssueDedupKey 跨次审查识别同一问题的键：章节 + 类型 + (起始偏移 | 角色名 | 标题)
func IssueDedupKey(chapterID string, t ReviewType, loc *IssueLocation, title string) string {
	anchor := "title:" + title
	if loc != nil {
		switch {
		case loc.StartOffset != nil:
			anchor = "offset:" + strconv.Itoa(*loc.StartOffset)
		case loc.CharacterName != "":
			anchor = "character:" + loc.CharacterName
		}
	}
	return chapterID + "|" + string(t) + "|" + anchor
}

// ComputeDedupKey 根据当前字段刷新去重键
func (i *ReviewIssue) ComputeDedupKey() string {
	i.DedupKey = IssueDedupKey(i.ChapterID, i.Type, i.Location, i.Title)
	return i.DedupKey
}

// SetStatus 人工设置状态：open 可转 fixed/ignored，终态不可再变，同状态为无操作
func (i *ReviewIssue) SetStatus(target IssueStatus) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrIssueTransition, target)
	}
	if i.Status == target {
		return nil
	}
	if i.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrIssueTransition, i.Status, target)
	}
	if target == IssueStatusOpen {
		return fmt.Errorf("%w: %s -> %s", ErrIssueTransition, i.Status, target)
	}
	i.Status = target
	return nil
}

// ReplaceFinding 用新一轮审查结果覆盖仍为 open 的问题内容，保留身份与状态
func (i *ReviewIssue) ReplaceFinding(f *ReviewIssue) {
	i.ChapterOrder = f.ChapterOrder
	i.Level = f.Level
	i.Title = f.Title
	i.Description = f.Description
	i.Location = f.Location
	i.Suggestion = f.Suggestion
	i.Reference = f.Reference
	i.Confidence = f.Confidence
	i.RuleName = f.RuleName
}

// Clone 深拷贝
func (i *ReviewIssue) Clone() *ReviewIssue {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Location != nil {
		loc := *i.Location
		loc.Paragraph = cloneInt(i.Location.Paragraph)
		loc.StartOffset = cloneInt(i.Location.StartOffset)
		loc.EndOffset = cloneInt(i.Location.EndOffset)
		cp.Location = &loc
	}
	if i.Reference != nil {
		ref := *i.Reference
		ref.ChapterOrder = cloneInt(i.Reference.ChapterOrder)
		cp.Reference = &ref
	}
	if i.Confidence != nil {
		c := *i.Confidence
		cp.Confidence = &c
	}
	return &cp
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr 返回整数指针
func IntPtr(v int) *int {
	return &v
}

// Float64Ptr 返回浮点数指针
func Float64Ptr(v float64) *float64 {
	return &v
}
