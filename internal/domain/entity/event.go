package entity

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EventType 事件类型
type EventType string

const (
	EventTypeMajor      EventType = "major"
	EventTypeMinor      EventType = "minor"
	EventTypeBackground EventType = "background"
)

// Valid 是否为合法事件类型
func (t EventType) Valid() bool {
	switch t {
	case EventTypeMajor, EventTypeMinor, EventTypeBackground:
		return true
	}
	return false
}

// NormalizeEventType 宽松解析模型输出的事件类型，无法识别时归为 minor
func NormalizeEventType(s string) EventType {
	switch EventType(s) {
	case EventTypeMajor, "重大", "主要":
		return EventTypeMajor
	case EventTypeBackground, "背景":
		return EventTypeBackground
	default:
		return EventTypeMinor
	}
}

// StoryEvent 故事事件
// TimelineOrder 是故事内时间序，与 ChapterOrder 相互独立（倒叙章节的事件时间序可以更小）
type StoryEvent struct {
	ID                 string         `json:"id" gorm:"type:uuid;primaryKey"`
	BookID             string         `json:"book_id" gorm:"type:uuid;not null;index:idx_event_book_order,priority:1"`
	ChapterID          string         `json:"chapter_id" gorm:"type:uuid;not null;index"`
	ChapterOrder       int            `json:"chapter_order" gorm:"not null;index:idx_event_book_order,priority:2"`
	Title              string         `json:"title" gorm:"type:varchar(255);not null"`
	Description        string         `json:"description,omitempty" gorm:"type:text"`
	EventType          EventType      `json:"event_type" gorm:"type:varchar(20);default:'minor'"`
	InvolvedCharacters pq.StringArray `json:"involved_characters" gorm:"type:text[]"`
	Location           string         `json:"location,omitempty" gorm:"type:varchar(255)"`
	TimelineOrder      int            `json:"timeline_order" gorm:"index"`
	Impact             string         `json:"impact,omitempty" gorm:"type:text"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (StoryEvent) TableName() string {
	return "story_events"
}

// Validate 校验事件字段
func (e *StoryEvent) Validate() error {
	if e.BookID == "" || e.ChapterID == "" {
		return fmt.Errorf("book_id and chapter_id are required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if e.ChapterOrder < 0 {
		return fmt.Errorf("chapter_order must not be negative")
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event_type %q", e.EventType)
	}
	return nil
}

// Involves 事件是否涉及指定角色
func (e *StoryEvent) Involves(characterID string) bool {
	for _, id := range e.InvolvedCharacters {
		if id == characterID {
			return true
		}
	}
	return false
}

// AddInvolvedCharacter 添加涉及角色
func (e *StoryEvent) AddInvolvedCharacter(characterID string) {
	if e.Involves(characterID) {
		return
	}
	e.InvolvedCharacters = append(e.InvolvedCharacters, characterID)
}

// Clone 深拷贝
func (e *StoryEvent) Clone() *StoryEvent {
	if e == nil {
		return nil
	}
	cp := *e
	cp.InvolvedCharacters = append(pq.StringArray(nil), e.InvolvedCharacters...)
	return &cp
}
