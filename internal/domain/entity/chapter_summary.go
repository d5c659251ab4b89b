package entity

import (
	"time"

	"github.com/lib/pq"
)

// ChapterSummary 章节摘要，每章一条，以 chapter_id 为 upsert 键
type ChapterSummary struct {
	ID                 string         `json:"id" gorm:"type:uuid;primaryKey"`
	BookID             string         `json:"book_id" gorm:"type:uuid;not null;index:idx_summary_book_order,priority:1"`
	ChapterID          string         `json:"chapter_id" gorm:"type:uuid;not null;uniqueIndex"`
	ChapterOrder       int            `json:"chapter_order" gorm:"not null;index:idx_summary_book_order,priority:2"`
	Summary            string         `json:"summary" gorm:"type:text"`
	KeyEvents          pq.StringArray `json:"key_events" gorm:"type:text[]"`
	CharactersAppeared pq.StringArray `json:"characters_appeared" gorm:"type:text[]"`
	EmotionalTone      string         `json:"emotional_tone,omitempty" gorm:"type:varchar(64)"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ChapterSummary) TableName() string {
	return "chapter_summaries"
}

// Clone 深拷贝
func (s *ChapterSummary) Clone() *ChapterSummary {
	if s == nil {
		return nil
	}
	cp := *s
	cp.KeyEvents = append(pq.StringArray(nil), s.KeyEvents...)
	cp.CharactersAppeared = append(pq.StringArray(nil), s.CharactersAppeared...)
	return &cp
}

// IsEmpty 摘要正文是否为空
func (s *ChapterSummary) IsEmpty() bool {
	return s == nil || s.Summary == ""
}
