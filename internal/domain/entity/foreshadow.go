package entity

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
)

// ForeshadowType 伏笔类型
type ForeshadowType string

const (
	ForeshadowTypeProphecy  ForeshadowType = "prophecy"
	ForeshadowTypeItem      ForeshadowType = "item"
	ForeshadowTypeCharacter ForeshadowType = "character"
	ForeshadowTypeEvent     ForeshadowType = "event"
	ForeshadowTypeHint      ForeshadowType = "hint"
)

// Valid 是否为合法类型
func (t ForeshadowType) Valid() bool {
	switch t {
	case ForeshadowTypeProphecy, ForeshadowTypeItem, ForeshadowTypeCharacter, ForeshadowTypeEvent, ForeshadowTypeHint:
		return true
	}
	return false
}

// ForeshadowImportance 伏笔重要性
type ForeshadowImportance string

const (
	ForeshadowImportanceMajor  ForeshadowImportance = "major"
	ForeshadowImportanceMinor  ForeshadowImportance = "minor"
	ForeshadowImportanceSubtle ForeshadowImportance = "subtle"
)

// Valid 是否为合法重要性
func (i ForeshadowImportance) Valid() bool {
	switch i {
	case ForeshadowImportanceMajor, ForeshadowImportanceMinor, ForeshadowImportanceSubtle:
		return true
	}
	return false
}

// Rank 排序权重，越小越重要
func (i ForeshadowImportance) Rank() int {
	switch i {
	case ForeshadowImportanceMajor:
		return 0
	case ForeshadowImportanceMinor:
		return 1
	default:
		return 2
	}
}

// ForeshadowStatus 伏笔状态
type ForeshadowStatus string

const (
	ForeshadowStatusPlanted   ForeshadowStatus = "planted"
	ForeshadowStatusPartial   ForeshadowStatus = "partial"
	ForeshadowStatusResolved  ForeshadowStatus = "resolved"
	ForeshadowStatusAbandoned ForeshadowStatus = "abandoned"
)

// Valid 是否为合法状态
func (s ForeshadowStatus) Valid() bool {
	switch s {
	case ForeshadowStatusPlanted, ForeshadowStatusPartial, ForeshadowStatusResolved, ForeshadowStatusAbandoned:
		return true
	}
	return false
}

// IsTerminal resolved 与 abandoned 为终态
func (s ForeshadowStatus) IsTerminal() bool {
	return s == ForeshadowStatusResolved || s == ForeshadowStatusAbandoned
}

// IsOpen 是否仍待回收
func (s ForeshadowStatus) IsOpen() bool {
	return s == ForeshadowStatusPlanted || s == ForeshadowStatusPartial
}

// ForeshadowSource 伏笔来源
type ForeshadowSource string

const (
	ForeshadowSourceManual     ForeshadowSource = "manual"
	ForeshadowSourceAIDetected ForeshadowSource = "ai_detected"
)

// 伏笔状态机错误
var (
	ErrForeshadowTerminal        = errors.New("foreshadow is in a terminal status")
	ErrForeshadowTransition      = errors.New("illegal foreshadow status transition")
	ErrResolutionNotesRequired   = errors.New("resolution notes are required to resolve a foreshadow")
	ErrResolutionChapterRequired = errors.New("at least one resolution chapter is required")
	ErrResolutionBeforePlanted   = errors.New("resolution chapter precedes planted chapter")
)

// Foreshadow 伏笔
type Foreshadow struct {
	ID                 string               `json:"id" gorm:"type:uuid;primaryKey"`
	BookID             string               `json:"book_id" gorm:"type:uuid;not null;index:idx_foreshadow_book_status,priority:1"`
	Title              string               `json:"title" gorm:"type:varchar(255);not null"`
	Type               ForeshadowType       `json:"type" gorm:"type:varchar(20)"`
	Importance         ForeshadowImportance `json:"importance" gorm:"type:varchar(20);default:'minor'"`
	Status             ForeshadowStatus     `json:"status" gorm:"type:varchar(20);default:'planted';index:idx_foreshadow_book_status,priority:2"`
	PlantedChapter     int                  `json:"planted_chapter" gorm:"not null;index"`
	PlantedChapterID   string               `json:"planted_chapter_id,omitempty" gorm:"type:uuid;index"`
	PlantedText        string               `json:"planted_text,omitempty" gorm:"type:text"`
	ExpectedResolve    string               `json:"expected_resolve,omitempty" gorm:"type:text"`
	RelatedCharacters  pq.StringArray       `json:"related_characters" gorm:"type:text[]"`
	ResolutionChapters pq.Int64Array        `json:"resolution_chapters" gorm:"type:bigint[]"`
	ResolutionNotes    string               `json:"resolution_notes,omitempty" gorm:"type:text"`
	Source             ForeshadowSource     `json:"source" gorm:"type:varchar(20);default:'manual'"`
	Confidence         *float64             `json:"confidence,omitempty" gorm:"type:numeric(3,2)"`
	CreatedAt          time.Time            `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time            `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Foreshadow) TableName() string {
	return "foreshadows"
}

// ApplyDefaults 创建时填充默认值
func (f *Foreshadow) ApplyDefaults() {
	if f.Status == "" {
		f.Status = ForeshadowStatusPlanted
	}
	if f.Importance == "" {
		f.Importance = ForeshadowImportanceMinor
	}
	if f.Source == "" {
		f.Source = ForeshadowSourceManual
	}
	if f.Type == "" {
		f.Type = ForeshadowTypeHint
	}
}

// Validate 校验字段与不变量
func (f *Foreshadow) Validate() error {
	if f.BookID == "" || f.Title == "" {
		return fmt.Errorf("book_id and title are required")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("unknown foreshadow type %q", f.Type)
	}
	if !f.Importance.Valid() {
		return fmt.Errorf("unknown importance %q", f.Importance)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("unknown foreshadow status %q", f.Status)
	}
	if f.Source != ForeshadowSourceManual && f.Source != ForeshadowSourceAIDetected {
		return fmt.Errorf("unknown source %q", f.Source)
	}
	if f.Confidence != nil && (*f.Confidence < 0 || *f.Confidence > 1) {
		return fmt.Errorf("confidence must be within [0,1]")
	}
	if f.PlantedChapter < 0 {
		return fmt.Errorf("planted_chapter must not be negative")
	}
	for _, c := range f.ResolutionChapters {
		if int(c) < f.PlantedChapter {
			return ErrResolutionBeforePlanted
		}
	}
	if f.Status == ForeshadowStatusPartial && len(f.ResolutionChapters) == 0 {
		return ErrResolutionChapterRequired
	}
	if f.Status == ForeshadowStatusResolved {
		if f.ResolutionNotes == "" {
			return ErrResolutionNotesRequired
		}
		if len(f.ResolutionChapters) == 0 {
			return ErrResolutionChapterRequired
		}
	}
	return nil
}

// Age 距离当前章节的章数
func (f *Foreshadow) Age(currentChapter int) int {
	return currentChapter - f.PlantedChapter
}

// HasResolutionChapter 是否已记录该回收章节
func (f *Foreshadow) HasResolutionChapter(chapterOrder int) bool {
	return slices.Contains(f.ResolutionChapters, int64(chapterOrder))
}

// AddResolutionChapter 追加部分回收章节，planted 随之进入 partial；重复章节忽略
func (f *Foreshadow) AddResolutionChapter(chapterOrder int) error {
	if f.Status.IsTerminal() {
		return ErrForeshadowTerminal
	}
	if chapterOrder < f.PlantedChapter {
		return ErrResolutionBeforePlanted
	}
	if !f.HasResolutionChapter(chapterOrder) {
		f.ResolutionChapters = append(f.ResolutionChapters, int64(chapterOrder))
	}
	if f.Status == ForeshadowStatusPlanted {
		f.Status = ForeshadowStatusPartial
	}
	return nil
}

// Resolve 标记为已回收；atChapter > 0 时同时追加回收章节
func (f *Foreshadow) Resolve(notes string, atChapter int) error {
	if f.Status.IsTerminal() {
		return ErrForeshadowTerminal
	}
	if notes == "" {
		notes = f.ResolutionNotes
	}
	if notes == "" {
		return ErrResolutionNotesRequired
	}
	if atChapter > 0 {
		if atChapter < f.PlantedChapter {
			return ErrResolutionBeforePlanted
		}
	} else if len(f.ResolutionChapters) == 0 {
		return ErrResolutionChapterRequired
	}
	if atChapter > 0 && !f.HasResolutionChapter(atChapter) {
		f.ResolutionChapters = append(f.ResolutionChapters, int64(atChapter))
	}
	f.ResolutionNotes = notes
	f.Status = ForeshadowStatusResolved
	return nil
}

// Abandon 放弃伏笔，原因记入回收说明
func (f *Foreshadow) Abandon(reason string) error {
	if f.Status.IsTerminal() {
		return ErrForeshadowTerminal
	}
	if reason != "" {
		f.ResolutionNotes = reason
	}
	f.Status = ForeshadowStatusAbandoned
	return nil
}

// TransitionTo 按状态图迁移；非终态下迁移到当前状态视为无操作
func (f *Foreshadow) TransitionTo(target ForeshadowStatus, notes string) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrForeshadowTransition, target)
	}
	if f.Status.IsTerminal() {
		return ErrForeshadowTerminal
	}
	switch target {
	case f.Status:
		return nil
	case ForeshadowStatusPlanted:
		return fmt.Errorf("%w: %s -> %s", ErrForeshadowTransition, f.Status, target)
	case ForeshadowStatusPartial:
		if len(f.ResolutionChapters) == 0 {
			return ErrResolutionChapterRequired
		}
		f.Status = ForeshadowStatusPartial
		if notes != "" {
			f.ResolutionNotes = notes
		}
		return nil
	case ForeshadowStatusResolved:
		return f.Resolve(notes, 0)
	default:
		return f.Abandon(notes)
	}
}

// Clone 深拷贝
func (f *Foreshadow) Clone() *Foreshadow {
	if f == nil {
		return nil
	}
	cp := *f
	cp.RelatedCharacters = append(pq.StringArray(nil), f.RelatedCharacters...)
	cp.ResolutionChapters = append(pq.Int64Array(nil), f.ResolutionChapters...)
	if f.Confidence != nil {
		c := *f.Confidence
		cp.Confidence = &c
	}
	return &cp
}
