package entity

import (
	"fmt"
	"sort"
	"time"
)

// 常用状态字段
const (
	StateFieldIsAlive  = "isAlive"
	StateFieldLocation = "location"
	StateFieldStatus   = "status"
	StateFieldPower    = "power"
)

// CharacterStateChange 角色状态变更日志，只追加
// Seq 为插入序，用于同章节内多条变更的确定性排序
type CharacterStateChange struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	Seq          int64     `json:"seq" gorm:"autoIncrement;not null;index"`
	CharacterID  string    `json:"character_id" gorm:"type:uuid;not null;index:idx_state_character_order,priority:1"`
	BookID       string    `json:"book_id" gorm:"type:uuid;not null;index"`
	ChapterID    string    `json:"chapter_id" gorm:"type:uuid;not null;index"`
	ChapterOrder int       `json:"chapter_order" gorm:"not null;index:idx_state_character_order,priority:2"`
	Field        string    `json:"field" gorm:"type:varchar(64);not null"`
	OldValue     string    `json:"old_value,omitempty" gorm:"type:text"`
	NewValue     string    `json:"new_value" gorm:"type:text"`
	Reason       string    `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (CharacterStateChange) TableName() string {
	return "character_state_changes"
}

// Validate 校验字段
func (c *CharacterStateChange) Validate() error {
	if c.CharacterID == "" || c.BookID == "" || c.ChapterID == "" {
		return fmt.Errorf("character_id, book_id and chapter_id are required")
	}
	if c.Field == "" {
		return fmt.Errorf("field is required")
	}
	if c.ChapterOrder < 0 {
		return fmt.Errorf("chapter_order must not be negative")
	}
	return nil
}

// Clone 拷贝
func (c *CharacterStateChange) Clone() *CharacterStateChange {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// CharacterState 某一时刻的角色状态
type CharacterState struct {
	CharacterID  string            `json:"character_id"`
	ChapterOrder *int              `json:"chapter_order,omitempty"` // nil 表示最新状态
	Fields       map[string]string `json:"fields"`
	ChangedAt    map[string]int    `json:"changed_at"` // 字段最后一次变更所在章节
}

// Get 读取字段值
func (s *CharacterState) Get(field string) (string, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// SortStateChanges 按 (chapterOrder, seq, createdAt, id) 升序原地排序
func SortStateChanges(changes []*CharacterStateChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.ChapterOrder != b.ChapterOrder {
			return a.ChapterOrder < b.ChapterOrder
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// FoldCharacterState 将变更日志折叠为状态快照
// upTo 为 nil 时折叠全部变更；输入顺序不影响结果，输入切片不会被修改
func FoldCharacterState(characterID string, changes []*CharacterStateChange, upTo *int) *CharacterState {
	ordered := make([]*CharacterStateChange, 0, len(changes))
	for _, c := range changes {
		if c.CharacterID != characterID {
			continue
		}
		if upTo != nil && c.ChapterOrder > *upTo {
			continue
		}
		ordered = append(ordered, c)
	}
	SortStateChanges(ordered)

	state := &CharacterState{
		CharacterID: characterID,
		Fields:      make(map[string]string),
		ChangedAt:   make(map[string]int),
	}
	if upTo != nil {
		n := *upTo
		state.ChapterOrder = &n
	}
	for _, c := range ordered {
		state.Fields[c.Field] = c.NewValue
		state.ChangedAt[c.Field] = c.ChapterOrder
	}
	return state
}

// GroupStateChangesByChapter 按章节序分组，组内保持插入序
func GroupStateChangesByChapter(changes []*CharacterStateChange) ([]int, map[int][]*CharacterStateChange) {
	ordered := append([]*CharacterStateChange(nil), changes...)
	SortStateChanges(ordered)

	groups := make(map[int][]*CharacterStateChange)
	var orders []int
	for _, c := range ordered {
		if _, ok := groups[c.ChapterOrder]; !ok {
			orders = append(orders, c.ChapterOrder)
		}
		groups[c.ChapterOrder] = append(groups[c.ChapterOrder], c)
	}
	return orders, groups
}
