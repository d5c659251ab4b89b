package dto

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
)

// ListResponse 通用列表响应
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// NewListResponse 创建列表响应，nil 切片输出为空数组
func NewListResponse[T any](items []T) *ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &ListResponse[T]{Items: items, Total: len(items)}
}

// ContextResponse 上下文文本响应
type ContextResponse struct {
	BookID       string `json:"book_id"`
	ChapterOrder int    `json:"chapter_order"`
	Context      string `json:"context"`
}

// UpsertSummaryRequest 新建或覆盖章节摘要
type UpsertSummaryRequest struct {
	ChapterID          string   `json:"chapter_id" binding:"required"`
	Summary            string   `json:"summary" binding:"required,max=5000"`
	KeyEvents          []string `json:"key_events" binding:"omitempty,max=50"`
	CharactersAppeared []string `json:"characters_appeared" binding:"omitempty,max=100"`
	EmotionalTone      string   `json:"emotional_tone" binding:"omitempty,max=64"`
}

// ToInput 转换为服务层输入
func (r *UpsertSummaryRequest) ToInput() *memory.UpsertSummaryInput {
	return &memory.UpsertSummaryInput{
		ChapterID:          r.ChapterID,
		Summary:            r.Summary,
		KeyEvents:          r.KeyEvents,
		CharactersAppeared: r.CharactersAppeared,
		EmotionalTone:      r.EmotionalTone,
	}
}

// UpdateSummaryRequest 局部更新章节摘要，未出现的字段保持不变
type UpdateSummaryRequest struct {
	Summary            *string  `json:"summary" binding:"omitempty,max=5000"`
	KeyEvents          []string `json:"key_events" binding:"omitempty,max=50"`
	CharactersAppeared []string `json:"characters_appeared" binding:"omitempty,max=100"`
	EmotionalTone      *string  `json:"emotional_tone" binding:"omitempty,max=64"`
}

// ToInput 转换为服务层输入
func (r *UpdateSummaryRequest) ToInput() *memory.UpdateSummaryInput {
	return &memory.UpdateSummaryInput{
		Summary:            r.Summary,
		KeyEvents:          r.KeyEvents,
		CharactersAppeared: r.CharactersAppeared,
		EmotionalTone:      r.EmotionalTone,
	}
}

// CreateEventRequest 创建事件请求
type CreateEventRequest struct {
	ChapterID          string   `json:"chapter_id" binding:"required"`
	Title              string   `json:"title" binding:"required,max=255"`
	Description        string   `json:"description" binding:"omitempty,max=5000"`
	EventType          string   `json:"event_type" binding:"omitempty"`
	InvolvedCharacters []string `json:"involved_characters" binding:"omitempty"`
	Location           string   `json:"location" binding:"omitempty,max=255"`
	TimelineOrder      *int     `json:"timeline_order" binding:"omitempty,gte=0"`
	Impact             string   `json:"impact" binding:"omitempty,max=2000"`
}

// ToInput 转换为服务层输入
func (r *CreateEventRequest) ToInput() *memory.EventInput {
	return &memory.EventInput{
		ChapterID:          r.ChapterID,
		Title:              r.Title,
		Description:        r.Description,
		EventType:          r.EventType,
		InvolvedCharacters: r.InvolvedCharacters,
		Location:           r.Location,
		TimelineOrder:      r.TimelineOrder,
		Impact:             r.Impact,
	}
}

// BatchCreateEventRequest 批量创建事件
type BatchCreateEventRequest struct {
	Events []CreateEventRequest `json:"events" binding:"required,min=1,max=200,dive"`
}

// ToInputs 转换为服务层输入
func (r *BatchCreateEventRequest) ToInputs() []*memory.EventInput {
	out := make([]*memory.EventInput, 0, len(r.Events))
	for i := range r.Events {
		out = append(out, r.Events[i].ToInput())
	}
	return out
}

// RecordStateChangeRequest 记录角色状态变化
type RecordStateChangeRequest struct {
	CharacterID string `json:"character_id" binding:"required"`
	ChapterID   string `json:"chapter_id" binding:"required"`
	Field       string `json:"field" binding:"required,max=64"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
	Reason      string `json:"reason" binding:"omitempty,max=2000"`
}

// ToInput 转换为服务层输入
func (r *RecordStateChangeRequest) ToInput() *memory.StateChangeInput {
	return &memory.StateChangeInput{
		CharacterID: r.CharacterID,
		ChapterID:   r.ChapterID,
		Field:       r.Field,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Reason:      r.Reason,
	}
}

// BatchRecordStateChangeRequest 批量记录角色状态变化
type BatchRecordStateChangeRequest struct {
	Changes []RecordStateChangeRequest `json:"changes" binding:"required,min=1,max=500,dive"`
}

// ToInputs 转换为服务层输入
func (r *BatchRecordStateChangeRequest) ToInputs() []*memory.StateChangeInput {
	out := make([]*memory.StateChangeInput, 0, len(r.Changes))
	for i := range r.Changes {
		out = append(out, r.Changes[i].ToInput())
	}
	return out
}

// CharacterStateResponse 角色状态快照
type CharacterStateResponse struct {
	*entity.CharacterState
	Latest bool `json:"latest"`
}
