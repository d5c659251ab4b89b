package dto

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
)

// CreateForeshadowRequest 创建或更新伏笔请求
type CreateForeshadowRequest struct {
	BookID            string   `json:"book_id"`
	Title             string   `json:"title" binding:"required,max=255"`
	Type              string   `json:"type" binding:"omitempty"`
	Importance        string   `json:"importance" binding:"omitempty"`
	PlantedChapterID  string   `json:"planted_chapter_id"`
	PlantedChapter    *int     `json:"planted_chapter" binding:"omitempty,gte=0"`
	PlantedText       string   `json:"planted_text" binding:"omitempty,max=5000"`
	ExpectedResolve   string   `json:"expected_resolve" binding:"omitempty,max=2000"`
	RelatedCharacters []string `json:"related_characters"`
	Confidence        *float64 `json:"confidence" binding:"omitempty,gte=0,lte=1"`
}

// ToInput 转换为服务层输入
func (r *CreateForeshadowRequest) ToInput() *memory.ForeshadowInput {
	return &memory.ForeshadowInput{
		BookID:            r.BookID,
		Title:             r.Title,
		Type:              r.Type,
		Importance:        r.Importance,
		PlantedChapterID:  r.PlantedChapterID,
		PlantedChapter:    r.PlantedChapter,
		PlantedText:       r.PlantedText,
		ExpectedResolve:   r.ExpectedResolve,
		RelatedCharacters: r.RelatedCharacters,
		Confidence:        r.Confidence,
	}
}

// UpdateForeshadowStatusRequest 伏笔状态迁移
type UpdateForeshadowStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes" binding:"omitempty,max=2000"`
}

// AddResolutionChapterRequest 追加回收章节
type AddResolutionChapterRequest struct {
	ChapterOrder *int `json:"chapter_order" binding:"required,gte=0"`
}

// ResolveForeshadowRequest 回收伏笔；chapter_order 为空时要求已有回收章节
type ResolveForeshadowRequest struct {
	Notes        string `json:"notes" binding:"omitempty,max=2000"`
	ChapterOrder int    `json:"chapter_order" binding:"omitempty,gte=0"`
}

// AbandonForeshadowRequest 放弃伏笔
type AbandonForeshadowRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=2000"`
}

// ForeshadowRemindersResponse 伏笔提醒
type ForeshadowRemindersResponse struct {
	CurrentChapter int                  `json:"current_chapter"`
	MinChapters    int                  `json:"min_chapters"`
	Items          []*entity.Foreshadow `json:"items"`
	Text           string               `json:"text"`
}
