package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// SummaryRepository 章节摘要仓储接口
// 列表结果均按 chapter_order 升序
type SummaryRepository interface {
	// Upsert 以 chapter_id 为键创建或覆盖摘要
	Upsert(ctx context.Context, summary *entity.ChapterSummary) error

	// GetByID 根据 ID 获取摘要
	GetByID(ctx context.Context, id string) (*entity.ChapterSummary, error)

	// GetByChapterID 获取章节摘要
	GetByChapterID(ctx context.Context, chapterID string) (*entity.ChapterSummary, error)

	// Update 更新摘要
	Update(ctx context.Context, summary *entity.ChapterSummary) error

	// Delete 删除摘要
	Delete(ctx context.Context, id string) error

	// ListByBook 获取书籍全部摘要
	ListByBook(ctx context.Context, bookID string) ([]*entity.ChapterSummary, error)

	// ListBeforeChapter 获取 chapter_order < beforeOrder 的摘要；limit > 0 时只取最近 limit 条
	ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int, limit int) ([]*entity.ChapterSummary, error)

	// ListRecent 获取最近 limit 章的摘要
	ListRecent(ctx context.Context, bookID string, limit int) ([]*entity.ChapterSummary, error)
}
