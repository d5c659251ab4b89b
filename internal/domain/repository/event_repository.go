package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// EventRepository 故事事件仓储接口
// 列表结果按 (chapter_order, timeline_order) 升序
type EventRepository interface {
	// Create 创建事件
	Create(ctx context.Context, event *entity.StoryEvent) error

	// CreateBatch 批量创建，全部成功或全部失败
	CreateBatch(ctx context.Context, events []*entity.StoryEvent) error

	// ReplaceByChapter 原子地替换章节下的全部事件
	ReplaceByChapter(ctx context.Context, chapterID string, events []*entity.StoryEvent) error

	// GetByID 根据 ID 获取事件
	GetByID(ctx context.Context, id string) (*entity.StoryEvent, error)

	// Update 更新事件
	Update(ctx context.Context, event *entity.StoryEvent) error

	// Delete 删除事件
	Delete(ctx context.Context, id string) error

	// DeleteByChapter 删除章节下的全部事件
	DeleteByChapter(ctx context.Context, chapterID string) error

	// ListByBook 获取书籍事件
	ListByBook(ctx context.Context, bookID string) ([]*entity.StoryEvent, error)

	// ListByChapter 获取章节事件
	ListByChapter(ctx context.Context, chapterID string) ([]*entity.StoryEvent, error)

	// ListMajor 获取书籍主要事件
	ListMajor(ctx context.Context, bookID string) ([]*entity.StoryEvent, error)

	// ListByCharacter 获取涉及角色的事件
	ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.StoryEvent, error)

	// ListBeforeChapter 获取 chapter_order < beforeOrder 的事件
	ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.StoryEvent, error)

	// NextTimelineOrder 返回书籍下一个可用的时间线序号
	NextTimelineOrder(ctx context.Context, bookID string) (int, error)
}
