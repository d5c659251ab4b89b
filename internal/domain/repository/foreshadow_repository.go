package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// ForeshadowRepository 伏笔仓储接口
// 列表结果按 (planted_chapter, created_at) 升序
type ForeshadowRepository interface {
	// Create 创建伏笔
	Create(ctx context.Context, f *entity.Foreshadow) error

	// CreateBatch 批量创建，全部成功或全部失败
	CreateBatch(ctx context.Context, items []*entity.Foreshadow) error

	// GetByID 根据 ID 获取伏笔
	GetByID(ctx context.Context, id string) (*entity.Foreshadow, error)

	// Update 更新伏笔
	Update(ctx context.Context, f *entity.Foreshadow) error

	// Delete 删除伏笔
	Delete(ctx context.Context, id string) error

	// ListByBook 获取书籍全部伏笔
	ListByBook(ctx context.Context, bookID string) ([]*entity.Foreshadow, error)

	// ListByStatus 获取指定状态的伏笔
	ListByStatus(ctx context.Context, bookID string, statuses ...entity.ForeshadowStatus) ([]*entity.Foreshadow, error)

	// ListByCharacter 获取关联角色的伏笔
	ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.Foreshadow, error)

	// ListByPlantedChapter 获取在指定章节埋下的伏笔
	ListByPlantedChapter(ctx context.Context, chapterID string) ([]*entity.Foreshadow, error)

	// ListPlantedBefore 获取 planted_chapter < beforeOrder 的伏笔
	ListPlantedBefore(ctx context.Context, bookID string, beforeOrder int) ([]*entity.Foreshadow, error)

	// CountByStatus 按状态计数
	CountByStatus(ctx context.Context, bookID string) (map[entity.ForeshadowStatus]int64, error)

	// ListBookIDsWithOpen 获取存在未回收伏笔的书籍
	ListBookIDsWithOpen(ctx context.Context) ([]string, error)
}
