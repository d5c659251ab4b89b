package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// JobRepository 抽取任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.ExtractionJob) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.ExtractionJob, error)

	// Update 整行写回任务；存储中的任务已结束（完成、失败或被取消）时不写入并返回 false
	Update(ctx context.Context, job *entity.ExtractionJob) (bool, error)

	// ListByBook 分页获取书籍任务，按创建时间倒序
	ListByBook(ctx context.Context, bookID string, pagination Pagination) (*PagedResult[*entity.ExtractionJob], error)
}
