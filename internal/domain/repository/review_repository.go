package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// IssueFilter 审查问题过滤条件
type IssueFilter struct {
	ChapterID string
	Level     entity.ReviewLevel
	Type      entity.ReviewType
	Status    entity.IssueStatus
}

// IssueStats 审查问题统计
type IssueStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByLevel  map[string]int64 `json:"by_level"`
	ByType   map[string]int64 `json:"by_type"`
}

// ReviewIssueRepository 审查问题仓储接口
type ReviewIssueRepository interface {
	// Create 创建问题
	Create(ctx context.Context, issue *entity.ReviewIssue) error

	// GetByID 根据 ID 获取问题
	GetByID(ctx context.Context, id string) (*entity.ReviewIssue, error)

	// GetByIDs 批量获取，不存在的 ID 不出现在结果中
	GetByIDs(ctx context.Context, ids []string) ([]*entity.ReviewIssue, error)

	// CreateOpen 同章节同去重键已有 open 问题时不写入，返回是否创建
	CreateOpen(ctx context.Context, issue *entity.ReviewIssue) (bool, error)

	// GetOpenByKey 获取章节内指定去重键的 open 问题
	GetOpenByKey(ctx context.Context, chapterID, dedupKey string) (*entity.ReviewIssue, error)

	// UpdateFinding 仅当问题仍为 open 时覆盖审查内容，返回是否写入；状态字段不受影响
	UpdateFinding(ctx context.Context, issue *entity.ReviewIssue) (bool, error)

	// TransitionStatus 仅当当前状态为 from 时改为 to，返回是否写入
	TransitionStatus(ctx context.Context, id string, from, to entity.IssueStatus) (bool, error)

	// Delete 删除问题
	Delete(ctx context.Context, id string) error

	// DeleteOpenByIDs 批量删除其中仍为 open 的问题
	DeleteOpenByIDs(ctx context.Context, ids []string) (int64, error)

	// LockChapter 在当前事务内串行化同一章节的问题合并，事务结束时释放
	LockChapter(ctx context.Context, chapterID string) error

	// DeleteByBook 清空书籍问题
	DeleteByBook(ctx context.Context, bookID string) (int64, error)

	// ListByBook 分页获取书籍问题，按 (chapter_order, 严重度) 排序
	ListByBook(ctx context.Context, bookID string, filter *IssueFilter, pagination Pagination) (*PagedResult[*entity.ReviewIssue], error)

	// ListByChapter 获取章节全部问题
	ListByChapter(ctx context.Context, chapterID string) ([]*entity.ReviewIssue, error)

	// Stats 统计书籍问题
	Stats(ctx context.Context, bookID string) (*IssueStats, error)
}

// ReviewReportRepository 审查报告仓储接口，报告只写一次
type ReviewReportRepository interface {
	// Create 保存报告
	Create(ctx context.Context, report *entity.ReviewReport) error

	// GetByID 根据 ID 获取报告
	GetByID(ctx context.Context, id string) (*entity.ReviewReport, error)

	// ListByBook 获取书籍最近的报告，按开始时间倒序
	ListByBook(ctx context.Context, bookID string, limit int) ([]*entity.ReviewReport, error)
}
