package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
)

// 章节顺序优先，同章内按严重度降序
const issueOrder = "chapter_order ASC, CASE level WHEN 'error' THEN 4 WHEN 'warning' THEN 3 WHEN 'suggestion' THEN 2 ELSE 1 END DESC, created_at ASC"

// ReviewIssueRepository 审查问题仓储实现
type ReviewIssueRepository struct {
	client *Client
}

// NewReviewIssueRepository 创建审查问题仓储
func NewReviewIssueRepository(client *Client) *ReviewIssueRepository {
	return &ReviewIssueRepository{client: client}
}

// Create 创建问题
func (r *ReviewIssueRepository) Create(ctx context.Context, issue *entity.ReviewIssue) error {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.Create")
	defer span.End()

	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(issue).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create review issue: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取问题
func (r *ReviewIssueRepository) GetByID(ctx context.Context, id string) (*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var issue entity.ReviewIssue
	if err := db.First(&issue, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get review issue: %w", err)
	}
	return &issue, nil
}

// GetByIDs 批量获取问题
func (r *ReviewIssueRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var issues []*entity.ReviewIssue
	if err := db.Where("id IN ?", ids).Order(issueOrder).Find(&issues).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get review issues: %w", err)
	}
	return issues, nil
}

// CreateOpen 依赖 idx_review_issues_open_dedup 部分唯一索引，冲突时不写入
func (r *ReviewIssueRepository) CreateOpen(ctx context.Context, issue *entity.ReviewIssue) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.CreateOpen")
	defer span.End()

	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.Status = entity.IssueStatusOpen
	db := getDB(ctx, r.client.db)
	res := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chapter_id"}, {Name: "dedup_key"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Name: "status"}, Value: entity.IssueStatusOpen},
		}},
		DoNothing: true,
	}).Create(issue)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to create review issue: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetOpenByKey 获取章节内指定去重键的 open 问题
func (r *ReviewIssueRepository) GetOpenByKey(ctx context.Context, chapterID, dedupKey string) (*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.GetOpenByKey")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var issue entity.ReviewIssue
	err := db.Where("chapter_id = ? AND dedup_key = ? AND status = ?", chapterID, dedupKey, entity.IssueStatusOpen).
		Take(&issue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get open review issue: %w", err)
	}
	return &issue, nil
}

// findingColumns 重新审查可以覆盖的列；status 只由人工迁移修改
var findingColumns = []string{
	"chapter_order", "level", "title", "description", "location",
	"suggestion", "reference", "confidence", "rule_name", "updated_at",
}

// UpdateFinding 条件更新：WHERE status = 'open'，人工已处理的问题不会被改回
func (r *ReviewIssueRepository) UpdateFinding(ctx context.Context, issue *entity.ReviewIssue) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.UpdateFinding")
	defer span.End()

	issue.UpdatedAt = time.Now()
	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.ReviewIssue{ID: issue.ID}).
		Where("status = ?", entity.IssueStatusOpen).
		Select(findingColumns).
		Updates(issue)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to update review issue: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TransitionStatus 比较并设置状态
func (r *ReviewIssueRepository) TransitionStatus(ctx context.Context, id string, from, to entity.IssueStatus) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.TransitionStatus")
	defer span.End()
	span.SetAttributes(attribute.String("issue.id", id), attribute.String("issue.status", string(to)))

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.ReviewIssue{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to update review issue status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete 删除问题
func (r *ReviewIssueRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ReviewIssue{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete review issue: %w", err)
	}
	return nil
}

// DeleteOpenByIDs 只删除仍为 open 的问题
func (r *ReviewIssueRepository) DeleteOpenByIDs(ctx context.Context, ids []string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.DeleteOpenByIDs")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}
	db := getDB(ctx, r.client.db)
	res := db.Where("id IN ? AND status = ?", ids, entity.IssueStatusOpen).Delete(&entity.ReviewIssue{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to delete review issues: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LockChapter 事务级 advisory lock，必须在事务内调用
func (r *ReviewIssueRepository) LockChapter(ctx context.Context, chapterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.LockChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "review_issues:"+chapterID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to lock chapter review issues: %w", err)
	}
	return nil
}

// DeleteByBook 清空书籍问题
func (r *ReviewIssueRepository) DeleteByBook(ctx context.Context, bookID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.DeleteByBook")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Where("book_id = ?", bookID).Delete(&entity.ReviewIssue{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to clear review issues: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByBook 分页获取书籍问题
func (r *ReviewIssueRepository) ListByBook(ctx context.Context, bookID string, filter *repository.IssueFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.ReviewIssue], error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.ListByBook")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.ReviewIssue{}).Where("book_id = ?", bookID)
	if filter != nil {
		if filter.ChapterID != "" {
			query = query.Where("chapter_id = ?", filter.ChapterID)
		}
		if filter.Level != "" {
			query = query.Where("level = ?", filter.Level)
		}
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count review issues: %w", err)
	}

	var issues []*entity.ReviewIssue
	if err := query.Order(issueOrder).Scopes(paginate(pagination)).Find(&issues).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list review issues: %w", err)
	}

	return repository.NewPagedResult(issues, total, pagination), nil
}

// ListByChapter 获取章节问题
func (r *ReviewIssueRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.ListByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var issues []*entity.ReviewIssue
	if err := db.Where("chapter_id = ?", chapterID).Order(issueOrder).Find(&issues).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapter review issues: %w", err)
	}
	return issues, nil
}

// Stats 统计书籍问题
func (r *ReviewIssueRepository) Stats(ctx context.Context, bookID string) (*repository.IssueStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewIssueRepository.Stats")
	defer span.End()

	type row struct {
		Status string
		Level  string
		Type   string
		Count  int64
	}
	var rows []row
	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ReviewIssue{}).
		Select("status, level, type, COUNT(*) AS count").
		Where("book_id = ?", bookID).
		Group("status, level, type").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat review issues: %w", err)
	}

	stats := &repository.IssueStats{
		ByStatus: make(map[string]int64),
		ByLevel:  make(map[string]int64),
		ByType:   make(map[string]int64),
	}
	for _, r := range rows {
		stats.Total += r.Count
		stats.ByStatus[r.Status] += r.Count
		stats.ByLevel[r.Level] += r.Count
		stats.ByType[r.Type] += r.Count
	}
	return stats, nil
}
