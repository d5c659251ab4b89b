package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/tracer"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

// IssueService 审查问题与报告的查询和人工处理
type IssueService struct {
	issues  repository.ReviewIssueRepository
	reports repository.ReviewReportRepository
	tx      repository.Transactor
}

// NewIssueService 创建问题服务
func NewIssueService(issues repository.ReviewIssueRepository, reports repository.ReviewReportRepository, tx repository.Transactor) *IssueService {
	return &IssueService{issues: issues, reports: reports, tx: tx}
}

// Get 获取单个问题
func (s *IssueService) Get(ctx context.Context, id string) (*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.Get")
	defer span.End()

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to get review issue")
	}
	if issue == nil {
		return nil, apperrors.ErrIssueNotFound
	}
	return issue, nil
}

// ValidateFilter 校验过滤条件中的枚举值
func ValidateFilter(f *repository.IssueFilter) error {
	if f == nil {
		return nil
	}
	if f.Level != "" && !f.Level.Valid() {
		return apperrors.ErrInvalidParam.WithDetail("unknown level: " + string(f.Level))
	}
	if f.Type != "" && !f.Type.Valid() {
		return apperrors.ErrInvalidParam.WithDetail("unknown type: " + string(f.Type))
	}
	if f.Status != "" && !f.Status.Valid() {
		return apperrors.ErrInvalidParam.WithDetail("unknown status: " + string(f.Status))
	}
	return nil
}

// ListByBook 分页列出书籍问题
func (s *IssueService) ListByBook(ctx context.Context, bookID string, filter *repository.IssueFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.ReviewIssue], error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.ListByBook")
	defer span.End()

	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	result, err := s.issues.ListByBook(ctx, bookID, filter, pagination)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list review issues")
	}
	return result, nil
}

// ListByChapter 列出章节全部问题
func (s *IssueService) ListByChapter(ctx context.Context, chapterID string) ([]*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.ListByChapter")
	defer span.End()

	issues, err := s.issues.ListByChapter(ctx, chapterID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list review issues")
	}
	return issues, nil
}

func transitionError(err error) error {
	if errors.Is(err, entity.ErrIssueTransition) {
		return apperrors.ErrIllegalTransition.WithDetail(err.Error())
	}
	return err
}

// transition 比较并设置状态；读取之后状态已被改动时整体失败
func (s *IssueService) transition(ctx context.Context, id string, from, to entity.IssueStatus) error {
	ok, err := s.issues.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return dbError(err, "failed to update review issue")
	}
	if !ok {
		return apperrors.ErrIllegalTransition.WithDetail(fmt.Sprintf("issue %s is no longer %s", id, from))
	}
	return nil
}

// UpdateStatus 人工修改问题状态
func (s *IssueService) UpdateStatus(ctx context.Context, id string, status entity.IssueStatus) (*entity.ReviewIssue, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.UpdateStatus")
	defer span.End()

	var out *entity.ReviewIssue
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		issue, err := s.issues.GetByID(ctx, id)
		if err != nil {
			return dbError(err, "failed to get review issue")
		}
		if issue == nil {
			return apperrors.ErrIssueNotFound.WithDetail(id)
		}
		prev := issue.Status
		if err := issue.SetStatus(status); err != nil {
			return transitionError(err)
		}
		if prev != issue.Status {
			if err := s.transition(ctx, issue.ID, prev, issue.Status); err != nil {
				return err
			}
		}
		out = issue
		return nil
	})
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	logger.Info(ctx, "review issue status updated", "issue_id", id, "status", status)
	return out, nil
}

// BatchUpdateStatus 批量设置同一目标状态；任一 ID 不存在或迁移非法时整体不生效
func (s *IssueService) BatchUpdateStatus(ctx context.Context, ids []string, status entity.IssueStatus) (int, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.BatchUpdateStatus")
	defer span.End()

	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, apperrors.ErrInvalidParam.WithDetail("ids is required")
	}

	updated := 0
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		issues, err := s.issues.GetByIDs(ctx, unique)
		if err != nil {
			return dbError(err, "failed to get review issues")
		}
		byID := make(map[string]*entity.ReviewIssue, len(issues))
		for _, issue := range issues {
			byID[issue.ID] = issue
		}
		var changed []*entity.ReviewIssue
		for _, id := range unique {
			issue, ok := byID[id]
			if !ok {
				return apperrors.ErrIssueNotFound.WithDetail(id)
			}
			prev := issue.Status
			if err := issue.SetStatus(status); err != nil {
				return transitionError(err)
			}
			if prev != issue.Status {
				changed = append(changed, issue)
			}
		}
		for _, issue := range changed {
			if err := s.transition(ctx, issue.ID, entity.IssueStatusOpen, issue.Status); err != nil {
				return err
			}
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		tracer.Fail(span, err)
		return 0, err
	}
	logger.Info(ctx, "review issues status updated", "count", updated, "status", status)
	return updated, nil
}

// Delete 删除单个问题
func (s *IssueService) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "review.IssueService.Delete")
	defer span.End()

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return dbError(err, "failed to get review issue")
	}
	if issue == nil {
		return apperrors.ErrIssueNotFound
	}
	if err := s.issues.Delete(ctx, id); err != nil {
		tracer.Fail(span, err)
		return dbError(err, "failed to delete review issue")
	}
	return nil
}

// Clear 清空书籍全部问题，报告保留
func (s *IssueService) Clear(ctx context.Context, bookID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.Clear")
	defer span.End()

	n, err := s.issues.DeleteByBook(ctx, bookID)
	if err != nil {
		tracer.Fail(span, err)
		return 0, dbError(err, "failed to clear review issues")
	}
	logger.Info(ctx, "review issues cleared", "book_id", bookID, "count", n)
	return n, nil
}

// Stats 按状态、级别、类型统计
func (s *IssueService) Stats(ctx context.Context, bookID string) (*repository.IssueStats, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.Stats")
	defer span.End()

	stats, err := s.issues.Stats(ctx, bookID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to stat review issues")
	}
	return stats, nil
}

// GetReport 获取审查报告
func (s *IssueService) GetReport(ctx context.Context, id string) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.GetReport")
	defer span.End()

	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to get review report")
	}
	if report == nil {
		return nil, apperrors.ErrReportNotFound
	}
	return report, nil
}

// ListReports 最近的审查报告，按开始时间倒序
func (s *IssueService) ListReports(ctx context.Context, bookID string, limit int) ([]*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.IssueService.ListReports")
	defer span.End()

	if limit <= 0 {
		limit = defaultReportLimit
	}
	limit = min(limit, maxReportLimit)
	reports, err := s.reports.ListByBook(ctx, bookID, limit)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list review reports")
	}
	return reports, nil
}
