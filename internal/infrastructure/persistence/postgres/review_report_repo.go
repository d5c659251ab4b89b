package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
)

// ReviewReportRepository 审查报告仓储实现
type ReviewReportRepository struct {
	client *Client
}

// NewReviewReportRepository 创建审查报告仓储
func NewReviewReportRepository(client *Client) *ReviewReportRepository {
	return &ReviewReportRepository{client: client}
}

// Create 保存报告
func (r *ReviewReportRepository) Create(ctx context.Context, report *entity.ReviewReport) error {
	ctx, span := tracer.Start(ctx, "postgres.ReviewReportRepository.Create")
	defer span.End()

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(report).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create review report: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取报告
func (r *ReviewReportRepository) GetByID(ctx context.Context, id string) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewReportRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var report entity.ReviewReport
	if err := db.First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get review report: %w", err)
	}
	return &report, nil
}

// ListByBook 获取书籍最近的报告
func (r *ReviewReportRepository) ListByBook(ctx context.Context, bookID string, limit int) ([]*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReviewReportRepository.ListByBook")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	db := getDB(ctx, r.client.db)
	var reports []*entity.ReviewReport
	// 列表不回传问题明细
	if err := db.Omit("issues").
		Where("book_id = ?", bookID).
		Order("start_time DESC").
		Limit(limit).
		Find(&reports).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list review reports: %w", err)
	}
	return reports, nil
}
