package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novel-memory-api/internal/domain/entity"
)

// SummaryRepository 章节摘要仓储实现
type SummaryRepository struct {
	client *Client
}

// NewSummaryRepository 创建章节摘要仓储
func NewSummaryRepository(client *Client) *SummaryRepository {
	return &SummaryRepository{client: client}
}

// Upsert 以 chapter_id 冲突键创建或覆盖
func (r *SummaryRepository) Upsert(ctx context.Context, summary *entity.ChapterSummary) error {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.Upsert")
	defer span.End()

	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	err := db.Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "chapter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"book_id", "chapter_order", "summary", "key_events",
				"characters_appeared", "emotional_tone", "updated_at",
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "created_at"}}},
	).Create(summary).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chapter summary: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取摘要
func (r *SummaryRepository) GetByID(ctx context.Context, id string) (*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var summary entity.ChapterSummary
	if err := db.First(&summary, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter summary: %w", err)
	}
	return &summary, nil
}

// GetByChapterID 获取章节摘要
func (r *SummaryRepository) GetByChapterID(ctx context.Context, chapterID string) (*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.GetByChapterID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var summary entity.ChapterSummary
	if err := db.First(&summary, "chapter_id = ?", chapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter summary: %w", err)
	}
	return &summary, nil
}

// Update 更新摘要
func (r *SummaryRepository) Update(ctx context.Context, summary *entity.ChapterSummary) error {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(summary).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update chapter summary: %w", err)
	}
	return nil
}

// Delete 删除摘要
func (r *SummaryRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ChapterSummary{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chapter summary: %w", err)
	}
	return nil
}

// ListByBook 获取书籍全部摘要
func (r *SummaryRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.ListByBook")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var summaries []*entity.ChapterSummary
	if err := db.Where("book_id = ?", bookID).
		Order("chapter_order ASC").
		Find(&summaries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapter summaries: %w", err)
	}
	return summaries, nil
}

// ListBeforeChapter 获取指定章节之前的摘要，limit > 0 时取最近 limit 条
func (r *SummaryRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int, limit int) ([]*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.ListBeforeChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("book_id = ? AND chapter_order < ?", bookID, beforeOrder)
	if limit <= 0 {
		var summaries []*entity.ChapterSummary
		if err := query.Order("chapter_order ASC").Find(&summaries).Error; err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to list chapter summaries: %w", err)
		}
		return summaries, nil
	}

	var summaries []*entity.ChapterSummary
	if err := query.Order("chapter_order DESC").Limit(limit).Find(&summaries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapter summaries: %w", err)
	}
	slices.Reverse(summaries)
	return summaries, nil
}

// ListRecent 获取最近 limit 章的摘要
func (r *SummaryRepository) ListRecent(ctx context.Context, bookID string, limit int) ([]*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.SummaryRepository.ListRecent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var summaries []*entity.ChapterSummary
	if err := db.Where("book_id = ?", bookID).
		Order("chapter_order DESC").
		Limit(limit).
		Find(&summaries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent chapter summaries: %w", err)
	}
	slices.Reverse(summaries)
	return summaries, nil
}
