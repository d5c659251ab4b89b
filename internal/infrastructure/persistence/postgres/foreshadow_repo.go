package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
)

const foreshadowOrder = "planted_chapter ASC, created_at ASC"

// ForeshadowRepository 伏笔仓储实现
type ForeshadowRepository struct {
	client *Client
}

// NewForeshadowRepository 创建伏笔仓储
func NewForeshadowRepository(client *Client) *ForeshadowRepository {
	return &ForeshadowRepository{client: client}
}

// Create 创建伏笔
func (r *ForeshadowRepository) Create(ctx context.Context, f *entity.Foreshadow) error {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.Create")
	defer span.End()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(f).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create foreshadow: %w", err)
	}
	return nil
}

// CreateBatch 批量创建伏笔
func (r *ForeshadowRepository) CreateBatch(ctx context.Context, items []*entity.Foreshadow) error {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.CreateBatch")
	defer span.End()

	if len(items) == 0 {
		return nil
	}
	for _, f := range items {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
	}
	err := inTx(ctx, r.client.db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(items, 100).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch create foreshadows: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取伏笔
func (r *ForeshadowRepository) GetByID(ctx context.Context, id string) (*entity.Foreshadow, error) {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var f entity.Foreshadow
	if err := db.First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get foreshadow: %w", err)
	}
	return &f, nil
}

// Update 更新伏笔
func (r *ForeshadowRepository) Update(ctx context.Context, f *entity.Foreshadow) error {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(f).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update foreshadow: %w", err)
	}
	return nil
}

// Delete 删除伏笔
func (r *ForeshadowRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Foreshadow{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete foreshadow: %w", err)
	}
	return nil
}

// ListByBook 获取书籍伏笔
func (r *ForeshadowRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, "postgres.ForeshadowRepository.ListByBook", "book_id = ?", bookID)
}

// ListByStatus 获取指定状态的伏笔
func (r *ForeshadowRepository) ListByStatus(ctx context.Context, bookID string, statuses ...entity.ForeshadowStatus) ([]*entity.Foreshadow, error) {
	return r.list(ctx, "postgres.ForeshadowRepository.ListByStatus", "book_id = ? AND status IN ?", bookID, statuses)
}

// ListByCharacter 获取关联角色的伏笔
func (r *ForeshadowRepository) ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, "postgres.ForeshadowRepository.ListByCharacter", "book_id = ? AND ? = ANY(related_characters)", bookID, characterID)
}

// ListByPlantedChapter 获取章节内埋下的伏笔
func (r *ForeshadowRepository) ListByPlantedChapter(ctx context.Context, chapterID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, "postgres.ForeshadowRepository.ListByPlantedChapter", "planted_chapter_id = ?", chapterID)
}

// ListPlantedBefore 获取指定章节前埋下的伏笔
func (r *ForeshadowRepository) ListPlantedBefore(ctx context.Context, bookID string, beforeOrder int) ([]*entity.Foreshadow, error) {
	return r.list(ctx, "postgres.ForeshadowRepository.ListPlantedBefore", "book_id = ? AND planted_chapter < ?", bookID, beforeOrder)
}

func (r *ForeshadowRepository) list(ctx context.Context, spanName string, where string, args ...any) ([]*entity.Foreshadow, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db := getDB(ctx, r.client.db)
	var items []*entity.Foreshadow
	if err := db.Where(where, args...).Order(foreshadowOrder).Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list foreshadows: %w", err)
	}
	return items, nil
}

// CountByStatus 按状态计数
func (r *ForeshadowRepository) CountByStatus(ctx context.Context, bookID string) (map[entity.ForeshadowStatus]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.CountByStatus")
	defer span.End()

	type row struct {
		Status entity.ForeshadowStatus
		Count  int64
	}
	var rows []row
	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Foreshadow{}).
		Select("status, COUNT(*) AS count").
		Where("book_id = ?", bookID).
		Group("status").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count foreshadows: %w", err)
	}

	counts := make(map[entity.ForeshadowStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// ListBookIDsWithOpen 获取仍有未回收伏笔的书籍
func (r *ForeshadowRepository) ListBookIDsWithOpen(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ForeshadowRepository.ListBookIDsWithOpen")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var ids []string
	if err := db.Model(&entity.Foreshadow{}).
		Distinct("book_id").
		Where("status IN ?", []entity.ForeshadowStatus{entity.ForeshadowStatusPlanted, entity.ForeshadowStatusPartial}).
		Pluck("book_id", &ids).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list books with open foreshadows: %w", err)
	}
	return ids, nil
}
