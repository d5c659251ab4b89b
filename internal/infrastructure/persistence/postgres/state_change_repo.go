package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
)

const stateChangeOrder = "chapter_order ASC, seq ASC"

// StateChangeRepository 角色状态变更仓储实现
type StateChangeRepository struct {
	client *Client
}

// NewStateChangeRepository 创建角色状态变更仓储
func NewStateChangeRepository(client *Client) *StateChangeRepository {
	return &StateChangeRepository{client: client}
}

// Create 追加变更
func (r *StateChangeRepository) Create(ctx context.Context, change *entity.CharacterStateChange) error {
	ctx, span := tracer.Start(ctx, "postgres.StateChangeRepository.Create")
	defer span.End()

	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(change).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record character state change: %w", err)
	}
	return nil
}

// CreateBatch 批量追加变更
func (r *StateChangeRepository) CreateBatch(ctx context.Context, changes []*entity.CharacterStateChange) error {
	ctx, span := tracer.Start(ctx, "postgres.StateChangeRepository.CreateBatch")
	defer span.End()

	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	}
	err := inTx(ctx, r.client.db, func(tx *gorm.DB) error {
		return tx.Create(changes).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch record character state changes: %w", err)
	}
	return nil
}

// ReplaceByChapter 原子替换章节变更
func (r *StateChangeRepository) ReplaceByChapter(ctx context.Context, chapterID string, changes []*entity.CharacterStateChange) error {
	ctx, span := tracer.Start(ctx, "postgres.StateChangeRepository.ReplaceByChapter")
	defer span.End()

	for _, c := range changes {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	}
	err := inTx(ctx, r.client.db, func(tx *gorm.DB) error {
		if err := tx.Where("chapter_id = ?", chapterID).Delete(&entity.CharacterStateChange{}).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Create(changes).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to replace character state changes: %w", err)
	}
	return nil
}

// ListByCharacter 获取角色变更
func (r *StateChangeRepository) ListByCharacter(ctx context.Context, characterID string, upTo *int) ([]*entity.CharacterStateChange, error) {
	if upTo != nil {
		return r.list(ctx, "postgres.StateChangeRepository.ListByCharacter", "character_id = ? AND chapter_order <= ?", characterID, *upTo)
	}
	return r.list(ctx, "postgres.StateChangeRepository.ListByCharacter", "character_id = ?", characterID)
}

// ListByBook 获取书籍变更
func (r *StateChangeRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, "postgres.StateChangeRepository.ListByBook", "book_id = ?", bookID)
}

// ListByChapter 获取章节变更
func (r *StateChangeRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, "postgres.StateChangeRepository.ListByChapter", "chapter_id = ?", chapterID)
}

// ListBeforeChapter 获取指定章节之前的变更
func (r *StateChangeRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, "postgres.StateChangeRepository.ListBeforeChapter", "book_id = ? AND chapter_order < ?", bookID, beforeOrder)
}

func (r *StateChangeRepository) list(ctx context.Context, spanName string, where string, args ...any) ([]*entity.CharacterStateChange, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db := getDB(ctx, r.client.db)
	var changes []*entity.CharacterStateChange
	if err := db.Where(where, args...).Order(stateChangeOrder).Find(&changes).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list character state changes: %w", err)
	}
	return changes, nil
}

// DeleteByChapter 删除章节变更
func (r *StateChangeRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.StateChangeRepository.DeleteByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("chapter_id = ?", chapterID).Delete(&entity.CharacterStateChange{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete character state changes: %w", err)
	}
	return nil
}
