package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
)

const eventOrder = "chapter_order ASC, timeline_order ASC, created_at ASC"

// EventRepository 故事事件仓储实现
type EventRepository struct {
	client *Client
}

// NewEventRepository 创建故事事件仓储
func NewEventRepository(client *Client) *EventRepository {
	return &EventRepository{client: client}
}

// Create 创建事件
func (r *EventRepository) Create(ctx context.Context, event *entity.StoryEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create story event: %w", err)
	}
	return nil
}

// CreateBatch 批量创建事件
func (r *EventRepository) CreateBatch(ctx context.Context, events []*entity.StoryEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.CreateBatch")
	defer span.End()

	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
	}
	err := inTx(ctx, r.client.db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(events, 100).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch create story events: %w", err)
	}
	return nil
}

// ReplaceByChapter 原子替换章节事件
func (r *EventRepository) ReplaceByChapter(ctx context.Context, chapterID string, events []*entity.StoryEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.ReplaceByChapter")
	defer span.End()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
	}
	err := inTx(ctx, r.client.db, func(tx *gorm.DB) error {
		if err := tx.Where("chapter_id = ?", chapterID).Delete(&entity.StoryEvent{}).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		return tx.CreateInBatches(events, 100).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to replace story events: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取事件
func (r *EventRepository) GetByID(ctx context.Context, id string) (*entity.StoryEvent, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var event entity.StoryEvent
	if err := db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story event: %w", err)
	}
	return &event, nil
}

// Update 更新事件
func (r *EventRepository) Update(ctx context.Context, event *entity.StoryEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update story event: %w", err)
	}
	return nil
}

// Delete 删除事件
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.StoryEvent{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete story event: %w", err)
	}
	return nil
}

// DeleteByChapter 删除章节事件
func (r *EventRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.DeleteByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("chapter_id = ?", chapterID).Delete(&entity.StoryEvent{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chapter story events: %w", err)
	}
	return nil
}

// ListByBook 获取书籍事件
func (r *EventRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, "postgres.EventRepository.ListByBook", "book_id = ?", bookID)
}

// ListByChapter 获取章节事件
func (r *EventRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, "postgres.EventRepository.ListByChapter", "chapter_id = ?", chapterID)
}

// ListMajor 获取主要事件
func (r *EventRepository) ListMajor(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, "postgres.EventRepository.ListMajor", "book_id = ? AND event_type = ?", bookID, entity.EventTypeMajor)
}

// ListByCharacter 获取涉及角色的事件
func (r *EventRepository) ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, "postgres.EventRepository.ListByCharacter", "book_id = ? AND ? = ANY(involved_characters)", bookID, characterID)
}

// ListBeforeChapter 获取指定章节之前的事件
func (r *EventRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.StoryEvent, error) {
	return r.list(ctx, "postgres.EventRepository.ListBeforeChapter", "book_id = ? AND chapter_order < ?", bookID, beforeOrder)
}

func (r *EventRepository) list(ctx context.Context, spanName string, where string, args ...any) ([]*entity.StoryEvent, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db := getDB(ctx, r.client.db)
	var events []*entity.StoryEvent
	if err := db.Where(where, args...).Order(eventOrder).Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list story events: %w", err)
	}
	return events, nil
}

// NextTimelineOrder 返回下一个时间线序号
func (r *EventRepository) NextTimelineOrder(ctx context.Context, bookID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventRepository.NextTimelineOrder")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var maxOrder *int
	if err := db.Model(&entity.StoryEvent{}).
		Where("book_id = ?", bookID).
		Select("MAX(timeline_order)").
		Scan(&maxOrder).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get next timeline order: %w", err)
	}
	if maxOrder == nil {
		return 1, nil
	}
	return *maxOrder + 1, nil
}
