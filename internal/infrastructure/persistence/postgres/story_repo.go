package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
)

// StoryRepository 书籍与章节只读仓储实现，表由写作服务维护
type StoryRepository struct {
	client *Client
}

// NewStoryRepository 创建只读故事仓储
func NewStoryRepository(client *Client) *StoryRepository {
	return &StoryRepository{client: client}
}

// GetChapter 获取章节
func (r *StoryRepository) GetChapter(ctx context.Context, chapterID string) (*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapter entity.Chapter
	if err := db.First(&chapter, "id = ?", chapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return &chapter, nil
}

// ListChapters 获取书籍章节
func (r *StoryRepository) ListChapters(ctx context.Context, bookID string) ([]*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.ListChapters")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapters []*entity.Chapter
	if err := db.Where("book_id = ?", bookID).Order("order_num ASC").Find(&chapters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return chapters, nil
}

// GetCharacter 获取角色
func (r *StoryRepository) GetCharacter(ctx context.Context, characterID string) (*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var character entity.Character
	if err := db.First(&character, "id = ?", characterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &character, nil
}

// ListCharacters 获取书籍角色
func (r *StoryRepository) ListCharacters(ctx context.Context, bookID string) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.ListCharacters")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var characters []*entity.Character
	if err := db.Where("book_id = ?", bookID).Order("created_at ASC").Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, nil
}

// ListWorldSettings 获取世界观设定
func (r *StoryRepository) ListWorldSettings(ctx context.Context, bookID string) ([]*entity.WorldSetting, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.ListWorldSettings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var settings []*entity.WorldSetting
	if err := db.Where("book_id = ?", bookID).Order("category ASC, created_at ASC").Find(&settings).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list world settings: %w", err)
	}
	return settings, nil
}
