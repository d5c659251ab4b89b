package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// StoryRepository 书籍/章节存储的只读视图
type StoryRepository interface {
	// GetChapter 获取章节
	GetChapter(ctx context.Context, chapterID string) (*entity.Chapter, error)

	// ListChapters 获取书籍章节，按 order_num 升序
	ListChapters(ctx context.Context, bookID string) ([]*entity.Chapter, error)

	// GetCharacter 获取角色
	GetCharacter(ctx context.Context, characterID string) (*entity.Character, error)

	// ListCharacters 获取书籍角色
	ListCharacters(ctx context.Context, bookID string) ([]*entity.Character, error)

	// ListWorldSettings 获取书籍世界观设定
	ListWorldSettings(ctx context.Context, bookID string) ([]*entity.WorldSetting, error)
}
