package repository

import (
	"context"

	"novel-memory-api/internal/domain/entity"
)

// StateChangeRepository 角色状态变更仓储接口
// 列表结果按 (chapter_order, seq) 升序
type StateChangeRepository interface {
	// Create 追加一条变更
	Create(ctx context.Context, change *entity.CharacterStateChange) error

	// CreateBatch 批量追加，全部成功或全部失败
	CreateBatch(ctx context.Context, changes []*entity.CharacterStateChange) error

	// ReplaceByChapter 原子地替换章节下的全部变更
	ReplaceByChapter(ctx context.Context, chapterID string, changes []*entity.CharacterStateChange) error

	// ListByCharacter 获取角色变更；upTo 非空时只取 chapter_order <= *upTo
	ListByCharacter(ctx context.Context, characterID string, upTo *int) ([]*entity.CharacterStateChange, error)

	// ListByBook 获取书籍全部变更
	ListByBook(ctx context.Context, bookID string) ([]*entity.CharacterStateChange, error)

	// ListByChapter 获取章节变更
	ListByChapter(ctx context.Context, chapterID string) ([]*entity.CharacterStateChange, error)

	// ListBeforeChapter 获取 chapter_order < beforeOrder 的变更
	ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.CharacterStateChange, error)

	// DeleteByChapter 删除章节下的全部变更
	DeleteByChapter(ctx context.Context, chapterID string) error
}
