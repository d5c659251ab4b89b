package postgres

import (
	"context"
	"fmt"

	"novel-memory-api/internal/domain/entity"
)

// memoryModels 记忆引擎自有的表
var memoryModels = []any{
	&entity.ChapterSummary{},
	&entity.StoryEvent{},
	&entity.Foreshadow{},
	&entity.CharacterStateChange{},
	&entity.ReviewIssue{},
	&entity.ReviewReport{},
	&entity.ExtractionJob{},
}

// storyModels 书籍/章节存储的表，仅在独立部署时迁移
var storyModels = []any{
	&entity.Chapter{},
	&entity.Character{},
	&entity.WorldSetting{},
}

// openIssueDedupIndex 同一章节同一去重键最多一条 open 问题，并发审查依赖它去重
const openIssueDedupIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_review_issues_open_dedup
	ON review_issues (chapter_id, dedup_key) WHERE status = 'open'`

// AutoMigrate 迁移记忆引擎表；withStory 为 true 时同时创建协作方只读表
func (c *Client) AutoMigrate(ctx context.Context, withStory bool) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	models := memoryModels
	if withStory {
		models = append(append([]any{}, storyModels...), memoryModels...)
	}
	if err := c.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate: %w", err)
	}
	if err := c.db.WithContext(ctx).Exec(openIssueDedupIndex).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create open issue dedup index: %w", err)
	}
	return nil
}
