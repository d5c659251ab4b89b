package memory

import (
	"cmp"
	"context"

	"novel-memory-api/internal/domain/entity"
)

// StoryRepository 只读故事仓储
type StoryRepository struct {
	s *Store
}

// NewStoryRepository 创建只读故事仓储
func NewStoryRepository(s *Store) *StoryRepository {
	return &StoryRepository{s: s}
}

func (r *StoryRepository) GetChapter(ctx context.Context, chapterID string) (*entity.Chapter, error) {
	defer r.s.rlock(ctx)()
	if ch, ok := r.s.chapters[chapterID]; ok {
		return cloneChapter(ch), nil
	}
	return nil, nil
}

func (r *StoryRepository) ListChapters(ctx context.Context, bookID string) ([]*entity.Chapter, error) {
	defer r.s.rlock(ctx)()
	return collect(r.s.chapters,
		func(c *entity.Chapter) bool { return c.BookID == bookID },
		cloneChapter,
		func(a, b *entity.Chapter) int { return cmp.Compare(a.OrderNum, b.OrderNum) },
	), nil
}

func (r *StoryRepository) GetCharacter(ctx context.Context, characterID string) (*entity.Character, error) {
	defer r.s.rlock(ctx)()
	if c, ok := r.s.characters[characterID]; ok {
		return cloneCharacter(c), nil
	}
	return nil, nil
}

func (r *StoryRepository) ListCharacters(ctx context.Context, bookID string) ([]*entity.Character, error) {
	defer r.s.rlock(ctx)()
	return collect(r.s.characters,
		func(c *entity.Character) bool { return c.BookID == bookID },
		cloneCharacter,
		func(a, b *entity.Character) int {
			if c := timeCmp(a.CreatedAt, b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.Name, b.Name)
		},
	), nil
}

func (r *StoryRepository) ListWorldSettings(ctx context.Context, bookID string) ([]*entity.WorldSetting, error) {
	defer r.s.rlock(ctx)()
	return collect(r.s.settings,
		func(ws *entity.WorldSetting) bool { return ws.BookID == bookID },
		cloneSetting,
		func(a, b *entity.WorldSetting) int {
			if c := cmp.Compare(a.Category, b.Category); c != 0 {
				return c
			}
			return cmp.Compare(a.Name, b.Name)
		},
	), nil
}
