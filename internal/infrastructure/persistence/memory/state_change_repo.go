package memory

import (
	"context"

	"github.com/google/uuid"

	"novel-memory-api/internal/domain/entity"
)

// StateChangeRepository 角色状态变更内存仓储，只追加
type StateChangeRepository struct {
	s *Store
}

// NewStateChangeRepository 创建角色状态变更内存仓储
func NewStateChangeRepository(s *Store) *StateChangeRepository {
	return &StateChangeRepository{s: s}
}

func (r *StateChangeRepository) put(c *entity.CharacterStateChange) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.s.seq++
	c.Seq = r.s.seq
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.changes[c.ID] = c.Clone()
}

func (r *StateChangeRepository) Create(ctx context.Context, change *entity.CharacterStateChange) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(change)
	return nil
}

func (r *StateChangeRepository) CreateBatch(ctx context.Context, changes []*entity.CharacterStateChange) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, c := range changes {
		r.put(c)
	}
	return nil
}

func (r *StateChangeRepository) ReplaceByChapter(ctx context.Context, chapterID string, changes []*entity.CharacterStateChange) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for id, c := range r.s.changes {
		if c.ChapterID == chapterID {
			delete(r.s.changes, id)
		}
	}
	for _, c := range changes {
		r.put(c)
	}
	return nil
}

func (r *StateChangeRepository) list(ctx context.Context, keep func(*entity.CharacterStateChange) bool) []*entity.CharacterStateChange {
	defer r.s.rlock(ctx)()
	out := make([]*entity.CharacterStateChange, 0)
	for _, c := range r.s.changes {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	entity.SortStateChanges(out)
	return out
}

func (r *StateChangeRepository) ListByCharacter(ctx context.Context, characterID string, upTo *int) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, func(c *entity.CharacterStateChange) bool {
		return c.CharacterID == characterID && (upTo == nil || c.ChapterOrder <= *upTo)
	}), nil
}

func (r *StateChangeRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, func(c *entity.CharacterStateChange) bool { return c.BookID == bookID }), nil
}

func (r *StateChangeRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, func(c *entity.CharacterStateChange) bool { return c.ChapterID == chapterID }), nil
}

func (r *StateChangeRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.CharacterStateChange, error) {
	return r.list(ctx, func(c *entity.CharacterStateChange) bool {
		return c.BookID == bookID && c.ChapterOrder < beforeOrder
	}), nil
}

func (r *StateChangeRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for id, c := range r.s.changes {
		if c.ChapterID == chapterID {
			delete(r.s.changes, id)
		}
	}
	return nil
}
