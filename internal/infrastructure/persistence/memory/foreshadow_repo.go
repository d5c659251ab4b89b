package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"novel-memory-api/internal/domain/entity"
)

// ForeshadowRepository 伏笔内存仓储
type ForeshadowRepository struct {
	s *Store
}

// NewForeshadowRepository 创建伏笔内存仓储
func NewForeshadowRepository(s *Store) *ForeshadowRepository {
	return &ForeshadowRepository{s: s}
}

func byPlanted(a, b *entity.Foreshadow) int {
	if c := cmp.Compare(a.PlantedChapter, b.PlantedChapter); c != 0 {
		return c
	}
	if c := timeCmp(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r *ForeshadowRepository) put(f *entity.Foreshadow) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	r.s.stamp(&f.CreatedAt, &f.UpdatedAt)
	r.s.foreshadows[f.ID] = f.Clone()
}

func (r *ForeshadowRepository) Create(ctx context.Context, f *entity.Foreshadow) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(f)
	return nil
}

func (r *ForeshadowRepository) CreateBatch(ctx context.Context, items []*entity.Foreshadow) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, f := range items {
		r.put(f)
	}
	return nil
}

func (r *ForeshadowRepository) GetByID(ctx context.Context, id string) (*entity.Foreshadow, error) {
	defer r.s.rlock(ctx)()
	if f, ok := r.s.foreshadows[id]; ok {
		return f.Clone(), nil
	}
	return nil, nil
}

func (r *ForeshadowRepository) Update(ctx context.Context, f *entity.Foreshadow) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(f)
	return nil
}

func (r *ForeshadowRepository) Delete(ctx context.Context, id string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	delete(r.s.foreshadows, id)
	return nil
}

func (r *ForeshadowRepository) list(ctx context.Context, keep func(*entity.Foreshadow) bool) []*entity.Foreshadow {
	defer r.s.rlock(ctx)()
	return collect(r.s.foreshadows, keep, (*entity.Foreshadow).Clone, byPlanted)
}

func (r *ForeshadowRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, func(f *entity.Foreshadow) bool { return f.BookID == bookID }), nil
}

func (r *ForeshadowRepository) ListByStatus(ctx context.Context, bookID string, statuses ...entity.ForeshadowStatus) ([]*entity.Foreshadow, error) {
	return r.list(ctx, func(f *entity.Foreshadow) bool {
		return f.BookID == bookID && slices.Contains(statuses, f.Status)
	}), nil
}

func (r *ForeshadowRepository) ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, func(f *entity.Foreshadow) bool {
		return f.BookID == bookID && slices.Contains([]string(f.RelatedCharacters), characterID)
	}), nil
}

func (r *ForeshadowRepository) ListByPlantedChapter(ctx context.Context, chapterID string) ([]*entity.Foreshadow, error) {
	return r.list(ctx, func(f *entity.Foreshadow) bool { return f.PlantedChapterID == chapterID }), nil
}

func (r *ForeshadowRepository) ListPlantedBefore(ctx context.Context, bookID string, beforeOrder int) ([]*entity.Foreshadow, error) {
	return r.list(ctx, func(f *entity.Foreshadow) bool {
		return f.BookID == bookID && f.PlantedChapter < beforeOrder
	}), nil
}

func (r *ForeshadowRepository) CountByStatus(ctx context.Context, bookID string) (map[entity.ForeshadowStatus]int64, error) {
	defer r.s.rlock(ctx)()
	counts := make(map[entity.ForeshadowStatus]int64)
	for _, f := range r.s.foreshadows {
		if f.BookID == bookID {
			counts[f.Status]++
		}
	}
	return counts, nil
}

func (r *ForeshadowRepository) ListBookIDsWithOpen(ctx context.Context) ([]string, error) {
	defer r.s.rlock(ctx)()
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range r.s.foreshadows {
		if !f.Status.IsOpen() {
			continue
		}
		if _, ok := seen[f.BookID]; ok {
			continue
		}
		seen[f.BookID] = struct{}{}
		ids = append(ids, f.BookID)
	}
	slices.Sort(ids)
	return ids, nil
}
