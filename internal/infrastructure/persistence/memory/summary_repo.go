package memory

import (
	"cmp"
	"context"

	"github.com/google/uuid"

	"novel-memory-api/internal/domain/entity"
)

// SummaryRepository 章节摘要内存仓储
type SummaryRepository struct {
	s *Store
}

// NewSummaryRepository 创建章节摘要内存仓储
func NewSummaryRepository(s *Store) *SummaryRepository {
	return &SummaryRepository{s: s}
}

func bySummaryOrder(a, b *entity.ChapterSummary) int {
	return cmp.Compare(a.ChapterOrder, b.ChapterOrder)
}

// Upsert 以 chapter_id 为键写入，保留原有 ID 与创建时间
func (r *SummaryRepository) Upsert(ctx context.Context, summary *entity.ChapterSummary) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for _, existing := range r.s.summaries {
		if existing.ChapterID == summary.ChapterID {
			summary.ID = existing.ID
			summary.CreatedAt = existing.CreatedAt
			break
		}
	}
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	r.s.stamp(&summary.CreatedAt, &summary.UpdatedAt)
	r.s.summaries[summary.ID] = summary.Clone()
	return nil
}

func (r *SummaryRepository) GetByID(ctx context.Context, id string) (*entity.ChapterSummary, error) {
	defer r.s.rlock(ctx)()
	if s, ok := r.s.summaries[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (r *SummaryRepository) GetByChapterID(ctx context.Context, chapterID string) (*entity.ChapterSummary, error) {
	defer r.s.rlock(ctx)()
	for _, s := range r.s.summaries {
		if s.ChapterID == chapterID {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (r *SummaryRepository) Update(ctx context.Context, summary *entity.ChapterSummary) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.s.stamp(&summary.CreatedAt, &summary.UpdatedAt)
	r.s.summaries[summary.ID] = summary.Clone()
	return nil
}

func (r *SummaryRepository) Delete(ctx context.Context, id string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	delete(r.s.summaries, id)
	return nil
}

func (r *SummaryRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.ChapterSummary, error) {
	defer r.s.rlock(ctx)()
	return collect(r.s.summaries,
		func(s *entity.ChapterSummary) bool { return s.BookID == bookID },
		(*entity.ChapterSummary).Clone, bySummaryOrder), nil
}

func (r *SummaryRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int, limit int) ([]*entity.ChapterSummary, error) {
	defer r.s.rlock(ctx)()
	out := collect(r.s.summaries,
		func(s *entity.ChapterSummary) bool { return s.BookID == bookID && s.ChapterOrder < beforeOrder },
		(*entity.ChapterSummary).Clone, bySummaryOrder)
	return tail(out, limit), nil
}

func (r *SummaryRepository) ListRecent(ctx context.Context, bookID string, limit int) ([]*entity.ChapterSummary, error) {
	defer r.s.rlock(ctx)()
	out := collect(r.s.summaries,
		func(s *entity.ChapterSummary) bool { return s.BookID == bookID },
		(*entity.ChapterSummary).Clone, bySummaryOrder)
	return tail(out, limit), nil
}

// tail 取最后 limit 条，保持升序；limit<=0 返回全部
func tail[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}
