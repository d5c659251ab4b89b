package memory

import (
	"cmp"
	"context"

	"github.com/google/uuid"

	"novel-memory-api/internal/domain/entity"
)

// EventRepository 故事事件内存仓储
type EventRepository struct {
	s *Store
}

// NewEventRepository 创建故事事件内存仓储
func NewEventRepository(s *Store) *EventRepository {
	return &EventRepository{s: s}
}

func byEventOrder(a, b *entity.StoryEvent) int {
	if c := cmp.Compare(a.ChapterOrder, b.ChapterOrder); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TimelineOrder, b.TimelineOrder); c != 0 {
		return c
	}
	if c := timeCmp(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r *EventRepository) put(e *entity.StoryEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.s.stamp(&e.CreatedAt, &e.UpdatedAt)
	r.s.events[e.ID] = e.Clone()
}

func (r *EventRepository) Create(ctx context.Context, event *entity.StoryEvent) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(event)
	return nil
}

func (r *EventRepository) CreateBatch(ctx context.Context, events []*entity.StoryEvent) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, e := range events {
		r.put(e)
	}
	return nil
}

func (r *EventRepository) ReplaceByChapter(ctx context.Context, chapterID string, events []*entity.StoryEvent) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for id, e := range r.s.events {
		if e.ChapterID == chapterID {
			delete(r.s.events, id)
		}
	}
	for _, e := range events {
		r.put(e)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*entity.StoryEvent, error) {
	defer r.s.rlock(ctx)()
	if e, ok := r.s.events[id]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

func (r *EventRepository) Update(ctx context.Context, event *entity.StoryEvent) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(event)
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	delete(r.s.events, id)
	return nil
}

func (r *EventRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for id, e := range r.s.events {
		if e.ChapterID == chapterID {
			delete(r.s.events, id)
		}
	}
	return nil
}

func (r *EventRepository) list(ctx context.Context, keep func(*entity.StoryEvent) bool) []*entity.StoryEvent {
	defer r.s.rlock(ctx)()
	return collect(r.s.events, keep, (*entity.StoryEvent).Clone, byEventOrder)
}

func (r *EventRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, func(e *entity.StoryEvent) bool { return e.BookID == bookID }), nil
}

func (r *EventRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, func(e *entity.StoryEvent) bool { return e.ChapterID == chapterID }), nil
}

func (r *EventRepository) ListMajor(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, func(e *entity.StoryEvent) bool {
		return e.BookID == bookID && e.EventType == entity.EventTypeMajor
	}), nil
}

func (r *EventRepository) ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.StoryEvent, error) {
	return r.list(ctx, func(e *entity.StoryEvent) bool {
		return e.BookID == bookID && e.Involves(characterID)
	}), nil
}

func (r *EventRepository) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.StoryEvent, error) {
	return r.list(ctx, func(e *entity.StoryEvent) bool {
		return e.BookID == bookID && e.ChapterOrder < beforeOrder
	}), nil
}

func (r *EventRepository) NextTimelineOrder(ctx context.Context, bookID string) (int, error) {
	defer r.s.rlock(ctx)()
	next := 1
	for _, e := range r.s.events {
		if e.BookID == bookID && e.TimelineOrder >= next {
			next = e.TimelineOrder + 1
		}
	}
	return next, nil
}
