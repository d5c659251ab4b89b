package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/tracer"
)

// EventInput 创建或整体更新事件
type EventInput struct {
	ChapterID          string   `json:"chapter_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	EventType          string   `json:"event_type"`
	InvolvedCharacters []string `json:"involved_characters"`
	Location           string   `json:"location"`
	TimelineOrder      *int     `json:"timeline_order"`
	Impact             string   `json:"impact"`
}

// EventService 故事事件
type EventService struct {
	events repository.EventRepository
	story  repository.StoryRepository
	tx     repository.Transactor
}

// NewEventService 创建事件服务
func NewEventService(events repository.EventRepository, story repository.StoryRepository, tx repository.Transactor) *EventService {
	return &EventService{events: events, story: story, tx: tx}
}

func (s *EventService) Get(ctx context.Context, id string) (*entity.StoryEvent, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err, "failed to get story event")
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	return event, nil
}

func (s *EventService) ListByBook(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	items, err := s.events.ListByBook(ctx, bookID)
	return items, dbError(err, "failed to list story events")
}

func (s *EventService) ListByChapter(ctx context.Context, chapterID string) ([]*entity.StoryEvent, error) {
	items, err := s.events.ListByChapter(ctx, chapterID)
	return items, dbError(err, "failed to list story events")
}

func (s *EventService) ListMajor(ctx context.Context, bookID string) ([]*entity.StoryEvent, error) {
	items, err := s.events.ListMajor(ctx, bookID)
	return items, dbError(err, "failed to list major story events")
}

func (s *EventService) ListByCharacter(ctx context.Context, bookID, characterID string) ([]*entity.StoryEvent, error) {
	items, err := s.events.ListByCharacter(ctx, bookID, characterID)
	return items, dbError(err, "failed to list story events")
}

func (s *EventService) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder int) ([]*entity.StoryEvent, error) {
	items, err := s.events.ListBeforeChapter(ctx, bookID, beforeOrder)
	return items, dbError(err, "failed to list story events")
}

// Create 创建单个事件，未指定时间线序号时追加到书籍末尾
func (s *EventService) Create(ctx context.Context, in *EventInput) (*entity.StoryEvent, error) {
	items, err := s.CreateBatch(ctx, []*EventInput{in})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// CreateBatch 批量创建；任一条校验失败则整批不写入
func (s *EventService) CreateBatch(ctx context.Context, inputs []*EventInput) ([]*entity.StoryEvent, error) {
	ctx, span := tracer.Start(ctx, "memory.EventService.CreateBatch")
	defer span.End()

	if len(inputs) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("events must not be empty")
	}

	chapters := make(map[string]*entity.Chapter)
	indexes := make(map[string]*entity.CharacterIndex)
	events := make([]*entity.StoryEvent, 0, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("events[%d] is empty", i))
		}
		chapter := chapters[in.ChapterID]
		if chapter == nil {
			var err error
			if chapter, err = s.story.GetChapter(ctx, in.ChapterID); err != nil {
				return nil, dbError(err, "failed to get chapter")
			}
			if chapter == nil {
				return nil, apperrors.ErrChapterNotFound.WithDetail(in.ChapterID)
			}
			chapters[in.ChapterID] = chapter
		}

		idx, ok := indexes[chapter.BookID]
		if !ok {
			characters, err := s.story.ListCharacters(ctx, chapter.BookID)
			if err != nil {
				return nil, dbError(err, "failed to list characters")
			}
			idx = entity.NewCharacterIndex(characters)
			indexes[chapter.BookID] = idx
		}

		event := &entity.StoryEvent{
			BookID:       chapter.BookID,
			ChapterID:    chapter.ID,
			ChapterOrder: chapter.OrderNum,
		}
		applyEventInput(event, in, idx)
		if err := event.Validate(); err != nil {
			return nil, invalidParam(fmt.Errorf("events[%d]: %w", i, err))
		}
		events = append(events, event)
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		next := make(map[string]int)
		for _, e := range events {
			if e.TimelineOrder > 0 {
				continue
			}
			n, ok := next[e.BookID]
			if !ok {
				var err error
				if n, err = s.events.NextTimelineOrder(ctx, e.BookID); err != nil {
					return err
				}
			}
			e.TimelineOrder = n
			next[e.BookID] = n + 1
		}
		return s.events.CreateBatch(ctx, events)
	})
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to create story events")
	}
	return events, nil
}

func applyEventInput(event *entity.StoryEvent, in *EventInput, idx *entity.CharacterIndex) {
	event.Title = strings.TrimSpace(in.Title)
	event.Description = strings.TrimSpace(in.Description)
	event.EventType = entity.EventType(strings.TrimSpace(in.EventType))
	if event.EventType == "" {
		event.EventType = entity.EventTypeMinor
	}
	event.Location = strings.TrimSpace(in.Location)
	event.Impact = strings.TrimSpace(in.Impact)
	if in.TimelineOrder != nil {
		event.TimelineOrder = *in.TimelineOrder
	}
	event.InvolvedCharacters = resolveCharacters(in.InvolvedCharacters, idx)
}

// resolveCharacters 名字或 ID 解析为角色 ID，无法识别的原样保留
func resolveCharacters(names []string, idx *entity.CharacterIndex) pq.StringArray {
	out := make(pq.StringArray, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := name
		if idx != nil {
			if resolved := idx.Resolve(name); resolved != "" {
				id = resolved
			}
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Update 整体覆盖事件内容，身份与所属章节不变
func (s *EventService) Update(ctx context.Context, id string, in *EventInput) (*entity.StoryEvent, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return event, nil
	}
	characters, err := s.story.ListCharacters(ctx, event.BookID)
	if err != nil {
		return nil, dbError(err, "failed to list characters")
	}
	applyEventInput(event, in, entity.NewCharacterIndex(characters))
	if err := event.Validate(); err != nil {
		return nil, invalidParam(err)
	}
	if err := s.events.Update(ctx, event); err != nil {
		return nil, dbError(err, "failed to update story event")
	}
	return event, nil
}

func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return dbError(s.events.Delete(ctx, id), "failed to delete story event")
}

// BuildContext chapterOrder 之前的主要事件文本块
func (s *EventService) BuildContext(ctx context.Context, bookID string, chapterOrder int) (string, error) {
	items, err := s.events.ListBeforeChapter(ctx, bookID, chapterOrder)
	if err != nil {
		return "", dbError(err, "failed to list story events")
	}
	return FormatMajorEvents(items), nil
}

// FormatMajorEvents 重要事件回顾文本块，只取 major 事件
func FormatMajorEvents(items []*entity.StoryEvent) string {
	var sb strings.Builder
	for _, e := range items {
		if e.EventType != entity.EventTypeMajor {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("【重要事件回顾】\n")
		}
		sb.WriteString("- ")
		sb.WriteString(e.Title)
		if e.Impact != "" {
			sb.WriteString("（")
			sb.WriteString(e.Impact)
			sb.WriteString("）")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
