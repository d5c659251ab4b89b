package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	apperrors "novel-memory-api/pkg/errors"
)

// partialEvents 逐条写入一半后失败
type partialEvents struct {
	*memstore.EventRepository
}

func (r partialEvents) CreateBatch(ctx context.Context, events []*entity.StoryEvent) error {
	for _, e := range events[:len(events)/2+1] {
		if err := r.Create(ctx, e); err != nil {
			return err
		}
	}
	return errors.New("connection reset")
}

func (f *fixture) eventService() *EventService {
	return NewEventService(f.events, f.story, f.tx)
}

func intPtr(n int) *int { return &n }

func TestEventService_CreateAssignsTimelineAndResolvesNames(t *testing.T) {
	f := newFixture(t)
	f.addChapters(3)
	f.addCharacter("kael", "Kael", "凯尔")
	svc := f.eventService()
	ctx := context.Background()

	first, err := svc.Create(ctx, &EventInput{
		ChapterID:          chapterID(2),
		Title:              " 断桥之战 ",
		EventType:          "major",
		InvolvedCharacters: []string{"凯尔", "Kael", "路人甲", " "},
		Impact:             "凯尔战死",
	})
	require.NoError(t, err)
	assert.Equal(t, "断桥之战", first.Title)
	assert.Equal(t, testBook, first.BookID)
	assert.Equal(t, 2, first.ChapterOrder)
	assert.Equal(t, 1, first.TimelineOrder)
	assert.Equal(t, []string{"kael", "路人甲"}, []string(first.InvolvedCharacters))

	batch, err := svc.CreateBatch(ctx, []*EventInput{
		{ChapterID: chapterID(3), Title: "夜袭"},
		{ChapterID: chapterID(3), Title: "回忆", TimelineOrder: intPtr(1)},
		{ChapterID: chapterID(3), Title: "撤退"},
	})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, entity.EventTypeMinor, batch[0].EventType)
	assert.Equal(t, 2, batch[0].TimelineOrder)
	assert.Equal(t, 1, batch[1].TimelineOrder)
	assert.Equal(t, 3, batch[2].TimelineOrder)

	major, err := svc.ListMajor(ctx, testBook)
	require.NoError(t, err)
	require.Len(t, major, 1)
	assert.Equal(t, first.ID, major[0].ID)

	byKael, err := svc.ListByCharacter(ctx, testBook, "kael")
	require.NoError(t, err)
	assert.Len(t, byKael, 1)

	text, err := svc.BuildContext(ctx, testBook, 3)
	require.NoError(t, err)
	assert.Equal(t, "【重要事件回顾】\n- 断桥之战（凯尔战死）", text)
}

func TestEventService_InvalidBatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.addChapters(2)
	svc := f.eventService()
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, []*EventInput{
		{ChapterID: chapterID(1), Title: "开端"},
		{ChapterID: chapterID(1), Title: "   "},
	})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = svc.CreateBatch(ctx, []*EventInput{
		{ChapterID: chapterID(1), Title: "开端"},
		{ChapterID: "missing", Title: "无处可去"},
	})
	assert.Equal(t, apperrors.CodeChapterNotFound, apperrors.AsAppError(err).Code)

	_, err = svc.CreateBatch(ctx, []*EventInput{{ChapterID: chapterID(1), Title: "x", EventType: "epic"}})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = svc.CreateBatch(ctx, nil)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	all, err := svc.ListByBook(ctx, testBook)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEventService_FailedBatchWriteRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addChapters(2)
	ctx := context.Background()

	_, err := f.eventService().Create(ctx, &EventInput{ChapterID: chapterID(1), Title: "开端"})
	require.NoError(t, err)

	svc := NewEventService(partialEvents{f.events}, f.story, f.tx)
	_, err = svc.CreateBatch(ctx, []*EventInput{
		{ChapterID: chapterID(2), Title: "夜袭"},
		{ChapterID: chapterID(2), Title: "撤退"},
		{ChapterID: chapterID(2), Title: "会师"},
	})
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.AsAppError(err).Code)

	all, err := f.events.ListByBook(ctx, testBook)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "开端", all[0].Title)

	next, err := f.events.NextTimelineOrder(ctx, testBook)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestEventService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	f.addChapters(1)
	f.addCharacter("kael", "Kael", "凯尔")
	svc := f.eventService()
	ctx := context.Background()

	created, err := svc.Create(ctx, &EventInput{ChapterID: chapterID(1), Title: "开端"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, &EventInput{
		Title:              "开端（修订）",
		EventType:          "major",
		InvolvedCharacters: []string{"凯尔"},
		TimelineOrder:      intPtr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, chapterID(1), updated.ChapterID)
	assert.Equal(t, 7, updated.TimelineOrder)
	assert.Equal(t, []string{"kael"}, []string(updated.InvolvedCharacters))

	_, err = svc.Update(ctx, created.ID, &EventInput{Title: ""})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "开端（修订）", stored.Title)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.Equal(t, apperrors.CodeEventNotFound, apperrors.AsAppError(err).Code)
	assert.Equal(t, apperrors.CodeEventNotFound, apperrors.AsAppError(svc.Delete(ctx, created.ID)).Code)
}
