package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
)

func TestSummaryUpsertKeepsIdentityPerChapter(t *testing.T) {
	ctx := context.Background()
	repo := NewSummaryRepository(NewStore())

	first := &entity.ChapterSummary{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Summary: "v1"}
	require.NoError(t, repo.Upsert(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &entity.ChapterSummary{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Summary: "v2"}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	all, err := repo.ListByBook(ctx, "b")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Summary)
}

func TestSummaryWindowsReturnMostRecentAscending(t *testing.T) {
	ctx := context.Background()
	repo := NewSummaryRepository(NewStore())
	for i := 1; i <= 6; i++ {
		require.NoError(t, repo.Upsert(ctx, &entity.ChapterSummary{
			BookID: "b", ChapterID: string(rune('a' + i)), ChapterOrder: i,
		}))
	}

	before, err := repo.ListBeforeChapter(ctx, "b", 5, 2)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, 3, before[0].ChapterOrder)
	assert.Equal(t, 4, before[1].ChapterOrder)

	recent, err := repo.ListRecent(ctx, "b", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int{4, 5, 6}, []int{recent[0].ChapterOrder, recent[1].ChapterOrder, recent[2].ChapterOrder})
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(NewStore())
	ev := &entity.StoryEvent{BookID: "b", ChapterID: "c", ChapterOrder: 1, Title: "t", InvolvedCharacters: []string{"x"}}
	require.NoError(t, repo.Create(ctx, ev))

	got, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.InvolvedCharacters[0] = "y"

	again, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
	assert.Equal(t, "x", again.InvolvedCharacters[0])
}

func TestEventReplaceByChapterSwapsWholeSet(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(NewStore())
	require.NoError(t, repo.CreateBatch(ctx, []*entity.StoryEvent{
		{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Title: "old-1", TimelineOrder: 1},
		{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Title: "old-2", TimelineOrder: 2},
		{BookID: "b", ChapterID: "c2", ChapterOrder: 2, Title: "keep", TimelineOrder: 3},
	}))

	require.NoError(t, repo.ReplaceByChapter(ctx, "c1", []*entity.StoryEvent{
		{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Title: "new", TimelineOrder: 4},
	}))

	events, err := repo.ListByBook(ctx, "b")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "new", events[0].Title)
	assert.Equal(t, "keep", events[1].Title)

	next, err := repo.NextTimelineOrder(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, next)
}

func TestStateChangesKeepInsertionOrderWithinChapter(t *testing.T) {
	ctx := context.Background()
	repo := NewStateChangeRepository(NewStore())
	require.NoError(t, repo.CreateBatch(ctx, []*entity.CharacterStateChange{
		{BookID: "b", CharacterID: "rhea", ChapterID: "c7", ChapterOrder: 7, Field: entity.StateFieldLocation, NewValue: "Forest"},
		{BookID: "b", CharacterID: "rhea", ChapterID: "c3", ChapterOrder: 3, Field: entity.StateFieldLocation, NewValue: "Capital"},
		{BookID: "b", CharacterID: "rhea", ChapterID: "c3", ChapterOrder: 3, Field: entity.StateFieldLocation, NewValue: "Harbor"},
	}))

	upTo := 5
	changes, err := repo.ListByCharacter(ctx, "rhea", &upTo)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "Capital", changes[0].NewValue)
	assert.Equal(t, "Harbor", changes[1].NewValue)
	assert.Less(t, changes[0].Seq, changes[1].Seq)
}

func TestIssueListOrdersByChapterThenSeverityAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewReviewIssueRepository(NewStore())
	for _, i := range []*entity.ReviewIssue{
		{BookID: "b", ChapterID: "c2", ChapterOrder: 2, Level: entity.ReviewLevelError, Status: entity.IssueStatusOpen},
		{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Level: entity.ReviewLevelInfo, Status: entity.IssueStatusOpen},
		{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Level: entity.ReviewLevelWarning, Status: entity.IssueStatusFixed},
	} {
		require.NoError(t, repo.Create(ctx, i))
	}

	page, err := repo.ListByBook(ctx, "b", nil, repository.NewPagination(1, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, entity.ReviewLevelWarning, page.Items[0].Level)
	assert.Equal(t, entity.ReviewLevelInfo, page.Items[1].Level)

	open, err := repo.ListByBook(ctx, "b", &repository.IssueFilter{Status: entity.IssueStatusOpen}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Len(t, open.Items, 2)

	stats, err := repo.Stats(ctx, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus["open"])

	n, err := repo.DeleteByBook(ctx, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestForeshadowCountsAndOpenBooks(t *testing.T) {
	ctx := context.Background()
	repo := NewForeshadowRepository(NewStore())
	require.NoError(t, repo.CreateBatch(ctx, []*entity.Foreshadow{
		{BookID: "b1", Title: "a", Status: entity.ForeshadowStatusPlanted, PlantedChapter: 1},
		{BookID: "b1", Title: "b", Status: entity.ForeshadowStatusResolved, PlantedChapter: 2},
		{BookID: "b2", Title: "c", Status: entity.ForeshadowStatusAbandoned, PlantedChapter: 1},
	}))

	counts, err := repo.CountByStatus(ctx, "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[entity.ForeshadowStatusPlanted])
	assert.EqualValues(t, 1, counts[entity.ForeshadowStatusResolved])

	books, err := repo.ListBookIDsWithOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, books)
}
