package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
)

type txFixture struct {
	store     *Store
	tx        *TxManager
	summaries *SummaryRepository
	events    *EventRepository
	changes   *StateChangeRepository
	issues    *ReviewIssueRepository
}

func newTxFixture() *txFixture {
	s := NewStore()
	return &txFixture{
		store:     s,
		tx:        NewTxManager(s),
		summaries: NewSummaryRepository(s),
		events:    NewEventRepository(s),
		changes:   NewStateChangeRepository(s),
		issues:    NewReviewIssueRepository(s),
	}
}

// writeChapter 写入三类记忆与一条审查问题
func (f *txFixture) writeChapter(ctx context.Context, t *testing.T, chapterID, summary string) {
	require.NoError(t, f.summaries.Upsert(ctx, &entity.ChapterSummary{BookID: "b", ChapterID: chapterID, ChapterOrder: 1, Summary: summary}))
	require.NoError(t, f.events.ReplaceByChapter(ctx, chapterID, []*entity.StoryEvent{
		{BookID: "b", ChapterID: chapterID, ChapterOrder: 1, Title: summary, TimelineOrder: 1},
	}))
	require.NoError(t, f.changes.ReplaceByChapter(ctx, chapterID, []*entity.CharacterStateChange{
		{BookID: "b", ChapterID: chapterID, ChapterOrder: 1, CharacterID: "kael", Field: "location", NewValue: summary},
	}))
	issue := &entity.ReviewIssue{BookID: "b", ChapterID: chapterID, ChapterOrder: 1, Type: entity.ReviewTypePacingIssue, Title: summary}
	issue.ComputeDedupKey()
	created, err := f.issues.CreateOpen(ctx, issue)
	require.NoError(t, err)
	require.True(t, created)
}

func (f *txFixture) assertChapter(t *testing.T, chapterID, summary string) {
	t.Helper()
	ctx := context.Background()

	got, err := f.summaries.GetByChapterID(ctx, chapterID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary, got.Summary)

	events, err := f.events.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, summary, events[0].Title)

	changes, err := f.changes.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, summary, changes[0].NewValue)

	issues, err := f.issues.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func (f *txFixture) assertEmpty(t *testing.T, chapterID string) {
	t.Helper()
	ctx := context.Background()

	got, err := f.summaries.GetByChapterID(ctx, chapterID)
	require.NoError(t, err)
	assert.Nil(t, got)
	events, err := f.events.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	assert.Empty(t, events)
	changes, err := f.changes.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	assert.Empty(t, changes)
	issues, err := f.issues.ListByChapter(ctx, chapterID)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestTransactionCommits(t *testing.T) {
	f := newTxFixture()
	err := f.tx.WithTransaction(context.Background(), func(ctx context.Context) error {
		f.writeChapter(ctx, t, "c1", "v1")
		return nil
	})
	require.NoError(t, err)
	f.assertChapter(t, "c1", "v1")
}

func TestTransactionRollsBackEveryKindOnError(t *testing.T) {
	f := newTxFixture()
	ctx := context.Background()
	require.NoError(t, f.tx.WithTransaction(ctx, func(ctx context.Context) error {
		f.writeChapter(ctx, t, "c1", "v1")
		return nil
	}))

	boom := errors.New("state change write failed")
	err := f.tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, f.summaries.Upsert(ctx, &entity.ChapterSummary{BookID: "b", ChapterID: "c1", ChapterOrder: 1, Summary: "v2"}))
		require.NoError(t, f.events.ReplaceByChapter(ctx, "c1", nil))
		f.writeChapter(ctx, t, "c2", "v2")
		return boom
	})
	require.ErrorIs(t, err, boom)

	f.assertChapter(t, "c1", "v1")
	f.assertEmpty(t, "c2")
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	f := newTxFixture()
	assert.Panics(t, func() {
		_ = f.tx.WithTransaction(context.Background(), func(ctx context.Context) error {
			f.writeChapter(ctx, t, "c1", "v1")
			panic("rule exploded")
		})
	})
	f.assertEmpty(t, "c1")

	// 回滚后锁已释放
	require.NoError(t, f.events.Create(context.Background(), &entity.StoryEvent{BookID: "b", ChapterID: "c9", Title: "after"}))
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	f := newTxFixture()
	boom := errors.New("outer failed")
	err := f.tx.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, f.tx.WithTransaction(ctx, func(ctx context.Context) error {
			f.writeChapter(ctx, t, "c1", "v1")
			return nil
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	f.assertEmpty(t, "c1")
}

func TestSnapshotRejectsWrites(t *testing.T) {
	f := newTxFixture()
	err := f.tx.WithSnapshot(context.Background(), func(ctx context.Context) error {
		werr := f.events.Create(ctx, &entity.StoryEvent{BookID: "b", ChapterID: "c1", Title: "x"})
		assert.ErrorIs(t, werr, errReadOnly)
		assert.ErrorIs(t, f.tx.WithTransaction(ctx, func(context.Context) error { return nil }), errReadOnly)
		return nil
	})
	require.NoError(t, err)
	f.assertEmpty(t, "c1")
}

func TestSnapshotHoldsOffWriters(t *testing.T) {
	f := newTxFixture()
	ctx := context.Background()
	require.NoError(t, f.events.Create(ctx, &entity.StoryEvent{BookID: "b", ChapterID: "c1", Title: "first"}))

	written := make(chan struct{})
	err := f.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		go func() {
			defer close(written)
			assert.NoError(t, f.events.Create(context.Background(), &entity.StoryEvent{BookID: "b", ChapterID: "c1", Title: "second"}))
		}()

		select {
		case <-written:
			t.Error("write finished inside snapshot")
		case <-time.After(30 * time.Millisecond):
		}
		// 写者排队时，快照内的读取不能再次加读锁
		events, err := f.events.ListByChapter(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, events, 1)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after snapshot")
	}
	events, err := f.events.ListByChapter(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestJobUpdateSkipsFinishedJobs(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(NewStore())
	job := entity.NewExtractionJob("b", "", entity.JobTypeBookExtract)
	require.NoError(t, repo.Create(ctx, job))

	job.Start(3)
	ok, err := repo.Update(ctx, job)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled := job.Clone()
	cancelled.Cancel("stop")
	ok, err = repo.Update(ctx, cancelled)
	require.NoError(t, err)
	require.True(t, ok)

	job.Advance(true)
	ok, err = repo.Update(ctx, job)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCancelled, stored.Status)
	assert.Equal(t, 0, stored.Processed)

	ok, err = repo.Update(ctx, &entity.ExtractionJob{ID: "missing"})
	require.NoError(t, err)
	assert.False(t, ok)
}
