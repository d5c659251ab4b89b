package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
	apperrors "novel-memory-api/pkg/errors"
)

type stubIndex struct {
	hits []string
	err  error
}

func (s *stubIndex) IndexSummary(context.Context, *entity.ChapterSummary) error { return nil }

func (s *stubIndex) SearchSummaries(context.Context, string, string, int, int) ([]string, error) {
	return s.hits, s.err
}

// seedMemory 第3章凯尔战死，第2章埋下伏笔，第5到7章有摘要
func seedMemory(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.addChapters(8)
	f.addCharacter("kael", "Kael", "凯尔")

	for i := 5; i <= 7; i++ {
		require.NoError(t, f.summaries.Upsert(ctx, &entity.ChapterSummary{
			BookID:       testBook,
			ChapterID:    chapterID(i),
			ChapterOrder: i,
			Summary:      fmt.Sprintf("摘要%d", i),
		}))
	}
	require.NoError(t, f.events.Create(ctx, &entity.StoryEvent{
		BookID: testBook, ChapterID: chapterID(3), ChapterOrder: 3,
		Title: "断桥之战", EventType: entity.EventTypeMajor, Impact: "凯尔战死", TimelineOrder: 1,
	}))
	require.NoError(t, f.events.Create(ctx, &entity.StoryEvent{
		BookID: testBook, ChapterID: chapterID(4), ChapterOrder: 4,
		Title: "休整", EventType: entity.EventTypeMinor, TimelineOrder: 2,
	}))
	_, err := f.stateService().Record(ctx, &StateChangeInput{
		CharacterID: "凯尔",
		ChapterID:   chapterID(3),
		Field:       entity.StateFieldIsAlive,
		NewValue:    "false",
		Reason:      "战死",
	})
	require.NoError(t, err)
	createForeshadow(t, f.foreshadowService(), "预言", "major", 2)
}

func (f *fixture) contextBuilder(index *stubIndex) *ContextBuilder {
	if index == nil {
		return NewContextBuilder(f.summaries, f.events, f.foreshadows, f.changes, f.story, f.tx, nil, f.cfg)
	}
	return NewContextBuilder(f.summaries, f.events, f.foreshadows, f.changes, f.story, f.tx, index, f.cfg)
}

func TestContextBuilder_BuildGeneration(t *testing.T) {
	f := newFixture(t)
	seedMemory(t, f)
	f.cfg.Recall.Enabled = true

	b := f.contextBuilder(&stubIndex{hits: []string{chapterID(7), chapterID(5)}})
	got, err := b.BuildGeneration(context.Background(), testBook, 8, 2, "凯尔之死")
	require.NoError(t, err)

	want := "【前文摘要】\n第6章：\n摘要6\n\n第7章：\n摘要7" +
		"\n\n【重要事件回顾】\n- 断桥之战（凯尔战死）" +
		"\n\n【待回收伏笔提醒】\n- 预言（第2章埋设，重要伏笔）" +
		"\n\n【角色当前状态】\n- Kael：isAlive：false" +
		"\n\n【相关前文】\n第5章：摘要5"
	assert.Equal(t, want, got.Text)
	assert.Equal(t, "【相关前文】\n第5章：摘要5", got.Recall)
}

func TestContextBuilder_BuildGenerationWithoutRecall(t *testing.T) {
	f := newFixture(t)
	seedMemory(t, f)
	f.cfg.Recall.Enabled = true

	b := f.contextBuilder(&stubIndex{err: fmt.Errorf("milvus unavailable")})
	got, err := b.BuildGeneration(context.Background(), testBook, 8, 0, "凯尔之死")
	require.NoError(t, err)
	assert.Empty(t, got.Recall)
	assert.Contains(t, got.Summaries, "第5章")

	early, err := f.contextBuilder(nil).BuildGeneration(context.Background(), testBook, 1, 0, "")
	require.NoError(t, err)
	assert.Empty(t, early.Text)
}

func TestContextBuilder_LoadReviewContext(t *testing.T) {
	f := newFixture(t)
	seedMemory(t, f)
	b := f.contextBuilder(nil)
	ctx := context.Background()

	rc, err := b.LoadReviewContext(ctx, chapterID(5))
	require.NoError(t, err)
	assert.Equal(t, 5, rc.Chapter.OrderNum)
	assert.Len(t, rc.Events, 2)
	assert.Empty(t, rc.Summaries)

	want := "第2章 伏笔：预言（planted）\n" +
		"第3章 事件：断桥之战\n" +
		"第3章 状态：Kael 的 isAlive 变为 false（战死）\n" +
		"第4章 事件：休整"
	assert.Equal(t, want, rc.Timeline())
	assert.Equal(t, "false", rc.StateBefore("kael").Fields[entity.StateFieldIsAlive])

	later, err := b.LoadReviewContext(ctx, chapterID(8))
	require.NoError(t, err)
	assert.Equal(t, "【前文摘要】\n第7章：\n摘要7", later.RecentSummaries(1))

	_, err = b.LoadReviewContext(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
