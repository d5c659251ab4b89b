package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "novel-memory-api/pkg/errors"
)

func TestCharacterStateService_StateAt(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	f.addCharacter("rhea", "Rhea", "瑞娅")
	svc := f.stateService()
	ctx := context.Background()

	_, err := svc.BatchRecord(ctx, []*StateChangeInput{
		{CharacterID: "Rhea", ChapterID: chapterID(3), Field: "location", NewValue: "Capital"},
		{CharacterID: "瑞娅", ChapterID: chapterID(7), Field: "location", NewValue: "Forest"},
	})
	require.NoError(t, err)

	at5, err := svc.StateAt(ctx, "rhea", 5)
	require.NoError(t, err)
	assert.Equal(t, "Capital", at5.Fields["location"])
	assert.Equal(t, 3, at5.ChangedAt["location"])

	at9, err := svc.StateAt(ctx, "rhea", 9)
	require.NoError(t, err)
	assert.Equal(t, "Forest", at9.Fields["location"])

	at2, err := svc.StateAt(ctx, "rhea", 2)
	require.NoError(t, err)
	assert.Empty(t, at2.Fields)

	latest, err := svc.Latest(ctx, "rhea")
	require.NoError(t, err)
	assert.Equal(t, "Forest", latest.Fields["location"])
	assert.Nil(t, latest.ChapterOrder)
}

func TestCharacterStateService_FillsOldValue(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	f.addCharacter("rhea", "Rhea")
	svc := f.stateService()
	ctx := context.Background()

	_, err := svc.Record(ctx, &StateChangeInput{CharacterID: "rhea", ChapterID: chapterID(3), Field: "location", NewValue: "Capital"})
	require.NoError(t, err)

	changes, err := svc.BatchRecord(ctx, []*StateChangeInput{
		{CharacterID: "rhea", ChapterID: chapterID(7), Field: "location", NewValue: "Forest"},
		{CharacterID: "rhea", ChapterID: chapterID(8), Field: "location", NewValue: "Sea"},
		{CharacterID: "rhea", ChapterID: chapterID(8), Field: "power", OldValue: "凡人", NewValue: "筑基"},
	})
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, "Capital", changes[0].OldValue)
	assert.Equal(t, "Forest", changes[1].OldValue)
	assert.Equal(t, "凡人", changes[2].OldValue)
}

func TestCharacterStateService_UnknownCharacter(t *testing.T) {
	f := newFixture(t)
	f.addChapters(3)
	svc := f.stateService()
	ctx := context.Background()

	_, err := svc.Record(ctx, &StateChangeInput{CharacterID: "nobody", ChapterID: chapterID(1), Field: "location", NewValue: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.StateAt(ctx, "nobody", 3)
	assert.True(t, apperrors.IsNotFound(err))

	changes, err := svc.ListByBook(ctx, testBook)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCharacterStateService_RejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	f.addChapters(3)
	f.addCharacter("rhea", "Rhea")
	svc := f.stateService()
	ctx := context.Background()

	_, err := svc.BatchRecord(ctx, []*StateChangeInput{
		{CharacterID: "rhea", ChapterID: chapterID(1), Field: "location", NewValue: "Capital"},
		{CharacterID: "rhea", ChapterID: chapterID(2), Field: "", NewValue: "x"},
	})
	require.Error(t, err)

	changes, err := svc.ListByCharacter(ctx, "rhea")
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCharacterStateService_HistoryAndContext(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	f.addCharacter("rhea", "Rhea")
	f.addCharacter("kael", "Kael")
	svc := f.stateService()
	ctx := context.Background()

	_, err := svc.BatchRecord(ctx, []*StateChangeInput{
		{CharacterID: "rhea", ChapterID: chapterID(7), Field: "location", NewValue: "Forest"},
		{CharacterID: "rhea", ChapterID: chapterID(3), Field: "location", NewValue: "Capital"},
		{CharacterID: "rhea", ChapterID: chapterID(3), Field: "power", NewValue: "筑基"},
		{CharacterID: "kael", ChapterID: chapterID(5), Field: "isAlive", NewValue: "false"},
	})
	require.NoError(t, err)

	history, err := svc.HistoryByChapter(ctx, "rhea")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].ChapterOrder)
	assert.Len(t, history[0].Changes, 2)
	assert.Equal(t, 7, history[1].ChapterOrder)

	block, err := svc.BuildContext(ctx, testBook, 6)
	require.NoError(t, err)
	assert.Equal(t, "【角色当前状态】\n- Rhea：location：Capital，power：筑基\n- Kael：isAlive：false", block)

	empty, err := svc.BuildContext(ctx, testBook, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
