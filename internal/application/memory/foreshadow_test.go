package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
	apperrors "novel-memory-api/pkg/errors"
)

func createForeshadow(t *testing.T, svc *ForeshadowService, title, importance string, planted int) *entity.Foreshadow {
	t.Helper()
	f, err := svc.Create(context.Background(), &ForeshadowInput{
		BookID:           testBook,
		Title:            title,
		Importance:       importance,
		PlantedChapterID: chapterID(planted),
	})
	require.NoError(t, err)
	return f
}

func TestForeshadowService_CreateDefaults(t *testing.T) {
	f := newFixture(t)
	f.addChapters(3)
	svc := f.foreshadowService()

	item := createForeshadow(t, svc, "神秘玉佩", "", 2)
	assert.Equal(t, entity.ForeshadowStatusPlanted, item.Status)
	assert.Equal(t, entity.ForeshadowImportanceMinor, item.Importance)
	assert.Equal(t, entity.ForeshadowSourceManual, item.Source)
	assert.Equal(t, 2, item.PlantedChapter)
	assert.Equal(t, chapterID(2), item.PlantedChapterID)

	_, err := svc.Create(context.Background(), &ForeshadowInput{BookID: testBook, Title: "x", Importance: "huge"})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestForeshadowService_RemindersScenario(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	svc := f.foreshadowService()
	ctx := context.Background()

	item := createForeshadow(t, svc, "预言", "major", 2)

	due, err := svc.Reminders(ctx, testBook, 8, 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, item.ID, due[0].ID)

	due, err = svc.Reminders(ctx, testBook, 6, 5)
	require.NoError(t, err)
	assert.Empty(t, due)

	// 阈值为 0 时使用默认值 5
	due, err = svc.Reminders(ctx, testBook, 7, 0)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestForeshadowService_ReminderThreshold(t *testing.T) {
	f := newFixture(t)
	f.cfg.ReminderMinChapters = 0
	svc := f.foreshadowService()

	assert.Equal(t, DefaultReminderMinChapters, svc.ReminderThreshold(0))
	assert.Equal(t, DefaultReminderMinChapters, svc.ReminderThreshold(-3))
	assert.Equal(t, 2, svc.ReminderThreshold(2))

	f.cfg.ReminderMinChapters = 8
	assert.Equal(t, 8, f.foreshadowService().ReminderThreshold(0))
}

func TestForeshadowService_RemindersOrdering(t *testing.T) {
	f := newFixture(t)
	f.addChapters(12)
	svc := f.foreshadowService()
	ctx := context.Background()

	subtle := createForeshadow(t, svc, "暗线", "subtle", 1)
	minor := createForeshadow(t, svc, "次要", "minor", 2)
	majorLate := createForeshadow(t, svc, "主线二", "major", 3)
	majorEarly := createForeshadow(t, svc, "主线一", "major", 2)
	_ = createForeshadow(t, svc, "太新", "major", 8)
	resolved := createForeshadow(t, svc, "已回收", "major", 1)
	_, err := svc.Resolve(ctx, resolved.ID, "真相大白", 4)
	require.NoError(t, err)

	due, err := svc.Reminders(ctx, testBook, 12, 5)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{majorEarly.ID, majorLate.ID, minor.ID, subtle.ID}, ids)

	// 当前章 - 4 及之后埋设的不提醒
	for _, d := range due {
		assert.GreaterOrEqual(t, 12-d.PlantedChapter, 5)
	}
}

func TestForeshadowService_Transitions(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	svc := f.foreshadowService()
	ctx := context.Background()

	item := createForeshadow(t, svc, "断剑", "major", 3)

	_, err := svc.AddResolutionChapter(ctx, item.ID, 2)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	partial, err := svc.AddResolutionChapter(ctx, item.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, entity.ForeshadowStatusPartial, partial.Status)

	partial, err = svc.AddResolutionChapter(ctx, item.ID, 6)
	require.NoError(t, err)
	assert.Len(t, partial.ResolutionChapters, 1)

	_, err = svc.Resolve(ctx, item.ID, "", 0)
	require.Error(t, err)

	resolved, err := svc.Resolve(ctx, item.ID, "断剑重铸", 0)
	require.NoError(t, err)
	assert.Equal(t, entity.ForeshadowStatusResolved, resolved.Status)

	_, err = svc.Abandon(ctx, item.ID, "不写了")
	assert.True(t, apperrors.IsConflict(err))
}

func TestForeshadowService_ResolveAbandonedIsConflict(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	svc := f.foreshadowService()
	ctx := context.Background()

	item := createForeshadow(t, svc, "旧约", "minor", 1)
	abandoned, err := svc.Abandon(ctx, item.ID, "剧情调整")
	require.NoError(t, err)
	assert.Equal(t, entity.ForeshadowStatusAbandoned, abandoned.Status)

	_, err = svc.Resolve(ctx, item.ID, "强行回收", 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	_, err = svc.UpdateStatus(ctx, item.ID, entity.ForeshadowStatusPlanted, "")
	assert.True(t, apperrors.IsConflict(err))

	stored, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ForeshadowStatusAbandoned, stored.Status)
	assert.Equal(t, "剧情调整", stored.ResolutionNotes)
	assert.Empty(t, stored.ResolutionChapters)
}

func TestForeshadowService_UpdateStatusValidation(t *testing.T) {
	f := newFixture(t)
	f.addChapters(3)
	svc := f.foreshadowService()
	ctx := context.Background()

	item := createForeshadow(t, svc, "玉佩", "minor", 1)
	_, err := svc.UpdateStatus(ctx, item.ID, "finished", "")
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = svc.UpdateStatus(ctx, "missing", entity.ForeshadowStatusAbandoned, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestForeshadowService_StatsAndContext(t *testing.T) {
	f := newFixture(t)
	f.addChapters(10)
	svc := f.foreshadowService()
	ctx := context.Background()

	a := createForeshadow(t, svc, "预言", "major", 2)
	b := createForeshadow(t, svc, "玉佩", "minor", 4)
	c := createForeshadow(t, svc, "旧约", "minor", 9)
	_, err := svc.AddResolutionChapter(ctx, b.ID, 6)
	require.NoError(t, err)
	_, err = svc.Abandon(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = svc.Update(ctx, a.ID, &ForeshadowInput{ExpectedResolve: "主角身世揭晓"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, testBook)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Open)
	assert.Equal(t, int64(1), stats.ByStatus["planted"])
	assert.Equal(t, int64(1), stats.ByStatus["partial"])
	assert.Equal(t, int64(1), stats.ByStatus["abandoned"])
	assert.Equal(t, 10, stats.LatestChapter)
	// 第10章：预言 8 章、玉佩 6 章
	assert.Equal(t, int64(2), stats.Overdue)

	block, err := svc.BuildContext(ctx, testBook, 8)
	require.NoError(t, err)
	assert.Equal(t, "【待回收伏笔提醒】\n- 预言（第2章埋设，重要伏笔）\n  预期回收：主角身世揭晓", block)

	swept, err := svc.SweepReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept[testBook])
}
