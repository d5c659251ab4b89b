package review

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	apperrors "novel-memory-api/pkg/errors"
)

func (f *engineFixture) seedIssue(t *testing.T, chapter int, typ entity.ReviewType, title string) *entity.ReviewIssue {
	t.Helper()
	issue := &entity.ReviewIssue{
		BookID:       testBook,
		ChapterID:    fmt.Sprintf("ch-%d", chapter),
		ChapterOrder: chapter,
		Level:        typ.DefaultLevel(),
		Type:         typ,
		Title:        title,
		Status:       entity.IssueStatusOpen,
	}
	issue.ComputeDedupKey()
	require.NoError(t, f.issues.Create(context.Background(), issue))
	return issue
}

func TestIssueService_UpdateStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	issue := f.seedIssue(t, 3, entity.ReviewTypePacingIssue, "节奏拖沓")

	got, err := f.service.UpdateStatus(ctx, issue.ID, entity.IssueStatusIgnored)
	require.NoError(t, err)
	assert.Equal(t, entity.IssueStatusIgnored, got.Status)

	got, err = f.service.UpdateStatus(ctx, issue.ID, entity.IssueStatusIgnored)
	require.NoError(t, err)
	assert.Equal(t, entity.IssueStatusIgnored, got.Status)

	_, err = f.service.UpdateStatus(ctx, issue.ID, entity.IssueStatusOpen)
	assert.Equal(t, apperrors.CodeIllegalTransition, errCode(err))

	_, err = f.service.UpdateStatus(ctx, "missing", entity.IssueStatusFixed)
	assert.Equal(t, apperrors.CodeIssueNotFound, errCode(err))
}

func TestIssueService_BatchUpdateStatusIsAllOrNothing(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	a := f.seedIssue(t, 3, entity.ReviewTypePacingIssue, "节奏拖沓")
	b := f.seedIssue(t, 4, entity.ReviewTypeEmotionAbrupt, "情绪突变")

	_, err := f.service.BatchUpdateStatus(ctx, []string{a.ID, "missing"}, entity.IssueStatusFixed)
	assert.Equal(t, apperrors.CodeIssueNotFound, errCode(err))
	unchanged, err := f.service.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IssueStatusOpen, unchanged.Status)

	n, err := f.service.BatchUpdateStatus(ctx, []string{a.ID, b.ID, a.ID}, entity.IssueStatusFixed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.service.BatchUpdateStatus(ctx, []string{a.ID}, entity.IssueStatusIgnored)
	assert.Equal(t, apperrors.CodeIllegalTransition, errCode(err))

	_, err = f.service.BatchUpdateStatus(ctx, nil, entity.IssueStatusFixed)
	assert.Equal(t, apperrors.CodeInvalidParam, errCode(err))
}

func TestIssueService_ListStatsAndClear(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seedIssue(t, 3, entity.ReviewTypePacingIssue, "节奏拖沓")
	fixed := f.seedIssue(t, 4, entity.ReviewTypeEmotionAbrupt, "情绪突变")
	_, err := f.service.UpdateStatus(ctx, fixed.ID, entity.IssueStatusFixed)
	require.NoError(t, err)

	page, err := f.service.ListByBook(ctx, testBook,
		&repository.IssueFilter{Status: entity.IssueStatusOpen},
		repository.NewPagination(1, 20))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, entity.ReviewTypePacingIssue, page.Items[0].Type)

	_, err = f.service.ListByBook(ctx, testBook, &repository.IssueFilter{Level: "fatal"}, repository.NewPagination(1, 20))
	assert.Equal(t, apperrors.CodeInvalidParam, errCode(err))

	stats, err := f.service.Stats(ctx, testBook)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[string(entity.IssueStatusFixed)])
	assert.Equal(t, int64(2), stats.ByLevel[string(entity.ReviewLevelSuggestion)])

	n, err := f.service.Clear(ctx, testBook)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.service.Get(ctx, fixed.ID)
	assert.Equal(t, apperrors.CodeIssueNotFound, errCode(err))

	_, err = f.service.GetReport(ctx, "missing")
	assert.Equal(t, apperrors.CodeReportNotFound, errCode(err))
}

func TestRealtimeService(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	guard := memstore.NewGuard()
	cache := memstore.NewReportCache()
	cfg := config.ReviewConfig{RealtimeDebounce: 20 * time.Millisecond, ReportCacheTTL: time.Minute}
	svc := NewRealtimeService(f.engine(NewDeterministicRules(), cfg), guard, cache, cfg)

	_, err := svc.Latest(ctx, "ch-15")
	assert.Equal(t, apperrors.CodeReportNotFound, errCode(err))

	queued, err := svc.Trigger(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = svc.Trigger(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.False(t, queued)

	svc.Wait()
	report, err := svc.Latest(ctx, "ch-15")
	require.NoError(t, err)
	assert.True(t, report.Quick)
	assert.Equal(t, 1, report.TotalIssues)

	_, err = svc.Trigger(ctx, "", "ch-15")
	assert.Equal(t, apperrors.CodeInvalidParam, errCode(err))
}
