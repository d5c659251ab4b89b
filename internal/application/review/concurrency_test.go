package review

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	apperrors "novel-memory-api/pkg/errors"
)

// racingIssues 第一次按章节列出问题后执行 hook，用来在审查的读与写之间插入并发修改
type racingIssues struct {
	*memstore.ReviewIssueRepository
	fired atomic.Bool
	hook  func(ctx context.Context, listed []*entity.ReviewIssue)
}

func (r *racingIssues) ListByChapter(ctx context.Context, chapterID string) ([]*entity.ReviewIssue, error) {
	items, err := r.ReviewIssueRepository.ListByChapter(ctx, chapterID)
	if err == nil && r.hook != nil && r.fired.CompareAndSwap(false, true) {
		r.hook(ctx, items)
	}
	return items, err
}

// staleIssues GetByID 返回读取时的快照，随后在存储中把问题改为 fixed
type staleIssues struct {
	*memstore.ReviewIssueRepository
}

func (r staleIssues) GetByID(ctx context.Context, id string) (*entity.ReviewIssue, error) {
	issue, err := r.ReviewIssueRepository.GetByID(ctx, id)
	if err != nil || issue == nil {
		return issue, err
	}
	if _, err := r.TransitionStatus(ctx, id, issue.Status, entity.IssueStatusFixed); err != nil {
		return nil, err
	}
	return issue, nil
}

func (f *engineFixture) racingEngine(hook func(ctx context.Context, listed []*entity.ReviewIssue)) *Engine {
	issues := &racingIssues{ReviewIssueRepository: f.issues, hook: hook}
	return NewEngine(NewDeterministicRules(), f.loader, f.story, issues, f.reports, f.tx, config.ReviewConfig{})
}

// fixListed 把列出的 open 问题直接改为 fixed，模拟作者在审查进行中处理了问题
func (f *engineFixture) fixListed(t *testing.T) func(context.Context, []*entity.ReviewIssue) {
	return func(ctx context.Context, listed []*entity.ReviewIssue) {
		for _, issue := range listed {
			if issue.Status != entity.IssueStatusOpen {
				continue
			}
			ok, err := f.issues.TransitionStatus(ctx, issue.ID, entity.IssueStatusOpen, entity.IssueStatusFixed)
			assert.NoError(t, err)
			assert.True(t, ok)
		}
	}
}

func TestEngine_StatusChangeDuringReviewIsKept(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	report, err := f.engine(NewDeterministicRules(), config.ReviewConfig{}).QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	id := report.Issues[0].ID

	_, err = f.racingEngine(f.fixListed(t)).QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)

	got, err := f.issues.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.IssueStatusFixed, got.Status)
	assert.Empty(t, f.openIssues(t, "ch-15"))
}

func TestEngine_StaleSweepSkipsIssueFixedDuringReview(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	report, err := f.engine(NewDeterministicRules(), config.ReviewConfig{}).QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	id := report.Issues[0].ID

	// 凯尔不再开口，原问题进入清理范围
	f.putChapter(15, "夜色很深，营地里只剩风声。")
	_, err = f.racingEngine(f.fixListed(t)).QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)

	got, err := f.issues.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.IssueStatusFixed, got.Status)
}

func TestEngine_OverlappingReviewsKeepOneOpenIssue(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	var nested *Engine
	nested = f.racingEngine(func(ctx context.Context, listed []*entity.ReviewIssue) {
		assert.Empty(t, listed)
		_, err := nested.QuickReview(ctx, testBook, "ch-15")
		assert.NoError(t, err)
	})

	report, err := nested.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalIssues)

	open := f.openIssues(t, "ch-15")
	require.Len(t, open, 1)
	assert.Equal(t, report.Issues[0].ID, open[0].ID)
}

func TestEngine_ConcurrentReviewsKeepOneOpenIssue(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.QuickReview(ctx, testBook, "ch-15")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.openIssues(t, "ch-15"), 1)
}

func TestEngine_ReviewConcurrentWithStatusChange(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	report, err := e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	id := report.Issues[0].ID

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 5 {
			_, err := e.QuickReview(ctx, testBook, "ch-15")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := f.service.UpdateStatus(ctx, id, entity.IssueStatusIgnored)
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := f.issues.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.IssueStatusIgnored, got.Status)
	assert.Empty(t, f.openIssues(t, "ch-15"))
}

func TestIssueService_UpdateStatusLosesRace(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	issue := f.seedIssue(t, 3, entity.ReviewTypePacingIssue, "节奏拖沓")

	svc := NewIssueService(staleIssues{f.issues}, f.reports, f.tx)
	_, err := svc.UpdateStatus(ctx, issue.ID, entity.IssueStatusIgnored)
	assert.Equal(t, apperrors.CodeIllegalTransition, errCode(err))

	got, err := f.issues.GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IssueStatusOpen, got.Status)
}
