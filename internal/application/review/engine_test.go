package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	"novel-memory-api/internal/workflow/chain"
	apperrors "novel-memory-api/pkg/errors"
)

const kaelSpeaks = "夜色很深。\n凯尔说：“我们走吧。”"

type engineFixture struct {
	store   *memstore.Store
	events  *memstore.EventRepository
	issues  *memstore.ReviewIssueRepository
	reports *memstore.ReviewReportRepository
	loader  *memory.ContextBuilder
	story   *memstore.StoryRepository
	tx      *memstore.TxManager
	service *IssueService
}

// newEngineFixture 第12章凯尔战死，第15章凯尔开口说话
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	s := memstore.NewStore()
	f := &engineFixture{
		store:   s,
		events:  memstore.NewEventRepository(s),
		issues:  memstore.NewReviewIssueRepository(s),
		reports: memstore.NewReviewReportRepository(s),
		story:   memstore.NewStoryRepository(s),
		tx:      memstore.NewTxManager(s),
	}
	f.loader = memory.NewContextBuilder(
		memstore.NewSummaryRepository(s), f.events, memstore.NewForeshadowRepository(s),
		memstore.NewStateChangeRepository(s), f.story, f.tx, nil, config.MemoryConfig{},
	)
	f.service = NewIssueService(f.issues, f.reports, f.tx)

	for i := 1; i <= 15; i++ {
		f.putChapter(i, fmt.Sprintf("第%d章的正文。", i))
	}
	f.putChapter(15, kaelSpeaks)
	s.PutCharacter(kael())
	require.NoError(t, f.events.Create(context.Background(), &entity.StoryEvent{
		BookID: testBook, ChapterID: "ch-12", ChapterOrder: 12,
		Title: "断桥之战", EventType: entity.EventTypeMajor,
		InvolvedCharacters: []string{"kael"}, Impact: "凯尔战死", TimelineOrder: 1,
	}))
	return f
}

func (f *engineFixture) putChapter(order int, content string) {
	f.store.PutChapter(&entity.Chapter{
		ID:       fmt.Sprintf("ch-%d", order),
		BookID:   testBook,
		Title:    fmt.Sprintf("第%d章", order),
		Content:  content,
		OrderNum: order,
	})
}

func (f *engineFixture) engine(rules []Rule, cfg config.ReviewConfig) *Engine {
	return NewEngine(rules, f.loader, f.story, f.issues, f.reports, f.tx, cfg)
}

func (f *engineFixture) openIssues(t *testing.T, chapterID string) []*entity.ReviewIssue {
	t.Helper()
	all, err := f.issues.ListByChapter(context.Background(), chapterID)
	require.NoError(t, err)
	var open []*entity.ReviewIssue
	for _, i := range all {
		if i.Status == entity.IssueStatusOpen {
			open = append(open, i)
		}
	}
	return open
}

func assertLevelsSum(t *testing.T, report *entity.ReviewReport) {
	t.Helper()
	sum := 0
	for _, n := range report.IssuesByLevel {
		sum += n
	}
	assert.Equal(t, report.TotalIssues, sum)
	assert.Len(t, report.Issues, report.TotalIssues)
}

func errCode(err error) apperrors.ErrorCode {
	return apperrors.AsAppError(err).Code
}

func TestEngine_QuickReviewDeadCharacterSpeaks(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})

	report, err := e.QuickReview(context.Background(), testBook, "ch-15")
	require.NoError(t, err)

	require.Equal(t, 1, report.TotalIssues)
	issue := report.Issues[0]
	assert.Equal(t, entity.ReviewTypeCharacterDeathConflict, issue.Type)
	assert.Equal(t, entity.ReviewLevelError, issue.Level)
	assert.Equal(t, 12, *issue.Reference.ChapterOrder)
	assert.Equal(t, "ch-12", issue.Reference.ChapterID)
	assert.Equal(t, 15, issue.ChapterOrder)
	assert.NotEmpty(t, issue.ID)

	assert.True(t, report.Quick)
	assert.Equal(t, 5, report.RulesExecuted)
	assert.Equal(t, entity.ReviewModeSingle, report.ReviewMode)
	assert.Equal(t, []string{"ch-15"}, []string(report.ChapterIDs))
	assert.Equal(t, 1, report.IssuesByLevel[string(entity.ReviewLevelError)])
	assertLevelsSum(t, report)

	stored, err := f.reports.GetByID(context.Background(), report.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.TotalIssues)
}

func TestEngine_QuickReviewIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	_, err := e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	first := f.openIssues(t, "ch-15")
	require.Len(t, first, 1)

	_, err = e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	second := f.openIssues(t, "ch-15")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestEngine_FixedIssueIsNotResurrected(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	report, err := e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	_, err = f.service.UpdateStatus(ctx, report.Issues[0].ID, entity.IssueStatusFixed)
	require.NoError(t, err)

	report, err = e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalIssues)
	assertLevelsSum(t, report)
	assert.Empty(t, f.openIssues(t, "ch-15"))

	all, err := f.issues.ListByChapter(ctx, "ch-15")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, entity.IssueStatusFixed, all[0].Status)
}

func TestEngine_ResolvedFindingRemovesOpenIssue(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	_, err := e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	require.Len(t, f.openIssues(t, "ch-15"), 1)

	f.putChapter(15, "夜色很深，营地里只剩风声。")
	report, err := e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalIssues)
	assert.Empty(t, f.openIssues(t, "ch-15"))
}

func TestEngine_ReviewChapterNotFound(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})

	_, err := e.ReviewChapter(context.Background(), "other-book", "ch-15", nil)
	assert.Equal(t, apperrors.CodeChapterNotFound, errCode(err))

	_, err = e.ReviewChapter(context.Background(), testBook, "missing", nil)
	assert.Equal(t, apperrors.CodeChapterNotFound, errCode(err))
}

type brokenRule struct {
	ruleMeta
	panics bool
}

func (r *brokenRule) Check(context.Context, *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if r.panics {
		panic("boom")
	}
	return nil, errors.New("rule backend unavailable")
}

func TestEngine_FailedRulesDoNotStopReview(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	rules := append(NewDeterministicRules(),
		&brokenRule{ruleMeta: ruleMeta{typ: entity.ReviewTypeSettingConflict, title: "坏规则", priority: 1}},
		&brokenRule{ruleMeta: ruleMeta{typ: entity.ReviewTypePacingIssue, title: "崩溃规则", priority: 2}, panics: true},
	)
	e := f.engine(rules, config.ReviewConfig{})

	earlier := &entity.ReviewIssue{
		BookID: testBook, ChapterID: "ch-15", ChapterOrder: 15,
		Level: entity.ReviewLevelWarning, Type: entity.ReviewTypeSettingConflict,
		Title: "旧的设定冲突", Status: entity.IssueStatusOpen,
	}
	earlier.ComputeDedupKey()
	require.NoError(t, f.issues.Create(ctx, earlier))

	report, err := e.ReviewChapter(ctx, testBook, "ch-15", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{string(entity.ReviewTypePacingIssue), string(entity.ReviewTypeSettingConflict)}, []string(report.FailedRules))
	assert.Equal(t, 8, report.RulesExecuted)
	assert.Equal(t, 1, report.TotalIssues)

	kept, err := f.issues.GetByID(ctx, earlier.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestEngine_LevelFilterAndDisabledRules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	report, err := e.ReviewChapter(ctx, testBook, "ch-15", []entity.ReviewLevel{entity.ReviewLevelSuggestion})
	require.NoError(t, err)
	assert.Equal(t, 1, report.RulesExecuted)
	assert.Equal(t, 0, report.TotalIssues)
	assert.Equal(t, []string{"suggestion"}, []string(report.Levels))

	e = f.engine(NewDeterministicRules(), config.ReviewConfig{DisabledRules: []string{"character_death_conflict"}})
	report, err = e.QuickReview(ctx, testBook, "ch-15")
	require.NoError(t, err)
	assert.Equal(t, 4, report.RulesExecuted)
	assert.Equal(t, 0, report.TotalIssues)

	for _, info := range e.Rules() {
		assert.Equal(t, info.Name != "character_death_conflict", info.Enabled, info.Name)
	}
}

func TestEngine_ReviewBook(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})

	report, err := e.ReviewBook(context.Background(), testBook, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ReviewModeFull, report.ReviewMode)
	assert.Len(t, report.ChapterIDs, 15)
	assert.Equal(t, "ch-1", report.ChapterIDs[0])
	assert.Equal(t, 1, report.TotalIssues)
	assertLevelsSum(t, report)

	reports, err := f.service.ListReports(context.Background(), testBook, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, report.ID, reports[0].ID)
}

func TestEngine_ReviewBatch(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(NewDeterministicRules(), config.ReviewConfig{})
	ctx := context.Background()

	report, err := e.ReviewBatch(ctx, testBook, []string{"ch-15", "ch-14", "ch-15", " "}, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ReviewModeBatch, report.ReviewMode)
	assert.Equal(t, []string{"ch-14", "ch-15"}, []string(report.ChapterIDs))
	assert.Equal(t, 1, report.TotalIssues)

	_, err = e.ReviewBatch(ctx, testBook, nil, nil)
	assert.Equal(t, apperrors.CodeInvalidParam, errCode(err))

	_, err = e.ReviewBatch(ctx, "other-book", []string{"ch-15"}, nil)
	assert.Equal(t, apperrors.CodeChapterNotFound, errCode(err))
}

// reviewModel 按系统提示词中的规则名返回预设输出
type reviewModel struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   int
}

func (m *reviewModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	reply := `{"issues":[]}`
	for title, r := range m.replies {
		if len(input) > 0 && strings.Contains(input[0].Content, title) {
			reply = r
		}
	}
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func (m *reviewModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type reviewFactory struct {
	model model.BaseChatModel
}

func (f *reviewFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.model, nil
}

func TestEngine_AIRules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	m := &reviewModel{replies: map[string]string{
		"设定冲突检测": `{"issues":[{"title":"死者复生","description":"凯尔已在断桥之战中死亡","excerpt":"凯尔说","characterName":"凯尔","confidence":1.4}]}`,
	}}
	rules := DefaultRules(chain.NewReviewChain(&reviewFactory{model: m}), "", 0)

	e := f.engine(rules, config.ReviewConfig{AIRulesEnabled: true})
	report, err := e.ReviewChapter(ctx, testBook, "ch-15", []entity.ReviewLevel{entity.ReviewLevelWarning})
	require.NoError(t, err)
	assert.Equal(t, 4, report.RulesExecuted)
	assert.Equal(t, 4, m.calls)
	require.Equal(t, 1, report.TotalIssues)

	issue := report.Issues[0]
	assert.Equal(t, entity.ReviewTypeSettingConflict, issue.Type)
	assert.Equal(t, entity.ReviewLevelWarning, issue.Level)
	assert.Equal(t, "死者复生", issue.Title)
	assert.InDelta(t, 1.0, *issue.Confidence, 1e-9)
	require.NotNil(t, issue.Location)
	assert.Equal(t, 6, *issue.Location.StartOffset)
	assert.Equal(t, 9, *issue.Location.EndOffset)
	assert.Equal(t, 1, *issue.Location.Paragraph)
	assert.Equal(t, "Kael", issue.Location.CharacterName)

	disabled := f.engine(rules, config.ReviewConfig{})
	report, err = disabled.ReviewChapter(ctx, testBook, "ch-15", []entity.ReviewLevel{entity.ReviewLevelWarning})
	require.NoError(t, err)
	assert.Equal(t, 0, report.RulesExecuted)
}

func TestEngine_AIUnavailableKeepsDeterministicFindings(t *testing.T) {
	f := newEngineFixture(t)
	m := &reviewModel{err: errors.New("provider down")}
	rules := DefaultRules(chain.NewReviewChain(&reviewFactory{model: m}), "", 0)
	e := f.engine(rules, config.ReviewConfig{AIRulesEnabled: true, RuleTimeout: time.Second})

	report, err := e.ReviewChapter(context.Background(), testBook, "ch-15", nil)
	require.NoError(t, err)
	assert.Equal(t, 15, report.RulesExecuted)
	assert.Len(t, report.FailedRules, 9)
	require.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, entity.ReviewTypeCharacterDeathConflict, report.Issues[0].Type)
}
