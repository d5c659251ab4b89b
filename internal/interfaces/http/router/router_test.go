package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/application/review"
	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	"novel-memory-api/internal/interfaces/http/handler"
	"novel-memory-api/internal/interfaces/http/middleware"
)

const testBook = "book-1"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

type apiFixture struct {
	t      *testing.T
	engine *gin.Engine
	store  *memstore.Store
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "novel-memory-api"
	cfg.App.Env = "test"
	return cfg
}

func newHandlers(s *memstore.Store) *Handlers {
	story := memstore.NewStoryRepository(s)
	summaries := memstore.NewSummaryRepository(s)
	events := memstore.NewEventRepository(s)
	foreshadows := memstore.NewForeshadowRepository(s)
	changes := memstore.NewStateChangeRepository(s)
	issues := memstore.NewReviewIssueRepository(s)
	reports := memstore.NewReviewReportRepository(s)
	tx := memstore.NewTxManager(s)

	builder := memory.NewContextBuilder(summaries, events, foreshadows, changes, story, tx, nil, config.MemoryConfig{})
	extraction := memory.NewExtractionService(memory.ExtractionDeps{
		Story:       story,
		Summaries:   summaries,
		Events:      events,
		Changes:     changes,
		Foreshadows: foreshadows,
		Jobs:        memstore.NewJobRepository(s),
		Tx:          tx,
		Guard:       memstore.NewGuard(),
	}, config.MemoryConfig{})

	engine := review.NewEngine(review.NewDeterministicRules(), builder, story, issues, reports, tx, config.ReviewConfig{})
	realtime := review.NewRealtimeService(engine, memstore.NewGuard(), memstore.NewReportCache(), config.ReviewConfig{
		RealtimeDebounce: 10 * time.Millisecond,
	})

	return &Handlers{
		Summary:    handler.NewSummaryHandler(memory.NewSummaryService(summaries, story, nil, config.MemoryConfig{}), extraction),
		Event:      handler.NewEventHandler(memory.NewEventService(events, story, tx)),
		State:      handler.NewStateHandler(memory.NewCharacterStateService(changes, story, tx)),
		Foreshadow: handler.NewForeshadowHandler(memory.NewForeshadowService(foreshadows, story, config.MemoryConfig{})),
		Context:    handler.NewContextHandler(builder),
		Extraction: handler.NewExtractionHandler(extraction),
		Review:     handler.NewReviewHandler(engine, review.NewIssueService(issues, reports, tx), realtime),
	}
}

// newAPIFixture 1-15 章，第15章凯尔开口说话
func newAPIFixture(t *testing.T, aiLimit gin.HandlerFunc) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := memstore.NewStore()
	for i := 1; i <= 15; i++ {
		s.PutChapter(&entity.Chapter{
			ID:       fmt.Sprintf("ch-%d", i),
			BookID:   testBook,
			Title:    fmt.Sprintf("第%d章", i),
			Content:  fmt.Sprintf("第%d章的正文。", i),
			OrderNum: i,
		})
	}
	s.PutChapter(&entity.Chapter{ID: "ch-15", BookID: testBook, Title: "第15章", Content: "夜色很深。\n凯尔说：“我们走吧。”", OrderNum: 15})
	s.PutCharacter(&entity.Character{ID: "kael", BookID: testBook, Name: "Kael", Aliases: []string{"凯尔"}})

	health := handler.NewHealthHandler("test",
		handler.Dependency{Name: "postgres", Checker: fakeChecker{}},
		handler.Dependency{Name: "milvus", Checker: fakeChecker{err: errors.New("unreachable")}, Optional: true},
	)
	r := New(testConfig(), health, newHandlers(s), aiLimit)
	return &apiFixture{t: t, engine: r.Engine(), store: s}
}

func (f *apiFixture) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, _ := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "ok", ready.Checks["postgres"].Status)
	assert.Equal(t, "degraded", ready.Checks["milvus"].Status)
}

func TestReadyFailsOnRequiredDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	health := handler.NewHealthHandler("test", handler.Dependency{Name: "redis", Checker: fakeChecker{err: errors.New("down")}})
	r := New(testConfig(), health, nil, nil)

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNotFoundUsesErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, env := f.do(http.MethodGet, "/v1/events/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3005", env.Error.ErrorCode)

	w, env = f.do(http.MethodGet, "/v1/extraction/jobs/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "3009", env.Error.ErrorCode)

	w, env = f.do(http.MethodGet, "/v1/chapters/ch-3/summary", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "3004", env.Error.ErrorCode)
}

func TestSummaryRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, order := range []int{1, 2, 3} {
		w, _ := f.do(http.MethodPost, "/v1/summaries", map[string]any{
			"chapter_id": fmt.Sprintf("ch-%d", order),
			"summary":    fmt.Sprintf("第%d章摘要", order),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := f.do(http.MethodGet, "/v1/chapters/ch-2/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[entity.ChapterSummary](t, env)
	assert.Equal(t, 2, summary.ChapterOrder)
	assert.Equal(t, testBook, summary.BookID)

	w, env = f.do(http.MethodGet, "/v1/books/book-1/summaries/before?chapterOrder=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	before := decode[struct {
		Items []entity.ChapterSummary `json:"items"`
	}](t, env)
	require.Len(t, before.Items, 2)
	assert.Equal(t, 1, before.Items[0].ChapterOrder)

	w, env = f.do(http.MethodGet, "/v1/books/book-1/summaries/context?chapterOrder=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ctxResp := decode[struct {
		Context string `json:"context"`
	}](t, env)
	assert.Contains(t, ctxResp.Context, "【前文摘要】")
	assert.Contains(t, ctxResp.Context, "第1章摘要")

	w, _ = f.do(http.MethodGet, "/v1/books/book-1/summaries/before", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(http.MethodPost, "/v1/summaries", map[string]any{"chapter_id": "ch-404", "summary": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestForeshadowLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, env := f.do(http.MethodPost, "/v1/books/book-1/foreshadows", map[string]any{
		"title":           "神秘玉佩",
		"planted_chapter": 1,
		"importance":      "major",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[entity.Foreshadow](t, env)
	assert.Equal(t, entity.ForeshadowStatusPlanted, created.Status)
	assert.Equal(t, entity.ForeshadowSourceManual, created.Source)
	base := "/v1/foreshadows/" + created.ID

	// 缺少回收说明
	w, _ = f.do(http.MethodPost, base+"/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 没有回收章节
	w, env = f.do(http.MethodPost, base+"/resolve", map[string]any{"notes": "玉佩认主"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "4001", env.Error.ErrorCode)

	w, env = f.do(http.MethodPost, base+"/resolution-chapters", map[string]any{"chapter_order": 8})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.ForeshadowStatusPartial, decode[entity.Foreshadow](t, env).Status)

	w, env = f.do(http.MethodGet, "/v1/books/book-1/foreshadows/reminders?currentChapter=10&minChapters=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reminders := decode[struct {
		Items []entity.Foreshadow `json:"items"`
		Text  string              `json:"text"`
	}](t, env)
	require.Len(t, reminders.Items, 1)
	assert.Contains(t, reminders.Text, "神秘玉佩（第1章埋设，重要伏笔）")

	// 未指定间隔时回显默认阈值
	w, env = f.do(http.MethodGet, "/v1/books/book-1/foreshadows/reminders?currentChapter=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	defaulted := decode[struct {
		MinChapters int                 `json:"min_chapters"`
		Items       []entity.Foreshadow `json:"items"`
	}](t, env)
	assert.Equal(t, memory.DefaultReminderMinChapters, defaulted.MinChapters)
	assert.Empty(t, defaulted.Items)

	w, env = f.do(http.MethodPost, base+"/resolve", map[string]any{"notes": "玉佩认主"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.ForeshadowStatusResolved, decode[entity.Foreshadow](t, env).Status)

	w, _ = f.do(http.MethodPost, base+"/abandon", map[string]any{"reason": "改大纲"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = f.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.ForeshadowStatusResolved, decode[entity.Foreshadow](t, env).Status)

	w, _ = f.do(http.MethodGet, "/v1/books/book-1/foreshadows?status=unknown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewIssueWorkflow(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, _ := f.do(http.MethodPost, "/v1/events", map[string]any{
		"chapter_id":          "ch-12",
		"title":               "断桥之战",
		"event_type":          "major",
		"involved_characters": []string{"凯尔"},
		"impact":              "凯尔战死",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := f.do(http.MethodPost, "/v1/books/book-1/review/quick/ch-15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[entity.ReviewReport](t, env)
	require.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, entity.ReviewTypeCharacterDeathConflict, report.Issues[0].Type)

	w, env = f.do(http.MethodGet, "/v1/books/book-1/review/issues?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	issues := decode[[]entity.ReviewIssue](t, env)
	require.Len(t, issues, 1)
	issueID := issues[0].ID

	w, env = f.do(http.MethodPut, "/v1/review/issues/"+issueID+"/status", map[string]any{"status": "fixed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.IssueStatusFixed, decode[entity.ReviewIssue](t, env).Status)

	w, env = f.do(http.MethodPut, "/v1/review/issues/"+issueID+"/status", map[string]any{"status": "open"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "4001", env.Error.ErrorCode)

	w, env = f.do(http.MethodGet, "/v1/books/book-1/review/issues/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	}](t, env)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["fixed"])

	w, env = f.do(http.MethodGet, "/v1/review/reports/"+report.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ID, decode[entity.ReviewReport](t, env).ID)

	w, _ = f.do(http.MethodPost, "/v1/books/book-1/review?levels=Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(http.MethodDelete, "/v1/books/book-1/review/issues", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[struct {
		Deleted int64 `json:"deleted"`
	}](t, env).Deleted)
}

func TestCancelExtractionJob(t *testing.T) {
	f := newAPIFixture(t, nil)
	job := entity.NewExtractionJob(testBook, "", entity.JobTypeBookExtract)
	require.NoError(t, memstore.NewJobRepository(f.store).Create(context.Background(), job))

	w, env := f.do(http.MethodPost, "/v1/extraction/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(entity.JobStatusCancelled), decode[struct {
		Status string `json:"status"`
	}](t, env).Status)

	w, env = f.do(http.MethodPost, "/v1/extraction/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "4001", env.Error.ErrorCode)

	w, env = f.do(http.MethodGet, "/v1/extraction/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(entity.JobStatusCancelled), decode[struct {
		Status string `json:"status"`
	}](t, env).Status)

	w, _ = f.do(http.MethodPost, "/v1/extraction/jobs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtimeReview(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, env := f.do(http.MethodPost, "/v1/review/realtime", map[string]any{"book_id": testBook, "chapter_id": "ch-15"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[struct {
		Scheduled bool `json:"scheduled"`
	}](t, env).Scheduled)

	require.Eventually(t, func() bool {
		w, _ := f.do(http.MethodGet, "/v1/review/realtime/ch-15", nil)
		return w.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	w, _ = f.do(http.MethodPost, "/v1/review/realtime", map[string]any{"book_id": testBook})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRules(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, env := f.do(http.MethodGet, "/v1/review/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode[struct {
		Items []review.RuleInfo `json:"items"`
		Total int               `json:"total"`
	}](t, env)
	assert.Equal(t, 6, rules.Total)
	names := make([]string, 0, len(rules.Items))
	for _, r := range rules.Items {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "character_death_conflict")
}

func TestAIRoutesAreRateLimited(t *testing.T) {
	limit := middleware.RateLimit(middleware.RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, denyLimiter{})
	f := newAPIFixture(t, limit)

	w, _ := f.do(http.MethodPost, "/v1/chapters/ch-1/extract", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 非模型路由不受影响
	w, _ = f.do(http.MethodGet, "/v1/books/book-1/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
