package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	"novel-memory-api/internal/workflow/chain"
	wfmodel "novel-memory-api/internal/workflow/model"
	wfnode "novel-memory-api/internal/workflow/node"
	workflowport "novel-memory-api/internal/workflow/port"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/metrics"
	"novel-memory-api/pkg/tracer"
)

// 抽取结果提示语
const (
	MsgChapterUnavailable = "章节不存在或内容为空"
	MsgExtractionBusy     = "该章节正在抽取中"
	MsgExtractionFailed   = "记忆抽取失败"
	MsgExtractionOK       = "记忆抽取完成"
	MsgExtractionPartial  = "记忆抽取部分完成"
	MsgJobCancelled       = "任务已取消"
)

const (
	modeSync  = "sync"
	modeAsync = "async"

	rawSnippetRunes = 500
)

// ExtractionResult 单章抽取结果；Degraded 列出失败后被跳过的阶段，这些阶段的既有记录保持不变
type ExtractionResult struct {
	BookID       string                         `json:"book_id,omitempty"`
	ChapterID    string                         `json:"chapter_id"`
	ChapterOrder int                            `json:"chapter_order,omitempty"`
	Success      bool                           `json:"success"`
	Message      string                         `json:"message"`
	Summary      *entity.ChapterSummary         `json:"summary,omitempty"`
	Events       []*entity.StoryEvent           `json:"events"`
	StateChanges []*entity.CharacterStateChange `json:"state_changes"`
	Foreshadows  []*entity.Foreshadow           `json:"foreshadows"`
	Degraded     []string                       `json:"degraded,omitempty"`
	Usage        wfmodel.LLMUsageMeta           `json:"usage"`
	DurationMs   int64                          `json:"duration_ms"`
}

// bookJobResult 整书任务的结果摘要
type bookJobResult struct {
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
	Chapters  []bookChapterResult `json:"chapters"`
}

type bookChapterResult struct {
	ChapterID    string `json:"chapter_id"`
	ChapterOrder int    `json:"chapter_order"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
}

// stageOutput 四个抽取阶段的模型输出
type stageOutput struct {
	mu          sync.Mutex
	usage       wfmodel.LLMUsageMeta
	failed      map[string]error
	summary     *wfmodel.SummaryDraft
	events      []wfmodel.EventDraft
	changes     []wfmodel.StateChangeDraft
	foreshadows []wfmodel.ForeshadowDraft
}

func (o *stageOutput) record(stage string, meta wfmodel.LLMUsageMeta, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.usage.Add(meta)
	if err != nil {
		o.failed[stage] = err
		return false
	}
	return true
}

func (o *stageOutput) ok(stage string) bool {
	_, failed := o.failed[stage]
	return !failed
}

// ExtractionService 章节记忆抽取
// 同一章节在进程内经 singleflight 合并，跨进程由 InFlightGuard 互斥
type ExtractionService struct {
	story       repository.StoryRepository
	summaries   repository.SummaryRepository
	events      repository.EventRepository
	changes     repository.StateChangeRepository
	foreshadows repository.ForeshadowRepository
	jobs        repository.JobRepository
	tx          repository.Transactor

	chain *chain.ExtractionChain
	guard workflowport.InFlightGuard
	queue workflowport.JobQueue
	index workflowport.SummaryIndex

	cfg    config.MemoryConfig
	group  singleflight.Group
	runner *jobRunner
}

// ExtractionDeps 抽取服务依赖；Guard、Queue、Index 可为 nil
type ExtractionDeps struct {
	Story       repository.StoryRepository
	Summaries   repository.SummaryRepository
	Events      repository.EventRepository
	Changes     repository.StateChangeRepository
	Foreshadows repository.ForeshadowRepository
	Jobs        repository.JobRepository
	Tx          repository.Transactor
	Chain       *chain.ExtractionChain
	Guard       workflowport.InFlightGuard
	Queue       workflowport.JobQueue
	Index       workflowport.SummaryIndex
}

// NewExtractionService 创建抽取服务；Queue 为 nil 时异步任务在本进程 goroutine 中执行
func NewExtractionService(deps ExtractionDeps, cfg config.MemoryConfig) *ExtractionService {
	if cfg.ExtractionMaxChars <= 0 {
		cfg.ExtractionMaxChars = 8000
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 5 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	if cfg.InFlightLockTTL <= 0 {
		cfg.InFlightLockTTL = cfg.ExtractionTimeout + cfg.StoreTimeout
	}
	return &ExtractionService{
		story:       deps.Story,
		summaries:   deps.Summaries,
		events:      deps.Events,
		changes:     deps.Changes,
		foreshadows: deps.Foreshadows,
		jobs:        deps.Jobs,
		tx:          deps.Tx,
		chain:       deps.Chain,
		guard:       deps.Guard,
		queue:       deps.Queue,
		index:       deps.Index,
		cfg:         cfg,
		runner:      newJobRunner(),
	}
}

// ExtractChapter 同步抽取单章；调用方取消只停止等待，进行中的抽取继续完成，服务退出时才中止
func (s *ExtractionService) ExtractChapter(ctx context.Context, chapterID string) (*ExtractionResult, error) {
	return s.extract(ctx, chapterID, modeSync)
}

func (s *ExtractionService) extract(ctx context.Context, chapterID, mode string) (*ExtractionResult, error) {
	if strings.TrimSpace(chapterID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_id is required")
	}
	ch := s.group.DoChan(chapterID, func() (any, error) {
		runCtx, cancel := s.runner.detach(ctx, s.cfg.ExtractionTimeout+s.cfg.StoreTimeout)
		defer cancel()
		return s.run(runCtx, chapterID, mode)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.ExtractionTotal.WithLabelValues(mode, "deduplicated").Inc()
		}
		return res.Val.(*ExtractionResult), nil
	}
}

func (s *ExtractionService) run(ctx context.Context, chapterID, mode string) (*ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "memory.ExtractionService.ExtractChapter")
	defer span.End()

	start := time.Now()
	result := &ExtractionResult{ChapterID: chapterID}

	chapter, err := s.story.GetChapter(ctx, chapterID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to get chapter")
	}
	if !chapter.HasContent() {
		result.Message = MsgChapterUnavailable
		metrics.ExtractionTotal.WithLabelValues(mode, "failed").Inc()
		return result, nil
	}
	result.BookID, result.ChapterOrder = chapter.BookID, chapter.OrderNum
	ctx = logger.WithChapter(ctx, chapter.BookID, chapter.ID)

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, "extract:"+chapter.ID, s.cfg.InFlightLockTTL)
		switch {
		case err != nil:
			logger.Warn(ctx, "in-flight guard unavailable, extracting without it", "error", err.Error())
		case !ok:
			result.Message = MsgExtractionBusy
			metrics.ExtractionTotal.WithLabelValues(mode, "deduplicated").Inc()
			return result, nil
		default:
			defer release()
		}
	}

	metrics.ExtractionInFlight.Inc()
	defer metrics.ExtractionInFlight.Dec()

	characters, err := s.story.ListCharacters(ctx, chapter.BookID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list characters")
	}
	existing, err := s.foreshadows.ListByBook(ctx, chapter.BookID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list foreshadows")
	}

	input := &wfmodel.ChapterInput{
		ChapterOrder:        chapter.OrderNum,
		ChapterTitle:        chapter.Title,
		Content:             wfnode.TruncateByRunes(chapter.Content, s.cfg.ExtractionMaxChars),
		CharacterRoster:     wfnode.BuildCharacterRoster(characters),
		ExistingForeshadows: existingForeshadowsBlock(existing),
	}

	logger.Info(ctx, "memory extraction started", "mode", mode, "chapter_order", chapter.OrderNum)
	out := s.callStages(ctx, input)
	result.Usage = out.usage
	if errors.Is(context.Cause(ctx), errShutdown) {
		metrics.ExtractionTotal.WithLabelValues(mode, "failed").Inc()
		return nil, apperrors.ErrServiceUnavailable.WithDetail(errShutdown.Error())
	}

	stages := []string{chain.StageSummary, chain.StageEvents, chain.StageStateChanges}
	if s.cfg.DetectForeshadows {
		stages = append(stages, chain.StageForeshadows)
	}
	for _, stage := range stages {
		if err := out.failed[stage]; err != nil {
			result.Degraded = append(result.Degraded, stage)
			s.logStageFailure(ctx, stage, err)
		}
	}
	if len(result.Degraded) == len(stages) {
		result.Message = MsgExtractionFailed
		metrics.ExtractionTotal.WithLabelValues(mode, "failed").Inc()
		metrics.ExtractionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		return result, nil
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.persist(storeCtx, chapter, characters, existing, out, result); err != nil {
		tracer.Fail(span, err)
		metrics.ExtractionTotal.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}
	if result.Summary != nil && s.index != nil {
		if err := s.index.IndexSummary(storeCtx, result.Summary); err != nil {
			logger.Warn(ctx, "failed to index chapter summary", "error", err.Error())
		}
	}

	result.Success = true
	status := "success"
	result.Message = MsgExtractionOK
	if len(result.Degraded) > 0 {
		status = "degraded"
		result.Message = MsgExtractionPartial + "，失败阶段：" + strings.Join(result.Degraded, "、")
	}
	result.DurationMs = time.Since(start).Milliseconds()
	metrics.ExtractionTotal.WithLabelValues(mode, status).Inc()
	metrics.ExtractionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	logger.Info(ctx, "memory extraction finished",
		"mode", mode,
		"status", status,
		"events", len(result.Events),
		"state_changes", len(result.StateChanges),
		"foreshadows", len(result.Foreshadows),
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// callStages 并行调用各阶段；单阶段失败只记录，不取消其他阶段
func (s *ExtractionService) callStages(ctx context.Context, input *wfmodel.ChapterInput) *stageOutput {
	out := &stageOutput{failed: make(map[string]error)}
	if !s.cfg.DetectForeshadows {
		out.failed[chain.StageForeshadows] = errStageDisabled
	}
	var g errgroup.Group

	g.Go(func() error {
		draft, meta, err := s.chain.Summary(ctx, input)
		if out.record(chain.StageSummary, meta, err) {
			out.summary = draft
		}
		return nil
	})
	g.Go(func() error {
		items, meta, err := s.chain.Events(ctx, input)
		if out.record(chain.StageEvents, meta, err) {
			out.events = items
		}
		return nil
	})
	g.Go(func() error {
		items, meta, err := s.chain.StateChanges(ctx, input)
		if out.record(chain.StageStateChanges, meta, err) {
			out.changes = items
		}
		return nil
	})
	if s.cfg.DetectForeshadows {
		g.Go(func() error {
			items, meta, err := s.chain.Foreshadows(ctx, input)
			if out.record(chain.StageForeshadows, meta, err) {
				out.foreshadows = items
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

var errStageDisabled = errors.New("stage disabled")

func (s *ExtractionService) logStageFailure(ctx context.Context, stage string, err error) {
	var pe *chain.ParseError
	if errors.As(err, &pe) {
		metrics.ExtractionParseFailures.WithLabelValues(stage).Inc()
		logger.Warn(ctx, "extraction output could not be parsed",
			"stage", stage,
			"error", pe.Err.Error(),
			"raw", wfnode.Snippet(pe.Raw, rawSnippetRunes),
		)
		return
	}
	logger.Error(ctx, "extraction stage failed", err, "stage", stage)
}

func existingForeshadowsBlock(items []*entity.Foreshadow) string {
	var lines []string
	for _, f := range items {
		if !f.Status.IsOpen() {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s（第%d章）", f.Title, f.PlantedChapter))
	}
	if len(lines) == 0 {
		return "（暂无）"
	}
	return strings.Join(lines, "\n")
}

// persist 在一个事务内写入成功阶段的产物；失败阶段对应的既有记录不动
func (s *ExtractionService) persist(
	ctx context.Context,
	chapter *entity.Chapter,
	characters []*entity.Character,
	existing []*entity.Foreshadow,
	out *stageOutput,
	result *ExtractionResult,
) error {
	idx := entity.NewCharacterIndex(characters)

	if out.ok(chain.StageSummary) && out.summary != nil {
		result.Summary = buildSummary(chapter, out.summary, idx)
	}
	if out.ok(chain.StageEvents) {
		result.Events = buildEvents(chapter, out.events, idx)
	}
	if out.ok(chain.StageForeshadows) {
		result.Foreshadows = buildForeshadows(chapter, out.foreshadows, idx, existing)
	}

	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if result.Summary != nil {
			if err := s.summaries.Upsert(ctx, result.Summary); err != nil {
				return dbError(err, "failed to upsert chapter summary")
			}
		}
		if out.ok(chain.StageEvents) {
			if err := s.assignTimeline(ctx, chapter, result.Events); err != nil {
				return err
			}
			if err := s.events.ReplaceByChapter(ctx, chapter.ID, result.Events); err != nil {
				return dbError(err, "failed to replace story events")
			}
		}
		if out.ok(chain.StageStateChanges) {
			prior, err := s.changes.ListBeforeChapter(ctx, chapter.BookID, chapter.OrderNum)
			if err != nil {
				return dbError(err, "failed to list state changes")
			}
			result.StateChanges = buildStateChanges(ctx, chapter, out.changes, idx, prior)
			if err := s.changes.ReplaceByChapter(ctx, chapter.ID, result.StateChanges); err != nil {
				return dbError(err, "failed to replace state changes")
			}
		}
		if len(result.Foreshadows) > 0 {
			if err := s.foreshadows.CreateBatch(ctx, result.Foreshadows); err != nil {
				return dbError(err, "failed to create foreshadows")
			}
		}
		return nil
	})
}

// assignTimeline 重新抽取沿用本章原有的最小时间线序号，首次抽取追加到书籍末尾
func (s *ExtractionService) assignTimeline(ctx context.Context, chapter *entity.Chapter, events []*entity.StoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	current, err := s.events.ListByChapter(ctx, chapter.ID)
	if err != nil {
		return dbError(err, "failed to list story events")
	}
	base := 0
	for _, e := range current {
		if base == 0 || e.TimelineOrder < base {
			base = e.TimelineOrder
		}
	}
	if base <= 0 {
		if base, err = s.events.NextTimelineOrder(ctx, chapter.BookID); err != nil {
			return dbError(err, "failed to get next timeline order")
		}
	}
	for i, e := range events {
		e.TimelineOrder = base + i
	}
	return nil
}

func buildSummary(chapter *entity.Chapter, draft *wfmodel.SummaryDraft, idx *entity.CharacterIndex) *entity.ChapterSummary {
	keyEvents := make([]string, 0, len(draft.KeyEvents))
	for _, e := range draft.KeyEvents {
		if e = strings.TrimSpace(e); e != "" {
			keyEvents = append(keyEvents, e)
		}
	}
	return &entity.ChapterSummary{
		BookID:             chapter.BookID,
		ChapterID:          chapter.ID,
		ChapterOrder:       chapter.OrderNum,
		Summary:            strings.TrimSpace(draft.Summary),
		KeyEvents:          keyEvents,
		CharactersAppeared: resolveCharacters(draft.CharactersAppeared, idx),
		EmotionalTone:      strings.TrimSpace(draft.EmotionalTone),
	}
}

// buildEvents 缺标题的事件用占位标题保留
func buildEvents(chapter *entity.Chapter, drafts []wfmodel.EventDraft, idx *entity.CharacterIndex) []*entity.StoryEvent {
	events := make([]*entity.StoryEvent, 0, len(drafts))
	for i, d := range drafts {
		title := strings.TrimSpace(d.Title)
		if title == "" {
			title = fmt.Sprintf("第%d章事件%d", chapter.OrderNum, i+1)
		}
		events = append(events, &entity.StoryEvent{
			BookID:             chapter.BookID,
			ChapterID:          chapter.ID,
			ChapterOrder:       chapter.OrderNum,
			Title:              title,
			Description:        strings.TrimSpace(d.Description),
			EventType:          entity.NormalizeEventType(strings.TrimSpace(d.EventType)),
			InvolvedCharacters: resolveCharacters(d.InvolvedCharacters, idx),
			Location:           strings.TrimSpace(d.Location),
			Impact:             strings.TrimSpace(d.Impact),
		})
	}
	return events
}

// buildStateChanges 丢弃无法识别角色的变更；old_value 缺失时按前文折叠补全
func buildStateChanges(ctx context.Context, chapter *entity.Chapter, drafts []wfmodel.StateChangeDraft, idx *entity.CharacterIndex, prior []*entity.CharacterStateChange) []*entity.CharacterStateChange {
	states := make(map[string]*entity.CharacterState)
	changes := make([]*entity.CharacterStateChange, 0, len(drafts))
	for _, d := range drafts {
		name := strings.TrimSpace(d.CharacterName)
		characterID := idx.Resolve(name)
		if characterID == "" {
			logger.Debug(ctx, "dropping state change for unknown character", "character", name)
			continue
		}
		field := strings.TrimSpace(d.Field)
		if field == "" {
			continue
		}
		state, ok := states[characterID]
		if !ok {
			state = entity.FoldCharacterState(characterID, prior, nil)
			states[characterID] = state
		}
		oldValue := strings.TrimSpace(d.OldValue)
		if oldValue == "" {
			oldValue = state.Fields[field]
		}
		newValue := strings.TrimSpace(d.NewValue)
		state.Fields[field] = newValue

		changes = append(changes, &entity.CharacterStateChange{
			CharacterID:  characterID,
			BookID:       chapter.BookID,
			ChapterID:    chapter.ID,
			ChapterOrder: chapter.OrderNum,
			Field:        field,
			OldValue:     oldValue,
			NewValue:     newValue,
			Reason:       strings.TrimSpace(d.Reason),
		})
	}
	return changes
}

// buildForeshadows 按标题去重；预计回收章节写入 expectedResolve
func buildForeshadows(chapter *entity.Chapter, drafts []wfmodel.ForeshadowDraft, idx *entity.CharacterIndex, existing []*entity.Foreshadow) []*entity.Foreshadow {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f.Title] = struct{}{}
	}
	var out []*entity.Foreshadow
	for _, d := range drafts {
		title := strings.TrimSpace(d.Title)
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}

		f := &entity.Foreshadow{
			BookID:            chapter.BookID,
			Title:             title,
			Type:              entity.ForeshadowType(strings.TrimSpace(d.Type)),
			Importance:        entity.ForeshadowImportance(strings.TrimSpace(d.Importance)),
			PlantedChapter:    chapter.OrderNum,
			PlantedChapterID:  chapter.ID,
			PlantedText:       strings.TrimSpace(d.PlantedText),
			ExpectedResolve:   expectedResolve(d.ExpectedResolve, d.ExpectedChapters()),
			RelatedCharacters: resolveCharacters(d.RelatedCharacters, idx),
			Source:            entity.ForeshadowSourceAIDetected,
		}
		if !f.Type.Valid() {
			f.Type = ""
		}
		if !f.Importance.Valid() {
			f.Importance = ""
		}
		if d.Confidence != nil {
			c := min(max(*d.Confidence, 0), 1)
			f.Confidence = &c
		}
		f.ApplyDefaults()
		if f.Validate() != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func expectedResolve(text string, chapters []int) string {
	text = strings.TrimSpace(text)
	if len(chapters) == 0 {
		return text
	}
	parts := make([]string, 0, len(chapters))
	for _, c := range chapters {
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	hint := "预计第" + strings.Join(parts, "、") + "章回收"
	if text == "" {
		return hint
	}
	return text + "（" + hint + "）"
}

// GenerateSummary 只调用摘要阶段并写入
func (s *ExtractionService) GenerateSummary(ctx context.Context, chapterID string) (*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "memory.ExtractionService.GenerateSummary")
	defer span.End()

	chapter, input, idx, err := s.prepareSummary(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()
	draft, _, err := s.chain.Summary(llmCtx, input)
	if err != nil {
		tracer.Fail(span, err)
		s.logStageFailure(ctx, chain.StageSummary, err)
		return nil, summaryError(err)
	}
	return s.saveSummary(ctx, buildSummary(chapter, draft, idx))
}

// StreamSummary 流式生成摘要；调用方读完后用 SaveStreamedSummary 写入
func (s *ExtractionService) StreamSummary(ctx context.Context, chapterID string) (*wfnode.Stream, error) {
	_, input, _, err := s.prepareSummary(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	stream, err := s.chain.StreamSummary(ctx, input)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithDetail(err.Error()).WithError(err)
	}
	return stream, nil
}

// SaveStreamedSummary 解析流式输出的完整文本并写入摘要
func (s *ExtractionService) SaveStreamedSummary(ctx context.Context, chapterID, raw string) (*entity.ChapterSummary, error) {
	chapter, _, idx, err := s.prepareSummary(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	draft, err := chain.ParseSummary(raw)
	if err != nil {
		s.logStageFailure(ctx, chain.StageSummary, err)
		return nil, summaryError(err)
	}
	return s.saveSummary(ctx, buildSummary(chapter, draft, idx))
}

func summaryError(err error) error {
	if chain.IsParseError(err) {
		return apperrors.ErrParseFailed.WithDetail(err.Error()).WithError(err)
	}
	return apperrors.ErrLLMCallFailed.WithDetail(err.Error()).WithError(err)
}

func (s *ExtractionService) prepareSummary(ctx context.Context, chapterID string) (*entity.Chapter, *wfmodel.ChapterInput, *entity.CharacterIndex, error) {
	chapter, err := s.story.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, nil, nil, dbError(err, "failed to get chapter")
	}
	if !chapter.HasContent() {
		return nil, nil, nil, apperrors.ErrChapterNotFound.WithDetail(MsgChapterUnavailable)
	}
	characters, err := s.story.ListCharacters(ctx, chapter.BookID)
	if err != nil {
		return nil, nil, nil, dbError(err, "failed to list characters")
	}
	input := &wfmodel.ChapterInput{
		ChapterOrder:    chapter.OrderNum,
		ChapterTitle:    chapter.Title,
		Content:         wfnode.TruncateByRunes(chapter.Content, s.cfg.ExtractionMaxChars),
		CharacterRoster: wfnode.BuildCharacterRoster(characters),
	}
	return chapter, input, entity.NewCharacterIndex(characters), nil
}

func (s *ExtractionService) saveSummary(ctx context.Context, summary *entity.ChapterSummary) (*entity.ChapterSummary, error) {
	if err := s.summaries.Upsert(ctx, summary); err != nil {
		return nil, dbError(err, "failed to upsert chapter summary")
	}
	if s.index != nil {
		if err := s.index.IndexSummary(ctx, summary); err != nil {
			logger.Warn(ctx, "failed to index chapter summary", "chapter_id", summary.ChapterID, "error", err.Error())
		}
	}
	return summary, nil
}

// ExtractChapterAsync 创建单章任务并投递
func (s *ExtractionService) ExtractChapterAsync(ctx context.Context, chapterID string) (*entity.ExtractionJob, error) {
	chapter, err := s.story.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, dbError(err, "failed to get chapter")
	}
	if chapter == nil {
		return nil, apperrors.ErrChapterNotFound.WithDetail(chapterID)
	}
	return s.submit(ctx, entity.NewExtractionJob(chapter.BookID, chapter.ID, entity.JobTypeChapterExtract))
}

// ExtractBookAsync 创建整书任务并投递
func (s *ExtractionService) ExtractBookAsync(ctx context.Context, bookID string) (*entity.ExtractionJob, error) {
	if strings.TrimSpace(bookID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("book_id is required")
	}
	return s.submit(ctx, entity.NewExtractionJob(bookID, "", entity.JobTypeBookExtract))
}

// ExtractBook 在当前 goroutine 中执行整书任务，返回结束后的任务记录
func (s *ExtractionService) ExtractBook(ctx context.Context, bookID string) (*entity.ExtractionJob, error) {
	if strings.TrimSpace(bookID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("book_id is required")
	}
	job := entity.NewExtractionJob(bookID, "", entity.JobTypeBookExtract)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, dbError(err, "failed to create extraction job")
	}
	if err := s.RunJob(ctx, job.ID); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, job.ID)
}

func (s *ExtractionService) submit(ctx context.Context, job *entity.ExtractionJob) (*entity.ExtractionJob, error) {
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, dbError(err, "failed to create extraction job")
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)

	if s.queue == nil {
		// 先登记再启动 goroutine，保证 Shutdown 能等到它
		jobCtx, done, ok := s.runner.start(context.WithoutCancel(ctx), job.ID)
		if !ok {
			s.abandon(ctx, job, errShutdown.Error())
			return nil, apperrors.ErrServiceUnavailable.WithDetail(errShutdown.Error())
		}
		go func() {
			defer done()
			if err := s.runJob(jobCtx, job.ID); err != nil {
				logger.Error(jobCtx, "extraction job failed", err)
			}
		}()
		logger.Info(ctx, "extraction job started in process", "job_type", job.JobType)
		return job, nil
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.abandon(ctx, job, "enqueue failed: "+err.Error())
		return nil, apperrors.Wrap(err, apperrors.CodeQueueError, "failed to enqueue extraction job")
	}
	logger.Info(ctx, "extraction job enqueued", "job_type", job.JobType)
	return job, nil
}

// abandon 将未能启动的任务标记为失败
func (s *ExtractionService) abandon(ctx context.Context, job *entity.ExtractionJob, reason string) {
	job.Fail(reason)
	if _, err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error(ctx, "failed to mark job as failed", err)
	}
}

func (s *ExtractionService) GetJob(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err, "failed to get extraction job")
	}
	if job == nil {
		return nil, apperrors.ErrJobNotFound
	}
	return job, nil
}

func (s *ExtractionService) ListJobs(ctx context.Context, bookID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ExtractionJob], error) {
	result, err := s.jobs.ListByBook(ctx, bookID, pagination)
	return result, dbError(err, "failed to list extraction jobs")
}

// CancelJob 取消未结束的任务
// 本进程内运行的任务立即停止等待；其他进程中的整书任务在写回下一章进度时发现并停止。
// 已经开始写入的章节记忆不回滚
func (s *ExtractionService) CancelJob(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsFinished() {
		return nil, apperrors.ErrIllegalTransition.WithDetail(fmt.Sprintf("job %s is already %s", id, job.Status))
	}
	job.Cancel(MsgJobCancelled)
	ok, err := s.jobs.Update(ctx, job)
	if err != nil {
		return nil, dbError(err, "failed to cancel extraction job")
	}
	if !ok {
		return nil, apperrors.ErrIllegalTransition.WithDetail(fmt.Sprintf("job %s finished before it could be cancelled", id))
	}
	local := s.runner.cancel(id, errCancelRequested)
	logger.Info(logger.WithContext(ctx, logger.JobIDKey, id), "extraction job cancelled", "running_here", local)
	return job, nil
}

// Shutdown 取消本进程内的任务与抽取，并等待它们写回状态
func (s *ExtractionService) Shutdown(ctx context.Context) error {
	return s.runner.shutdown(ctx)
}

// RunJob 执行任务；已结束的任务直接返回，便于消息重投
func (s *ExtractionService) RunJob(ctx context.Context, jobID string) error {
	jobCtx, done, ok := s.runner.start(ctx, jobID)
	if !ok {
		if errors.Is(context.Cause(s.runner.base), errShutdown) {
			return apperrors.ErrServiceUnavailable.WithDetail(errShutdown.Error())
		}
		logger.Info(ctx, "extraction job already running in this process", "job_id", jobID)
		return nil
	}
	defer done()
	return s.runJob(jobCtx, jobID)
}

func (s *ExtractionService) runJob(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsFinished() {
		return nil
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	ctx, span := tracer.Start(ctx, "memory.ExtractionService.RunJob")
	defer span.End()

	switch job.JobType {
	case entity.JobTypeChapterExtract:
		err = s.runChapterJob(ctx, job)
	case entity.JobTypeBookExtract:
		err = s.runBookJob(ctx, job)
	default:
		job.Fail(fmt.Sprintf("unknown job type %q", job.JobType))
		err = s.saveJob(ctx, job)
	}
	if errors.Is(err, errJobClosed) {
		logger.Info(ctx, "extraction job finished elsewhere, stopped")
		return nil
	}
	if err != nil {
		tracer.Fail(span, err)
	}
	return err
}

// saveJob 写回任务；任务已在别处结束时返回 errJobClosed
func (s *ExtractionService) saveJob(ctx context.Context, job *entity.ExtractionJob) error {
	ok, err := s.jobs.Update(context.WithoutCancel(ctx), job)
	if err != nil {
		return dbError(err, "failed to update extraction job")
	}
	if !ok {
		return errJobClosed
	}
	return nil
}

// stopJob 任务上下文被取消时记为已取消
func (s *ExtractionService) stopJob(ctx context.Context, job *entity.ExtractionJob) error {
	job.Cancel(context.Cause(ctx).Error())
	logger.Info(ctx, "extraction job stopped", "reason", job.ErrorMessage, "processed", job.Processed)
	return s.saveJob(ctx, job)
}

// finishJob 编码结果并完成任务，编码失败时任务记为失败
func (s *ExtractionService) finishJob(ctx context.Context, job *entity.ExtractionJob, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		logger.Error(ctx, "failed to encode extraction job result", err)
		job.Fail("failed to encode result: " + err.Error())
		if serr := s.saveJob(ctx, job); serr != nil {
			return serr
		}
		return apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode extraction job result")
	}
	job.Complete(raw)
	return s.saveJob(ctx, job)
}

func (s *ExtractionService) runChapterJob(ctx context.Context, job *entity.ExtractionJob) error {
	job.Start(1)
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	result, err := s.extract(ctx, job.ChapterID, modeAsync)
	if err != nil {
		if ctx.Err() != nil {
			return s.stopJob(ctx, job)
		}
		job.Advance(false)
		job.Fail(err.Error())
		if uerr := s.saveJob(ctx, job); uerr != nil {
			logger.Error(ctx, "failed to update extraction job", uerr)
		}
		return err
	}
	job.Advance(result.Success)
	if !result.Success {
		job.Fail(result.Message)
		return s.saveJob(ctx, job)
	}
	return s.finishJob(ctx, job, result)
}

// runBookJob 按章节序逐章抽取，单章失败不中断整书任务
func (s *ExtractionService) runBookJob(ctx context.Context, job *entity.ExtractionJob) error {
	chapters, err := s.story.ListChapters(ctx, job.BookID)
	if err != nil {
		job.Fail(err.Error())
		if uerr := s.saveJob(ctx, job); uerr != nil {
			logger.Error(ctx, "failed to update extraction job", uerr)
		}
		return dbError(err, "failed to list chapters")
	}

	job.Start(len(chapters))
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	summary := bookJobResult{Chapters: make([]bookChapterResult, 0, len(chapters))}
	for i, chapter := range chapters {
		if i > 0 && s.cfg.BookExtractInterval > 0 {
			select {
			case <-ctx.Done():
				return s.stopJob(ctx, job)
			case <-time.After(s.cfg.BookExtractInterval):
			}
		}

		entry := bookChapterResult{ChapterID: chapter.ID, ChapterOrder: chapter.OrderNum}
		result, err := s.extract(ctx, chapter.ID, modeAsync)
		switch {
		case err != nil && ctx.Err() != nil:
			return s.stopJob(ctx, job)
		case err != nil:
			entry.Message = err.Error()
			logger.Error(ctx, "chapter extraction failed", err, "chapter_id", chapter.ID)
		default:
			entry.Success, entry.Message = result.Success, result.Message
		}
		job.Advance(entry.Success)
		summary.Chapters = append(summary.Chapters, entry)
		if err := s.saveJob(ctx, job); err != nil {
			if errors.Is(err, errJobClosed) {
				return err
			}
			logger.Error(ctx, "failed to update extraction job progress", err)
		}
	}

	summary.Processed, summary.Failed = job.Processed, job.Failed
	logger.Info(ctx, "book extraction finished",
		"book_id", job.BookID,
		"processed", job.Processed,
		"failed", job.Failed,
	)
	return s.finishJob(ctx, job, summary)
}
