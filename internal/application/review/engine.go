package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/metrics"
	"novel-memory-api/pkg/tracer"
)

const (
	defaultRuleTimeout = 3 * time.Minute
	// aiConcurrency 单章内并行执行的 AI 规则上限
	aiConcurrency = 3
)

// ContextLoader 读取审查上下文
type ContextLoader interface {
	LoadReviewContext(ctx context.Context, chapterID string) (*memory.ReviewContext, error)
}

// Engine 规则执行引擎
// 确定性规则在当前 goroutine 按优先级顺序执行，AI 规则并行执行；单条规则失败不影响其他规则
type Engine struct {
	rules   []Rule
	loader  ContextLoader
	story   repository.StoryRepository
	issues  repository.ReviewIssueRepository
	reports repository.ReviewReportRepository
	tx      repository.Transactor

	cfg      config.ReviewConfig
	disabled map[string]struct{}
	now      func() time.Time
}

// NewEngine 创建审查引擎
func NewEngine(
	rules []Rule,
	loader ContextLoader,
	story repository.StoryRepository,
	issues repository.ReviewIssueRepository,
	reports repository.ReviewReportRepository,
	tx repository.Transactor,
	cfg config.ReviewConfig,
) *Engine {
	if cfg.RuleTimeout <= 0 {
		cfg.RuleTimeout = defaultRuleTimeout
	}
	sorted := slices.Clone(rules)
	SortRules(sorted)
	disabled := make(map[string]struct{}, len(cfg.DisabledRules))
	for _, name := range cfg.DisabledRules {
		disabled[strings.TrimSpace(name)] = struct{}{}
	}
	return &Engine{
		rules:    sorted,
		loader:   loader,
		story:    story,
		issues:   issues,
		reports:  reports,
		tx:       tx,
		cfg:      cfg,
		disabled: disabled,
		now:      time.Now,
	}
}

func (e *Engine) enabled(r Rule) bool {
	if _, off := e.disabled[r.Name()]; off {
		return false
	}
	return !r.RequiresAI() || e.cfg.AIRulesEnabled
}

// Rules 规则目录
func (e *Engine) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, RuleInfo{
			Name:        r.Name(),
			Title:       r.Title(),
			Description: r.Description(),
			Level:       r.Level(),
			Tier:        r.Level().Tier(),
			Type:        r.Type(),
			Priority:    r.Priority(),
			RequiresAI:  r.RequiresAI(),
			Enabled:     e.enabled(r),
		})
	}
	return out
}

// runOptions 一次审查的规则筛选条件
type runOptions struct {
	levels []entity.ReviewLevel
	quick  bool
}

// selectRules quick 模式只执行 error 级别的确定性规则
func (e *Engine) selectRules(opts runOptions) []Rule {
	var out []Rule
	for _, r := range e.rules {
		if !e.enabled(r) {
			continue
		}
		if opts.quick && (r.Level() != entity.ReviewLevelError || r.RequiresAI()) {
			continue
		}
		if len(opts.levels) > 0 && !slices.Contains(opts.levels, r.Level()) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ReviewChapter 审查单章；bookID 非空时校验章节归属
func (e *Engine) ReviewChapter(ctx context.Context, bookID, chapterID string, levels []entity.ReviewLevel) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.Engine.ReviewChapter")
	defer span.End()

	report, err := e.run(ctx, bookID, entity.ReviewModeSingle, []string{chapterID}, runOptions{levels: levels})
	tracer.Fail(span, err)
	return report, err
}

// QuickReview 只执行 error 级确定性规则，用于保存时的低延迟检查
func (e *Engine) QuickReview(ctx context.Context, bookID, chapterID string) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.Engine.QuickReview")
	defer span.End()

	report, err := e.run(ctx, bookID, entity.ReviewModeSingle, []string{chapterID}, runOptions{quick: true})
	tracer.Fail(span, err)
	return report, err
}

// ReviewBatch 审查指定的若干章节，问题汇总到一份报告
func (e *Engine) ReviewBatch(ctx context.Context, bookID string, chapterIDs []string, levels []entity.ReviewLevel) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.Engine.ReviewBatch")
	defer span.End()

	if strings.TrimSpace(bookID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("book_id is required")
	}
	ids := make([]string, 0, len(chapterIDs))
	seen := make(map[string]struct{}, len(chapterIDs))
	for _, id := range chapterIDs {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_ids is required")
	}

	chapters := make([]*entity.Chapter, 0, len(ids))
	for _, id := range ids {
		ch, err := e.story.GetChapter(ctx, id)
		if err != nil {
			return nil, dbError(err, "failed to get chapter")
		}
		if ch == nil || ch.BookID != bookID {
			return nil, apperrors.ErrChapterNotFound.WithDetail(id)
		}
		chapters = append(chapters, ch)
	}
	sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].OrderNum < chapters[j].OrderNum })
	ordered := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		ordered = append(ordered, ch.ID)
	}

	report, err := e.run(ctx, bookID, entity.ReviewModeBatch, ordered, runOptions{levels: levels})
	tracer.Fail(span, err)
	return report, err
}

// ReviewBook 按章节序审查整本书
func (e *Engine) ReviewBook(ctx context.Context, bookID string, levels []entity.ReviewLevel) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.Engine.ReviewBook")
	defer span.End()

	chapters, err := e.story.ListChapters(ctx, bookID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list chapters")
	}
	ids := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
	}
	report, err := e.run(ctx, bookID, entity.ReviewModeFull, ids, runOptions{levels: levels})
	tracer.Fail(span, err)
	return report, err
}

// run 单章模式下任何错误直接返回；多章模式下单章失败记录日志后继续
func (e *Engine) run(ctx context.Context, bookID string, mode entity.ReviewMode, chapterIDs []string, opts runOptions) (*entity.ReviewReport, error) {
	start := e.now()
	rules := e.selectRules(opts)
	report := entity.NewReviewReport(bookID, mode, start)
	report.Quick = opts.quick
	report.RulesExecuted = len(rules)
	for _, l := range opts.levels {
		report.Levels = append(report.Levels, string(l))
	}

	var all []*entity.ReviewIssue
	failed := make(map[string]struct{})
	for _, id := range chapterIDs {
		outcome, err := e.reviewOne(ctx, bookID, id, rules)
		if err != nil {
			if mode == entity.ReviewModeSingle {
				return nil, err
			}
			logger.Error(ctx, "chapter review failed", err, "chapter_id", id)
			continue
		}
		if report.BookID == "" {
			report.BookID = outcome.bookID
		}
		report.ChapterIDs = append(report.ChapterIDs, id)
		all = append(all, outcome.issues...)
		for _, name := range outcome.failed {
			failed[name] = struct{}{}
		}
	}
	for name := range failed {
		report.FailedRules = append(report.FailedRules, name)
	}
	sort.Strings(report.FailedRules)
	report.Finalize(all, e.now())

	if err := e.reports.Create(ctx, report); err != nil {
		return nil, dbError(err, "failed to save review report")
	}

	metrics.ReviewRunsTotal.WithLabelValues(string(mode)).Inc()
	metrics.ReviewDuration.WithLabelValues(string(mode)).Observe(e.now().Sub(start).Seconds())
	for _, issue := range all {
		metrics.ReviewIssuesFound.WithLabelValues(string(issue.Level)).Inc()
	}
	logger.Info(ctx, "review finished",
		"book_id", report.BookID,
		"mode", mode,
		"quick", opts.quick,
		"chapters", len(report.ChapterIDs),
		"rules", len(rules),
		"issues", report.TotalIssues,
		"failed_rules", len(report.FailedRules),
		"duration_ms", report.DurationMs,
	)
	return report, nil
}

// chapterOutcome 单章审查结果
type chapterOutcome struct {
	bookID string
	issues []*entity.ReviewIssue
	failed []string
}

func (e *Engine) reviewOne(ctx context.Context, bookID, chapterID string, rules []Rule) (*chapterOutcome, error) {
	rc, err := e.loader.LoadReviewContext(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if bookID != "" && rc.Chapter.BookID != bookID {
		return nil, apperrors.ErrChapterNotFound.WithDetail(chapterID)
	}
	ctx = logger.WithChapter(ctx, rc.Chapter.BookID, rc.Chapter.ID)

	findings, executed, failed := e.execute(ctx, rc, rules)
	issues, err := e.persist(ctx, rc.Chapter, findings, executed)
	if err != nil {
		return nil, err
	}
	return &chapterOutcome{bookID: rc.Chapter.BookID, issues: issues, failed: failed}, nil
}

// execute 返回按规则优先级排列的发现、成功执行的问题类型与失败规则名
func (e *Engine) execute(ctx context.Context, rc *memory.ReviewContext, rules []Rule) ([]*entity.ReviewIssue, map[entity.ReviewType]struct{}, []string) {
	results := make([][]*entity.ReviewIssue, len(rules))
	errs := make([]error, len(rules))

	var g errgroup.Group
	g.SetLimit(aiConcurrency)
	for i, r := range rules {
		if r.RequiresAI() {
			g.Go(func() error {
				results[i], errs[i] = e.runRule(ctx, r, rc)
				return nil
			})
			continue
		}
		results[i], errs[i] = e.runRule(ctx, r, rc)
	}
	_ = g.Wait()

	var findings []*entity.ReviewIssue
	executed := make(map[entity.ReviewType]struct{}, len(rules))
	var failed []string
	for i, r := range rules {
		if err := errs[i]; err != nil {
			failed = append(failed, r.Name())
			metrics.ReviewRuleExecutions.WithLabelValues(r.Name(), "failed").Inc()
			logger.Error(ctx, "review rule failed", err, "rule", r.Name())
			continue
		}
		metrics.ReviewRuleExecutions.WithLabelValues(r.Name(), "ok").Inc()
		executed[r.Type()] = struct{}{}
		findings = append(findings, results[i]...)
	}
	return findings, executed, failed
}

// runRule 带超时执行单条规则，panic 转为错误
func (e *Engine) runRule(ctx context.Context, r Rule, rc *memory.ReviewContext) (issues []*entity.ReviewIssue, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RuleTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			issues, err = nil, fmt.Errorf("rule %s panicked: %v", r.Name(), p)
		}
	}()

	issues, err = r.Check(ctx, rc)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("rule %s timed out after %s", r.Name(), e.cfg.RuleTimeout)
	}
	return issues, err
}

// persist 按去重键合并到已有问题：open 的原位更新，fixed/ignored 的不再报告；
// 本轮成功执行的类型下未再出现的 open 问题视为已消失并删除
func (e *Engine) persist(ctx context.Context, chapter *entity.Chapter, findings []*entity.ReviewIssue, executed map[entity.ReviewType]struct{}) ([]*entity.ReviewIssue, error) {
	unique := make([]*entity.ReviewIssue, 0, len(findings))
	found := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		f.BookID, f.ChapterID, f.ChapterOrder = chapter.BookID, chapter.ID, chapter.OrderNum
		f.Status = entity.IssueStatusOpen
		if !f.Level.Valid() {
			f.Level = f.Type.DefaultLevel()
		}
		key := f.ComputeDedupKey()
		if _, dup := found[key]; dup {
			continue
		}
		found[key] = struct{}{}
		unique = append(unique, f)
	}

	var out []*entity.ReviewIssue
	err := e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.issues.LockChapter(ctx, chapter.ID); err != nil {
			return dbError(err, "failed to lock chapter review issues")
		}
		existing, err := e.issues.ListByChapter(ctx, chapter.ID)
		if err != nil {
			return dbError(err, "failed to list review issues")
		}
		byKey := make(map[string]*entity.ReviewIssue, len(existing))
		for _, old := range existing {
			if cur, ok := byKey[old.DedupKey]; ok && cur.Status.IsTerminal() {
				continue
			}
			byKey[old.DedupKey] = old
		}

		for _, f := range unique {
			old := byKey[f.DedupKey]
			var kept *entity.ReviewIssue
			switch {
			case old == nil:
				kept, err = e.createOrMerge(ctx, f)
			case old.Status.IsTerminal():
			default:
				kept, err = e.mergeOpen(ctx, old, f)
			}
			if err != nil {
				return err
			}
			if kept != nil {
				out = append(out, kept)
			}
		}

		var stale []string
		for _, old := range existing {
			if old.Status != entity.IssueStatusOpen {
				continue
			}
			if _, ran := executed[old.Type]; !ran {
				continue
			}
			if _, still := found[old.DedupKey]; still && byKey[old.DedupKey] == old {
				continue
			}
			stale = append(stale, old.ID)
		}
		if len(stale) > 0 {
			if _, err := e.issues.DeleteOpenByIDs(ctx, stale); err != nil {
				return dbError(err, "failed to delete stale review issues")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// createOrMerge 另一轮审查已写入同键 open 问题时并入该问题
func (e *Engine) createOrMerge(ctx context.Context, f *entity.ReviewIssue) (*entity.ReviewIssue, error) {
	created, err := e.issues.CreateOpen(ctx, f)
	if err != nil {
		return nil, dbError(err, "failed to create review issue")
	}
	if created {
		return f, nil
	}
	cur, err := e.issues.GetOpenByKey(ctx, f.ChapterID, f.DedupKey)
	if err != nil {
		return nil, dbError(err, "failed to get review issue")
	}
	if cur == nil {
		return nil, nil
	}
	return e.mergeOpen(ctx, cur, f)
}

// mergeOpen 覆盖 open 问题的内容；写入时已被人工处理则跳过
func (e *Engine) mergeOpen(ctx context.Context, old, f *entity.ReviewIssue) (*entity.ReviewIssue, error) {
	old.ReplaceFinding(f)
	ok, err := e.issues.UpdateFinding(ctx, old)
	if err != nil {
		return nil, dbError(err, "failed to update review issue")
	}
	if !ok {
		logger.Debug(ctx, "review issue resolved during review, skipped", "issue_id", old.ID)
		return nil, nil
	}
	return old, nil
}

func dbError(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, message)
}
