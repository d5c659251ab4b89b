package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	workflowport "novel-memory-api/internal/workflow/port"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/tracer"
)

// GenerationContext 续写用的上下文文本块，空块表示没有可用记录
type GenerationContext struct {
	BookID          string `json:"book_id"`
	ChapterOrder    int    `json:"chapter_order"`
	Summaries       string `json:"summaries"`
	MajorEvents     string `json:"major_events"`
	Foreshadows     string `json:"foreshadows"`
	CharacterStates string `json:"character_states"`
	Recall          string `json:"recall,omitempty"`
	Text            string `json:"text"`
}

// ReviewContext 审查某一章时读取的记忆快照，全部列表按章节序升序
type ReviewContext struct {
	Chapter       *entity.Chapter
	Characters    []*entity.Character
	Index         *entity.CharacterIndex
	Settings      []*entity.WorldSetting
	Summaries     []*entity.ChapterSummary
	Events        []*entity.StoryEvent
	ChapterEvents []*entity.StoryEvent
	StateChanges  []*entity.CharacterStateChange
	Foreshadows   []*entity.Foreshadow
}

// StateBefore 本章之前角色的折叠状态
func (rc *ReviewContext) StateBefore(characterID string) *entity.CharacterState {
	upTo := rc.Chapter.OrderNum - 1
	return entity.FoldCharacterState(characterID, rc.StateChanges, &upTo)
}

// ContextBuilder 组装生成与审查两种上下文
type ContextBuilder struct {
	summaries   repository.SummaryRepository
	events      repository.EventRepository
	foreshadows repository.ForeshadowRepository
	changes     repository.StateChangeRepository
	story       repository.StoryRepository
	tx          repository.Transactor
	index       workflowport.SummaryIndex

	maxChapters int
	minAge      int
	recall      config.RecallConfig
}

// NewContextBuilder 创建上下文组装器；index 为 nil 时不提供语义召回
func NewContextBuilder(
	summaries repository.SummaryRepository,
	events repository.EventRepository,
	foreshadows repository.ForeshadowRepository,
	changes repository.StateChangeRepository,
	story repository.StoryRepository,
	tx repository.Transactor,
	index workflowport.SummaryIndex,
	cfg config.MemoryConfig,
) *ContextBuilder {
	b := &ContextBuilder{
		summaries:   summaries,
		events:      events,
		foreshadows: foreshadows,
		changes:     changes,
		story:       story,
		tx:          tx,
		index:       index,
		maxChapters: cfg.SummaryContextChapters,
		minAge:      cfg.ReminderMinChapters,
		recall:      cfg.Recall,
	}
	if b.maxChapters <= 0 {
		b.maxChapters = 10
	}
	if b.minAge <= 0 {
		b.minAge = DefaultReminderMinChapters
	}
	return b
}

// BuildGeneration 并行读取各类记录并拼接为续写上下文；query 非空且召回开启时附加相关前文
func (b *ContextBuilder) BuildGeneration(ctx context.Context, bookID string, chapterOrder, maxChapters int, query string) (*GenerationContext, error) {
	ctx, span := tracer.Start(ctx, "memory.ContextBuilder.BuildGeneration")
	defer span.End()

	if maxChapters <= 0 {
		maxChapters = b.maxChapters
	}
	out := &GenerationContext{BookID: bookID, ChapterOrder: chapterOrder}
	var recent []*entity.ChapterSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := b.summaries.ListBeforeChapter(gctx, bookID, chapterOrder, maxChapters)
		if err != nil {
			return dbError(err, "failed to list chapter summaries")
		}
		recent = items
		out.Summaries = FormatSummaries(items)
		return nil
	})
	g.Go(func() error {
		items, err := b.events.ListBeforeChapter(gctx, bookID, chapterOrder)
		if err != nil {
			return dbError(err, "failed to list story events")
		}
		out.MajorEvents = FormatMajorEvents(items)
		return nil
	})
	g.Go(func() error {
		items, err := b.foreshadows.ListPlantedBefore(gctx, bookID, chapterOrder)
		if err != nil {
			return dbError(err, "failed to list foreshadows")
		}
		out.Foreshadows = FormatReminders(DueReminders(items, chapterOrder, b.minAge))
		return nil
	})
	g.Go(func() error {
		items, err := b.changes.ListBeforeChapter(gctx, bookID, chapterOrder)
		if err != nil {
			return dbError(err, "failed to list state changes")
		}
		if len(items) == 0 {
			return nil
		}
		characters, err := b.story.ListCharacters(gctx, bookID)
		if err != nil {
			return dbError(err, "failed to list characters")
		}
		out.CharacterStates = FormatCharacterStates(items, entity.NewCharacterIndex(characters))
		return nil
	})
	if err := g.Wait(); err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	if query = strings.TrimSpace(query); query != "" && b.recall.Enabled && b.index != nil {
		out.Recall = b.recallBlock(ctx, bookID, chapterOrder, query, recent)
	}

	out.Text = joinBlocks(out.Summaries, out.MajorEvents, out.Foreshadows, out.CharacterStates, out.Recall)
	return out, nil
}

// recallBlock 语义召回失败只记录日志，不影响主上下文
func (b *ContextBuilder) recallBlock(ctx context.Context, bookID string, chapterOrder int, query string, recent []*entity.ChapterSummary) string {
	topK := b.recall.TopK
	if topK <= 0 {
		topK = 3
	}
	ids, err := b.index.SearchSummaries(ctx, bookID, query, chapterOrder, topK)
	if err != nil {
		logger.Warn(ctx, "summary recall failed", "book_id", bookID, "error", err.Error())
		return ""
	}
	inWindow := make(map[string]struct{}, len(recent))
	for _, s := range recent {
		inWindow[s.ChapterID] = struct{}{}
	}

	var hits []*entity.ChapterSummary
	for _, id := range ids {
		if _, ok := inWindow[id]; ok {
			continue
		}
		s, err := b.summaries.GetByChapterID(ctx, id)
		if err != nil {
			logger.Warn(ctx, "summary recall lookup failed", "chapter_id", id, "error", err.Error())
			continue
		}
		if s.IsEmpty() || s.ChapterOrder >= chapterOrder {
			continue
		}
		hits = append(hits, s)
	}
	if len(hits) == 0 {
		return ""
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].ChapterOrder < hits[j].ChapterOrder })

	var sb strings.Builder
	sb.WriteString("【相关前文】\n")
	for _, s := range hits {
		fmt.Fprintf(&sb, "第%d章：%s\n", s.ChapterOrder, s.Summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func joinBlocks(blocks ...string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}

// LoadReviewContext 在一致性快照中读取审查所需的全部前文记录
func (b *ContextBuilder) LoadReviewContext(ctx context.Context, chapterID string) (*ReviewContext, error) {
	ctx, span := tracer.Start(ctx, "memory.ContextBuilder.LoadReviewContext")
	defer span.End()

	rc := &ReviewContext{}
	err := b.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		chapter, err := b.story.GetChapter(ctx, chapterID)
		if err != nil {
			return dbError(err, "failed to get chapter")
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound.WithDetail(chapterID)
		}
		rc.Chapter = chapter
		bookID, order := chapter.BookID, chapter.OrderNum

		if rc.Characters, err = b.story.ListCharacters(ctx, bookID); err != nil {
			return dbError(err, "failed to list characters")
		}
		rc.Index = entity.NewCharacterIndex(rc.Characters)
		if rc.Settings, err = b.story.ListWorldSettings(ctx, bookID); err != nil {
			return dbError(err, "failed to list world settings")
		}
		if rc.Summaries, err = b.summaries.ListBeforeChapter(ctx, bookID, order, 0); err != nil {
			return dbError(err, "failed to list chapter summaries")
		}
		if rc.Events, err = b.events.ListBeforeChapter(ctx, bookID, order); err != nil {
			return dbError(err, "failed to list story events")
		}
		if rc.ChapterEvents, err = b.events.ListByChapter(ctx, chapter.ID); err != nil {
			return dbError(err, "failed to list story events")
		}
		if rc.StateChanges, err = b.changes.ListBeforeChapter(ctx, bookID, order); err != nil {
			return dbError(err, "failed to list state changes")
		}
		if rc.Foreshadows, err = b.foreshadows.ListPlantedBefore(ctx, bookID, order); err != nil {
			return dbError(err, "failed to list foreshadows")
		}
		return nil
	})
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	return rc, nil
}

// timelineEntry 合并排序用的单条前文记录
type timelineEntry struct {
	order int
	kind  int
	line  string
}

// Timeline 将事件、状态变更与伏笔按章节序合并为前文时间线；同章内事件在前
func (rc *ReviewContext) Timeline() string {
	entries := make([]timelineEntry, 0, len(rc.Events)+len(rc.StateChanges)+len(rc.Foreshadows))
	for _, e := range rc.Events {
		line := fmt.Sprintf("第%d章 事件：%s", e.ChapterOrder, e.Title)
		if e.Description != "" {
			line += "。" + e.Description
		}
		entries = append(entries, timelineEntry{order: e.ChapterOrder, kind: 0, line: line})
	}
	for _, c := range rc.StateChanges {
		name := c.CharacterID
		if rc.Index != nil {
			name = rc.Index.DisplayName(c.CharacterID)
		}
		line := fmt.Sprintf("第%d章 状态：%s 的 %s 变为 %s", c.ChapterOrder, name, c.Field, c.NewValue)
		if c.Reason != "" {
			line += "（" + c.Reason + "）"
		}
		entries = append(entries, timelineEntry{order: c.ChapterOrder, kind: 1, line: line})
	}
	for _, f := range rc.Foreshadows {
		line := fmt.Sprintf("第%d章 伏笔：%s（%s）", f.PlantedChapter, f.Title, f.Status)
		entries = append(entries, timelineEntry{order: f.PlantedChapter, kind: 2, line: line})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].kind < entries[j].kind
	})

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.line)
	}
	return strings.Join(lines, "\n")
}

// RecentSummaries 最近 n 章摘要文本块
func (rc *ReviewContext) RecentSummaries(n int) string {
	items := rc.Summaries
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	return FormatSummaries(items)
}
