package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	workflowport "novel-memory-api/internal/workflow/port"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/tracer"
)

// UpsertSummaryInput 人工写入摘要
type UpsertSummaryInput struct {
	ChapterID          string   `json:"chapter_id" binding:"required"`
	Summary            string   `json:"summary"`
	KeyEvents          []string `json:"key_events"`
	CharactersAppeared []string `json:"characters_appeared"`
	EmotionalTone      string   `json:"emotional_tone"`
}

// UpdateSummaryInput 部分更新摘要，nil 字段保持不变
type UpdateSummaryInput struct {
	Summary            *string  `json:"summary"`
	KeyEvents          []string `json:"key_events"`
	CharactersAppeared []string `json:"characters_appeared"`
	EmotionalTone      *string  `json:"emotional_tone"`
}

// SummaryService 章节摘要
type SummaryService struct {
	summaries repository.SummaryRepository
	story     repository.StoryRepository
	index     workflowport.SummaryIndex
	defaultN  int
}

// NewSummaryService 创建摘要服务；index 可为 nil
func NewSummaryService(summaries repository.SummaryRepository, story repository.StoryRepository, index workflowport.SummaryIndex, cfg config.MemoryConfig) *SummaryService {
	n := cfg.SummaryContextChapters
	if n <= 0 {
		n = 10
	}
	return &SummaryService{summaries: summaries, story: story, index: index, defaultN: n}
}

func (s *SummaryService) GetByChapter(ctx context.Context, chapterID string) (*entity.ChapterSummary, error) {
	summary, err := s.summaries.GetByChapterID(ctx, chapterID)
	if err != nil {
		return nil, dbError(err, "failed to get chapter summary")
	}
	if summary == nil {
		return nil, apperrors.ErrSummaryNotFound
	}
	return summary, nil
}

func (s *SummaryService) ListByBook(ctx context.Context, bookID string) ([]*entity.ChapterSummary, error) {
	items, err := s.summaries.ListByBook(ctx, bookID)
	return items, dbError(err, "failed to list chapter summaries")
}

// ListBeforeChapter limit <= 0 表示不限条数
func (s *SummaryService) ListBeforeChapter(ctx context.Context, bookID string, beforeOrder, limit int) ([]*entity.ChapterSummary, error) {
	items, err := s.summaries.ListBeforeChapter(ctx, bookID, beforeOrder, limit)
	return items, dbError(err, "failed to list chapter summaries")
}

func (s *SummaryService) ListRecent(ctx context.Context, bookID string, limit int) ([]*entity.ChapterSummary, error) {
	if limit <= 0 {
		limit = s.defaultN
	}
	items, err := s.summaries.ListRecent(ctx, bookID, limit)
	return items, dbError(err, "failed to list recent chapter summaries")
}

// Upsert 以章节为键写入摘要，章节序以章节存储为准
func (s *SummaryService) Upsert(ctx context.Context, in *UpsertSummaryInput) (*entity.ChapterSummary, error) {
	ctx, span := tracer.Start(ctx, "memory.SummaryService.Upsert")
	defer span.End()

	if in == nil || strings.TrimSpace(in.ChapterID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_id is required")
	}
	chapter, err := s.story.GetChapter(ctx, in.ChapterID)
	if err != nil {
		return nil, dbError(err, "failed to get chapter")
	}
	if chapter == nil {
		return nil, apperrors.ErrChapterNotFound
	}

	summary := &entity.ChapterSummary{
		BookID:             chapter.BookID,
		ChapterID:          chapter.ID,
		ChapterOrder:       chapter.OrderNum,
		Summary:            strings.TrimSpace(in.Summary),
		KeyEvents:          pq.StringArray(in.KeyEvents),
		CharactersAppeared: pq.StringArray(in.CharactersAppeared),
		EmotionalTone:      strings.TrimSpace(in.EmotionalTone),
	}
	if err := s.save(ctx, summary); err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	return summary, nil
}

// save 写入并尽力同步召回索引
func (s *SummaryService) save(ctx context.Context, summary *entity.ChapterSummary) error {
	if err := s.summaries.Upsert(ctx, summary); err != nil {
		return dbError(err, "failed to upsert chapter summary")
	}
	s.reindex(ctx, summary)
	return nil
}

func (s *SummaryService) reindex(ctx context.Context, summary *entity.ChapterSummary) {
	if s.index == nil || summary.IsEmpty() {
		return
	}
	if err := s.index.IndexSummary(ctx, summary); err != nil {
		logger.Warn(ctx, "failed to index chapter summary",
			"chapter_id", summary.ChapterID,
			"error", err.Error(),
		)
	}
}

func (s *SummaryService) Update(ctx context.Context, id string, in *UpdateSummaryInput) (*entity.ChapterSummary, error) {
	summary, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err, "failed to get chapter summary")
	}
	if summary == nil {
		return nil, apperrors.ErrSummaryNotFound
	}
	if in != nil {
		if in.Summary != nil {
			summary.Summary = strings.TrimSpace(*in.Summary)
		}
		if in.KeyEvents != nil {
			summary.KeyEvents = pq.StringArray(in.KeyEvents)
		}
		if in.CharactersAppeared != nil {
			summary.CharactersAppeared = pq.StringArray(in.CharactersAppeared)
		}
		if in.EmotionalTone != nil {
			summary.EmotionalTone = strings.TrimSpace(*in.EmotionalTone)
		}
	}
	if err := s.summaries.Update(ctx, summary); err != nil {
		return nil, dbError(err, "failed to update chapter summary")
	}
	s.reindex(ctx, summary)
	return summary, nil
}

func (s *SummaryService) Delete(ctx context.Context, id string) error {
	summary, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return dbError(err, "failed to get chapter summary")
	}
	if summary == nil {
		return apperrors.ErrSummaryNotFound
	}
	return dbError(s.summaries.Delete(ctx, id), "failed to delete chapter summary")
}

// BuildContext 取 chapterOrder 之前最近 maxChapters 章的摘要拼成文本块
func (s *SummaryService) BuildContext(ctx context.Context, bookID string, chapterOrder, maxChapters int) (string, error) {
	if maxChapters <= 0 {
		maxChapters = s.defaultN
	}
	items, err := s.summaries.ListBeforeChapter(ctx, bookID, chapterOrder, maxChapters)
	if err != nil {
		return "", dbError(err, "failed to list chapter summaries")
	}
	return FormatSummaries(items), nil
}

// FormatSummaries 前文摘要文本块，输入需已按章节序升序
func FormatSummaries(items []*entity.ChapterSummary) string {
	var sb strings.Builder
	for _, item := range items {
		if item.IsEmpty() {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("【前文摘要】\n")
		}
		fmt.Fprintf(&sb, "第%d章：\n%s\n\n", item.ChapterOrder, item.Summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}
