package review

import (
	"context"
	"sync"
	"time"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	workflowport "novel-memory-api/internal/workflow/port"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/tracer"
)

const (
	defaultRealtimeDebounce = 3 * time.Second
	defaultReportCacheTTL   = 24 * time.Hour
	realtimeKeyPrefix       = "review:realtime:"
)

// QuickReviewer 只执行 error 级规则的快速审查
type QuickReviewer interface {
	QuickReview(ctx context.Context, bookID, chapterID string) (*entity.ReviewReport, error)
}

// RealtimeService 保存触发的实时审查
// 同一章节在防抖窗口内只排队一次，窗口结束后审查最新内容并缓存报告
type RealtimeService struct {
	reviewer QuickReviewer
	debounce workflowport.Debouncer
	cache    workflowport.ReportCache
	window   time.Duration
	ttl      time.Duration

	wg sync.WaitGroup
}

// NewRealtimeService 创建实时审查服务
func NewRealtimeService(reviewer QuickReviewer, debounce workflowport.Debouncer, cache workflowport.ReportCache, cfg config.ReviewConfig) *RealtimeService {
	window := cfg.RealtimeDebounce
	if window <= 0 {
		window = defaultRealtimeDebounce
	}
	ttl := cfg.ReportCacheTTL
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}
	return &RealtimeService{reviewer: reviewer, debounce: debounce, cache: cache, window: window, ttl: ttl}
}

// Trigger 返回本次调用是否排入了新的审查；窗口内的重复触发返回 false
func (s *RealtimeService) Trigger(ctx context.Context, bookID, chapterID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "review.RealtimeService.Trigger")
	defer span.End()

	if bookID == "" || chapterID == "" {
		return false, apperrors.ErrInvalidParam.WithDetail("book_id and chapter_id are required")
	}
	claimed, err := s.debounce.Claim(ctx, realtimeKeyPrefix+chapterID, s.window)
	if err != nil {
		tracer.Fail(span, err)
		return false, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to claim realtime review")
	}
	if !claimed {
		return false, nil
	}

	runCtx := logger.WithChapter(context.WithoutCancel(ctx), bookID, chapterID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(s.window)
		s.run(runCtx, bookID, chapterID)
	}()
	return true, nil
}

func (s *RealtimeService) run(ctx context.Context, bookID, chapterID string) {
	report, err := s.reviewer.QuickReview(ctx, bookID, chapterID)
	if err != nil {
		logger.Error(ctx, "realtime review failed", err)
		return
	}
	if err := s.cache.PutReport(ctx, chapterID, report, s.ttl); err != nil {
		logger.Error(ctx, "failed to cache realtime report", err)
		return
	}
	logger.Debug(ctx, "realtime review cached", "issues", report.TotalIssues)
}

// Latest 最近一次实时审查报告
func (s *RealtimeService) Latest(ctx context.Context, chapterID string) (*entity.ReviewReport, error) {
	ctx, span := tracer.Start(ctx, "review.RealtimeService.Latest")
	defer span.End()

	report, err := s.cache.GetReport(ctx, chapterID)
	if err != nil {
		tracer.Fail(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read realtime report")
	}
	if report == nil {
		return nil, apperrors.ErrReportNotFound
	}
	return report, nil
}

// Wait 等待已排队的实时审查结束，用于优雅退出
func (s *RealtimeService) Wait() {
	s.wg.Wait()
}
