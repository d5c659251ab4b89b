// Package port 定义应用层依赖的外部设施：模型、跨进程协调、缓存与队列。
// 协调、缓存与队列接口各有 Redis 实现与进程内实现，按存储驱动装配。
package port

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"

	"novel-memory-api/internal/domain/entity"
)

// ChatModelFactory 按提供商名称取 ChatModel，空名称取默认提供商
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// InFlightGuard 跨进程的按键互斥；Acquire 失败时 ok=false 且不阻塞
type InFlightGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Debouncer 窗口内只有第一次 Claim 返回 true
type Debouncer interface {
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
}

// ReportCache 实时审查报告缓存，未命中返回 (nil, nil)
type ReportCache interface {
	PutReport(ctx context.Context, chapterID string, report *entity.ReviewReport, ttl time.Duration) error
	GetReport(ctx context.Context, chapterID string) (*entity.ReviewReport, error)
}

// JobQueue 异步抽取任务投递
type JobQueue interface {
	Enqueue(ctx context.Context, job *entity.ExtractionJob) error
}

// SummaryIndex 章节摘要语义召回索引
type SummaryIndex interface {
	IndexSummary(ctx context.Context, summary *entity.ChapterSummary) error
	// SearchSummaries 返回 beforeOrder 之前最相关的章节 ID，按相关度降序
	SearchSummaries(ctx context.Context, bookID, query string, beforeOrder, topK int) ([]string, error)
}
