package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-memory-api/pkg/metrics"
)

// Repository 章节摘要向量仓储
type Repository struct {
	client *Client
	dim    int
}

// NewRepository 创建向量仓储
func NewRepository(client *Client, dim int) *Repository {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &Repository{client: client, dim: dim}
}

// SearchResult 检索结果
type SearchResult struct {
	ChapterID    string
	ChapterOrder int
	Score        float32
	Summary      string
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// EnsureCollection 集合不存在时创建集合与索引并加载；不做任何破坏性操作
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", CollectionChapterSummaries)))
	defer span.End()

	exists, err := r.client.HasCollection(ctx, CollectionChapterSummaries)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		schema := ChapterSummariesSchema(r.dim)
		schema.CollectionName = r.client.CollectionName(CollectionChapterSummaries)
		if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := r.createIndex(ctx); err != nil {
			return err
		}
	}
	return r.client.LoadCollection(ctx, CollectionChapterSummaries)
}

func (r *Repository) createIndex(ctx context.Context) error {
	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	collName := r.client.CollectionName(CollectionChapterSummaries)
	if err := r.client.milvus.CreateIndex(ctx, collName, fieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (r *Repository) ensurePartition(ctx context.Context, bookID string) error {
	collName := r.client.CollectionName(CollectionChapterSummaries)
	partition := PartitionName(bookID)
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if has {
		return nil
	}
	if err := r.client.milvus.CreatePartition(ctx, collName, partition); err != nil {
		return fmt.Errorf("failed to create partition: %w", err)
	}
	return nil
}

// Upsert 写入或覆盖同一本书的摘要向量
func (r *Repository) Upsert(ctx context.Context, bookID string, items []*SummaryVector) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("book_id", bookID),
			attribute.Int("count", len(items)),
		))
	defer span.End()

	if len(items) == 0 {
		return nil
	}
	if err := r.ensurePartition(ctx, bookID); err != nil {
		span.RecordError(err)
		return err
	}

	ids := make([]string, len(items))
	vectors := make([][]float32, len(items))
	bookIDs := make([]string, len(items))
	orders := make([]int64, len(items))
	summaries := make([]string, len(items))
	for i, it := range items {
		if len(it.Vector) != r.dim {
			return fmt.Errorf("vector dimension mismatch for chapter %s: got %d, want %d", it.ChapterID, len(it.Vector), r.dim)
		}
		ids[i] = it.ChapterID
		vectors[i] = it.Vector
		bookIDs[i] = bookID
		orders[i] = int64(it.ChapterOrder)
		summaries[i] = truncateBytes(it.Summary, maxSummaryLength)
	}

	collName := r.client.CollectionName(CollectionChapterSummaries)
	_, err := r.client.milvus.Upsert(ctx, collName, PartitionName(bookID),
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dim, vectors),
		entity.NewColumnVarChar(fieldBookID, bookIDs),
		entity.NewColumnInt64(fieldChapterOrder, orders),
		entity.NewColumnVarChar(fieldSummary, summaries),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert summaries: %w", err)
	}
	return nil
}

// Search 在 beforeOrder 之前的章节摘要中做向量检索
func (r *Repository) Search(ctx context.Context, bookID string, query []float32, beforeOrder, topK int) ([]*SearchResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("book_id", bookID),
			attribute.Int("before_order", beforeOrder),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(CollectionChapterSummaries).Observe(time.Since(start).Seconds())
		metrics.MilvusSearchTotal.WithLabelValues(CollectionChapterSummaries, status).Inc()
	}()

	collName := r.client.CollectionName(CollectionChapterSummaries)
	partition := PartitionName(bookID)

	// 新书尚无分区时直接返回空结果
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return []*SearchResult{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partition},
		beforeChapterFilter(bookID, beforeOrder),
		[]string{fieldID, fieldChapterOrder, fieldSummary},
		[]entity.Vector{entity.FloatVector(query)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{Score: result.Scores[i]}
			if col, ok := result.Fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
				sr.ChapterID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldChapterOrder).(*entity.ColumnInt64); ok {
				sr.ChapterOrder = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn(fieldSummary).(*entity.ColumnVarChar); ok {
				sr.Summary = col.Data()[i]
			}
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// DeleteByChapter 删除章节摘要向量
func (r *Repository) DeleteByChapter(ctx context.Context, bookID, chapterID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByChapter",
		trace.WithAttributes(attribute.String("chapter_id", chapterID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionChapterSummaries)
	partition := PartitionName(bookID)
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}
	if err := r.client.milvus.Delete(ctx, collName, partition, fieldID+` == "`+chapterID+`"`); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete summary vector: %w", err)
	}
	return nil
}

// truncateBytes 按字节上限截断且不切断 UTF-8 字符
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}
