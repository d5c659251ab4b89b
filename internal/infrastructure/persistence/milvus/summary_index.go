package milvus

import (
	"context"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/workflow/port"
)

var _ port.SummaryIndex = (*SummaryIndex)(nil)

// TextEmbedder 单条文本向量化
type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// SummaryIndex 以 Embedding + Milvus 实现摘要语义召回
type SummaryIndex struct {
	repo     *Repository
	embedder TextEmbedder
}

// NewSummaryIndex 创建摘要召回索引
func NewSummaryIndex(repo *Repository, embedder TextEmbedder) *SummaryIndex {
	return &SummaryIndex{repo: repo, embedder: embedder}
}

// IndexSummary 嵌入并写入一条摘要；空摘要不入索引
func (s *SummaryIndex) IndexSummary(ctx context.Context, summary *entity.ChapterSummary) error {
	if summary.IsEmpty() {
		return nil
	}
	vec, err := s.embedder.EmbedOne(ctx, summary.Summary)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, summary.BookID, []*SummaryVector{{
		ChapterID:    summary.ChapterID,
		BookID:       summary.BookID,
		ChapterOrder: summary.ChapterOrder,
		Summary:      summary.Summary,
		Vector:       vec,
	}})
}

// SearchSummaries 返回与 query 最相关的前文章节 ID
func (s *SummaryIndex) SearchSummaries(ctx context.Context, bookID, query string, beforeOrder, topK int) ([]string, error) {
	if query == "" || topK <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.Search(ctx, bookID, vec, beforeOrder, topK)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ChapterID)
	}
	return ids, nil
}
