package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionChapterSummaries 章节摘要集合
	CollectionChapterSummaries = "chapter_summaries"

	// DefaultVectorDimension 未配置维度时的默认值
	DefaultVectorDimension = 1024

	fieldID           = "id"
	fieldVector       = "vector"
	fieldBookID       = "book_id"
	fieldChapterOrder = "chapter_order"
	fieldSummary      = "summary"

	maxSummaryLength = 8192
)

// ChapterSummariesSchema 章节摘要 Collection Schema，主键为 chapter_id
func ChapterSummariesSchema(dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &entity.Schema{
		CollectionName: CollectionChapterSummaries,
		Description:    "Chapter summaries for semantic recall",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			{
				Name:       fieldBookID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     fieldChapterOrder,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       fieldSummary,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxSummaryLength)},
			},
		},
	}
}

// SummaryVector 一条待写入的摘要向量
type SummaryVector struct {
	ChapterID    string
	BookID       string
	ChapterOrder int
	Summary      string
	Vector       []float32
}

// PartitionName 每本书一个分区；分区名只允许字母数字下划线
func PartitionName(bookID string) string {
	return "book_" + strings.ReplaceAll(bookID, "-", "_")
}

// beforeChapterFilter 只召回目标章节之前的摘要，避免泄露后文
func beforeChapterFilter(bookID string, beforeOrder int) string {
	expr := fieldBookID + ` == "` + bookID + `"`
	if beforeOrder > 0 {
		expr += " && " + fieldChapterOrder + " < " + strconv.Itoa(beforeOrder)
	}
	return expr
}
