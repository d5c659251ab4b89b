// Package repository 定义记忆记录、审查问题与抽取任务的存储接口。
//
// 约定：按 ID 查询不到记录时返回 (nil, nil)，由应用层转换为对应的 NotFound 错误。
package repository

import "context"

// TxKey 事务句柄在 context 中的键
type TxKey struct{}

// Transactor 事务管理
type Transactor interface {
	// WithTransaction 抽取结果的多表写入在同一事务内提交
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// WithSnapshot 组装记忆上下文时，多次读取落在同一快照上
	WithSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Pagination 问题列表与任务列表的分页参数，Page 从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 归一化分页参数，PageSize 超出上限时截断
func NewPagination(page, pageSize int) Pagination {
	p := Pagination{Page: max(page, 1), PageSize: pageSize}
	switch {
	case p.PageSize < 1:
		p.PageSize = defaultPageSize
	case p.PageSize > maxPageSize:
		p.PageSize = maxPageSize
	}
	return p
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

func (p Pagination) Limit() int { return p.PageSize }

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPagedResult 由当前页记录与总数构造结果；items 为 nil 时输出空数组
func NewPagedResult[T any](items []T, total int64, p Pagination) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	size := int64(max(p.PageSize, 1))
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: int((total + size - 1) / size),
	}
}

// PageSlice 对已排序的完整切片做内存分页，供内存存储驱动使用
func PageSlice[T any](all []T, p Pagination) *PagedResult[T] {
	start := min(p.Offset(), len(all))
	end := min(start+p.Limit(), len(all))
	return NewPagedResult(all[start:end], int64(len(all)), p)
}
