package dto

import (
	"time"

	"novel-memory-api/internal/domain/entity"
)

// ReviewChapterRequest 单章审核请求；levels 接受 A-D 或 error/warning/suggestion/info
type ReviewChapterRequest struct {
	Levels []string `json:"levels"`
}

// ReviewBatchRequest 批量审核请求
type ReviewBatchRequest struct {
	ChapterIDs []string `json:"chapter_ids" binding:"required,min=1,max=200"`
	Levels     []string `json:"levels"`
}

// UpdateIssueStatusRequest 更新问题状态
type UpdateIssueStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// BatchUpdateIssueStatusRequest 批量更新问题状态
type BatchUpdateIssueStatusRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1,max=500"`
	Status string   `json:"status" binding:"required"`
}

// BatchUpdateIssueStatusResponse 批量更新结果
type BatchUpdateIssueStatusResponse struct {
	Updated int `json:"updated"`
}

// ClearIssuesResponse 清空结果
type ClearIssuesResponse struct {
	Deleted int64 `json:"deleted"`
}

// RealtimeReviewRequest 保存时触发的实时审核
type RealtimeReviewRequest struct {
	BookID    string `json:"book_id" binding:"required"`
	ChapterID string `json:"chapter_id" binding:"required"`
}

// RealtimeReviewResponse 实时审核受理结果
type RealtimeReviewResponse struct {
	ChapterID string `json:"chapter_id"`
	Scheduled bool   `json:"scheduled"`
}

// ReviewReportSummary 报告列表项，不含问题明细
type ReviewReportSummary struct {
	ID            string            `json:"id"`
	BookID        string            `json:"book_id"`
	ChapterIDs    []string          `json:"chapter_ids"`
	ReviewMode    entity.ReviewMode `json:"review_mode"`
	Quick         bool              `json:"quick"`
	TotalIssues   int               `json:"total_issues"`
	IssuesByLevel map[string]int    `json:"issues_by_level"`
	RulesExecuted int               `json:"rules_executed"`
	FailedRules   []string          `json:"failed_rules,omitempty"`
	DurationMs    int64             `json:"duration_ms"`
	StartTime     string            `json:"start_time"`
}

// ToReviewReportSummaries 转换报告列表
func ToReviewReportSummaries(reports []*entity.ReviewReport) []*ReviewReportSummary {
	out := make([]*ReviewReportSummary, 0, len(reports))
	for _, r := range reports {
		out = append(out, &ReviewReportSummary{
			ID:            r.ID,
			BookID:        r.BookID,
			ChapterIDs:    r.ChapterIDs,
			ReviewMode:    r.ReviewMode,
			Quick:         r.Quick,
			TotalIssues:   r.TotalIssues,
			IssuesByLevel: r.IssuesByLevel,
			RulesExecuted: r.RulesExecuted,
			FailedRules:   r.FailedRules,
			DurationMs:    r.DurationMs,
			StartTime:     r.StartTime.Format(time.RFC3339),
		})
	}
	return out
}
