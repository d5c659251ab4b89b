package entity

import (
	"time"

	"github.com/lib/pq"
)

// ReviewMode 审查模式
type ReviewMode string

const (
	ReviewModeSingle ReviewMode = "single"
	ReviewModeBatch  ReviewMode = "batch"
	ReviewModeFull   ReviewMode = "full"
)

// ReviewReport 审查报告，一次写入后不再修改
type ReviewReport struct {
	ID            string         `json:"id" gorm:"type:uuid;primaryKey"`
	BookID        string         `json:"book_id" gorm:"type:uuid;not null;index"`
	ChapterIDs    pq.StringArray `json:"chapter_ids" gorm:"type:text[]"`
	TotalIssues   int            `json:"total_issues"`
	IssuesByLevel map[string]int `json:"issues_by_level" gorm:"type:jsonb;serializer:json"`
	IssuesByType  map[string]int `json:"issues_by_type" gorm:"type:jsonb;serializer:json"`
	Issues        []*ReviewIssue `json:"issues" gorm:"type:jsonb;serializer:json"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	DurationMs    int64          `json:"duration_ms"`
	ReviewMode    ReviewMode     `json:"review_mode" gorm:"type:varchar(20)"`
	Levels        pq.StringArray `json:"levels" gorm:"type:text[]"`
	Quick         bool           `json:"quick"`
	RulesExecuted int            `json:"rules_executed"`
	FailedRules   pq.StringArray `json:"failed_rules,omitempty" gorm:"type:text[]"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ReviewReport) TableName() string {
	return "review_reports"
}

// NewReviewReport 创建报告骨架
func NewReviewReport(bookID string, mode ReviewMode, start time.Time) *ReviewReport {
	return &ReviewReport{
		BookID:        bookID,
		ReviewMode:    mode,
		StartTime:     start,
		IssuesByLevel: make(map[string]int),
		IssuesByType:  make(map[string]int),
	}
}

// Finalize 汇总问题并记录结束时间；issuesByLevel 之和恒等于 totalIssues
func (r *ReviewReport) Finalize(issues []*ReviewIssue, end time.Time) {
	r.Issues = issues
	r.TotalIssues = len(issues)
	r.IssuesByLevel = make(map[string]int, len(AllReviewLevels))
	for _, l := range AllReviewLevels {
		r.IssuesByLevel[string(l)] = 0
	}
	r.IssuesByType = make(map[string]int)
	for _, issue := range issues {
		r.IssuesByLevel[string(issue.Level)]++
		r.IssuesByType[string(issue.Type)]++
	}
	r.EndTime = end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
}
