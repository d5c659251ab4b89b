package entity

import (
	"encoding/json"
	"time"
)

// JobType 任务类型
type JobType string

const (
	JobTypeChapterExtract JobType = "chapter_extract"
	JobTypeBookExtract    JobType = "book_extract"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsFinished 是否已结束
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ExtractionJob 异步记忆抽取任务
type ExtractionJob struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	BookID       string          `json:"book_id" gorm:"type:uuid;not null;index"`
	ChapterID    string          `json:"chapter_id,omitempty" gorm:"type:uuid;index"`
	JobType      JobType         `json:"job_type" gorm:"type:varchar(32);not null"`
	Status       JobStatus       `json:"status" gorm:"type:varchar(20);not null;index"`
	Total        int             `json:"total"`
	Processed    int             `json:"processed"`
	Failed       int             `json:"failed"`
	Progress     int             `json:"progress"` // 任务进度 (0-100)
	OutputResult json.RawMessage `json:"output_result,omitempty" gorm:"type:jsonb"`
	ErrorMessage string          `json:"error_message,omitempty" gorm:"type:text"`
	RetryCount   int             `json:"retry_count"`
	DurationMs   int             `json:"duration_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (ExtractionJob) TableName() string {
	return "extraction_jobs"
}

// NewExtractionJob 创建新任务
func NewExtractionJob(bookID, chapterID string, jobType JobType) *ExtractionJob {
	return &ExtractionJob{
		BookID:    bookID,
		ChapterID: chapterID,
		JobType:   jobType,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Start 开始执行任务
func (j *ExtractionJob) Start(total int) {
	now := time.Now()
	j.Status = JobStatusRunning
	j.Total = total
	j.StartedAt = &now
}

// Advance 记录一个章节处理完成
func (j *ExtractionJob) Advance(ok bool) {
	j.Processed++
	if !ok {
		j.Failed++
	}
	if j.Total > 0 {
		j.UpdateProgress(j.Processed * 100 / j.Total)
	}
}

// Complete 完成任务
func (j *ExtractionJob) Complete(result json.RawMessage) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.OutputResult = result
	j.Progress = 100
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *ExtractionJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Cancel 取消任务；已写入的章节记忆保留
func (j *ExtractionJob) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.ErrorMessage = reason
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Retry 重试任务
func (j *ExtractionJob) Retry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
	j.Processed = 0
	j.Failed = 0
	j.Progress = 0
}

// CanRetry 检查是否可以重试
func (j *ExtractionJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == JobStatusFailed
}

// UpdateProgress 更新任务进度
func (j *ExtractionJob) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}

// Clone 拷贝
func (j *ExtractionJob) Clone() *ExtractionJob {
	if j == nil {
		return nil
	}
	cp := *j
	cp.OutputResult = append(json.RawMessage(nil), j.OutputResult...)
	return &cp
}
