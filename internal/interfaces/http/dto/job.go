package dto

import (
	"encoding/json"
	"time"

	"novel-memory-api/internal/domain/entity"
)

// JobResponse 抽取任务响应
type JobResponse struct {
	ID           string          `json:"id"`
	BookID       string          `json:"book_id"`
	ChapterID    string          `json:"chapter_id,omitempty"`
	JobType      string          `json:"job_type"`
	Status       string          `json:"status"`
	Total        int             `json:"total"`
	Processed    int             `json:"processed"`
	Failed       int             `json:"failed"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMsg     string          `json:"error_msg,omitempty"`
	RetryCount   int             `json:"retry_count"`
	DurationMs   int             `json:"duration_ms,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	PollLocation string          `json:"poll_location"`
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// ToJobResponse 将领域实体转换为响应 DTO
func ToJobResponse(j *entity.ExtractionJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:           j.ID,
		BookID:       j.BookID,
		ChapterID:    j.ChapterID,
		JobType:      string(j.JobType),
		Status:       string(j.Status),
		Total:        j.Total,
		Processed:    j.Processed,
		Failed:       j.Failed,
		Progress:     j.Progress,
		Result:       j.OutputResult,
		ErrorMsg:     j.ErrorMessage,
		RetryCount:   j.RetryCount,
		DurationMs:   j.DurationMs,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		PollLocation: "/v1/extraction/jobs/" + j.ID,
	}
}

// ToJobListResponse 转换任务列表
func ToJobListResponse(jobs []*entity.ExtractionJob) *JobListResponse {
	out := &JobListResponse{Jobs: make([]*JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, ToJobResponse(j))
	}
	return out
}
