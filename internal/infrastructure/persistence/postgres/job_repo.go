package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
)

// JobRepository 抽取任务（单章/整书）的持久化，进度与结果随任务推进多次写回
type JobRepository struct {
	client *Client
}

func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ExtractionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.JobType)),
	))
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("create extraction job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID",
		trace.WithAttributes(attribute.String("job.id", id)))
	defer span.End()

	// 非 UUID 的 ID 在 uuid 列上会报类型错误，直接视为不存在
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	job := new(entity.ExtractionJob)
	err := getDB(ctx, r.client.db).Where("id = ?", id).Take(job).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("get extraction job %s: %w", id, err)
	}
	return job, nil
}

// finishedJobStatuses 终态任务不再接受写回
var finishedJobStatuses = []entity.JobStatus{
	entity.JobStatusCompleted,
	entity.JobStatusFailed,
	entity.JobStatusCancelled,
}

// Update 整行写回任务状态、进度与结果，仅对未结束的任务生效
func (r *JobRepository) Update(ctx context.Context, job *entity.ExtractionJob) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Update", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.status", string(job.Status)),
	))
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.ExtractionJob{ID: job.ID}).
		Where("status NOT IN ?", finishedJobStatuses).
		Select("*").
		Omit("id", "created_at").
		Updates(job)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("update extraction job %s: %w", job.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListByBook 按创建时间倒序分页
func (r *JobRepository) ListByBook(ctx context.Context, bookID string, p repository.Pagination) (*repository.PagedResult[*entity.ExtractionJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.ListByBook",
		trace.WithAttributes(attribute.String("book.id", bookID)))
	defer span.End()

	base := getDB(ctx, r.client.db).Model(&entity.ExtractionJob{}).Where("book_id = ?", bookID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("count extraction jobs: %w", err)
	}

	var jobs []*entity.ExtractionJob
	if total > 0 {
		if err := base.Scopes(paginate(p)).Order("created_at DESC").Find(&jobs).Error; err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("list extraction jobs: %w", err)
		}
	}
	return repository.NewPagedResult(jobs, total, p), nil
}

// paginate 分页 scope
func paginate(p repository.Pagination) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Limit())
	}
}
