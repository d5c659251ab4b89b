package memory

import (
	"cmp"
	"context"

	"github.com/google/uuid"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
)

// ReviewIssueRepository 审查问题内存仓储
type ReviewIssueRepository struct {
	s *Store
}

// NewReviewIssueRepository 创建审查问题内存仓储
func NewReviewIssueRepository(s *Store) *ReviewIssueRepository {
	return &ReviewIssueRepository{s: s}
}

// byIssueOrder 章节顺序优先，同章内按严重度降序
func byIssueOrder(a, b *entity.ReviewIssue) int {
	if c := cmp.Compare(a.ChapterOrder, b.ChapterOrder); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Level.Severity(), a.Level.Severity()); c != 0 {
		return c
	}
	if c := timeCmp(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r *ReviewIssueRepository) put(i *entity.ReviewIssue) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	r.s.stamp(&i.CreatedAt, &i.UpdatedAt)
	r.s.issues[i.ID] = i.Clone()
}

func (r *ReviewIssueRepository) Create(ctx context.Context, issue *entity.ReviewIssue) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.put(issue)
	return nil
}

func (r *ReviewIssueRepository) GetByID(ctx context.Context, id string) (*entity.ReviewIssue, error) {
	defer r.s.rlock(ctx)()
	if i, ok := r.s.issues[id]; ok {
		return i.Clone(), nil
	}
	return nil, nil
}

func (r *ReviewIssueRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.ReviewIssue, error) {
	defer r.s.rlock(ctx)()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return collect(r.s.issues,
		func(i *entity.ReviewIssue) bool { _, ok := want[i.ID]; return ok },
		(*entity.ReviewIssue).Clone, byIssueOrder), nil
}

func (r *ReviewIssueRepository) findOpen(chapterID, dedupKey string) *entity.ReviewIssue {
	for _, i := range r.s.issues {
		if i.ChapterID == chapterID && i.DedupKey == dedupKey && i.Status == entity.IssueStatusOpen {
			return i
		}
	}
	return nil
}

func (r *ReviewIssueRepository) CreateOpen(ctx context.Context, issue *entity.ReviewIssue) (bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	if r.findOpen(issue.ChapterID, issue.DedupKey) != nil {
		return false, nil
	}
	issue.Status = entity.IssueStatusOpen
	r.put(issue)
	return true, nil
}

func (r *ReviewIssueRepository) GetOpenByKey(ctx context.Context, chapterID, dedupKey string) (*entity.ReviewIssue, error) {
	defer r.s.rlock(ctx)()
	return r.findOpen(chapterID, dedupKey).Clone(), nil
}

func (r *ReviewIssueRepository) UpdateFinding(ctx context.Context, issue *entity.ReviewIssue) (bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	cur, ok := r.s.issues[issue.ID]
	if !ok || cur.Status != entity.IssueStatusOpen {
		return false, nil
	}
	next := cur.Clone()
	next.ReplaceFinding(issue)
	r.put(next)
	issue.UpdatedAt = next.UpdatedAt
	return true, nil
}

func (r *ReviewIssueRepository) TransitionStatus(ctx context.Context, id string, from, to entity.IssueStatus) (bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	cur, ok := r.s.issues[id]
	if !ok || cur.Status != from {
		return false, nil
	}
	next := cur.Clone()
	next.Status = to
	r.put(next)
	return true, nil
}

func (r *ReviewIssueRepository) Delete(ctx context.Context, id string) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	delete(r.s.issues, id)
	return nil
}

func (r *ReviewIssueRepository) DeleteOpenByIDs(ctx context.Context, ids []string) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for _, id := range ids {
		if i, ok := r.s.issues[id]; ok && i.Status == entity.IssueStatusOpen {
			delete(r.s.issues, id)
			n++
		}
	}
	return n, nil
}

// LockChapter 事务本身持有整个存储的写锁，无需按章节再加锁
func (r *ReviewIssueRepository) LockChapter(context.Context, string) error {
	return nil
}

func (r *ReviewIssueRepository) DeleteByBook(ctx context.Context, bookID string) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, i := range r.s.issues {
		if i.BookID == bookID {
			delete(r.s.issues, id)
			n++
		}
	}
	return n, nil
}

func matchIssue(i *entity.ReviewIssue, f *repository.IssueFilter) bool {
	if f == nil {
		return true
	}
	if f.ChapterID != "" && i.ChapterID != f.ChapterID {
		return false
	}
	if f.Level != "" && i.Level != f.Level {
		return false
	}
	if f.Type != "" && i.Type != f.Type {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	return true
}

func (r *ReviewIssueRepository) ListByBook(ctx context.Context, bookID string, filter *repository.IssueFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.ReviewIssue], error) {
	defer r.s.rlock(ctx)()
	all := collect(r.s.issues,
		func(i *entity.ReviewIssue) bool { return i.BookID == bookID && matchIssue(i, filter) },
		(*entity.ReviewIssue).Clone, byIssueOrder)

	return repository.PageSlice(all, pagination), nil
}

func (r *ReviewIssueRepository) ListByChapter(ctx context.Context, chapterID string) ([]*entity.ReviewIssue, error) {
	defer r.s.rlock(ctx)()
	return collect(r.s.issues,
		func(i *entity.ReviewIssue) bool { return i.ChapterID == chapterID },
		(*entity.ReviewIssue).Clone, byIssueOrder), nil
}

func (r *ReviewIssueRepository) Stats(ctx context.Context, bookID string) (*repository.IssueStats, error) {
	defer r.s.rlock(ctx)()
	stats := &repository.IssueStats{
		ByStatus: make(map[string]int64),
		ByLevel:  make(map[string]int64),
		ByType:   make(map[string]int64),
	}
	for _, i := range r.s.issues {
		if i.BookID != bookID {
			continue
		}
		stats.Total++
		stats.ByStatus[string(i.Status)]++
		stats.ByLevel[string(i.Level)]++
		stats.ByType[string(i.Type)]++
	}
	return stats, nil
}

// ReviewReportRepository 审查报告内存仓储
type ReviewReportRepository struct {
	s *Store
}

// NewReviewReportRepository 创建审查报告内存仓储
func NewReviewReportRepository(s *Store) *ReviewReportRepository {
	return &ReviewReportRepository{s: s}
}

func (r *ReviewReportRepository) Create(ctx context.Context, report *entity.ReviewReport) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = r.s.now()
	}
	r.s.reports[report.ID] = cloneReport(report)
	return nil
}

func (r *ReviewReportRepository) GetByID(ctx context.Context, id string) (*entity.ReviewReport, error) {
	defer r.s.rlock(ctx)()
	if rep, ok := r.s.reports[id]; ok {
		return cloneReport(rep), nil
	}
	return nil, nil
}

func (r *ReviewReportRepository) ListByBook(ctx context.Context, bookID string, limit int) ([]*entity.ReviewReport, error) {
	if limit <= 0 {
		limit = 20
	}
	defer r.s.rlock(ctx)()
	out := collect(r.s.reports,
		func(rep *entity.ReviewReport) bool { return rep.BookID == bookID },
		func(rep *entity.ReviewReport) *entity.ReviewReport {
			c := cloneReport(rep)
			c.Issues = nil
			return c
		},
		func(a, b *entity.ReviewReport) int { return timeCmp(b.StartTime, a.StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// JobRepository 抽取任务内存仓储
type JobRepository struct {
	s *Store
}

// NewJobRepository 创建抽取任务内存仓储
func NewJobRepository(s *Store) *JobRepository {
	return &JobRepository{s: s}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ExtractionJob) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.s.stamp(&job.CreatedAt, &job.UpdatedAt)
	r.s.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	defer r.s.rlock(ctx)()
	if j, ok := r.s.jobs[id]; ok {
		return j.Clone(), nil
	}
	return nil, nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.ExtractionJob) (bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	cur, ok := r.s.jobs[job.ID]
	if !ok || cur.Status.IsFinished() {
		return false, nil
	}
	r.s.stamp(&job.CreatedAt, &job.UpdatedAt)
	r.s.jobs[job.ID] = job.Clone()
	return true, nil
}

func (r *JobRepository) ListByBook(ctx context.Context, bookID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ExtractionJob], error) {
	defer r.s.rlock(ctx)()
	all := collect(r.s.jobs,
		func(j *entity.ExtractionJob) bool { return j.BookID == bookID },
		(*entity.ExtractionJob).Clone,
		func(a, b *entity.ExtractionJob) int { return timeCmp(b.CreatedAt, a.CreatedAt) })
	return repository.PageSlice(all, pagination), nil
}
