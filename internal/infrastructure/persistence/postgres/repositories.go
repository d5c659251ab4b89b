package postgres

import "novel-memory-api/internal/domain/repository"

var (
	_ repository.Transactor             = (*TxManager)(nil)
	_ repository.SummaryRepository      = (*SummaryRepository)(nil)
	_ repository.EventRepository        = (*EventRepository)(nil)
	_ repository.ForeshadowRepository   = (*ForeshadowRepository)(nil)
	_ repository.StateChangeRepository  = (*StateChangeRepository)(nil)
	_ repository.ReviewIssueRepository  = (*ReviewIssueRepository)(nil)
	_ repository.ReviewReportRepository = (*ReviewReportRepository)(nil)
	_ repository.StoryRepository        = (*StoryRepository)(nil)
	_ repository.JobRepository          = (*JobRepository)(nil)
)
