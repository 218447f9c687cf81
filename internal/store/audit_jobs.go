package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
)

// AuditJobRepo persists audit jobs and pages. It satisfies
// audit.JobStore so the worker pool can run against either this repo or
// the in-memory store.
type AuditJobRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditJobRepo constructs an AuditJobRepo.
func NewAuditJobRepo(db *gorm.DB, logger *zap.Logger) *AuditJobRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditJobRepo{db: db, logger: logger.Named("store.audits")}
}

// CreateJob inserts a queued job.
func (r *AuditJobRepo) CreateJob(ctx context.Context, job audit.Job) error {
	row := AuditJob{
		ID:              job.ID,
		StartURL:        job.Parameters.StartURL,
		Status:          string(job.Status),
		ErrorText:       job.ErrorText,
		MaxPages:        job.Parameters.MaxPages,
		MaxDepth:        job.Parameters.MaxDepth,
		BudgetSeconds:   job.Parameters.BudgetSeconds,
		HeadlessAllowed: job.Parameters.HeadlessAllowed,
		PagesSucceeded:  job.Counters.PagesSucceeded,
		PagesFailed:     job.Counters.PagesFailed,
		SubmittedAt:     job.Submitted,
		StartedAt:       job.Started,
		FinishedAt:      job.Finished,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create audit job: %w", err)
	}
	return nil
}

// UpdateJobStatus updates status, error text, and counters, stamping
// started/finished timestamps on the relevant transitions.
func (r *AuditJobRepo) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status audit.JobStatus,
	errText string,
	counters audit.JobCounters,
) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":          string(status),
		"error_text":      errText,
		"pages_succeeded": counters.PagesSucceeded,
		"pages_failed":    counters.PagesFailed,
	}
	switch status {
	case audit.JobStatusRunning:
		updates["started_at"] = ptrTime(now)
	case audit.JobStatusSucceeded, audit.JobStatusFailed, audit.JobStatusCanceled:
		updates["finished_at"] = ptrTime(now)
	}
	result := r.db.WithContext(ctx).Model(&AuditJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update audit job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPage appends one audited page row.
func (r *AuditJobRepo) RecordPage(ctx context.Context, page audit.PageRecord) error {
	row := AuditPage{
		JobID:            page.JobID,
		URL:              page.URL,
		Depth:            page.Depth,
		StatusCode:       page.StatusCode,
		UsedHeadless:     page.UsedHeadless,
		FetchedAt:        page.FetchedAt,
		DurationMs:       page.DurationMs,
		ContentHash:      page.ContentHash,
		BlobURI:          page.BlobURI,
		Title:            page.Signals.Title,
		TitleLength:      page.Signals.TitleLength,
		MetaDescription:  page.Signals.MetaDescription,
		H1Count:          page.Signals.H1Count,
		Canonical:        page.Signals.Canonical,
		Noindex:          page.Signals.Noindex,
		WordCount:        page.Signals.WordCount,
		InternalLinks:    page.Signals.InternalLinks,
		ExternalLinks:    page.Signals.ExternalLinks,
		ImagesMissingAlt: page.Signals.ImagesMissingAlt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record audit page: %w", err)
	}
	return nil
}

// GetJob loads one job.
func (r *AuditJobRepo) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	var row AuditJob
	if err := r.db.WithContext(ctx).First(&row, "id = ?", jobID).Error; err != nil {
		return audit.Job{}, fmt.Errorf("get audit job: %w", translate(err))
	}
	return toAuditJob(row), nil
}

// ListPages returns a job's page rows in fetch order.
func (r *AuditJobRepo) ListPages(ctx context.Context, jobID string) ([]audit.PageRecord, error) {
	var rows []AuditPage
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("fetched_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit pages: %w", err)
	}
	out := make([]audit.PageRecord, len(rows))
	for i, row := range rows {
		out[i] = audit.PageRecord{
			JobID:        row.JobID,
			URL:          row.URL,
			Depth:        row.Depth,
			StatusCode:   row.StatusCode,
			UsedHeadless: row.UsedHeadless,
			FetchedAt:    row.FetchedAt,
			DurationMs:   row.DurationMs,
			ContentHash:  row.ContentHash,
			BlobURI:      row.BlobURI,
			Signals: audit.PageSignals{
				Title:            row.Title,
				TitleLength:      row.TitleLength,
				MetaDescription:  row.MetaDescription,
				H1Count:          row.H1Count,
				Canonical:        row.Canonical,
				Noindex:          row.Noindex,
				WordCount:        row.WordCount,
				InternalLinks:    row.InternalLinks,
				ExternalLinks:    row.ExternalLinks,
				ImagesMissingAlt: row.ImagesMissingAlt,
			},
		}
	}
	return out, nil
}

func toAuditJob(row AuditJob) audit.Job {
	return audit.Job{
		ID:        row.ID,
		Status:    audit.JobStatus(row.Status),
		Submitted: row.SubmittedAt,
		Started:   row.StartedAt,
		Finished:  row.FinishedAt,
		ErrorText: row.ErrorText,
		Parameters: audit.JobParameters{
			StartURL:        row.StartURL,
			MaxPages:        row.MaxPages,
			MaxDepth:        row.MaxDepth,
			BudgetSeconds:   row.BudgetSeconds,
			HeadlessAllowed: row.HeadlessAllowed,
		},
		Counters: audit.JobCounters{
			PagesSucceeded: row.PagesSucceeded,
			PagesFailed:    row.PagesFailed,
		},
	}
}

func ptrTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
