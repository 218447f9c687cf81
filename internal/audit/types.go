// Package audit defines the core types shared by the site-audit
// pipeline: jobs, page records, on-page SEO signals, and the
// interfaces the worker pool is assembled from.
package audit

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of an audit job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobParameters captures per-job knobs requested by the client.
type JobParameters struct {
	StartURL         string `json:"start_url"`
	MaxPages         int    `json:"max_pages"`
	MaxDepth         int    `json:"max_depth"`
	BudgetSeconds    int    `json:"budget_seconds"`
	HeadlessAllowed  bool   `json:"headless_allowed"`
	HeadlessProvided bool   `json:"-"`
}

// Job is the metadata persisted for each submitted audit.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks page success/failure stats per job.
type JobCounters struct {
	PagesSucceeded int `json:"pages_succeeded"`
	PagesFailed    int `json:"pages_failed"`
}

// PageSignals are the on-page SEO facts extracted from one document.
type PageSignals struct {
	Title            string `json:"title"`
	TitleLength      int    `json:"title_length"`
	MetaDescription  string `json:"meta_description"`
	H1Count          int    `json:"h1_count"`
	Canonical        string `json:"canonical,omitempty"`
	Noindex          bool   `json:"noindex"`
	WordCount        int    `json:"word_count"`
	InternalLinks    int    `json:"internal_links"`
	ExternalLinks    int    `json:"external_links"`
	ImagesMissingAlt int    `json:"images_missing_alt"`
}

// PageRecord is persisted for each audited page.
type PageRecord struct {
	JobID        string      `json:"job_id"`
	URL          string      `json:"url"`
	Depth        int         `json:"depth"`
	StatusCode   int         `json:"status_code"`
	UsedHeadless bool        `json:"used_headless"`
	FetchedAt    time.Time   `json:"fetched_at"`
	DurationMs   int64       `json:"duration_ms"`
	ContentHash  string      `json:"content_hash"`
	BlobURI      string      `json:"blob_uri"`
	Signals      PageSignals `json:"signals"`
}

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	JobID       string
	URL         string
	Depth       int
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job   Job          `json:"job"`
	Pages []PageRecord `json:"pages"`
}
