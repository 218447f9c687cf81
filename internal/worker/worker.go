// Package worker implements the site-audit execution loop.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/events"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ContentType     string
	BlobPrefix      string
	Topic           string
	MaxPagesDefault int
	MaxDepthDefault int
}

// Deps collects the collaborators a Worker needs.
type Deps struct {
	Queue     audit.Queue
	Jobs      audit.JobStore
	Blobs     audit.BlobStore
	Publisher audit.Publisher
	Hasher    audit.Hasher
	Clock     audit.Clock
	Probe     audit.Fetcher
	Headless  audit.Fetcher
	Detector  audit.Detector
	Limiter   audit.Limiter
	Emitter   events.Emitter
}

// Worker consumes queue items and executes the audit pipeline.
type Worker struct {
	queue     audit.Queue
	jobs      audit.JobStore
	blobs     audit.BlobStore
	publisher audit.Publisher
	hasher    audit.Hasher
	clock     audit.Clock
	probe     audit.Fetcher
	headless  audit.Fetcher
	detector  audit.Detector
	limiter   audit.Limiter
	emitter   events.Emitter
	cfg       Config
	logger    *zap.Logger
}

// frontierEntry is one pending URL in the breadth-first crawl.
type frontierEntry struct {
	url   string
	depth int
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MaxPagesDefault <= 0 {
		cfg.MaxPagesDefault = 25
	}
	if cfg.MaxDepthDefault <= 0 {
		cfg.MaxDepthDefault = 2
	}
	return &Worker{
		queue:     deps.Queue,
		jobs:      deps.Jobs,
		blobs:     deps.Blobs,
		publisher: deps.Publisher,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		probe:     deps.Probe,
		headless:  deps.Headless,
		detector:  deps.Detector,
		limiter:   deps.Limiter,
		emitter:   deps.Emitter,
		cfg:       cfg,
		logger:    logger.Named("audit.worker"),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued audit job", zap.String("job_id", item.JobID))
		metrics.IncActiveWorkers()
		w.processJob(ctx, item)
		metrics.DecActiveWorkers()
	}
}

func (w *Worker) processJob(ctx context.Context, item audit.QueueItem) {
	if w.probe == nil {
		w.logger.Error("no probe fetcher configured", zap.String("job_id", item.JobID))
		w.updateStatus(ctx, item.JobID, audit.JobStatusFailed, "no probe fetcher configured", audit.JobCounters{})
		return
	}

	params := w.applyDefaults(item.Params)
	started := w.clock.Now()

	// A job canceled while still queued keeps its terminal status.
	if w.jobCanceled(ctx, item.JobID) {
		w.logger.Info("skipping canceled job", zap.String("job_id", item.JobID))
		metrics.ObserveAuditJob(string(audit.JobStatusCanceled))
		w.emitLifecycle(item.JobID, events.KindAuditCanceled, params.StartURL, 0, 0, "canceled before start")
		return
	}

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, audit.JobStatusRunning, "", audit.JobCounters{}); err != nil {
		w.logger.Error("job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.emitLifecycle(item.JobID, events.KindAuditStart, params.StartURL, 0, 0, "")

	crawlCtx := ctx
	cancel := func() {}
	if params.BudgetSeconds > 0 {
		crawlCtx, cancel = context.WithTimeout(ctx, time.Duration(params.BudgetSeconds)*time.Second)
	}
	counters, errText, canceled := w.crawl(crawlCtx, item.JobID, params)
	cancel()

	status, errText := w.deriveFinalStatus(ctx, canceled, counters, errText)
	w.updateStatus(ctx, item.JobID, status, errText, counters)
	metrics.ObserveAuditJob(string(status))

	runtime := w.clock.Now().Sub(started)
	switch status {
	case audit.JobStatusSucceeded:
		w.emitLifecycle(item.JobID, events.KindAuditDone, params.StartURL, int64(counters.PagesSucceeded), runtime, "")
	case audit.JobStatusCanceled:
		w.emitLifecycle(item.JobID, events.KindAuditCanceled, params.StartURL, int64(counters.PagesSucceeded), runtime, errText)
	default:
		w.emitLifecycle(item.JobID, events.KindAuditError, params.StartURL, int64(counters.PagesSucceeded), runtime, errText)
	}

	w.publishCompletion(ctx, item.JobID, status, params, counters)

	w.logger.Info("audit job finished",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
		zap.Int("pages_succeeded", counters.PagesSucceeded),
		zap.Int("pages_failed", counters.PagesFailed),
		zap.Duration("runtime", runtime),
	)
}

// crawl walks the start URL's same-host frontier breadth-first until the
// page budget, depth limit, or context ends. It reports whether the job
// was canceled through the store while running.
func (w *Worker) crawl(ctx context.Context, jobID string, params audit.JobParameters) (audit.JobCounters, string, bool) {
	var counters audit.JobCounters
	var errText string

	seen := map[string]struct{}{params.StartURL: {}}
	frontier := []frontierEntry{{url: params.StartURL, depth: 0}}

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		if counters.PagesSucceeded+counters.PagesFailed >= params.MaxPages {
			break
		}
		if w.jobCanceled(ctx, jobID) {
			return counters, errText, true
		}

		entry := frontier[0]
		frontier = frontier[1:]

		links, err := w.auditPage(ctx, jobID, entry)
		if err != nil {
			counters.PagesFailed++
			errText = err.Error()
			w.logger.Warn("page audit failed",
				zap.String("job_id", jobID),
				zap.String("url", entry.url),
				zap.Error(err),
			)
			continue
		}
		counters.PagesSucceeded++

		if entry.depth >= params.MaxDepth {
			continue
		}
		for _, link := range links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			frontier = append(frontier, frontierEntry{url: link, depth: entry.depth + 1})
		}
	}
	return counters, errText, false
}

// auditPage fetches one page, extracts its signals, snapshots the raw
// body, and records the result. It returns the same-host links found.
func (w *Worker) auditPage(ctx context.Context, jobID string, entry frontierEntry) ([]string, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, entry.url); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := w.probe.Fetch(ctx, audit.FetchRequest{
		JobID: jobID,
		URL:   entry.url,
		Depth: entry.depth,
	})
	if err != nil {
		return nil, fmt.Errorf("probe fetch: %w", err)
	}

	if promoted, ok := w.maybePromote(ctx, jobID, entry, resp); ok {
		resp = promoted
		w.logger.Info("headless promotion applied",
			zap.String("job_id", jobID),
			zap.String("url", entry.url),
		)
	}

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = entry.url
	}

	signals, links, err := audit.ExtractSignals(pageURL, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extract signals: %w", err)
	}

	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hash body: %w", err)
	}

	uri, err := w.blobs.PutObject(ctx, w.buildBlobPath(jobID, hash), w.cfg.ContentType, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("put snapshot: %w", err)
	}

	page := audit.PageRecord{
		JobID:        jobID,
		URL:          pageURL,
		Depth:        entry.depth,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		FetchedAt:    w.clock.Now(),
		DurationMs:   resp.Duration.Milliseconds(),
		ContentHash:  hash,
		BlobURI:      uri,
		Signals:      signals,
	}
	if err := w.jobs.RecordPage(ctx, page); err != nil {
		return nil, fmt.Errorf("record page: %w", err)
	}

	site := metrics.SanitizeSite(pageURL)
	metrics.ObserveAuditPage(site, string(events.ClassifyStatus(resp.StatusCode)), len(resp.Body))
	w.emitPageFetch(jobID, site, pageURL, resp)

	return links, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	jobID string,
	entry frontierEntry,
	resp audit.FetchResponse,
) (audit.FetchResponse, bool) {
	if w.detector == nil || w.headless == nil {
		return resp, false
	}
	if !w.detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessResp, err := w.headless.Fetch(ctx, audit.FetchRequest{
		JobID:       jobID,
		URL:         entry.url,
		Depth:       entry.depth,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("job_id", jobID),
			zap.String("url", entry.url),
			zap.Error(err),
		)
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

// jobCanceled reports whether the cancel endpoint flagged the job while
// it was running. Store errors are logged and treated as not-canceled so
// a flaky read cannot kill a crawl.
func (w *Worker) jobCanceled(ctx context.Context, jobID string) bool {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Warn("job status read failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return job.Status == audit.JobStatusCanceled
}

func (w *Worker) applyDefaults(params audit.JobParameters) audit.JobParameters {
	if params.MaxPages <= 0 {
		params.MaxPages = w.cfg.MaxPagesDefault
	}
	if params.MaxDepth < 0 {
		params.MaxDepth = w.cfg.MaxDepthDefault
	}
	return params
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}

func (w *Worker) updateStatus(
	ctx context.Context,
	jobID string,
	status audit.JobStatus,
	errText string,
	counters audit.JobCounters,
) {
	if err := w.jobs.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) emitLifecycle(jobID string, kind events.Kind, startURL string, pages int64, dur time.Duration, note string) {
	if w.emitter == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.emitter.Emit(events.Event{
		JobID: events.UUIDToBytes(id),
		TS:    w.clock.Now().UTC(),
		Kind:  kind,
		Site:  metrics.SanitizeSite(startURL),
		Pages: pages,
		Dur:   dur,
		Note:  note,
	})
}

func (w *Worker) emitPageFetch(jobID, site, pageURL string, resp audit.FetchResponse) {
	if w.emitter == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.emitter.Emit(events.Event{
		JobID:       events.UUIDToBytes(id),
		TS:          w.clock.Now().UTC(),
		Kind:        events.KindPageFetch,
		Site:        site,
		URL:         pageURL,
		Bytes:       int64(len(resp.Body)),
		Pages:       1,
		StatusClass: events.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Duration,
	})
}

func (w *Worker) publishCompletion(
	ctx context.Context,
	jobID string,
	status audit.JobStatus,
	params audit.JobParameters,
	counters audit.JobCounters,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":          jobID,
		"start_url":       params.StartURL,
		"status":          string(status),
		"pages_succeeded": counters.PagesSucceeded,
		"pages_failed":    counters.PagesFailed,
		"timestamp":       w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("completion publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	canceled bool,
	counters audit.JobCounters,
	errText string,
) (audit.JobStatus, string) {
	if counters.PagesSucceeded == 0 && errText == "" {
		errText = "no pages were audited"
	}

	switch {
	case canceled || ctx.Err() != nil:
		return audit.JobStatusCanceled, errText
	case counters.PagesSucceeded == 0:
		return audit.JobStatusFailed, errText
	default:
		return audit.JobStatusSucceeded, errText
	}
}
