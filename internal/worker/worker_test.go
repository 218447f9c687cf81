package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/clock/system"
	"github.com/Blackwoodproductions/webstack-services/internal/events"
	"github.com/Blackwoodproductions/webstack-services/internal/hash/sha256"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
	"github.com/Blackwoodproductions/webstack-services/internal/policy/ratelimit"
	queuemem "github.com/Blackwoodproductions/webstack-services/internal/queue/memory"
	storagemem "github.com/Blackwoodproductions/webstack-services/internal/storage/memory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	status  map[string]int
	errs    map[string]error
	fetched []string
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(_ context.Context, req audit.FetchRequest) (audit.FetchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, req.URL)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(req.URL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return audit.FetchResponse{}, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return audit.FetchResponse{}, fmt.Errorf("no page registered for %s", req.URL)
	}
	code := 200
	if c, ok := f.status[req.URL]; ok {
		code = c
	}
	return audit.FetchResponse{
		URL:        req.URL,
		StatusCode: code,
		Body:       []byte(body),
		Duration:   5 * time.Millisecond,
	}, nil
}

func (f *fakeFetcher) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetched))
	copy(out, f.fetched)
	return out
}

type fakeDetector struct {
	promote bool
}

func (d *fakeDetector) ShouldPromote(audit.FetchResponse) bool {
	return d.promote
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *fakeEmitter) Emit(evt events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *fakeEmitter) kinds() []events.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Kind, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Kind)
	}
	return out
}

type workerFixture struct {
	worker    *Worker
	jobs      *storagemem.JobStore
	blobs     *storagemem.BlobStore
	probe     *fakeFetcher
	headless  *fakeFetcher
	detector  *fakeDetector
	publisher *fakePublisher
	emitter   *fakeEmitter
}

func newWorkerFixture(t *testing.T, pages map[string]string) *workerFixture {
	t.Helper()
	metrics.Init()

	fx := &workerFixture{
		jobs:      storagemem.NewJobStore(),
		blobs:     storagemem.NewBlobStore(),
		probe:     &fakeFetcher{pages: pages},
		headless:  &fakeFetcher{pages: map[string]string{}},
		detector:  &fakeDetector{},
		publisher: &fakePublisher{},
		emitter:   &fakeEmitter{},
	}
	fx.worker = New(Deps{
		Queue:     queuemem.NewQueue(4),
		Jobs:      fx.jobs,
		Blobs:     fx.blobs,
		Publisher: fx.publisher,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		Probe:     fx.probe,
		Headless:  fx.headless,
		Detector:  fx.detector,
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Emitter:   fx.emitter,
	}, Config{Topic: "audit-events"}, zap.NewNop())
	return fx
}

func (fx *workerFixture) submitAndRun(t *testing.T, params audit.JobParameters) string {
	t.Helper()
	jobID := uuid.New().String()
	err := fx.jobs.CreateJob(context.Background(), audit.Job{
		ID:         jobID,
		Status:     audit.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	})
	require.NoError(t, err)
	fx.worker.processJob(context.Background(), audit.QueueItem{JobID: jobID, Params: params})
	return jobID
}

const startPage = `<html><head><title>Home</title></head><body>
<a href="/about">About</a>
<a href="/pricing">Pricing</a>
<a href="/about">About again</a>
<a href="https://elsewhere.example.net/partner">Partner</a>
</body></html>`

func sitePages() map[string]string {
	return map[string]string{
		"https://acme.example.com/": startPage,
		"https://acme.example.com/about": `<html><head><title>About</title></head><body>
			<a href="/team">Team</a></body></html>`,
		"https://acme.example.com/pricing": `<html><head><title>Pricing</title></head><body>Plans</body></html>`,
		"https://acme.example.com/team":    `<html><head><title>Team</title></head><body>People</body></html>`,
	}
}

func TestWorkerCrawlsSameHostFrontier(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://acme.example.com/",
		MaxPages: 10,
		MaxDepth: 2,
	})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusSucceeded, job.Status)
	require.Equal(t, 4, job.Counters.PagesSucceeded)
	require.Zero(t, job.Counters.PagesFailed)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)

	pages, err := fx.jobs.ListPages(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, pages, 4)
	require.Equal(t, "Home", pages[0].Signals.Title)
	require.NotEmpty(t, pages[0].ContentHash)
	require.NotEmpty(t, pages[0].BlobURI)
	require.Equal(t, 4, fx.blobs.Len())

	for _, fetched := range fx.probe.fetchedURLs() {
		require.NotContains(t, fetched, "elsewhere.example.net")
	}
}

func TestWorkerHonorsMaxPages(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://acme.example.com/",
		MaxPages: 2,
		MaxDepth: 3,
	})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusSucceeded, job.Status)
	require.Equal(t, 2, job.Counters.PagesSucceeded)
}

func TestWorkerHonorsMaxDepth(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://acme.example.com/",
		MaxPages: 10,
		MaxDepth: 0,
	})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.Counters.PagesSucceeded)
	require.Equal(t, []string{"https://acme.example.com/"}, fx.probe.fetchedURLs())
}

func TestWorkerFailsWhenNothingFetchable(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, map[string]string{})

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://acme.example.com/",
		MaxPages: 5,
		MaxDepth: 1,
	})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusFailed, job.Status)
	require.Equal(t, 1, job.Counters.PagesFailed)
	require.NotEmpty(t, job.ErrorText)
	require.Contains(t, fx.emitter.kinds(), events.KindAuditError)
}

func TestWorkerPromotesToHeadless(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, map[string]string{
		"https://spa.example.com/": `<html><head><title></title></head><body><div id="root"></div></body></html>`,
	})
	fx.detector.promote = true
	fx.headless.pages["https://spa.example.com/"] = `<html><head><title>Rendered</title></head><body>Hello from JS</body></html>`

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://spa.example.com/",
		MaxPages: 1,
		MaxDepth: 0,
	})

	pages, err := fx.jobs.ListPages(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.True(t, pages[0].UsedHeadless)
	require.Equal(t, "Rendered", pages[0].Signals.Title)
	require.Equal(t, []string{"https://spa.example.com/"}, fx.headless.fetchedURLs())
}

func TestWorkerSkipsJobCanceledWhileQueued(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := uuid.New().String()
	params := audit.JobParameters{StartURL: "https://acme.example.com/", MaxPages: 5, MaxDepth: 1}
	require.NoError(t, fx.jobs.CreateJob(context.Background(), audit.Job{
		ID:         jobID,
		Status:     audit.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}))
	require.NoError(t, fx.jobs.UpdateJobStatus(
		context.Background(), jobID, audit.JobStatusCanceled, "canceled by operator", audit.JobCounters{},
	))

	fx.worker.processJob(context.Background(), audit.QueueItem{JobID: jobID, Params: params})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusCanceled, job.Status)
	require.Empty(t, fx.probe.fetchedURLs())
	require.Equal(t, []events.Kind{events.KindAuditCanceled}, fx.emitter.kinds())
}

func TestWorkerStopsWhenCanceledMidCrawl(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := uuid.New().String()
	params := audit.JobParameters{StartURL: "https://acme.example.com/", MaxPages: 10, MaxDepth: 2}
	require.NoError(t, fx.jobs.CreateJob(context.Background(), audit.Job{
		ID:         jobID,
		Status:     audit.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}))

	fx.probe.onFetch = func(string) {
		_ = fx.jobs.UpdateJobStatus(
			context.Background(), jobID, audit.JobStatusCanceled, "", audit.JobCounters{},
		)
	}

	fx.worker.processJob(context.Background(), audit.QueueItem{JobID: jobID, Params: params})

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusCanceled, job.Status)
	require.Equal(t, 1, job.Counters.PagesSucceeded)
	require.Contains(t, fx.emitter.kinds(), events.KindAuditCanceled)
}

func TestWorkerEmitsAndPublishesLifecycle(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := fx.submitAndRun(t, audit.JobParameters{
		StartURL: "https://acme.example.com/",
		MaxPages: 10,
		MaxDepth: 2,
	})

	kinds := fx.emitter.kinds()
	require.Equal(t, events.KindAuditStart, kinds[0])
	require.Equal(t, events.KindAuditDone, kinds[len(kinds)-1])

	var pageFetches int
	for _, k := range kinds {
		if k == events.KindPageFetch {
			pageFetches++
		}
	}
	require.Equal(t, 4, pageFetches)

	require.Equal(t, []string{"audit-events"}, fx.publisher.topics)
	payload, ok := fx.publisher.payloads[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, jobID, payload["job_id"])
	require.Equal(t, string(audit.JobStatusSucceeded), payload["status"])
	require.Equal(t, 4, payload["pages_succeeded"])
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	t.Parallel()
	fx := newWorkerFixture(t, sitePages())

	jobID := uuid.New().String()
	params := audit.JobParameters{StartURL: "https://acme.example.com/", MaxPages: 2, MaxDepth: 1}
	require.NoError(t, fx.jobs.CreateJob(context.Background(), audit.Job{
		ID:         jobID,
		Status:     audit.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}))

	queue := queuemem.NewQueue(1)
	fx.worker.queue = queue
	require.NoError(t, queue.Enqueue(context.Background(), audit.QueueItem{JobID: jobID, Params: params}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fx.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		job, err := fx.jobs.GetJob(context.Background(), jobID)
		return err == nil && job.Status == audit.JobStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
