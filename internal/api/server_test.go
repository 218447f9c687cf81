package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/auth"
	"github.com/Blackwoodproductions/webstack-services/internal/bron"
	"github.com/Blackwoodproductions/webstack-services/internal/clock/system"
	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/dispatcher"
	"github.com/Blackwoodproductions/webstack-services/internal/health"
	idgen "github.com/Blackwoodproductions/webstack-services/internal/id/uuid"
	"github.com/Blackwoodproductions/webstack-services/internal/kwcache"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
	queuemem "github.com/Blackwoodproductions/webstack-services/internal/queue/memory"
	storagemem "github.com/Blackwoodproductions/webstack-services/internal/storage/memory"
	"github.com/Blackwoodproductions/webstack-services/internal/store"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/ahrefs"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/google"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/stripe"
	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

type fakeStripe struct {
	lastParams stripe.CheckoutParams
	session    stripe.CheckoutSession
	err        error
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, p stripe.CheckoutParams) (stripe.CheckoutSession, error) {
	f.lastParams = p
	if f.err != nil {
		return stripe.CheckoutSession{}, f.err
	}
	return f.session, nil
}

type fakeAhrefs struct {
	calls   int
	metrics ahrefs.DomainMetrics
	err     error
}

func (f *fakeAhrefs) DomainMetrics(_ context.Context, domain string) (ahrefs.DomainMetrics, error) {
	f.calls++
	if f.err != nil {
		return ahrefs.DomainMetrics{}, f.err
	}
	m := f.metrics
	m.Domain = domain
	return m, nil
}

type fakeGoogle struct {
	lastAction string
	raw        json.RawMessage
	status     int
	err        error
}

func (f *fakeGoogle) Business(_ context.Context, req google.BusinessRequest) (json.RawMessage, int, error) {
	f.lastAction = req.Action
	return f.raw, f.status, f.err
}

func (f *fakeGoogle) SearchConsole(_ context.Context, req google.SearchConsoleRequest) (json.RawMessage, int, error) {
	f.lastAction = req.Action
	return f.raw, f.status, f.err
}

type fakeBron struct {
	token             string
	loginErr          error
	lastUpstreamToken string
	lastAction        string
	raw               json.RawMessage
	status            int
	doErr             error
}

func (f *fakeBron) Login(_ context.Context, _, _ string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.token, nil
}

func (f *fakeBron) Do(_ context.Context, upstreamToken, action string, _ map[string]any) (json.RawMessage, int, error) {
	f.lastUpstreamToken = upstreamToken
	f.lastAction = action
	return f.raw, f.status, f.doErr
}

type fakeMonitor struct {
	statuses []health.CheckStatus
	runs     int
}

func (f *fakeMonitor) Statuses() []health.CheckStatus { return f.statuses }

func (f *fakeMonitor) RunOnce(_ context.Context) []health.CheckStatus {
	f.runs++
	return f.statuses
}

type fakePageviews struct {
	events []visitors.PageviewEvent
}

func (f *fakePageviews) RecordPageview(_ context.Context, event visitors.PageviewEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fixture struct {
	t         *testing.T
	server    *Server
	stripe    *fakeStripe
	ahrefs    *fakeAhrefs
	google    *fakeGoogle
	bron      *fakeBron
	bridge    *bron.Bridge
	monitor   *fakeMonitor
	pageviews *fakePageviews
	jobs      audit.JobStore
	queue     *queuemem.Queue
	blobs     *storagemem.BlobStore
	alerts    *store.AlertRepo
	tokens    *auth.TokenProvider
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	metrics.Init()

	db, err := store.Open(config.DBConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "api.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close(db))
	})

	cfg := config.Config{}
	cfg.Checkout.SuccessURL = "https://webstack.ceo/thanks"
	cfg.Checkout.CancelURL = "https://webstack.ceo/pricing"
	cfg.Audit.MaxPagesDefault = 25
	cfg.Audit.MaxDepthDefault = 2
	cfg.Headless.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	clk := system.New()
	fx := &fixture{
		t:         t,
		stripe:    &fakeStripe{session: stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}},
		ahrefs:    &fakeAhrefs{},
		google:    &fakeGoogle{raw: json.RawMessage(`{"ok":true}`), status: http.StatusOK},
		bron:      &fakeBron{token: "bron-upstream-token", raw: json.RawMessage(`{"campaigns":[]}`), status: http.StatusOK},
		bridge:    bron.NewBridge(30*time.Minute, clk, nil, zap.NewNop()),
		monitor:   &fakeMonitor{},
		pageviews: &fakePageviews{},
		jobs:      storagemem.NewJobStore(),
		queue:     queuemem.NewQueue(8),
		blobs:     storagemem.NewBlobStore(),
		alerts:    store.NewAlertRepo(db, nil),
		tokens:    auth.NewTokenProvider("test-secret", "webstack", time.Hour),
	}

	deps := Deps{
		Stripe:     fx.stripe,
		Ahrefs:     fx.ahrefs,
		Google:     fx.google,
		Bron:       fx.bron,
		Bridge:     fx.bridge,
		KwCache:    kwcache.New(kwcache.Config{TTL: time.Hour, MaxDomains: 100}, clk, nil),
		Monitor:    fx.monitor,
		Alerts:     fx.alerts,
		Leads:      store.NewLeadRepo(db, nil),
		Apps:       store.NewApplicationRepo(db, nil),
		Directory:  store.NewDirectoryRepo(db, nil),
		Chat:       store.NewChatRepo(db, nil),
		Visitors:   store.NewVisitorRepo(db, nil),
		Changelog:  store.NewChangelogRepo(db, nil),
		Pageviews:  fx.pageviews,
		Jobs:       fx.jobs,
		Dispatcher: dispatcher.New(fx.queue, nil),
		Blobs:      fx.blobs,
		IDs:        idgen.NewUUIDGenerator(),
		Clock:      clk,
		Tokens:     fx.tokens,
	}
	fx.server = NewServer(cfg, deps, zap.NewNop())
	return fx
}

func (fx *fixture) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	fx.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(fx.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestHealthzAndReadyz(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateCheckoutSessionAppliesDefaults(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/checkout/sessions", map[string]any{
		"price_id": "price_pro_monthly",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session stripe.CheckoutSession
	decodeBody(t, rec, &session)
	assert.Equal(t, "cs_test_1", session.ID)

	assert.Equal(t, int64(1), fx.stripe.lastParams.Quantity)
	assert.Equal(t, "subscription", fx.stripe.lastParams.Mode)
	assert.Equal(t, "https://webstack.ceo/thanks", fx.stripe.lastParams.SuccessURL)
	assert.Equal(t, "https://webstack.ceo/pricing", fx.stripe.lastParams.CancelURL)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/checkout/sessions", map[string]any{
		"mode": "subscription",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCheckoutSessionPassesThroughStripeStatus(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)
	fx.stripe.err = &stripe.APIError{StatusCode: http.StatusPaymentRequired, Message: "Your card was declined."}

	rec := fx.do(http.MethodPost, "/v1/checkout/sessions", map[string]any{
		"price_id": "price_pro_monthly",
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var payload map[string]string
	decodeBody(t, rec, &payload)
	assert.Equal(t, "Your card was declined.", payload["error"])
}

func TestSEOMetricsCachesSecondLookup(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)
	rating := 74.0
	backlinks := int64(120000)
	fx.ahrefs.metrics = ahrefs.DomainMetrics{DomainRating: &rating, Backlinks: &backlinks}

	rec := fx.do(http.MethodPost, "/v1/seo/metrics", map[string]string{"domain": "https://Example.com/pricing"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first seoMetricsResponse
	decodeBody(t, rec, &first)
	assert.False(t, first.Cached)

	rec = fx.do(http.MethodPost, "/v1/seo/metrics", map[string]string{"domain": "example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second seoMetricsResponse
	decodeBody(t, rec, &second)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, fx.ahrefs.calls, "second lookup served from cache")
}

func TestSEOMetricsUpstreamFailure(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)
	fx.ahrefs.err = context.DeadlineExceeded

	rec := fx.do(http.MethodPost, "/v1/seo/metrics", map[string]string{"domain": "example.com"}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBusinessProfileRejectsUnknownAction(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/business-profile", map[string]string{"action": "locations.delete"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchConsolePassesThroughRateLimit(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)
	fx.google.status = http.StatusTooManyRequests
	fx.google.raw = json.RawMessage(`{"error":{"code":429}}`)

	rec := fx.do(http.MethodPost, "/v1/search-console", map[string]string{"action": "sites.list"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":{"code":429}}`, rec.Body.String())
}

func TestBronSessionLifecycle(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/bron/auth", map[string]string{
		"email":    "member@example.com",
		"password": "hunter22",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session bron.Session
	decodeBody(t, rec, &session)
	require.NotEmpty(t, session.Token)
	assert.Empty(t, session.UpstreamToken, "upstream token never leaves the server")

	rec = fx.do(http.MethodPost, "/v1/bron/proxy", map[string]any{
		"token":  session.Token,
		"action": "campaigns.list",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bron-upstream-token", fx.bron.lastUpstreamToken)
	assert.Equal(t, "campaigns.list", fx.bron.lastAction)

	rec = fx.do(http.MethodPost, "/v1/bron/proxy", map[string]any{
		"token":  session.Token,
		"action": "campaigns.destroy",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/bron/refresh", map[string]string{"token": session.Token}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/bron/logout", map[string]string{"token": session.Token}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/bron/proxy", map[string]any{
		"token":  session.Token,
		"action": "campaigns.list",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateLead(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/leads", map[string]string{
		"email":   "ceo@acme.example",
		"name":    "Pat Doe",
		"company": "Acme",
		"source":  "pricing-page",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var lead store.Lead
	decodeBody(t, rec, &lead)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, store.LeadStatusNew, lead.Status)

	rec = fx.do(http.MethodPost, "/v1/leads", map[string]string{"email": "not-an-email", "name": "Pat"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobApplicationCoverLetterRule(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/applications/job", map[string]string{
		"position":     "Backend Engineer",
		"name":         "Sam Lee",
		"email":        "sam@example.com",
		"cover_letter": "hi, hire me",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	decodeBody(t, rec, &payload)
	assert.Equal(t, "cover letter must be at least 50 characters", payload["error"])
}

func TestJobApplicationStoresResume(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	resume := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake resume body"))
	rec := fx.do(http.MethodPost, "/v1/applications/job", map[string]string{
		"position":        "Backend Engineer",
		"name":            "Sam Lee",
		"email":           "sam@example.com",
		"cover_letter":    "I have shipped Go services for eight years and would like to work on your crawler infrastructure.",
		"resume_base64":   resume,
		"resume_filename": "../../etc/sam-lee.pdf",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var app store.JobApplication
	decodeBody(t, rec, &app)
	assert.Equal(t, store.ApplicationStatusSubmitted, app.Status)
	assert.Contains(t, app.ResumeURL, "sam-lee.pdf")
	assert.NotContains(t, app.ResumeURL, "..", "path traversal stripped")
	assert.Equal(t, 1, fx.blobs.Len())
}

func TestDirectoryApprovalFlow(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/directory/listings", map[string]string{
		"name":     "Acme SEO",
		"website":  "https://acme.example",
		"category": "agencies",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var listing store.DirectoryListing
	decodeBody(t, rec, &listing)

	// New listings are pending, so the public list is empty.
	rec = fx.do(http.MethodGet, "/v1/directory/listings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Listings []store.DirectoryListing `json:"listings"`
	}
	decodeBody(t, rec, &page)
	assert.Empty(t, page.Listings)

	rec = fx.do(http.MethodPatch, "/v1/directory/listings/"+listing.ID, map[string]string{"status": "approved"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodGet, "/v1/directory/listings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &page)
	require.Len(t, page.Listings, 1)

	rec = fx.do(http.MethodPatch, "/v1/directory/listings/missing", map[string]string{"status": "approved"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatSessionAndMessages(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/chat/sessions", map[string]string{"topic": "billing"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session store.ChatSession
	decodeBody(t, rec, &session)

	rec = fx.do(http.MethodPost, "/v1/chat/sessions/"+session.ID+"/messages", map[string]string{
		"body": "my invoice is wrong",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var message store.ChatMessage
	decodeBody(t, rec, &message)
	assert.Equal(t, store.ChatRoleVisitor, message.Role, "role defaults to visitor")

	rec = fx.do(http.MethodGet, "/v1/chat/sessions/"+session.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded store.ChatSession
	decodeBody(t, rec, &loaded)
	require.Len(t, loaded.Messages, 1)

	rec = fx.do(http.MethodPost, "/v1/chat/sessions/missing/messages", map[string]string{"body": "hello?"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVisitorTrackingAndEnrichment(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/visitors/sessions", map[string]string{
		"domain":     "webstack.ceo",
		"user_agent": "Mozilla/5.0",
		"referrer":   "https://www.google.com/search?q=seo",
		"hostname":   "fw.acme-corp.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session store.VisitorSession
	decodeBody(t, rec, &session)

	rec = fx.do(http.MethodPost, "/v1/visitors/events", map[string]string{
		"session_id": session.ID,
		"domain":     "webstack.ceo",
		"path":       "/pricing",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, fx.pageviews.events, 1)
	assert.Equal(t, "/pricing", fx.pageviews.events[0].Path)

	rec = fx.do(http.MethodPost, "/v1/visitors/"+session.ID+"/enrich", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var enriched map[string]any
	decodeBody(t, rec, &enriched)
	assert.Equal(t, string(visitors.ChannelSearch), enriched["channel"])

	rec = fx.do(http.MethodPost, "/v1/visitors/missing/enrich", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangelogPublishAndList(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/changelog", map[string]string{
		"title": "Audit budgets",
		"body":  "Site audits can now carry a crawl budget.",
		"tag":   "audits",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = fx.do(http.MethodPost, "/v1/changelog", map[string]string{
		"title":        "Bad date",
		"body":         "x",
		"published_at": "yesterday",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(http.MethodGet, "/v1/changelog?tag=audits", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Entries []store.ChangelogEntry `json:"entries"`
	}
	decodeBody(t, rec, &page)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "Audit budgets", page.Entries[0].Title)
}

func TestAuditSubmitStatusCancel(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)

	rec := fx.do(http.MethodPost, "/v1/audits", map[string]any{
		"start_url": "https://example.com",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted map[string]string
	decodeBody(t, rec, &accepted)
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, 1, fx.queue.Depth())

	rec = fx.do(http.MethodGet, "/v1/audits/"+jobID+"/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job audit.Job
	decodeBody(t, rec, &job)
	assert.Equal(t, audit.JobStatusQueued, job.Status)
	assert.Equal(t, 25, job.Parameters.MaxPages, "defaults applied")
	assert.Equal(t, 2, job.Parameters.MaxDepth)
	assert.True(t, job.Parameters.HeadlessAllowed)

	rec = fx.do(http.MethodGet, "/v1/audits/"+jobID+"/result", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result audit.JobResult
	decodeBody(t, rec, &result)
	assert.Empty(t, result.Pages)

	rec = fx.do(http.MethodPost, "/v1/audits/"+jobID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/audits/"+jobID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "terminal jobs cannot be canceled again")

	rec = fx.do(http.MethodGet, "/v1/audits/missing/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/audits", map[string]any{"start_url": "not a url"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthSurface(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, nil)
	fx.monitor.statuses = []health.CheckStatus{
		{Name: "api", URL: "https://webstack.ceo/api/health", State: health.StateHealthy},
		{Name: "bron", URL: "https://bron.example/health", State: health.StateFailing, ConsecutiveFailures: 4},
	}
	now := time.Now().UTC()
	require.NoError(t, fx.alerts.Raise(context.Background(), health.Alert{
		ID: "alert-1", Check: "bron", Message: "check bron failing", RaisedAt: now,
	}))

	rec := fx.do(http.MethodGet, "/v1/health/checks", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var checks struct {
		Checks []health.CheckStatus `json:"checks"`
	}
	decodeBody(t, rec, &checks)
	require.Len(t, checks.Checks, 2)

	rec = fx.do(http.MethodGet, "/v1/health/alerts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts struct {
		Alerts []health.Alert `json:"alerts"`
	}
	decodeBody(t, rec, &alerts)
	require.Len(t, alerts.Alerts, 1)

	rec = fx.do(http.MethodGet, "/v1/health/alerts?open=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/health/run", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fx.monitor.runs)
}

func TestBearerGuardOnDashboardRoutes(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "ops-key"
	})

	rec := fx.do(http.MethodPost, "/v1/checkout/sessions", map[string]string{"price_id": "price_1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := fx.tokens.Issue("user-1", "pat@example.com")
	require.NoError(t, err)

	rec = fx.do(http.MethodPost, "/v1/checkout/sessions", map[string]string{"price_id": "price_1"},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Public form routes stay open.
	rec = fx.do(http.MethodPost, "/v1/leads", map[string]string{"email": "a@b.co", "name": "A"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAdminKeyGuard(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "ops-key"
	})

	rec := fx.do(http.MethodPost, "/v1/health/run", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/health/run", nil, map[string]string{"X-API-Key": "ops-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodPost, "/v1/changelog", map[string]string{"title": "t", "body": "b"},
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
