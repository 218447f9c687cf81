package ahrefs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	metrics.Init()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	clk := &fakeClock{now: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)}
	return New(Config{
		APIToken: "token-xyz",
		BaseURL:  ts.URL,
		Timeout:  5 * time.Second,
	}, clk, nil)
}

func TestDomainMetricsAllSections(t *testing.T) {
	t.Parallel()

	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-xyz", r.Header.Get("Authorization"))
		require.Equal(t, "example.com", r.URL.Query().Get("target"))
		paths = append(paths, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v3/site-explorer/domain-rating":
			require.Equal(t, "2026-03-15", r.URL.Query().Get("date"))
			_, _ = w.Write([]byte(`{"domain_rating":{"domain_rating":54.3}}`))
		case "/v3/site-explorer/backlinks-stats":
			_, _ = w.Write([]byte(`{"metrics":{"live":1234,"live_refdomains":87}}`))
		case "/v3/site-explorer/metrics":
			_, _ = w.Write([]byte(`{"metrics":{"org_keywords":412,"org_traffic":903.5}}`))
		case "/v3/site-explorer/metrics-history":
			require.Equal(t, "2026-02-13", r.URL.Query().Get("date_from"))
			_, _ = w.Write([]byte(`{"metrics":[{"date":"2026-03-14","org_traffic":890},{"date":"2026-03-15","org_traffic":903.5}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	got, err := c.DomainMetrics(context.Background(), "example.com")
	require.NoError(t, err)
	require.Empty(t, got.Error)
	require.Equal(t, "example.com", got.Domain)
	require.NotNil(t, got.DomainRating)
	require.InDelta(t, 54.3, *got.DomainRating, 0.001)
	require.NotNil(t, got.Backlinks)
	require.EqualValues(t, 1234, *got.Backlinks)
	require.NotNil(t, got.RefDomains)
	require.EqualValues(t, 87, *got.RefDomains)
	require.NotNil(t, got.OrganicKeywords)
	require.EqualValues(t, 412, *got.OrganicKeywords)
	require.Len(t, got.TrafficHistory, 2)

	// Sections are fetched sequentially, in a stable order.
	require.Equal(t, []string{
		"/v3/site-explorer/domain-rating",
		"/v3/site-explorer/backlinks-stats",
		"/v3/site-explorer/metrics",
		"/v3/site-explorer/metrics-history",
	}, paths)
}

func TestDomainMetricsPartialFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v3/site-explorer/domain-rating":
			_, _ = w.Write([]byte(`{"domain_rating":{"domain_rating":40}}`))
		case "/v3/site-explorer/backlinks-stats":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
		case "/v3/site-explorer/metrics":
			_, _ = w.Write([]byte(`{"metrics":{"org_keywords":10,"org_traffic":5}}`))
		case "/v3/site-explorer/metrics-history":
			_, _ = w.Write([]byte(`{"metrics":[]}`))
		}
	})

	got, err := c.DomainMetrics(context.Background(), "example.com")
	require.NoError(t, err, "partial failures are reported in the Error field")
	require.Contains(t, got.Error, "backlinks_stats")
	require.Contains(t, got.Error, "429")
	require.Nil(t, got.Backlinks)
	require.Nil(t, got.RefDomains)
	require.NotNil(t, got.DomainRating, "sections before the failure still land")
	require.NotNil(t, got.OrganicKeywords, "sections after the failure still land")
}

func TestDomainMetricsContextCanceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.DomainMetrics(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
}
