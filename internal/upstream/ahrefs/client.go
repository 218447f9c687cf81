// Package ahrefs wraps the four site-explorer reads behind the SEO
// metrics endpoint. Calls run sequentially and partial failures land in
// the result's Error field instead of aborting the whole lookup.
package ahrefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Clock supplies the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

// Config holds Ahrefs upstream settings.
type Config struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
}

// Client talks to the Ahrefs v3 API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      Clock
	logger     *zap.Logger
}

// New builds an Ahrefs client.
func New(cfg Config, clock Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clock:      clock,
		logger:     logger.Named("ahrefs"),
	}
}

// TrafficPoint is one day of estimated organic traffic.
type TrafficPoint struct {
	Date    string  `json:"date"`
	Traffic float64 `json:"traffic"`
}

// DomainMetrics is the reshaped aggregate served to the dashboard.
// Pointer fields stay nil for the sections whose upstream call failed.
type DomainMetrics struct {
	Domain          string         `json:"domain"`
	DomainRating    *float64       `json:"domain_rating,omitempty"`
	Backlinks       *int64         `json:"backlinks,omitempty"`
	RefDomains      *int64         `json:"ref_domains,omitempty"`
	OrganicKeywords *int64         `json:"organic_keywords,omitempty"`
	OrganicTraffic  *float64       `json:"organic_traffic,omitempty"`
	TrafficHistory  []TrafficPoint `json:"traffic_history,omitempty"`
	FetchedAt       time.Time      `json:"fetched_at"`
	Error           string         `json:"error,omitempty"`
}

// DomainMetrics fetches domain rating, backlink stats, organic metrics,
// and the traffic history for a domain. Each section failure appends to
// the Error string; only context cancellation aborts early.
func (c *Client) DomainMetrics(ctx context.Context, domain string) (DomainMetrics, error) {
	now := c.clock.Now()
	today := now.Format("2006-01-02")
	result := DomainMetrics{Domain: domain, FetchedAt: now}
	var errs []string

	rating, err := c.domainRating(ctx, domain, today)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("domain_rating: %v", err))
	} else {
		result.DomainRating = &rating
	}

	backlinks, refDomains, err := c.backlinkStats(ctx, domain, today)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("backlinks_stats: %v", err))
	} else {
		result.Backlinks = &backlinks
		result.RefDomains = &refDomains
	}

	keywords, traffic, err := c.organicMetrics(ctx, domain, today)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("metrics: %v", err))
	} else {
		result.OrganicKeywords = &keywords
		result.OrganicTraffic = &traffic
	}

	history, err := c.metricsHistory(ctx, domain, now.AddDate(0, 0, -30).Format("2006-01-02"))
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("metrics_history: %v", err))
	} else {
		result.TrafficHistory = history
	}

	result.Error = strings.Join(errs, "; ")
	if result.Error != "" {
		c.logger.Warn("partial ahrefs lookup", zap.String("domain", domain), zap.String("errors", result.Error))
	}
	return result, nil
}

func (c *Client) domainRating(ctx context.Context, domain, date string) (float64, error) {
	var body struct {
		DomainRating struct {
			DomainRating float64 `json:"domain_rating"`
		} `json:"domain_rating"`
	}
	q := url.Values{"target": {domain}, "date": {date}}
	if err := c.get(ctx, "/v3/site-explorer/domain-rating", q, &body); err != nil {
		return 0, err
	}
	return body.DomainRating.DomainRating, nil
}

func (c *Client) backlinkStats(ctx context.Context, domain, date string) (int64, int64, error) {
	var body struct {
		Metrics struct {
			Live           int64 `json:"live"`
			LiveRefDomains int64 `json:"live_refdomains"`
		} `json:"metrics"`
	}
	q := url.Values{"target": {domain}, "date": {date}, "mode": {"subdomains"}}
	if err := c.get(ctx, "/v3/site-explorer/backlinks-stats", q, &body); err != nil {
		return 0, 0, err
	}
	return body.Metrics.Live, body.Metrics.LiveRefDomains, nil
}

func (c *Client) organicMetrics(ctx context.Context, domain, date string) (int64, float64, error) {
	var body struct {
		Metrics struct {
			OrgKeywords int64   `json:"org_keywords"`
			OrgTraffic  float64 `json:"org_traffic"`
		} `json:"metrics"`
	}
	q := url.Values{"target": {domain}, "date": {date}, "mode": {"subdomains"}}
	if err := c.get(ctx, "/v3/site-explorer/metrics", q, &body); err != nil {
		return 0, 0, err
	}
	return body.Metrics.OrgKeywords, body.Metrics.OrgTraffic, nil
}

func (c *Client) metricsHistory(ctx context.Context, domain, from string) ([]TrafficPoint, error) {
	var body struct {
		Metrics []struct {
			Date       string  `json:"date"`
			OrgTraffic float64 `json:"org_traffic"`
		} `json:"metrics"`
	}
	q := url.Values{"target": {domain}, "date_from": {from}, "mode": {"subdomains"}}
	if err := c.get(ctx, "/v3/site-explorer/metrics-history", q, &body); err != nil {
		return nil, err
	}
	points := make([]TrafficPoint, 0, len(body.Metrics))
	for _, m := range body.Metrics {
		points = append(points, TrafficPoint{Date: m.Date, Traffic: m.OrgTraffic})
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream("ahrefs", "error", time.Since(start))
		return fmt.Errorf("call ahrefs: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ObserveUpstream("ahrefs", "error", time.Since(start))
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveUpstream("ahrefs", fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	metrics.ObserveUpstream("ahrefs", "ok", time.Since(start))

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
