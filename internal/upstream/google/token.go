// Package google proxies the Business Profile and Search Console APIs.
// Access tokens are minted from a server-held refresh token and cached
// until shortly before expiry, so browser clients never see Google
// credentials and the proxy survives token churn.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Clock supplies the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

// Config holds OAuth material and API bases.
type Config struct {
	ClientID             string
	ClientSecret         string
	RefreshToken         string
	TokenURL             string
	BusinessBaseURL      string
	SearchConsoleBaseURL string
	Timeout              time.Duration
}

// Client serves both Google proxies from one token source.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      Clock
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New builds a Google client.
func New(cfg Config, clock Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clock:      clock,
		logger:     logger.Named("google"),
	}
}

// tokenSlack refreshes a bit early so in-flight calls never carry a
// token that expires mid-request.
const tokenSlack = 60 * time.Second

// AccessToken returns the cached token, refreshing when it is within
// the slack window of expiring.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.clock.Now().Add(tokenSlack).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// ForceRefresh discards the cached token and mints a new one. The
// health monitor's token_refresh remedy calls this when Google probes
// start failing.
func (c *Client) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", c.cfg.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream("google_oauth", "error", time.Since(start))
		return fmt.Errorf("refresh google token: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveUpstream("google_oauth", "error", time.Since(start))
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveUpstream("google_oauth", fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		return fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	metrics.ObserveUpstream("google_oauth", "ok", time.Since(start))

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}
	c.accessToken = body.AccessToken
	c.tokenExpiry = c.clock.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	c.logger.Debug("access token refreshed", zap.Time("expiry", c.tokenExpiry))
	return nil
}
