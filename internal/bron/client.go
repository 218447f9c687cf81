package bron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/backoff"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// ClientConfig holds BRON upstream settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the BRON API with the service key attached.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	policy     *backoff.Policy
	logger     *zap.Logger
}

// NewClient builds a BRON client.
func NewClient(cfg ClientConfig, policy *backoff.Policy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = backoff.NewPolicy()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy:     policy,
		logger:     logger.Named("bron.client"),
	}
}

// UpstreamError carries the BRON status and message so handlers can
// pass 401s and 429s through unchanged.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("bron upstream status %d: %s", e.StatusCode, e.Message)
}

type endpoint struct {
	method string
	path   string
}

// Allowlisted proxy actions. Anything else is rejected locally before
// touching the upstream.
var actions = map[string]endpoint{
	"campaigns.list":  {http.MethodGet, "/v2/campaigns"},
	"campaigns.get":   {http.MethodGet, "/v2/campaigns/{id}"},
	"links.list":      {http.MethodGet, "/v2/links"},
	"orders.list":     {http.MethodGet, "/v2/orders"},
	"orders.create":   {http.MethodPost, "/v2/orders"},
	"credits.balance": {http.MethodGet, "/v2/credits/balance"},
}

// KnownAction reports whether the proxy accepts the action.
func KnownAction(action string) bool {
	_, ok := actions[action]
	return ok
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges member credentials for an upstream session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	raw, status, err := c.send(ctx, http.MethodPost, "/v2/auth/login", "", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &UpstreamError{StatusCode: status, Message: upstreamMessage(raw)}
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}
	return resp.Token, nil
}

// ValidateToken probes whether an upstream token still authenticates
// by hitting the cheapest read endpoint with it. A 401 or 403 is a
// definitive rejection; any other response means the token is usable.
func (c *Client) ValidateToken(ctx context.Context, upstreamToken string) (bool, error) {
	_, status, err := c.send(ctx, http.MethodGet, "/v2/credits/balance", upstreamToken, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, nil
	}
	return true, nil
}

// Do proxies one allowlisted action. GET params become query values,
// POST params become the JSON body. The raw upstream body and status
// are returned so the handler can pass them through.
func (c *Client) Do(ctx context.Context, upstreamToken, action string, params map[string]any) (json.RawMessage, int, error) {
	ep, ok := actions[action]
	if !ok {
		return nil, 0, fmt.Errorf("unknown bron action %q", action)
	}

	path := ep.path
	if strings.Contains(path, "{id}") {
		id, _ := params["id"].(string)
		if id == "" {
			return nil, 0, fmt.Errorf("action %q requires an id parameter", action)
		}
		path = strings.ReplaceAll(path, "{id}", url.PathEscape(id))
		delete(params, "id")
	}

	var reqBody io.Reader
	if ep.method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			path = path + "?" + q.Encode()
		}
	} else {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal params: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	// Only idempotent reads are retried.
	var raw json.RawMessage
	var status int
	var err error
	for attempt := 0; ; attempt++ {
		raw, status, err = c.send(ctx, ep.method, path, upstreamToken, reqBody)
		if err == nil || ep.method != http.MethodGet || !c.policy.ShouldRetry(err, attempt) {
			break
		}
		if werr := c.policy.Wait(ctx, attempt); werr != nil {
			return nil, 0, werr
		}
	}
	if err != nil {
		return nil, 0, err
	}
	return raw, status, nil
}

func (c *Client) send(ctx context.Context, method, path, upstreamToken string, body io.Reader) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build bron request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if upstreamToken != "" {
		req.Header.Set("Authorization", "Bearer "+upstreamToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream("bron", "error", time.Since(start))
		return nil, 0, fmt.Errorf("call bron: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ObserveUpstream("bron", "error", time.Since(start))
		return nil, 0, fmt.Errorf("read bron response: %w", err)
	}
	outcome := "ok"
	if resp.StatusCode >= 400 {
		outcome = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	metrics.ObserveUpstream("bron", outcome, time.Since(start))
	return raw, resp.StatusCode, nil
}

func upstreamMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
