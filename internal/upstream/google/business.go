package google

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

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// UpstreamError carries the Google status and (rewritten) message.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("google upstream status %d: %s", e.StatusCode, e.Message)
}

// BusinessRequest is one dashboard action against the Business Profile
// APIs. Resource names arrive fully qualified ("accounts/123" or
// "locations/456") and are validated before they touch a URL.
type BusinessRequest struct {
	Action     string          `json:"action"`
	Account    string          `json:"account,omitempty"`
	Location   string          `json:"location,omitempty"`
	ReadMask   string          `json:"read_mask,omitempty"`
	UpdateMask string          `json:"update_mask,omitempty"`
	Review     string          `json:"review,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	PageSize   int             `json:"page_size,omitempty"`
	PageToken  string          `json:"page_token,omitempty"`
}

// BusinessActions lists the supported Business Profile actions.
var BusinessActions = []string{
	"accounts.list",
	"locations.list",
	"locations.get",
	"locations.update",
	"reviews.list",
	"reviews.reply",
}

// Business executes one Business Profile action and returns the raw
// upstream body and status for pass-through.
func (c *Client) Business(ctx context.Context, req BusinessRequest) (json.RawMessage, int, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var method, path string
	q := url.Values{}
	var body io.Reader

	switch req.Action {
	case "accounts.list":
		method, path = http.MethodGet, "/v1/accounts"
		if req.PageSize > 0 {
			q.Set("pageSize", fmt.Sprintf("%d", req.PageSize))
		}
		if req.PageToken != "" {
			q.Set("pageToken", req.PageToken)
		}
	case "locations.list":
		if err := validResource(req.Account, "accounts/"); err != nil {
			return nil, 0, err
		}
		method, path = http.MethodGet, "/v1/"+req.Account+"/locations"
		readMask := req.ReadMask
		if readMask == "" {
			readMask = "name,title,websiteUri,phoneNumbers,categories,metadata"
		}
		q.Set("readMask", readMask)
		if req.PageSize > 0 {
			q.Set("pageSize", fmt.Sprintf("%d", req.PageSize))
		}
		if req.PageToken != "" {
			q.Set("pageToken", req.PageToken)
		}
	case "locations.get":
		if err := validResource(req.Location, "locations/"); err != nil {
			return nil, 0, err
		}
		method, path = http.MethodGet, "/v1/"+req.Location
		readMask := req.ReadMask
		if readMask == "" {
			readMask = "name,title,websiteUri,phoneNumbers,categories,metadata"
		}
		q.Set("readMask", readMask)
	case "locations.update":
		if err := validResource(req.Location, "locations/"); err != nil {
			return nil, 0, err
		}
		if req.UpdateMask == "" {
			return nil, 0, fmt.Errorf("locations.update requires update_mask")
		}
		if len(req.Body) == 0 {
			return nil, 0, fmt.Errorf("locations.update requires a body")
		}
		method, path = http.MethodPatch, "/v1/"+req.Location
		q.Set("updateMask", req.UpdateMask)
		body = bytes.NewReader(req.Body)
	case "reviews.list":
		if err := validResource(req.Location, "accounts/"); err != nil {
			return nil, 0, err
		}
		method, path = http.MethodGet, "/v4/"+req.Location+"/reviews"
		if req.PageToken != "" {
			q.Set("pageToken", req.PageToken)
		}
	case "reviews.reply":
		if err := validResource(req.Review, "accounts/"); err != nil {
			return nil, 0, err
		}
		if len(req.Body) == 0 {
			return nil, 0, fmt.Errorf("reviews.reply requires a body")
		}
		method, path = http.MethodPut, "/v4/"+req.Review+"/reply"
		body = bytes.NewReader(req.Body)
	default:
		return nil, 0, fmt.Errorf("unknown business profile action %q", req.Action)
	}

	target := c.cfg.BusinessBaseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return c.do(ctx, "google_business", method, target, token, body)
}

// validResource enforces the "collection/id" shape Google uses for
// resource names and keeps path metacharacters out of proxy URLs.
func validResource(name, prefix string) error {
	if name == "" || !strings.HasPrefix(name, prefix) {
		return fmt.Errorf("resource name must start with %q, got %q", prefix, name)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "?#%") {
		return fmt.Errorf("resource name %q contains forbidden characters", name)
	}
	return nil
}

func (c *Client) do(ctx context.Context, upstream, method, target, token string, body io.Reader) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(upstream, "error", time.Since(start))
		return nil, 0, fmt.Errorf("call google: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.ObserveUpstream(upstream, "error", time.Since(start))
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	outcome := "ok"
	if resp.StatusCode >= 400 {
		outcome = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	metrics.ObserveUpstream(upstream, outcome, time.Since(start))

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusTooManyRequests {
		return raw, resp.StatusCode, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    rewriteErrorMessage(raw),
		}
	}
	return raw, resp.StatusCode, nil
}

// rewriteErrorMessage turns Google's error envelopes into the short
// messages the dashboard shows. Unknown shapes pass through trimmed.
func rewriteErrorMessage(raw []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	switch {
	case strings.Contains(msg, "insufficient authentication scopes"):
		return "Google account is missing Business Profile permissions. Reconnect the account."
	case strings.Contains(msg, "invalid_grant"):
		return "Google connection expired. Reconnect the account."
	case strings.Contains(msg, "Requested entity was not found"):
		return "That Google Business Profile no longer exists."
	}
	return msg
}
