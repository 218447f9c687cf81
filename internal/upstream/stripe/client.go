// Package stripe creates Checkout Sessions for plan purchases. Only the
// session endpoint is wrapped; webhooks and billing portal flows are
// handled by Stripe-hosted surfaces.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Config holds Stripe credentials and redirect defaults.
type Config struct {
	SecretKey  string
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

// Client talks to the Stripe API with the secret key attached.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Stripe client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("stripe"),
	}
}

// CheckoutParams describes the session to create. SuccessURL and
// CancelURL override the configured defaults when set.
type CheckoutParams struct {
	PriceID           string
	Quantity          int64
	Mode              string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is the subset of Stripe's session object the
// dashboard needs to redirect the buyer.
type CheckoutSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// APIError mirrors Stripe's error envelope.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CreateCheckoutSession posts a form-encoded session request. Stripe
// speaks application/x-www-form-urlencoded, not JSON, on the way in.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	if p.PriceID == "" {
		return CheckoutSession{}, fmt.Errorf("price id is required")
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	mode := p.Mode
	if mode == "" {
		mode = "subscription"
	}
	successURL := p.SuccessURL
	if successURL == "" {
		successURL = c.cfg.SuccessURL
	}
	cancelURL := p.CancelURL
	if cancelURL == "" {
		cancelURL = c.cfg.CancelURL
	}

	form := url.Values{}
	form.Set("mode", mode)
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][price]", p.PriceID)
	form.Set("line_items[0][quantity]", strconv.FormatInt(p.Quantity, 10))
	if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}
	if p.ClientReferenceID != "" {
		form.Set("client_reference_id", p.ClientReferenceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream("stripe", "error", time.Since(start))
		return CheckoutSession{}, fmt.Errorf("call stripe: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveUpstream("stripe", "error", time.Since(start))
		return CheckoutSession{}, fmt.Errorf("read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveUpstream("stripe", fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		return CheckoutSession{}, decodeError(resp.StatusCode, raw)
	}
	metrics.ObserveUpstream("stripe", "ok", time.Since(start))

	var session CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode stripe session: %w", err)
	}
	if session.URL == "" {
		return CheckoutSession{}, fmt.Errorf("stripe session missing redirect url")
	}
	c.logger.Info("checkout session created", zap.String("session_id", session.ID))
	return session, nil
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
