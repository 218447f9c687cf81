package bron

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	metrics.Init()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ClientConfig{
		BaseURL: ts.URL,
		APIKey:  "service-key",
		Timeout: 5 * time.Second,
	}, nil, nil)
}

func TestClientLogin(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/auth/login", r.URL.Path)
		require.Equal(t, "service-key", r.Header.Get("X-Api-Key"))

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "member@example.com", req.Email)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{Token: "upstream-123", ExpiresIn: 3600})
	})

	token, err := c.Login(context.Background(), "member@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "upstream-123", token)
}

func TestClientLoginRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
	})

	_, err := c.Login(context.Background(), "member@example.com", "wrong")
	require.Error(t, err)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusUnauthorized, ue.StatusCode)
	require.Equal(t, "invalid credentials", ue.Message)
}

func TestClientDoGetAction(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v2/campaigns", r.URL.Path)
		require.Equal(t, "active", r.URL.Query().Get("status"))
		require.Equal(t, "Bearer upstream-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"campaigns":[{"id":"c1"}]}`))
	})

	raw, status, err := c.Do(context.Background(), "upstream-123", "campaigns.list", map[string]any{"status": "active"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"campaigns":[{"id":"c1"}]}`, string(raw))
}

func TestClientDoPathParam(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/campaigns/c42", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"c42"}`))
	})

	raw, status, err := c.Do(context.Background(), "tok", "campaigns.get", map[string]any{"id": "c42"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"id":"c42"}`, string(raw))

	_, _, err = c.Do(context.Background(), "tok", "campaigns.get", map[string]any{})
	require.Error(t, err)
}

func TestClientDoPostAction(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/orders", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "c1", body["campaign_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_id":"o9"}`))
	})

	raw, status, err := c.Do(context.Background(), "tok", "orders.create", map[string]any{"campaign_id": "c1", "quantity": 3})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	require.JSONEq(t, `{"order_id":"o9"}`, string(raw))
}

func TestClientDoUnknownAction(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, _, err := c.Do(context.Background(), "tok", "admin.delete_everything", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown bron action")
}

func TestClientDoPassesRateLimitThrough(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	})

	raw, status, err := c.Do(context.Background(), "tok", "links.list", nil)
	require.NoError(t, err, "4xx statuses are returned, not turned into errors")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.JSONEq(t, `{"error":"rate limited"}`, string(raw))
}

func TestClientValidateToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/credits/balance", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer live-token":
			_, _ = w.Write([]byte(`{"balance":12}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"session expired"}`))
		}
	})

	ok, err := c.ValidateToken(context.Background(), "live-token")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ValidateToken(context.Background(), "stale-token")
	require.NoError(t, err)
	require.False(t, ok)
}
