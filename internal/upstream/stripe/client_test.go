package stripe

import (
	"context"
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
	return New(Config{
		SecretKey:  "sk_test_abc",
		BaseURL:    ts.URL,
		SuccessURL: "https://webstack.ceo/thanks",
		CancelURL:  "https://webstack.ceo/pricing",
		Timeout:    5 * time.Second,
	}, nil)
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		require.Equal(t, "subscription", r.PostForm.Get("mode"))
		require.Equal(t, "price_pro_monthly", r.PostForm.Get("line_items[0][price]"))
		require.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		require.Equal(t, "https://webstack.ceo/thanks", r.PostForm.Get("success_url"))
		require.Equal(t, "buyer@example.com", r.PostForm.Get("customer_email"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1","expires_at":1700000000}`))
	})

	session, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		PriceID:       "price_pro_monthly",
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", session.ID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
}

func TestCreateCheckoutSessionRequiresPrice(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("upstream should not be called without a price id")
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "price id")
}

func TestCreateCheckoutSessionAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such price: 'price_nope'"}}`))
	})

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_nope"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "resource_missing", apiErr.Code)
	require.Contains(t, apiErr.Message, "No such price")
}

func TestCreateCheckoutSessionMissingURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_test_2"}`))
	})

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "redirect url")
}
