package proxyapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PayFoxApp/PayFox/app/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&models.ProxyServer{
		ID:        7,
		Name:      "Test Proxy",
		URL:       srv.URL + "/", // trailing slash must be tolerated
		APIKey:    "pk_test_key",
		APISecret: "sk_test_secret",
	})
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	return client, srv
}

func TestRegisterOrderSendsSignedRequest(t *testing.T) {
	var captured url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.Header.Get("User-Agent"), "PayFox Proxy Client/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"paypal_order_id":"PP-1"}}`))
	})

	resp, err := client.RegisterOrder(context.Background(), &OrderData{
		OrderID:    42,
		OrderKey:   "pf_abc",
		OrderTotal: 19.99,
		Currency:   "EUR",
		Items: []OrderItemData{
			{ProductID: 1, Name: "Widget", Quantity: 2, Price: 9.995, LineTotal: 19.99},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.Equal(t, "PP-1", resp.Data["paypal_order_id"])

	assert.Equal(t, "/wppps/v1/register-order", captured.Get("rest_route"))
	assert.Equal(t, "pk_test_key", captured.Get("api_key"))
	assert.Equal(t, "1700000000", captured.Get("timestamp"))

	wantHash := Sign("sk_test_secret", "1700000000", "42", "19.99", "pk_test_key")
	assert.Equal(t, wantHash, captured.Get("hash"))

	raw, err := base64.StdEncoding.DecodeString(captured.Get("order_data"))
	require.NoError(t, err)
	var decoded OrderData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, uint(42), decoded.OrderID)
	assert.Equal(t, "pf_abc", decoded.OrderKey)
	assert.Len(t, decoded.Items, 1)
}

func TestRegisterOrderRequiresData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.RegisterOrder(context.Background(), nil)
	require.Error(t, err)
}

func TestVerifyPaymentSendsSignedRequest(t *testing.T) {
	var captured url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		_, _ = w.Write([]byte(`{"success":true,"data":{"status":"COMPLETED"}}`))
	})

	resp, err := client.VerifyPayment(context.Background(), "PP-1", 42, 19.99, "EUR")
	require.NoError(t, err)
	require.True(t, resp.OK())

	assert.Equal(t, "/wppps/v1/verify-payment", captured.Get("rest_route"))
	assert.Equal(t, "PP-1", captured.Get("paypal_order_id"))
	assert.Equal(t, "42", captured.Get("order_id"))
	assert.Equal(t, "7", captured.Get("server_id"))

	wantHash := Sign("sk_test_secret", "1700000000", "PP-1", "42", "pk_test_key")
	assert.Equal(t, wantHash, captured.Get("hash"))
}

func TestWidgetURLSignsAmountAndCurrency(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	raw := client.WidgetURL(49.5, "USD", "https://shop.example/payment/callback", "https://shop.example")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, srv.URL))

	q := parsed.Query()
	assert.Equal(t, "/wppps/v1/paypal-buttons", q.Get("rest_route"))
	assert.Equal(t, "49.5", q.Get("amount"))
	assert.Equal(t, "USD", q.Get("currency"))
	assert.Equal(t, "7", q.Get("server_id"))

	wantHash := Sign("sk_test_secret", "1700000000", "49.5", "USD", "pk_test_key")
	assert.Equal(t, wantHash, q.Get("hash"))

	cb, err := base64.StdEncoding.DecodeString(q.Get("callback_url"))
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/payment/callback", string(cb))
}

func TestDoMapsRemoteFailures(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		})
		_, err := client.VerifyPayment(context.Background(), "PP-1", 42, 19.99, "EUR")
		var remoteErr *RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
	})

	t.Run("explicit success=false", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"invalid hash"}`))
		})
		_, err := client.VerifyPayment(context.Background(), "PP-1", 42, 19.99, "EUR")
		var remoteErr *RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Contains(t, remoteErr.Message, "invalid hash")
	})

	t.Run("garbage body", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>not json</html>`))
		})
		_, err := client.VerifyPayment(context.Background(), "PP-1", 42, 19.99, "EUR")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestResponseOKTreatsMissingFlagAsSuccess(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"status":"CREATED"}}`), &resp))
	assert.True(t, resp.OK())
}
