package proxyapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PayFoxApp/PayFox/app/models"
)

// Proxy routes. The rest_route parameter is the remote side's dispatch key,
// part of the wire contract.
const (
	routeRegisterOrder = "/wppps/v1/register-order"
	routeVerifyPayment = "/wppps/v1/verify-payment"
	routePayPalButtons = "/wppps/v1/paypal-buttons"
)

const (
	requestTimeout = 30 * time.Second
	clientVersion  = "1.2.0"
	maxBodySize    = 1 << 20
)

// Client talks to one proxy server. Requests are GET with query parameters
// and a time-boxed HMAC signature; the client never retries on its own.
type Client struct {
	Server     *models.ProxyServer
	HTTPClient *http.Client

	// now is swappable for deterministic signatures in tests.
	now func() time.Time
}

// NewClient creates a client bound to the given proxy server.
func NewClient(server *models.ProxyServer) *Client {
	return &Client{
		Server: server,
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
		now: time.Now,
	}
}

// RegisterOrder forwards the order payload to the proxy so it can create the
// matching PayPal order. Hash message: timestamp + orderId + orderTotal + apiKey.
func (c *Client) RegisterOrder(ctx context.Context, data *OrderData) (*Response, error) {
	if data == nil {
		return nil, fmt.Errorf("order data is required")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Unix()
	hash := Sign(c.Server.APISecret,
		FormatTimestamp(timestamp),
		FormatID(data.OrderID),
		FormatAmount(data.OrderTotal),
		c.Server.APIKey,
	)

	params := url.Values{}
	params.Set("rest_route", routeRegisterOrder)
	params.Set("api_key", c.Server.APIKey)
	params.Set("timestamp", FormatTimestamp(timestamp))
	params.Set("hash", hash)
	params.Set("order_data", base64.StdEncoding.EncodeToString(encoded))

	return c.do(ctx, params)
}

// VerifyPayment asks the proxy whether the PayPal order was actually paid.
// Hash message: timestamp + paypalOrderId + orderId + apiKey.
func (c *Client) VerifyPayment(ctx context.Context, paypalOrderID string, orderID uint, orderTotal float64, currency string) (*Response, error) {
	if paypalOrderID == "" || orderID == 0 {
		return nil, fmt.Errorf("paypal order id and order id are required")
	}

	timestamp := c.now().Unix()
	hash := Sign(c.Server.APISecret,
		FormatTimestamp(timestamp),
		paypalOrderID,
		FormatID(orderID),
		c.Server.APIKey,
	)

	params := url.Values{}
	params.Set("rest_route", routeVerifyPayment)
	params.Set("api_key", c.Server.APIKey)
	params.Set("timestamp", FormatTimestamp(timestamp))
	params.Set("hash", hash)
	params.Set("paypal_order_id", paypalOrderID)
	params.Set("order_id", FormatID(orderID))
	params.Set("order_total", FormatAmount(orderTotal))
	params.Set("currency", currency)
	params.Set("server_id", FormatID(c.Server.ID))

	return c.do(ctx, params)
}

// WidgetURL builds the buyer-facing PayPal buttons URL served by the proxy.
// Hash message: timestamp + amount + currency + apiKey. Amount and currency
// are included in the signed message so the plaintext parameters cannot be
// tampered with.
func (c *Client) WidgetURL(amount float64, currency, callbackURL, siteURL string) string {
	timestamp := c.now().Unix()
	hash := Sign(c.Server.APISecret,
		FormatTimestamp(timestamp),
		FormatAmount(amount),
		currency,
		c.Server.APIKey,
	)

	params := url.Values{}
	params.Set("rest_route", routePayPalButtons)
	params.Set("amount", FormatAmount(amount))
	params.Set("currency", currency)
	params.Set("api_key", c.Server.APIKey)
	params.Set("timestamp", FormatTimestamp(timestamp))
	params.Set("hash", hash)
	params.Set("callback_url", base64.StdEncoding.EncodeToString([]byte(callbackURL)))
	params.Set("site_url", base64.StdEncoding.EncodeToString([]byte(siteURL)))
	params.Set("server_id", FormatID(c.Server.ID))

	return strings.TrimRight(c.Server.URL, "/") + "?" + params.Encode()
}

// do performs the GET request and unwraps the response envelope.
func (c *Client) do(ctx context.Context, params url.Values) (*Response, error) {
	requestURL := strings.TrimRight(c.Server.URL, "/") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PayFox Proxy Client/"+clientVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response from proxy server: %w", err)
	}
	if !out.OK() {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: out.Message}
	}
	return &out, nil
}
