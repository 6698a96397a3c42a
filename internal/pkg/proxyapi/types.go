package proxyapi

import "fmt"

// OrderData is the payload forwarded to the proxy server when an order is
// registered. It travels base64-encoded as the order_data query parameter.
type OrderData struct {
	OrderID       uint            `json:"order_id"`
	OrderKey      string          `json:"order_key"`
	OrderTotal    float64         `json:"order_total"`
	Currency      string          `json:"currency"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name"`
	Items         []OrderItemData `json:"items"`
	SiteURL       string          `json:"site_url"`
	ServerID      uint            `json:"server_id"`
}

// OrderItemData is a single order line in the registration payload.
type OrderItemData struct {
	ProductID       uint    `json:"product_id"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	LineTotal       float64 `json:"line_total"`
	SKU             string  `json:"sku"`
	MappedProductID uint    `json:"mapped_product_id,omitempty"`
}

// Response is the envelope every proxy route answers with. Success is a
// pointer because older proxy versions omit the flag on plain-data answers.
type Response struct {
	Success *bool                  `json:"success,omitempty"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// OK reports whether the proxy accepted the request.
func (r *Response) OK() bool {
	return r.Success == nil || *r.Success
}

// RemoteError is returned when the proxy server answered but rejected the
// request, either with a non-200 status or an explicit success=false.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("proxy server rejected request (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("proxy server rejected request (status %d)", e.StatusCode)
}
