package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order status constants. An order starts as pending, becomes registered once
// a proxy server accepted it, verified after the PayPal order was checked and
// completed when the payment went through. Failed and cancelled are terminal.
const (
	OrderStatusPending    = "pending"
	OrderStatusRegistered = "registered"
	OrderStatusVerified   = "verified"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
)

// Order represents a storefront order handed to a proxy server for PayPal
// processing. ProxyServerID is the durable order-to-server binding: every
// step after registration must go through the same server.
type Order struct {
	ID                  uint        `gorm:"primaryKey" json:"id"`
	OrderKey            string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_key"`
	Total               float64     `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency            string      `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	CustomerEmail       string      `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerName        string      `gorm:"type:varchar(255)" json:"customer_name"`
	Status              string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProxyServerID       uint        `gorm:"default:0;index" json:"proxy_server_id"`
	PayPalOrderID       string      `gorm:"column:paypal_order_id;type:varchar(64);index" json:"paypal_order_id"`
	PayPalTransactionID string      `gorm:"column:paypal_transaction_id;type:varchar(64)" json:"paypal_transaction_id"`
	Items               []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt           time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	OrderID         uint    `gorm:"not null;index" json:"order_id"`
	ProductID       uint    `json:"product_id"`
	Name            string  `gorm:"type:varchar(255);not null" json:"name"`
	Quantity        int     `gorm:"not null;default:1" json:"quantity"`
	Price           float64 `gorm:"type:decimal(12,2);not null" json:"price"`
	LineTotal       float64 `gorm:"type:decimal(12,2);not null" json:"line_total"`
	SKU             string  `gorm:"column:sku;type:varchar(100)" json:"sku"`
	MappedProductID uint    `gorm:"default:0" json:"mapped_product_id,omitempty"`
}

// BeforeCreate assigns an order key when the caller did not provide one.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderKey == "" {
		o.OrderKey = "pf_" + uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the order may move to the given status.
// Terminal states never transition again; everything else may fail or be
// cancelled at any time.
func (o *Order) CanTransitionTo(status string) bool {
	if o.IsTerminal() {
		return false
	}
	switch status {
	case OrderStatusRegistered:
		return o.Status == OrderStatusPending
	case OrderStatusVerified:
		return o.Status == OrderStatusRegistered
	case OrderStatusCompleted:
		return o.Status == OrderStatusRegistered || o.Status == OrderStatusVerified
	case OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// --- Static Functions ---

// FindOrderByID finds an order by ID including its items.
func FindOrderByID(db *gorm.DB, id uint) (*Order, error) {
	var order Order
	result := db.Preload("Items").Where("id = ?", id).First(&order)
	return &order, result.Error
}

// FindOrderByKey finds an order by its public order key.
func FindOrderByKey(db *gorm.DB, key string) (*Order, error) {
	var order Order
	result := db.Preload("Items").Where("order_key = ?", key).First(&order)
	return &order, result.Error
}
