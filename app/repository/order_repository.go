package repository

import (
	"fmt"

	"github.com/PayFoxApp/PayFox/app/models"
	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates a new order including its items
func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID retrieves an order by its ID
func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	return models.FindOrderByID(r.db, id)
}

// GetByKey retrieves an order by its public order key
func (r *orderRepository) GetByKey(key string) (*models.Order, error) {
	return models.FindOrderByKey(r.db, key)
}

// Update saves an order
func (r *orderRepository) Update(order *models.Order) error {
	return r.db.Save(order).Error
}

// BindServer records the chosen server against the order. The binding is
// write-once: the WHERE clause only matches orders without a binding, so a
// repeated or concurrent call changes nothing. Returns whether this call
// actually wrote the binding; a caller that lost the race must not treat the
// order as freshly bound.
func (r *orderRepository) BindServer(orderID, serverID uint) (bool, error) {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND proxy_server_id = 0", orderID).
		UpdateColumn("proxy_server_id", serverID)
	return result.RowsAffected > 0, result.Error
}

// ResolveServer returns the server bound to the order, 0 when none was
// recorded yet.
func (r *orderRepository) ResolveServer(orderID uint) (uint, error) {
	var order models.Order
	err := r.db.Select("proxy_server_id").Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return 0, err
	}
	return order.ProxyServerID, nil
}

// UpdateStatus transitions the order to the given status. Transitions that
// the state machine forbids (leaving a terminal state, skipping steps) are
// rejected.
func (r *orderRepository) UpdateStatus(orderID uint, status string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		if order.Status == status {
			return nil
		}
		if !order.CanTransitionTo(status) {
			return fmt.Errorf("order %d cannot transition from %s to %s", orderID, order.Status, status)
		}
		return tx.Model(&models.Order{}).Where("id = ?", orderID).
			UpdateColumn("status", status).Error
	})
}

// MarkPaid stores the PayPal identifiers and completes the order in one
// transaction.
func (r *orderRepository) MarkPaid(orderID uint, paypalOrderID, transactionID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		if order.Status == models.OrderStatusCompleted {
			return nil
		}
		if !order.CanTransitionTo(models.OrderStatusCompleted) {
			return fmt.Errorf("order %d cannot be completed from status %s", orderID, order.Status)
		}
		updates := map[string]interface{}{
			"status": models.OrderStatusCompleted,
		}
		if paypalOrderID != "" {
			updates["paypal_order_id"] = paypalOrderID
		}
		if transactionID != "" {
			updates["paypal_transaction_id"] = transactionID
		}
		return tx.Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
	})
}
