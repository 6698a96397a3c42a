package repository

import (
	"github.com/PayFoxApp/PayFox/app/models"
	"gorm.io/gorm"
)

// ProxyServerRepository defines the registry of configured proxy servers and
// the routing policy that distributes payment traffic across them.
type ProxyServerRepository interface {
	Create(server *models.ProxyServer) error
	GetByID(id uint) (*models.ProxyServer, error)
	GetAll() ([]models.ProxyServer, error)
	Update(server *models.ProxyServer) error
	// Delete removes a server. It refuses to delete the last remaining row
	// and reselects a new pinned server if the deleted one was pinned.
	Delete(id uint) error

	// GetSelected returns the pinned server or gorm.ErrRecordNotFound.
	GetSelected() (*models.ProxyServer, error)
	// EnsureSelected returns the pinned server, healing missing selection
	// state first: if no row is pinned it pins the first active server by
	// (priority, id), or the first row by id when none is active.
	EnsureSelected() (*models.ProxyServer, error)
	// SetSelected pins one server. Clearing and setting happen in a single
	// transaction so readers never observe zero or multiple pinned rows.
	SetSelected(id uint) error

	// SelectForRouting picks the server for a new payment. A pinned server
	// always wins regardless of its capacity; otherwise active servers with
	// headroom are tried by (priority, last_used, id), then the least
	// saturated active server, then any active server, then any row at all.
	SelectForRouting() (*models.ProxyServer, error)

	// RecordUsage atomically adds amount to the server's usage counter and
	// stamps last_used. It is the only operation that accumulates usage.
	// Returns false without touching anything for unknown ids or amounts <= 0.
	RecordUsage(id uint, amount float64) (bool, error)
	ResetUsage(id uint) error

	// SeedDefault inserts a single server from legacy flat configuration
	// when the registry is empty. No-op otherwise.
	SeedDefault(name, url, apiKey, apiSecret string) error

	Count() (int64, error)
	GetAllStats() ([]models.ProxyServerStats, error)
}

// OrderRepository defines the order store operations the payment flow needs,
// including the durable order-to-server binding.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByKey(key string) (*models.Order, error)
	Update(order *models.Order) error

	// BindServer records which server was chosen for an order. The binding
	// is write-once: a second call for the same order is a no-op. Returns
	// whether this call won the write, so callers can tell a fresh binding
	// from a lost race against a concurrent registration.
	BindServer(orderID, serverID uint) (bool, error)
	// ResolveServer returns the bound server id or 0 when no binding exists.
	ResolveServer(orderID uint) (uint, error)

	// UpdateStatus transitions the order, honoring the model's state guard.
	UpdateStatus(orderID uint, status string) error
	// MarkPaid stores the PayPal identifiers and completes the order.
	MarkPaid(orderID uint, paypalOrderID, transactionID string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	ProxyServer ProxyServerRepository
	Order       OrderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ProxyServer: NewProxyServerRepository(db),
		Order:       NewOrderRepository(db),
	}
}
