package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PayFoxApp/PayFox/app/models"
	"github.com/PayFoxApp/PayFox/app/repository"
	"github.com/PayFoxApp/PayFox/internal/pkg/env"
	"github.com/PayFoxApp/PayFox/internal/pkg/proxyapi"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ProxyClient is the outbound surface of one proxy server connection.
// *proxyapi.Client implements it; tests substitute fakes.
type ProxyClient interface {
	RegisterOrder(ctx context.Context, data *proxyapi.OrderData) (*proxyapi.Response, error)
	VerifyPayment(ctx context.Context, paypalOrderID string, orderID uint, orderTotal float64, currency string) (*proxyapi.Response, error)
	WidgetURL(amount float64, currency, callbackURL, siteURL string) string
}

// ClientFactory builds a proxy client for a resolved server.
type ClientFactory func(server *models.ProxyServer) ProxyClient

// Config carries the storefront-side URLs embedded in widget requests.
type Config struct {
	SiteURL     string
	CallbackURL string
}

// Callback is the inbound server-to-server payment notification.
type Callback struct {
	OrderID  uint
	Status   string
	Hash     string
	ServerID uint
}

// Service drives the order payment lifecycle: registration against a proxy
// server, payment verification and the completion callback. It owns no
// state; everything shared lives in the repositories.
type Service struct {
	servers   repository.ProxyServerRepository
	orders    repository.OrderRepository
	newClient ClientFactory
	cfg       Config
}

// NewService creates a payment service from injected repositories.
func NewService(servers repository.ProxyServerRepository, orders repository.OrderRepository, newClient ClientFactory, cfg Config) *Service {
	if newClient == nil {
		newClient = func(server *models.ProxyServer) ProxyClient {
			return proxyapi.NewClient(server)
		}
	}
	return &Service{servers: servers, orders: orders, newClient: newClient, cfg: cfg}
}

// NewServiceFromDB creates a payment service from a GORM DB handle, reading
// the storefront URLs from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	repos := repository.NewRepositories(db)
	siteURL := strings.TrimRight(env.GetEnv("SITE_URL", ""), "/")
	callbackURL := strings.TrimSpace(env.GetEnv("PAYMENT_CALLBACK_URL", ""))
	if callbackURL == "" && siteURL != "" {
		callbackURL = siteURL + "/payment/callback"
	}
	return NewService(repos.ProxyServer, repos.Order, nil, Config{
		SiteURL:     siteURL,
		CallbackURL: callbackURL,
	})
}

// RegisterOrder picks a server for the order, binds it, records usage once
// and forwards the order data with a signed request. On transport failure
// the order stays pending and the call is safe to retry; the remote treats
// repeated registrations of the same order as no-ops.
func (s *Service) RegisterOrder(ctx context.Context, orderID uint) (*models.ProxyServer, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, wrapNotFound(err, "order %d", orderID)
	}
	if order.IsTerminal() {
		return nil, fmt.Errorf("%w: order %d is already %s", ErrValidation, orderID, order.Status)
	}

	// A retry after a transport failure reuses the existing binding so the
	// usage counter is not charged twice for the same order.
	boundID, err := s.orders.ResolveServer(orderID)
	if err != nil {
		return nil, err
	}

	var server *models.ProxyServer
	if boundID == 0 {
		server, err = s.servers.SelectForRouting()
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRegistryExhausted
			}
			return nil, err
		}
		// Only the call that wins the write-once bind charges usage. A
		// concurrent registration that lost the race follows the winner's
		// binding instead, so the server is charged once per order.
		won, err := s.orders.BindServer(orderID, server.ID)
		if err != nil {
			return nil, err
		}
		if won {
			recorded, err := s.servers.RecordUsage(server.ID, order.Total)
			if err != nil {
				return nil, err
			}
			if !recorded {
				log.Warnf("[Payment] usage not recorded for server %d (order %d, total %v)", server.ID, orderID, order.Total)
			}
		} else {
			boundID, err = s.orders.ResolveServer(orderID)
			if err != nil {
				return nil, err
			}
			if boundID != 0 && boundID != server.ID {
				server, err = s.servers.GetByID(boundID)
				if err != nil {
					return nil, wrapNotFound(err, "bound server %d", boundID)
				}
			}
		}
	} else {
		server, err = s.servers.GetByID(boundID)
		if err != nil {
			return nil, wrapNotFound(err, "bound server %d", boundID)
		}
	}

	data := s.buildOrderData(order, server.ID)
	if _, err := s.newClient(server).RegisterOrder(ctx, data); err != nil {
		log.Errorf("[Payment] order %d registration via server %d failed: %v", orderID, server.ID, err)
		return server, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if err := s.orders.UpdateStatus(orderID, models.OrderStatusRegistered); err != nil {
		return server, err
	}
	log.Infof("[Payment] order %d registered on server %d (%s)", orderID, server.ID, server.Name)
	return server, nil
}

// VerifyPayment checks the PayPal order against the proxy server that was
// bound at registration. It never records usage and never routes fresh
// unless the binding is lost.
func (s *Service) VerifyPayment(ctx context.Context, paypalOrderID string, orderID uint) error {
	if strings.TrimSpace(paypalOrderID) == "" {
		return fmt.Errorf("%w: paypal order id is required", ErrValidation)
	}
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return wrapNotFound(err, "order %d", orderID)
	}

	server, err := s.ResolveServer(orderID, 0)
	if err != nil {
		return err
	}

	if _, err := s.newClient(server).VerifyPayment(ctx, paypalOrderID, order.ID, order.Total, order.Currency); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	order.PayPalOrderID = paypalOrderID
	if err := s.orders.Update(order); err != nil {
		return err
	}
	return s.orders.UpdateStatus(orderID, models.OrderStatusVerified)
}

// HandleCallback processes the server-to-server payment notification. The
// hash is verified against the resolved server's secret before any state
// changes; a mismatch rejects the callback outright. Returns the order's
// final status.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (string, error) {
	_ = ctx
	if cb.OrderID == 0 || cb.Status == "" || cb.Hash == "" {
		return "", fmt.Errorf("%w: order_id, status and hash are required", ErrValidation)
	}

	order, err := s.orders.GetByID(cb.OrderID)
	if err != nil {
		return "", wrapNotFound(err, "order %d", cb.OrderID)
	}

	server, err := s.ResolveServer(cb.OrderID, cb.ServerID)
	if err != nil {
		return "", err
	}

	// Hash message: orderId + status + apiKey, keyed by the server secret.
	if !proxyapi.Verify(server.APISecret, cb.Hash,
		proxyapi.FormatID(cb.OrderID), cb.Status, server.APIKey) {
		log.Warnf("[Payment] callback for order %d rejected, hash mismatch (server %d)", cb.OrderID, server.ID)
		return "", ErrSignatureMismatch
	}

	// Record which server handled the payment for audit.
	if _, err := s.orders.BindServer(cb.OrderID, server.ID); err != nil {
		return "", err
	}

	switch cb.Status {
	case "completed":
		if err := s.orders.MarkPaid(cb.OrderID, order.PayPalOrderID, ""); err != nil {
			return "", err
		}
		log.Infof("[Payment] order %d completed via callback (server %d)", cb.OrderID, server.ID)
		return models.OrderStatusCompleted, nil
	case "cancelled":
		if err := s.orders.UpdateStatus(cb.OrderID, models.OrderStatusCancelled); err != nil {
			return "", err
		}
		return models.OrderStatusCancelled, nil
	default:
		if err := s.orders.UpdateStatus(cb.OrderID, models.OrderStatusFailed); err != nil {
			return "", err
		}
		return models.OrderStatusFailed, nil
	}
}

// CompleteOrder finishes an order after the buyer approved the payment in
// the widget. The server id reported by the widget is recorded for audit.
func (s *Service) CompleteOrder(ctx context.Context, orderID uint, paypalOrderID, transactionID string, serverID uint) error {
	_ = ctx
	if orderID == 0 || strings.TrimSpace(paypalOrderID) == "" {
		return fmt.Errorf("%w: order id and paypal order id are required", ErrValidation)
	}
	if _, err := s.orders.GetByID(orderID); err != nil {
		return wrapNotFound(err, "order %d", orderID)
	}
	if serverID != 0 {
		if _, err := s.servers.GetByID(serverID); err == nil {
			if _, err := s.orders.BindServer(orderID, serverID); err != nil {
				return err
			}
		}
	}
	return s.orders.MarkPaid(orderID, paypalOrderID, transactionID)
}

// WidgetURL builds the buyer-facing PayPal buttons URL for an order, served
// by the same server the order is bound to.
func (s *Service) WidgetURL(orderID uint) (string, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return "", wrapNotFound(err, "order %d", orderID)
	}
	server, err := s.ResolveServer(orderID, 0)
	if err != nil {
		return "", err
	}
	return s.newClient(server).WidgetURL(order.Total, order.Currency, s.cfg.CallbackURL, s.cfg.SiteURL), nil
}

// ResolveServer finds the server responsible for an order. An explicit
// server id wins when it still exists, then the order's binding, then the
// pinned server (healing lost selection state), then fresh routing. A lost
// binding may switch servers mid-order; degraded but not an error.
func (s *Service) ResolveServer(orderID, explicitServerID uint) (*models.ProxyServer, error) {
	if explicitServerID != 0 {
		if server, err := s.servers.GetByID(explicitServerID); err == nil {
			return server, nil
		}
	}

	if orderID != 0 {
		boundID, err := s.orders.ResolveServer(orderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if boundID != 0 {
			server, err := s.servers.GetByID(boundID)
			if err == nil {
				return server, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			log.Warnf("[Payment] order %d bound to missing server %d, falling back", orderID, boundID)
		}
	}

	server, err := s.servers.EnsureSelected()
	if err == nil {
		return server, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	server, err = s.servers.SelectForRouting()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistryExhausted
		}
		return nil, err
	}
	return server, nil
}

func (s *Service) buildOrderData(order *models.Order, serverID uint) *proxyapi.OrderData {
	items := make([]proxyapi.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = proxyapi.OrderItemData{
			ProductID:       item.ProductID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			Price:           item.Price,
			LineTotal:       item.LineTotal,
			SKU:             item.SKU,
			MappedProductID: item.MappedProductID,
		}
	}
	return &proxyapi.OrderData{
		OrderID:       order.ID,
		OrderKey:      order.OrderKey,
		OrderTotal:    order.Total,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Items:         items,
		SiteURL:       s.cfg.SiteURL,
		ServerID:      serverID,
	}
}

func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
