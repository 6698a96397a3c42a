package controllers

import (
	"errors"

	"github.com/PayFoxApp/PayFox/app/repository"
	"github.com/PayFoxApp/PayFox/internal/pkg/constants"
	"github.com/PayFoxApp/PayFox/internal/pkg/database"
	"github.com/PayFoxApp/PayFox/internal/pkg/payment"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// HandleCheckoutPage renders the payment page with the PayPal buttons widget
// served by the proxy server the order is routed to.
func HandleCheckoutPage(c *fiber.Ctx) error {
	orderKey := c.Params("orderKey")
	if orderKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "order key is required",
		})
	}

	orders := repository.GetGlobalFactory().GetOrderRepository()
	order, err := orders.GetByKey(orderKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "order not found",
			})
		}
		return err
	}

	svc := payment.NewServiceFromDB(database.GetDB())
	widgetURL, err := svc.WidgetURL(order.ID)
	if err != nil {
		return paymentErrorResponse(c, err)
	}

	return c.Render("payment", fiber.Map{
		"OrderKey":  order.OrderKey,
		"OrderID":   order.ID,
		"Total":     order.Total,
		"Currency":  order.Currency,
		"WidgetURL": widgetURL,
	})
}

type registerOrderRequest struct {
	OrderID uint `json:"order_id"`
}

// HandleRegisterOrder forwards an order to a proxy server. This is the only
// step that consumes registry capacity; retries after a transport failure
// reuse the binding and are not charged again.
func HandleRegisterOrder(c *fiber.Ctx) error {
	var req registerOrderRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "order_id is required",
		})
	}

	svc := payment.NewServiceFromDB(database.GetDB())
	server, err := svc.RegisterOrder(c.UserContext(), req.OrderID)
	if err != nil {
		return paymentErrorResponse(c, err)
	}

	widgetURL, err := svc.WidgetURL(req.OrderID)
	if err != nil {
		return paymentErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"server_id":  server.ID,
		"widget_url": widgetURL,
	})
}

type verifyPaymentRequest struct {
	OrderID       uint   `json:"order_id"`
	PayPalOrderID string `json:"paypal_order_id"`
}

// HandleVerifyPayment checks the PayPal order state with the proxy server
// the order was registered on.
func HandleVerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == 0 || req.PayPalOrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "order_id and paypal_order_id are required",
		})
	}

	svc := payment.NewServiceFromDB(database.GetDB())
	if err := svc.VerifyPayment(c.UserContext(), req.PayPalOrderID, req.OrderID); err != nil {
		return paymentErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

type completeOrderRequest struct {
	OrderID       uint   `json:"order_id"`
	PayPalOrderID string `json:"paypal_order_id"`
	TransactionID string `json:"transaction_id"`
	ServerID      uint   `json:"server_id"`
}

// HandleCompleteOrder finishes an order after the buyer approved the payment
// inside the widget.
func HandleCompleteOrder(c *fiber.Ctx) error {
	var req completeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid request body",
		})
	}

	svc := payment.NewServiceFromDB(database.GetDB())
	if err := svc.CompleteOrder(c.UserContext(), req.OrderID, req.PayPalOrderID, req.TransactionID, req.ServerID); err != nil {
		log.Errorf("[Checkout] completing order %d failed: %v", req.OrderID, err)
		return paymentErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"redirect": constants.CheckoutThankYouRoute,
	})
}
