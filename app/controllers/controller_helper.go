package controllers

import (
	"errors"

	"github.com/PayFoxApp/PayFox/internal/pkg/payment"
	"github.com/gofiber/fiber/v2"
)

// paymentErrorResponse maps the payment error taxonomy onto HTTP statuses.
func paymentErrorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, payment.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, payment.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, payment.ErrSignatureMismatch):
		status = fiber.StatusForbidden
	case errors.Is(err, payment.ErrRegistryExhausted):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, payment.ErrTransport):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
	})
}
