package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/PayFoxApp/PayFox/app/models"
	"github.com/PayFoxApp/PayFox/internal/pkg/cache"
	"github.com/PayFoxApp/PayFox/internal/pkg/constants"
	"github.com/PayFoxApp/PayFox/internal/pkg/database"
	"github.com/PayFoxApp/PayFox/internal/pkg/payment"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const callbackDedupeTTL = 24 * time.Hour

// callbackInFlight marks a claimed callback whose outcome is not recorded yet.
const callbackInFlight = "in_flight"

// HandlePaymentCallback processes the server-to-server notification a proxy
// server sends once the buyer finished (or abandoned) the PayPal flow. The
// signature is verified before any order mutation; a replayed callback is
// answered without reprocessing. The dedupe key is claimed atomically so two
// simultaneous deliveries cannot both process.
func HandlePaymentCallback(c *fiber.Ctx) error {
	cb := payment.Callback{
		OrderID:  uint(c.QueryInt("order_id")),
		Status:   c.Query("status"),
		Hash:     c.Query("hash"),
		ServerID: uint(c.QueryInt("server_id")),
	}

	dedupeKey := fmt.Sprintf("payment_callback:%d:%s", cb.OrderID, cb.Status)
	claimed, err := cache.SetNX(dedupeKey, callbackInFlight, callbackDedupeTTL)
	if err != nil {
		// Cache down: process anyway, MarkPaid stays idempotent.
		log.Warnf("[Callback] dedupe unavailable for order %d: %v", cb.OrderID, err)
		claimed = true
	}
	if !claimed {
		seen, _ := cache.Get(dedupeKey)
		log.Infof("[Callback] duplicate callback for order %d (%s), skipping", cb.OrderID, cb.Status)
		return redirectForStatus(c, seen)
	}

	svc := payment.NewServiceFromDB(database.GetDB())
	finalStatus, err := svc.HandleCallback(c.UserContext(), cb)
	if err != nil {
		// Release the claim so a legitimate retry can still be processed.
		if delErr := cache.Delete(dedupeKey); delErr != nil {
			log.Warnf("[Callback] could not release claim for order %d: %v", cb.OrderID, delErr)
		}
		if errors.Is(err, payment.ErrSignatureMismatch) {
			return c.Status(fiber.StatusForbidden).SendString("Invalid security hash")
		}
		return paymentErrorResponse(c, err)
	}

	if err := cache.Set(dedupeKey, finalStatus, callbackDedupeTTL); err != nil {
		log.Warnf("[Callback] could not record callback for order %d: %v", cb.OrderID, err)
	}

	return redirectForStatus(c, finalStatus)
}

// redirectForStatus sends the buyer's browser to the matching storefront
// page: order received, cart (after a cancel) or back to checkout.
func redirectForStatus(c *fiber.Ctx, status string) error {
	switch status {
	case models.OrderStatusCompleted:
		return c.Redirect(constants.CheckoutThankYouRoute, fiber.StatusFound)
	case models.OrderStatusCancelled:
		return c.Redirect("/cart", fiber.StatusFound)
	default:
		return c.Redirect("/checkout", fiber.StatusFound)
	}
}
