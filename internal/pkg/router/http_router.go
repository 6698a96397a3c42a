package router

import (
	"github.com/PayFoxApp/PayFox/app/controllers"
	"github.com/PayFoxApp/PayFox/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Buyer-facing checkout flow
	app.Get(constants.CheckoutPayRoute, controllers.HandleCheckoutPage)
	app.Post(constants.CheckoutRegisterRoute, controllers.HandleRegisterOrder)
	app.Post(constants.CheckoutVerifyRoute, controllers.HandleVerifyPayment)
	app.Post(constants.CheckoutCompleteRoute, controllers.HandleCompleteOrder)

	// Server-to-server completion callback from the proxy servers
	app.Get(constants.PaymentCallbackRoute, controllers.HandlePaymentCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
