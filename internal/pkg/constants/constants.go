package constants

// Static route constants
const (
	CheckoutPayRoute      = "/checkout/pay/:orderKey"
	CheckoutRegisterRoute = "/checkout/register"
	CheckoutVerifyRoute   = "/checkout/verify"
	CheckoutCompleteRoute = "/checkout/complete"
	CheckoutThankYouRoute = "/checkout/thank-you"
	PaymentCallbackRoute  = "/payment/callback"
	AdminAPIRoute         = "/admin/api"
)
