package payment

import "errors"

// Error taxonomy of the payment flow. Callers decide the HTTP mapping:
// ErrNotFound -> 404, ErrValidation -> 400, ErrSignatureMismatch -> 403,
// ErrRegistryExhausted -> 503, ErrTransport -> failed result, safe to retry.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("invalid request data")
	ErrTransport         = errors.New("proxy server request failed")
	ErrSignatureMismatch = errors.New("invalid security hash")
	ErrRegistryExhausted = errors.New("no proxy server available")
)
