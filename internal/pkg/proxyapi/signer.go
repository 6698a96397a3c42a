package proxyapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sign computes the hex HMAC-SHA256 of the byte-exact concatenation of parts
// under the server's API secret. The concatenation order is part of the wire
// contract with the proxy server and must never change.
func Sign(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over parts and compares it against the
// provided hex hash in constant time.
func Verify(secret, signature string, parts ...string) bool {
	if signature == "" || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		mac.Write([]byte(part))
	}
	return hmac.Equal(mac.Sum(nil), provided)
}

// FormatAmount renders a monetary amount the way it appears in signed
// messages and query parameters: shortest exact decimal form, no trailing
// zeros. Both sides of the wire contract rely on this form.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// FormatID renders a numeric identifier for signed messages.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// FormatTimestamp renders a unix timestamp for signed messages.
func FormatTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 10)
}
