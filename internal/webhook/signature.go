// Package webhook authenticates provider delivery callbacks and reconciles
// them onto stored email request records.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DefaultSignatureHeader is the header MailerSend puts the body signature in.
const DefaultSignatureHeader = "Mailersend-Signature"

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC-SHA256 of body under
// secret. The comparison runs in constant time over the signature bytes.
func Verify(body []byte, secret, signature string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
