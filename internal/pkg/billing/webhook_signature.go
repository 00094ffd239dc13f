package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureScheme prefixes the hex digest in the X-Signature-HMAC header.
const SignatureScheme = "sha256="

// SignPayload returns the header value for an outgoing envelope body.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignatureScheme + hex.EncodeToString(mac.Sum(nil))
}
