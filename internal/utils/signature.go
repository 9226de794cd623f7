package utils

import (
	"crypto/hmac"   // HMAC signing
	"crypto/sha256" // SHA-256 hash
	"encoding/hex"  // Hex encoding
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC of payload, in constant time
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}
