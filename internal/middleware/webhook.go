package middleware

import (
	"bytes"    // Body buffer
	"io"       // Body reading
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"contest_ledger/internal/utils" // Signature helpers
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds the body read for signature checks
const maxWebhookBody = 1 << 20

// WebhookSignatureMiddleware verifies gateway callbacks and restores the body for binding
func WebhookSignatureMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
			return
		}
		if !utils.VerifySignature(body, c.GetHeader(SignatureHeader), secret) {
			logrus.WithField("client_ip", c.ClientIP()).Warn("Webhook signature mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
