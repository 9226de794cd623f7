package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"strings"  // Status normalisation

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"contest_ledger/internal/ledger" // Ledger service
)

// PaymentWebhookRequest is the gateway's deposit notification
type PaymentWebhookRequest struct {
	Reference string `json:"reference" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// Gateway statuses that confirm a capture
var capturedStatuses = map[string]bool{"COMPLETED": true, "SUCCEEDED": true, "CAPTURED": true}

// PaymentWebhookHandler credits confirmed deposits. Only a reference that is
// already credited is acknowledged without crediting; an in-flight duplicate
// gets 409 so the gateway delivers it again.
func PaymentWebhookHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhookRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}
		fields := logrus.Fields{"reference": req.Reference, "status": req.Status}
		// Failed or pending payments credit nothing
		if !capturedStatuses[strings.ToUpper(req.Status)] {
			logrus.WithFields(fields).Info("Ignoring non-captured payment notification")
			c.JSON(http.StatusOK, gin.H{"received": true, "credited": false})
			return
		}
		res, err := svc.ConfirmDeposit(c.Request.Context(), req.Reference) // Credit at most once
		switch {
		case errors.Is(err, ledger.ErrDuplicateReference):
			// Another delivery is crediting it; a non-2xx keeps the gateway retrying
			// in case that delivery fails
			c.JSON(http.StatusConflict, gin.H{"error": "Deposit confirmation in progress", "retry": true})
		case err != nil:
			logrus.WithFields(fields).WithError(err).Error("Deposit confirmation failed")
			code := statusFor(err)
			if code != http.StatusInternalServerError {
				code = http.StatusBadRequest // Gateway retries only on server errors
			}
			c.JSON(code, gin.H{"error": errorMessage(err)})
		default:
			c.JSON(http.StatusOK, gin.H{"received": true, "credited": !res.Replayed})
		}
	}
}
