package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Access code hashing
)

// AdminCodeHeader carries the static admin access code
const AdminCodeHeader = "X-Admin-Code"

// AdminCodeMiddleware checks the admin access code against its bcrypt hash
func AdminCodeMiddleware(codeHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.GetHeader(AdminCodeHeader)
		if code == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Admin access code required"})
			return
		}
		// An unset hash locks the admin surface
		if codeHash == "" || bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(code)) != nil {
			logrus.WithFields(logrus.Fields{
				"path":      c.FullPath(),
				"client_ip": c.ClientIP(),
			}).Warn("Rejected admin access code")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
