package webhook

import (
	"crypto/subtle"
	"net/http"

	"portal_usap_backend/platform/httpkit"
	"portal_usap_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// SecretHeader carries the shared secret configured in the CRM workflow.
const SecretHeader = "X-Webhook-Secret"

// SharedSecretMiddleware rejects deliveries whose secret header does not match.
// An empty configured secret rejects everything.
func SharedSecretMiddleware(secret string, log *logger.Logger) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(SecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			log.Warn("webhook rejected: bad secret", "path", c.FullPath(), "clientIp", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{
				Error:   "invalid webhook secret",
				Message: http.StatusText(http.StatusUnauthorized),
			})
			return
		}
		c.Next()
	}
}
