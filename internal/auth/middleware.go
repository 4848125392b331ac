// Package auth provides the shared-secret middlewares guarding the owner
// and oracle surfaces. Two identities exist: the policy owner (registry and
// override operations) and the analysis oracle (verdict submission).
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// AdminSecretHeader carries the policy-owner shared secret.
	AdminSecretHeader = "X-Admin-Secret"
	// OracleSecretHeader carries the oracle-identity shared secret.
	OracleSecretHeader = "X-Oracle-Secret"
)

// RequireSecret checks a header against a shared secret in constant time.
// An empty configured secret locks the surface entirely rather than leaving
// it open.
func RequireSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "This surface is not enabled",
			})
			return
		}
		provided := c.GetHeader(header)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or missing " + header,
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin guards owner-only routes.
func RequireAdmin(secret string) gin.HandlerFunc {
	return RequireSecret(AdminSecretHeader, secret)
}

// RequireOracle guards oracle-identity routes.
func RequireOracle(secret string) gin.HandlerFunc {
	return RequireSecret(OracleSecretHeader, secret)
}
