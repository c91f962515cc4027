package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware allows the configured origins on every route, including the
// SSE endpoints. "*" allows any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// extractUserID resolves the caller identity for session ownership.
// Priority: X-User-ID > X-Forwarded-User (oauth2-proxy). Empty means the
// caller sent no identity; requireUserID rejects those before handlers run.
func extractUserID(c *gin.Context) string {
	if user := c.GetHeader("X-User-ID"); user != "" {
		return user
	}
	return c.GetHeader("X-Forwarded-User")
}

// requireUserID rejects session-scoped requests that carry no identity
// header with 403.
func requireUserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if extractUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing user identity header"})
			return
		}
		c.Next()
	}
}
