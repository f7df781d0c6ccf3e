// Package security provides security middleware for the admin core API.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware sets baseline security headers on every response.
// The service serves JSON to the console frontend, so the CSP can be
// strict: nothing is ever rendered from this origin.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// Dispute details and audit trails must not land in shared caches.
		h.Set("Cache-Control", "no-store")

		c.Next()
	}
}

// CORSMiddleware answers cross-origin requests from the console
// frontend. An allowlist entry of "*" admits any origin but disables
// credentialed requests, per the CORS spec.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAny || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions,
			}, ", "))
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Admin-Id, X-Admin-Name")
			h.Set("Access-Control-Max-Age", "86400")
			if !allowAny {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
