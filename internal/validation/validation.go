// Package validation provides input validation middleware for the admin core API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// idRegex matches the ids this service mints ("dsp_..." etc.) as well as
// marketplace-side ids, which are alphanumeric with - and _.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks whether a path/query id is well-formed.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
// Rejects malformed ids before they reach a handler or a SQL query.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be 1-64 characters of [a-zA-Z0-9_-]",
			})
			return
		}
		c.Next()
	}
}
