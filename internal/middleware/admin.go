package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// defaultAdminKey is the development fallback when ADMIN_API_KEY is unset.
const defaultAdminKey = "admin-dev-key-change-in-production"

// AdminMiddleware guards operational endpoints such as data ingest and
// cache management behind a shared API key.
type AdminMiddleware struct {
	apiKey string
}

// NewAdminMiddleware reads the admin key from the ADMIN_API_KEY environment
// variable, falling back to a development default.
func NewAdminMiddleware() *AdminMiddleware {
	apiKey := os.Getenv("ADMIN_API_KEY")
	if apiKey == "" {
		apiKey = defaultAdminKey
	}

	return &AdminMiddleware{
		apiKey: apiKey,
	}
}

// RequireAdminAuth accepts the admin key as a Bearer token, an X-API-Key
// header, or an api_key query parameter.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" && parts[1] == am.apiKey {
				c.Next()
				return
			}
		}

		if c.GetHeader("X-API-Key") == am.apiKey {
			c.Next()
			return
		}

		// Query parameter fallback is for development convenience only.
		if c.Query("api_key") == am.apiKey {
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
		c.Abort()
	}
}

// ValidateAdminKey reports whether the given key matches the configured one.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	return key == am.apiKey
}
