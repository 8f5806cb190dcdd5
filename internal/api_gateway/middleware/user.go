package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the caller identity set by the upstream auth gateway
	UserIDHeader = "X-User-ID"

	// UserIDKey is the key used to store the caller identity in the context
	UserIDKey = "user_id"
)

// RequireUser rejects requests that reach the bridge without a caller identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing "+UserIDHeader+" header")
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID retrieves the caller identity from the gin context if present
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
