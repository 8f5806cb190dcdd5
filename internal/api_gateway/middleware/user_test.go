package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(captured *string) *gin.Engine {
		router := gin.New()
		router.Use(CorrelationID())
		router.Use(RequireUser())
		router.GET("/me", func(c *gin.Context) {
			*captured = GetUserID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("StoresTheCallerIdentity", func(t *testing.T) {
		var captured string
		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(UserIDHeader, " user-1 ")

		rr := httptest.NewRecorder()
		newRouter(&captured).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", captured)
	})

	t.Run("RejectsMissingIdentity", func(t *testing.T) {
		var captured string
		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(CorrelationIDHeader, "corr-1")

		rr := httptest.NewRecorder()
		newRouter(&captured).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, captured)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		errorField, ok := body["error"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "UNAUTHORIZED", errorField["code"])
		assert.Equal(t, "corr-1", body["correlation_id"])
	})
}
