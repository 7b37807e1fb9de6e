// internal/middleware/recovery_middleware_test.go
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"accel-link-service/internal/utils"
	"accel-link-service/pkg/xlink"
)

func newRecoveryRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop()))
	router.GET("/taxonomy", func(c *gin.Context) {
		panic(fmt.Errorf("pool: %w", xlink.ErrResourceExhausted))
	})
	router.GET("/plain", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func TestRecoveryMiddleware_TaxonomyErrorKeepsItsStatus(t *testing.T) {
	router := newRecoveryRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/taxonomy", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RESOURCE_EXHAUSTED", resp.Error.Code)
}

func TestRecoveryMiddleware_PlainPanicIsInternalError(t *testing.T) {
	router := newRecoveryRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}
