// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/utils"
)

// RecoveryMiddleware creates panic recovery middleware. A panic carrying
// a link taxonomy error is mapped to its proper HTTP status; anything
// else becomes a plain 500.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		fields := []zap.Field{
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("client_ip", c.ClientIP()),
			zap.Stack("stacktrace"),
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
		logger.Error("Panic recovered", fields...)

		if err, ok := recovered.(error); ok {
			utils.ErrorResponse(c, utils.StatusForLinkError(err), "Request failed", err)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
	})
}
