// internal/handler/operation_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
)

// OperationHandler serves the link operation audit trail
type OperationHandler struct {
	linkService *service.LinkService
	logger      *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(linkService *service.LinkService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		linkService: linkService,
		logger:      utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// RegisterRoutes registers operation routes
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/operations", h.ListOperations)
}

// ListOperations returns the most recent audit records
func (h *OperationHandler) ListOperations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	operations, err := h.linkService.RecentOperations(c.Request.Context(), limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list operations", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", gin.H{
		"operations": operations,
		"count":      len(operations),
	})
}
