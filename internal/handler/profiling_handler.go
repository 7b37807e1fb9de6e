// internal/handler/profiling_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
)

// ProfilingHandler handles transfer profiling HTTP requests
type ProfilingHandler struct {
	linkService *service.LinkService
	logger      *utils.ServiceLogger
}

// NewProfilingHandler creates a new profiling handler
func NewProfilingHandler(linkService *service.LinkService, logger *zap.Logger) *ProfilingHandler {
	return &ProfilingHandler{
		linkService: linkService,
		logger:      utils.NewServiceLogger(logger, "profiling-handler"),
	}
}

// RegisterRoutes registers profiling routes
func (h *ProfilingHandler) RegisterRoutes(router *gin.RouterGroup) {
	profiling := router.Group("/profiling")
	{
		profiling.POST("/start", h.StartProfiling)
		profiling.POST("/stop", h.StopProfiling)
		profiling.GET("/report", h.GetReport)
	}
}

// StartProfiling enables profiling and zeroes the counters
func (h *ProfilingHandler) StartProfiling(c *gin.Context) {
	h.linkService.ProfilingStart()
	utils.SuccessResponse(c, http.StatusOK, "Profiling started", nil)
}

// StopProfiling disables profiling, keeping the counters readable
func (h *ProfilingHandler) StopProfiling(c *gin.Context) {
	h.linkService.ProfilingStop()
	utils.SuccessResponse(c, http.StatusOK, "Profiling stopped", nil)
}

// GetReport returns the aggregated counters and derived throughput
func (h *ProfilingHandler) GetReport(c *gin.Context) {
	report := h.linkService.ProfilingReport()
	utils.SuccessResponse(c, http.StatusOK, "Profiling report", report)
}
