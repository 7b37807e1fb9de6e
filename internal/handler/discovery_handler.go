// internal/handler/discovery_handler.go
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
	"accel-link-service/pkg/xlink"
)

// DiscoveryHandler handles device discovery HTTP requests
type DiscoveryHandler struct {
	linkService *service.LinkService
	logger      *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(linkService *service.LinkService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		linkService: linkService,
		logger:      utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.GET("/first", h.FindFirstDevice)
	}
}

// ListDevices scans all transports and returns matching devices. The
// result is capped by the limit parameter; total reports how many
// actually matched.
func (h *DiscoveryHandler) ListDevices(c *gin.Context) {
	state, req := h.parseQuery(c)

	limit := 64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	devices, total, err := h.linkService.FindAll(c.Request.Context(), state, req, limit)
	if err != nil {
		utils.LinkErrorResponse(c, "Device scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved", gin.H{
		"devices": devices,
		"count":   len(devices),
		"total":   total,
	})
}

// FindFirstDevice returns the first device matching the query
func (h *DiscoveryHandler) FindFirstDevice(c *gin.Context) {
	state, req := h.parseQuery(c)

	device, err := h.linkService.FindFirst(c.Request.Context(), state, req)
	if err != nil {
		utils.LinkErrorResponse(c, "No matching device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device found", device)
}

func (h *DiscoveryHandler) parseQuery(c *gin.Context) (xlink.DeviceState, xlink.DeviceRequirements) {
	state := xlink.DeviceStateAny
	if raw := c.Query("state"); raw != "" {
		state = xlink.DeviceState(strings.ToUpper(raw))
	}

	req := xlink.DeviceRequirements{
		Name:     c.Query("name"),
		Platform: c.Query("platform"),
	}
	if raw := c.Query("protocol"); raw != "" {
		req.Protocol = xlink.Protocol(strings.ToUpper(raw))
	}
	return state, req
}
