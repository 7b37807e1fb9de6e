// internal/handler/link_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
	"accel-link-service/pkg/xlink"
)

// LinkHandler handles link lifecycle HTTP requests
type LinkHandler struct {
	linkService *service.LinkService
	logger      *utils.ServiceLogger
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkService *service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		logger:      utils.NewServiceLogger(logger, "link-handler"),
	}
}

// RegisterRoutes registers link routes
func (h *LinkHandler) RegisterRoutes(router *gin.RouterGroup) {
	links := router.Group("/links")
	{
		links.POST("", h.ConnectLink)
		links.GET("", h.ListLinks)
		links.GET("/:link_id", h.GetLink)
		links.DELETE("/:link_id", h.ResetLink)
		links.POST("/reset-all", h.ResetAll)
	}

	router.POST("/devices/boot", h.BootDevice)
}

// ConnectLinkRequest is the connect request payload
type ConnectLinkRequest struct {
	Name     string `json:"name" binding:"required"`
	Protocol string `json:"protocol" binding:"required"`
	Platform string `json:"platform"`
	State    string `json:"state"`
}

// BootDeviceRequest is the boot request payload
type BootDeviceRequest struct {
	Name      string `json:"name" binding:"required"`
	Protocol  string `json:"protocol" binding:"required"`
	ImagePath string `json:"image_path" binding:"required"`
}

// ConnectLink brings a link up against the requested device
func (h *LinkHandler) ConnectLink(c *gin.Context) {
	var req ConnectLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	desc := xlink.DeviceDescriptor{
		Name:     req.Name,
		Protocol: xlink.Protocol(req.Protocol),
		Platform: req.Platform,
		State:    xlink.DeviceState(req.State),
	}
	if desc.State == "" {
		desc.State = xlink.DeviceStateAny
	}

	id, err := h.linkService.Connect(c.Request.Context(), desc)
	if err != nil {
		utils.LinkErrorResponse(c, "Failed to connect link", err)
		return
	}

	info, err := h.linkService.Lookup(id)
	if err != nil {
		utils.LinkErrorResponse(c, "Link vanished after connect", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Link connected", info)
}

// ListLinks returns all active links
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links := h.linkService.Links()
	utils.SuccessResponse(c, http.StatusOK, "Active links retrieved", gin.H{
		"links": links,
		"count": len(links),
	})
}

// GetLink returns one active link
func (h *LinkHandler) GetLink(c *gin.Context) {
	id, ok := h.parseLinkID(c)
	if !ok {
		return
	}

	info, err := h.linkService.Lookup(id)
	if err != nil {
		utils.LinkErrorResponse(c, "Link not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Link retrieved", info)
}

// ResetLink tears one link down and frees its slot. A transport failure
// during the remote reset still frees the slot, so that outcome is
// reported as an error with the release confirmed in the body.
func (h *LinkHandler) ResetLink(c *gin.Context) {
	id, ok := h.parseLinkID(c)
	if !ok {
		return
	}

	if err := h.linkService.Reset(c.Request.Context(), id); err != nil {
		if errors.Is(err, xlink.ErrLinkNotFound) || errors.Is(err, xlink.ErrAlreadyInState) {
			utils.LinkErrorResponse(c, "Failed to reset link", err)
			return
		}
		utils.ErrorResponseWithData(c, utils.StatusForLinkError(err), "Remote reset failed, link released", err, gin.H{
			"link_id":  uint32(id),
			"released": true,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Link reset", gin.H{
		"link_id": uint32(id),
	})
}

// ResetAll tears all active links down, best effort
func (h *LinkHandler) ResetAll(c *gin.Context) {
	reset, failed := h.linkService.ResetAll(c.Request.Context())
	utils.SuccessResponse(c, http.StatusOK, "Reset-all completed", gin.H{
		"links_reset":  reset,
		"links_failed": failed,
	})
}

// BootDevice uploads a firmware image to an unconnected device
func (h *LinkHandler) BootDevice(c *gin.Context) {
	var req BootDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	desc := xlink.DeviceDescriptor{
		Name:     req.Name,
		Protocol: xlink.Protocol(req.Protocol),
		State:    xlink.DeviceStateUnbooted,
	}

	if err := h.linkService.Boot(c.Request.Context(), desc, req.ImagePath); err != nil {
		utils.LinkErrorResponse(c, "Failed to boot device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device booted", gin.H{
		"device": req.Name,
	})
}

func (h *LinkHandler) parseLinkID(c *gin.Context) (xlink.LinkID, bool) {
	raw := c.Param("link_id")
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid link ID", err)
		return xlink.InvalidLinkID, false
	}
	return xlink.LinkID(value), true
}
