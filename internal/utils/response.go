// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"accel-link-service/pkg/xlink"
)

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	c.JSON(statusCode, response)
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	ErrorResponseWithData(c, statusCode, message, err, nil)
}

// ErrorResponseWithData sends an error response that still carries data,
// for operations that partially took effect before failing
func ErrorResponseWithData(c *gin.Context, statusCode int, message string, err error, data interface{}) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiError.Details = err.Error()
	}

	response := APIResponse{
		Success:   false,
		Message:   message,
		Data:      data,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	c.JSON(statusCode, response)
}

// LinkErrorResponse maps a link manager error onto the matching HTTP
// status and sends it
func LinkErrorResponse(c *gin.Context, message string, err error) {
	ErrorResponse(c, StatusForLinkError(err), message, err)
}

// StatusForLinkError translates the public error taxonomy to HTTP status
// codes
func StatusForLinkError(err error) int {
	switch {
	case errors.Is(err, xlink.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, xlink.ErrResourceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, xlink.ErrDeviceNotFound), errors.Is(err, xlink.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, xlink.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, xlink.ErrAlreadyInState):
		return http.StatusConflict
	case errors.Is(err, xlink.ErrCommunication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusBadGateway:
		return "COMMUNICATION_FAILURE"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	case http.StatusServiceUnavailable:
		return "RESOURCE_EXHAUSTED"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}
