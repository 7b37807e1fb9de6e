// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"

	"accel-link-service/pkg/xlink"
)

// OperationType represents the type of link operation
type OperationType string

const (
	OperationTypeConnect  OperationType = "CONNECT"
	OperationTypeBoot     OperationType = "BOOT"
	OperationTypeReset    OperationType = "RESET"
	OperationTypeResetAll OperationType = "RESET_ALL"
	OperationTypeDiscover OperationType = "DISCOVER"
)

// OperationStatus represents the outcome of a link operation
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
	OperationStatusTimeout OperationStatus = "TIMEOUT"
)

// LinkOperation is one audit record of a link lifecycle operation.
// Registry state itself is never persisted; only this trail is.
type LinkOperation struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	LinkID        *int64          `json:"link_id,omitempty" db:"link_id"`
	DeviceName    string          `json:"device_name" db:"device_name"`
	Protocol      string          `json:"protocol" db:"protocol"`
	OperationType OperationType   `json:"operation_type" db:"operation_type"`
	Status        OperationStatus `json:"status" db:"status"`
	DurationMs    int64           `json:"duration_ms" db:"duration_ms"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// NewLinkOperation builds an audit record for a completed operation
func NewLinkOperation(opType OperationType, device xlink.DeviceDescriptor, duration time.Duration, opErr error) *LinkOperation {
	op := &LinkOperation{
		ID:            uuid.New(),
		DeviceName:    device.Name,
		Protocol:      string(device.Protocol),
		OperationType: opType,
		Status:        OperationStatusSuccess,
		DurationMs:    duration.Milliseconds(),
		CreatedAt:     time.Now(),
	}
	if opErr != nil {
		op.Status = OperationStatusFailed
		msg := opErr.Error()
		op.ErrorMessage = &msg
	}
	return op
}

// WithLinkID attaches the allocated link identifier to the record
func (op *LinkOperation) WithLinkID(id xlink.LinkID) *LinkOperation {
	value := int64(id)
	op.LinkID = &value
	return op
}

// IsFailure checks whether the operation did not complete
func (op *LinkOperation) IsFailure() bool {
	return op.Status != OperationStatusSuccess
}
