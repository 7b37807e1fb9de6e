// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"accel-link-service/internal/model"
)

// OperationFilter filters the operation audit trail
type OperationFilter struct {
	DeviceName    *string
	OperationType *model.OperationType
	Status        *model.OperationStatus
	Page          int
	PerPage       int
}

// OperationRepository persists the link operation audit trail
type OperationRepository interface {
	Create(ctx context.Context, operation *model.LinkOperation) error
	List(ctx context.Context, filter *OperationFilter) ([]*model.LinkOperation, int, error)
	ListRecent(ctx context.Context, limit int) ([]*model.LinkOperation, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}
