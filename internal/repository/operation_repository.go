// internal/repository/operation_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"accel-link-service/internal/database"
	"accel-link-service/internal/model"
)

// operationRepository implements OperationRepository interface
type operationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *database.DB, logger *zap.Logger) OperationRepository {
	return &operationRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a completed link operation
func (r *operationRepository) Create(ctx context.Context, operation *model.LinkOperation) error {
	query := `
		INSERT INTO link_operations (
			id, link_id, device_name, protocol, operation_type,
			status, duration_ms, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.LinkID, operation.DeviceName,
		operation.Protocol, operation.OperationType, operation.Status,
		operation.DurationMs, operation.ErrorMessage, operation.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create operation record", zap.Error(err))
		return fmt.Errorf("failed to create operation record: %w", err)
	}

	return nil
}

// List retrieves operations with filtering and pagination
func (r *operationRepository) List(ctx context.Context, filter *OperationFilter) ([]*model.LinkOperation, int, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.DeviceName != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_name = $%d", argIndex))
		args = append(args, *filter.DeviceName)
		argIndex++
	}

	if filter.OperationType != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("operation_type = $%d", argIndex))
		args = append(args, *filter.OperationType)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM link_operations %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	query := fmt.Sprintf(`
		SELECT id, link_id, device_name, protocol, operation_type,
			   status, duration_ms, error_message, created_at
		FROM link_operations %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, perPage, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.LinkOperation{}
	for rows.Next() {
		operation := &model.LinkOperation{}
		err := rows.Scan(
			&operation.ID, &operation.LinkID, &operation.DeviceName,
			&operation.Protocol, &operation.OperationType, &operation.Status,
			&operation.DurationMs, &operation.ErrorMessage, &operation.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan operation row", zap.Error(err))
			continue
		}
		operations = append(operations, operation)
	}

	return operations, total, nil
}

// ListRecent retrieves the most recent operations
func (r *operationRepository) ListRecent(ctx context.Context, limit int) ([]*model.LinkOperation, error) {
	query := `
		SELECT id, link_id, device_name, protocol, operation_type,
			   status, duration_ms, error_message, created_at
		FROM link_operations
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.LinkOperation{}
	for rows.Next() {
		operation := &model.LinkOperation{}
		err := rows.Scan(
			&operation.ID, &operation.LinkID, &operation.DeviceName,
			&operation.Protocol, &operation.OperationType, &operation.Status,
			&operation.DurationMs, &operation.ErrorMessage, &operation.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan operation row", zap.Error(err))
			continue
		}
		operations = append(operations, operation)
	}

	return operations, nil
}

// DeleteOldOperations removes audit records older than the cutoff
func (r *operationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM link_operations WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old operations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Deleted old operations",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("older_than", olderThan),
	)

	return rowsAffected, nil
}
