package dbstore

import (
	"context"
	"database/sql"
	"math/big"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// InsertOperation appends an IN_PROGRESS audit record for the given swap and
// operation type and returns its id.
func (s *DBStore) InsertOperation(ctx context.Context, swapID string, opType types.OperationType) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO resolver_operations (swap_id, operation_type, status, started_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id
	`, swapID, opType, types.OperationInProgress).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert operation")
	}

	return id, nil
}

// UpdateOperation finalizes an operation record with its outcome. Transaction
// reference and error message are stored when non-empty.
func (s *DBStore) UpdateOperation(ctx context.Context, id int64, status types.OperationStatus, txRef, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resolver_operations
		SET status = $2,
		    tx_ref = NULLIF($3, ''),
		    error_message = NULLIF($4, ''),
		    completed_at = CASE WHEN $2 = 'IN_PROGRESS' THEN NULL ELSE NOW() END
		WHERE id = $1
	`, id, status, txRef, errMsg)
	if err != nil {
		return errors.Wrap(err, "failed to update operation")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return commonerrors.ErrOperationNotFound
	}

	return nil
}

// SetOperationReservedAmount records the liquidity hold taken for an operation.
// Reconciliation releases or commits exactly this amount, never an amount
// derived from the swap row.
func (s *DBStore) SetOperationReservedAmount(ctx context.Context, id int64, amount *big.Int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resolver_operations
		SET reserved_amount = $2::numeric
		WHERE id = $1
	`, id, amount.String())
	if err != nil {
		return errors.Wrap(err, "failed to set operation reserved amount")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return commonerrors.ErrOperationNotFound
	}

	return nil
}

// GetInProgressOperation returns the oldest IN_PROGRESS operation of the given
// type for the swap, or ErrOperationNotFound. The engine uses this as its
// idempotency guard before starting new work.
func (s *DBStore) GetInProgressOperation(ctx context.Context, swapID string, opType types.OperationType) (*types.ResolverOperation, error) {
	var (
		op       types.ResolverOperation
		txRef    sql.NullString
		errMsg   sql.NullString
		reserved sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, swap_id, operation_type, status, tx_ref, error_message, reserved_amount::text, started_at
		FROM resolver_operations
		WHERE swap_id = $1 AND operation_type = $2 AND status = $3
		ORDER BY started_at ASC
		LIMIT 1
	`, swapID, opType, types.OperationInProgress).Scan(
		&op.ID,
		&op.SwapID,
		&op.Type,
		&op.Status,
		&txRef,
		&errMsg,
		&reserved,
		&op.StartedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.ErrOperationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get in-progress operation")
	}

	if txRef.Valid {
		op.TxRef = &txRef.String
	}
	if errMsg.Valid {
		op.ErrorMessage = &errMsg.String
	}
	if reserved.Valid {
		if op.ReservedAmount, err = parseAmount(reserved.String); err != nil {
			return nil, err
		}
	}

	return &op, nil
}

// HasCompletedOperation reports whether a COMPLETED operation of the given
// type exists for the swap.
func (s *DBStore) HasCompletedOperation(ctx context.Context, swapID string, opType types.OperationType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM resolver_operations
			WHERE swap_id = $1 AND operation_type = $2 AND status = $3
		)
	`, swapID, opType, types.OperationCompleted).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check completed operation")
	}

	return exists, nil
}
