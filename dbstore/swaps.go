package dbstore

import (
	"context"
	"database/sql"
	"encoding/hex"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

const swapColumns = `
		id,
		source_chain,
		target_chain,
		source_token,
		target_token,
		target_address,
		source_amount::text,
		expected_amount::text,
		hash_lock,
		preimage,
		user_htlc_contract,
		pool_htlc_contract,
		status,
		created_at,
		updated_at,
		pool_claimed_at`

// ListPendingSwaps returns up to limit PENDING swaps originating on the given
// chain with a non-empty source HTLC reference, oldest first. FIFO fairness:
// no priority reordering.
func (s *DBStore) ListPendingSwaps(ctx context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	return s.listSwaps(ctx, sourceChain, types.SwapStatusPending, limit)
}

// ListFulfilledSwaps returns up to limit POOL_FULFILLED swaps originating on
// the given chain, oldest first.
func (s *DBStore) ListFulfilledSwaps(ctx context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	return s.listSwaps(ctx, sourceChain, types.SwapStatusPoolFulfilled, limit)
}

// ListExpiredSwaps returns up to limit EXPIRED swaps originating on the given
// chain that still carry a pool contract to reclaim, oldest first.
func (s *DBStore) ListExpiredSwaps(ctx context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+swapColumns+`
		FROM swap_requests
		WHERE source_chain = $1
		  AND status = $2
		  AND pool_htlc_contract IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $3
	`, sourceChain, types.SwapStatusExpired, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list expired swap requests")
	}
	defer rows.Close()

	var swaps []*types.SwapRequest
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

func (s *DBStore) listSwaps(ctx context.Context, sourceChain string, status types.SwapStatus, limit int) ([]*types.SwapRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+swapColumns+`
		FROM swap_requests
		WHERE source_chain = $1
		  AND status = $2
		  AND user_htlc_contract <> ''
		ORDER BY created_at ASC
		LIMIT $3
	`, sourceChain, status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list swap requests")
	}
	defer rows.Close()

	var swaps []*types.SwapRequest
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

// GetSwapByID returns the swap with the given id, or ErrSwapNotFound.
func (s *DBStore) GetSwapByID(ctx context.Context, id string) (*types.SwapRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+swapColumns+`
		FROM swap_requests
		WHERE id = $1
	`, id)

	swap, err := scanSwap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.ErrSwapNotFound
	}
	return swap, err
}

// UpdateSwapStatus transitions the swap from expected to next status. The
// update commits only if the row is still in the expected prior status,
// preventing lost updates if two engines race.
func (s *DBStore) UpdateSwapStatus(ctx context.Context, id string, expected, next types.SwapStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE swap_requests
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return errors.Wrap(err, "failed to update swap status")
	}

	return checkConflict(result)
}

// MarkPoolFulfilled transitions a PENDING swap to POOL_FULFILLED and records
// the pool's destination contract id in the same write.
func (s *DBStore) MarkPoolFulfilled(ctx context.Context, id, poolContract string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE swap_requests
		SET status = $3,
		    pool_htlc_contract = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, types.SwapStatusPending, types.SwapStatusPoolFulfilled, poolContract)
	if err != nil {
		return errors.Wrap(err, "failed to mark swap pool fulfilled")
	}

	return checkConflict(result)
}

// MarkUserClaimed transitions a POOL_FULFILLED swap to USER_CLAIMED, storing
// the verified preimage and the pool claim time.
func (s *DBStore) MarkUserClaimed(ctx context.Context, id string, preimage []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE swap_requests
		SET status = $3,
		    preimage = $4,
		    pool_claimed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, types.SwapStatusPoolFulfilled, types.SwapStatusUserClaimed, hex.EncodeToString(preimage))
	if err != nil {
		return errors.Wrap(err, "failed to mark swap user claimed")
	}

	return checkConflict(result)
}

func checkConflict(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return commonerrors.ErrStatusConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwap(row rowScanner) (*types.SwapRequest, error) {
	var (
		swap         types.SwapRequest
		sourceAmount string
		expected     string
		hashLock     string
		preimage     sql.NullString
		poolContract sql.NullString
		poolClaimed  sql.NullTime
	)

	err := row.Scan(
		&swap.ID,
		&swap.SourceChain,
		&swap.TargetChain,
		&swap.SourceToken,
		&swap.TargetToken,
		&swap.TargetAddress,
		&sourceAmount,
		&expected,
		&hashLock,
		&preimage,
		&swap.UserHTLCContract,
		&poolContract,
		&swap.Status,
		&swap.CreatedAt,
		&swap.UpdatedAt,
		&poolClaimed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan swap request")
	}

	if swap.SourceAmount, err = parseAmount(sourceAmount); err != nil {
		return nil, err
	}
	if swap.ExpectedAmount, err = parseAmount(expected); err != nil {
		return nil, err
	}
	if swap.HashLock, err = parseHashLock(hashLock); err != nil {
		return nil, err
	}

	if preimage.Valid && preimage.String != "" {
		raw, err := hex.DecodeString(preimage.String)
		if err != nil {
			return nil, errors.Wrap(err, "invalid preimage hex")
		}
		swap.Preimage = raw
	}
	if poolContract.Valid {
		swap.PoolHTLCContract = &poolContract.String
	}
	if poolClaimed.Valid {
		swap.PoolClaimedAt = &poolClaimed.Time
	}

	return &swap, nil
}
