package types

import (
	"context"
	"math/big"
)

// SwapRepository is the persistence boundary for swap requests.
// Status transitions use optimistic concurrency: a transition commits only if
// the row is still in the expected prior status, otherwise ErrStatusConflict.
type SwapRepository interface {
	// ListPendingSwaps returns up to limit PENDING swaps originating on the
	// given chain that carry a non-empty source HTLC reference, oldest first.
	ListPendingSwaps(ctx context.Context, sourceChain string, limit int) ([]*SwapRequest, error)

	// ListFulfilledSwaps returns up to limit POOL_FULFILLED swaps originating
	// on the given chain, oldest first.
	ListFulfilledSwaps(ctx context.Context, sourceChain string, limit int) ([]*SwapRequest, error)

	// ListExpiredSwaps returns up to limit EXPIRED swaps originating on the
	// given chain that have a pool contract to reclaim, oldest first.
	ListExpiredSwaps(ctx context.Context, sourceChain string, limit int) ([]*SwapRequest, error)

	// GetSwapByID returns the swap with the given id, or ErrSwapNotFound.
	GetSwapByID(ctx context.Context, id string) (*SwapRequest, error)

	// UpdateSwapStatus transitions the swap from expected to next status.
	UpdateSwapStatus(ctx context.Context, id string, expected, next SwapStatus) error

	// MarkPoolFulfilled transitions a PENDING swap to POOL_FULFILLED and
	// records the pool's destination contract id in the same write.
	MarkPoolFulfilled(ctx context.Context, id, poolContract string) error

	// MarkUserClaimed transitions a POOL_FULFILLED swap to USER_CLAIMED,
	// storing the verified preimage and the pool claim time.
	MarkUserClaimed(ctx context.Context, id string, preimage []byte) error
}

// OperationLog records resolver operations for audit and idempotency checks.
type OperationLog interface {
	// InsertOperation appends an IN_PROGRESS record and returns its id.
	InsertOperation(ctx context.Context, swapID string, opType OperationType) (int64, error)

	// UpdateOperation finalizes an operation record. txRef and errMsg are
	// stored when non-empty.
	UpdateOperation(ctx context.Context, id int64, status OperationStatus, txRef, errMsg string) error

	// SetOperationReservedAmount records the liquidity hold taken for an
	// IN_PROGRESS operation.
	SetOperationReservedAmount(ctx context.Context, id int64, amount *big.Int) error

	// GetInProgressOperation returns the IN_PROGRESS operation of the given
	// type for the swap, or ErrOperationNotFound if there is none.
	GetInProgressOperation(ctx context.Context, swapID string, opType OperationType) (*ResolverOperation, error)

	// HasCompletedOperation reports whether a COMPLETED operation of the
	// given type exists for the swap.
	HasCompletedOperation(ctx context.Context, swapID string, opType OperationType) (bool, error)
}

// LiquidityPool is one row of the pool liquidity ledger, keyed by (chain, token).
// Invariant: AvailableBalance + ReservedBalance == TotalBalance.
type LiquidityPool struct {
	Chain            string
	Token            string
	TotalBalance     *big.Int
	AvailableBalance *big.Int
	ReservedBalance  *big.Int
	MinThreshold     *big.Int
}
