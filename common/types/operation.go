package types

import (
	"math/big"
	"time"
)

// OperationType identifies the kind of action a resolver attempted against a swap.
type OperationType string

const (
	OpValidateSourceHTLC OperationType = "VALIDATE_SOURCE_HTLC"
	OpFundPoolHTLC       OperationType = "FUND_POOL_HTLC"
	OpClaimSourceHTLC    OperationType = "CLAIM_SOURCE_HTLC"
	OpRefundPoolHTLC     OperationType = "REFUND_POOL_HTLC"
)

// OperationStatus is the status of an attempted resolver action.
type OperationStatus string

const (
	OperationInProgress OperationStatus = "IN_PROGRESS"
	OperationCompleted  OperationStatus = "COMPLETED"
	OperationFailed     OperationStatus = "FAILED"
)

// ResolverOperation is an append-only audit record of one attempted action
// against a swap request. An IN_PROGRESS record doubles as the idempotency
// guard: the engine never starts a second concurrent operation of the same
// type for the same swap.
type ResolverOperation struct {
	ID           int64
	SwapID       string
	Type         OperationType
	Status       OperationStatus
	TxRef        *string
	ErrorMessage *string
	StartedAt    time.Time
	CompletedAt  *time.Time

	// ReservedAmount is the liquidity hold taken for this operation, recorded
	// once the reservation succeeds. Reconciliation settles exactly this
	// amount; an operation without one never held liquidity.
	ReservedAmount *big.Int
}
