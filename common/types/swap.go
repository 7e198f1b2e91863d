package types

import (
	"math/big"
	"time"
)

// SwapStatus is the lifecycle status of a swap request.
type SwapStatus string

const (
	// SwapStatusPending means the user funded the source HTLC and the pool has not acted yet.
	SwapStatusPending SwapStatus = "PENDING"
	// SwapStatusPoolFulfilled means the pool funded the destination HTLC.
	SwapStatusPoolFulfilled SwapStatus = "POOL_FULFILLED"
	// SwapStatusUserClaimed means the pool claimed the source HTLC with the revealed preimage.
	SwapStatusUserClaimed SwapStatus = "USER_CLAIMED"
	// SwapStatusExpired means a timelock ran out before the swap completed.
	SwapStatusExpired SwapStatus = "EXPIRED"
	// SwapStatusCancelled means the swap was cancelled before any contract was funded.
	SwapStatusCancelled SwapStatus = "CANCELLED"
	// SwapStatusFailed means validation, liquidity admission or a chain call failed permanently.
	SwapStatusFailed SwapStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal swaps are never resurrected.
func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapStatusUserClaimed, SwapStatusExpired, SwapStatusCancelled, SwapStatusFailed:
		return true
	default:
		return false
	}
}

// SwapRequest represents one cross-chain swap attempt with its current state.
//
// Amounts are arbitrary-precision integers in base units; fee and exchange-rate
// math must be exact, so floating point is never used for them.
//
// TargetAddress is the user's address on the target chain, recorded by the
// API layer when the swap is created; it becomes the beneficiary of the
// pool-funded destination HTLC.
//
// PoolHTLCContract is set if and only if the status is POOL_FULFILLED or
// USER_CLAIMED. Preimage, once stored, satisfies sha256(preimage) == HashLock.
type SwapRequest struct {
	ID               string
	SourceChain      string
	TargetChain      string
	SourceToken      string
	TargetToken      string
	TargetAddress    string
	SourceAmount     *big.Int
	ExpectedAmount   *big.Int
	HashLock         [HashLockSize]byte
	Preimage         []byte
	UserHTLCContract string
	PoolHTLCContract *string
	Status           SwapStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PoolClaimedAt    *time.Time
}
