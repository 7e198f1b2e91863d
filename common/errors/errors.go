package errors

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Chain client errors.
var (
	ErrHTLCNotFound      = errors.New("htlc contract not found")
	ErrInsufficientFunds = errors.New("insufficient funds for htlc creation")
	ErrInvalidTimelock   = errors.New("invalid timelock")
	ErrChainRejected     = errors.New("transaction rejected by chain")
	ErrChainUnavailable  = errors.New("chain rpc unavailable")
	ErrTxNotConfirmed    = errors.New("transaction not confirmed within timeout")
	ErrAlreadyClaimed    = errors.New("htlc already claimed")
	ErrAlreadyRefunded   = errors.New("htlc already refunded")
	ErrPreimageMismatch  = errors.New("preimage does not match hash lock")
	ErrNotYetClaimable   = errors.New("htlc not yet claimable")
	ErrNotYetExpired     = errors.New("htlc timelock not yet expired")
)

// Liquidity ledger errors.
var (
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrPoolNotFound          = errors.New("liquidity pool not found")
	ErrNoReservedBalance     = errors.New("reserved balance does not cover amount")
)

// Repository errors.
var (
	ErrSwapNotFound      = errors.New("swap request not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrStatusConflict    = errors.New("swap status changed concurrently")
	ErrDatabaseConnect   = errors.New("failed to connect to database")
)

// Registry and factory errors.
var (
	ErrChainNotFound      = errors.New("chain not found")
	ErrInvalidChainType   = errors.New("invalid chain type")
	ErrInvalidConfig      = errors.New("invalid chain configuration")
	ErrChainExists        = errors.New("chain already exists in registry")
	ErrFactoryNotProvided = errors.New("chain factory not provided")
	ErrNotImplemented     = errors.New("functionality not implemented")
)

// IsTransient reports whether the error is worth retrying: RPC timeouts,
// connection failures and unconfirmed submissions. Chain-level rejections are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrChainUnavailable) || errors.Is(err, ErrTxNotConfirmed) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsAmbiguous reports whether a state-changing call may have landed on-chain
// even though the client saw no confirmation. The caller must re-check chain
// state before releasing resources tied to the call.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrTxNotConfirmed) || errors.Is(err, context.DeadlineExceeded)
}
