package types

import (
	"context"
	"math/big"
	"time"
)

// ChainConfig holds the configuration for a specific chain implementation.
//
// Fields:
// - Name: the name of the chain, used as the chain key in swap rows.
// - ChainType: the family of the chain (EVM or COSMOS).
// - ChainID: the chain identifier (decimal for EVM, chain-id string for Cosmos).
// - RpcUrl: the URL for the chain's RPC endpoint.
// - GrpcUrl: the URL for the chain's gRPC endpoint (Cosmos only).
// - HTLCContract: the address of the HTLC hub contract on the chain.
// - PrivateKey: the pool signing key in hex.
// - AddressPrefix: the bech32 address prefix (Cosmos only).
// - FeeDenom: the fee token denom (Cosmos only).
// - TxType: the transaction type for EVM chains (0 legacy, 2 EIP-1559).
// - GasLimit: the gas limit for state-changing calls.
// - MaxGasPrice: the cap on the gas price in base units; submissions never exceed it.
// - ProcessingInterval: how often the resolver engine polls this chain.
// - MaxBatchSize: the maximum number of swaps processed per polling cycle.
// - MaxRetries: the maximum retry count for transient chain failures.
// - TimelockSafetyMargin: the minimum margin required between the destination
//   and source timelocks before the pool commits liquidity.
// - PendingFundTimeout: how long an unconfirmed funding transaction may stay
//   ambiguous before its liquidity reservation is released.
type ChainConfig struct {
	Name                 string
	ChainType            ChainType
	ChainID              string
	RpcUrl               string
	GrpcUrl              string
	HTLCContract         string
	PrivateKey           string
	AddressPrefix        string
	FeeDenom             string
	TxType               uint64
	GasLimit             uint64
	MaxGasPrice          *big.Int
	ProcessingInterval   time.Duration
	MaxBatchSize         int
	MaxRetries           int
	TimelockSafetyMargin time.Duration
	PendingFundTimeout   time.Duration
}

// HTLCReader provides read access to hash time-locked contracts on a chain.
type HTLCReader interface {
	// GetDetails returns the normalized contract details for the given id.
	// Fails with ErrHTLCNotFound if the chain reports the zero/invalid state.
	GetDetails(ctx context.Context, contractID string) (*HTLCDetails, error)

	// IsClaimable reports whether the contract can currently be claimed.
	// Computed chain-side against current block time, not the client clock.
	IsClaimable(ctx context.Context, contractID string) (bool, error)

	// IsRefundable reports whether the contract can currently be refunded.
	IsRefundable(ctx context.Context, contractID string) (bool, error)

	// GetPreimage returns the preimage recorded on-chain for a claimed contract.
	GetPreimage(ctx context.Context, contractID string) ([HashLockSize]byte, error)
}

// HTLCFunder creates new hash time-locked contracts on a chain.
type HTLCFunder interface {
	// Fund creates a new lock and returns the confirmed transaction hash.
	// Fails with ErrInsufficientFunds, ErrInvalidTimelock or ErrChainRejected;
	// the caller decides whether to retry.
	Fund(ctx context.Context, params *FundParams) (string, error)
}

// HTLCClaimer claims funded contracts with a revealed preimage.
type HTLCClaimer interface {
	// Claim submits the preimage and returns the confirmed transaction hash.
	// Fails with ErrAlreadyClaimed, ErrAlreadyRefunded, ErrPreimageMismatch
	// or ErrNotYetClaimable.
	Claim(ctx context.Context, contractID string, preimage [HashLockSize]byte) (string, error)
}

// HTLCRefunder refunds expired contracts back to the originator.
type HTLCRefunder interface {
	// Refund returns the locked funds and returns the confirmed transaction hash.
	// Fails with ErrNotYetExpired or terminal-state errors.
	Refund(ctx context.Context, contractID string) (string, error)
}

// HTLCClient combines the full HTLC capability set of a single chain.
// The resolver engine is written against this interface only, never against a
// concrete chain SDK.
type HTLCClient interface {
	HTLCReader
	HTLCFunder
	HTLCClaimer
	HTLCRefunder

	// PoolAddress returns the pool's signing address on this chain.
	PoolAddress() string

	// Close releases the chain connection and stops background monitoring.
	Close()
}

// ChainRegistry manages HTLC clients for multiple chains.
type ChainRegistry interface {
	// Add creates a client from the configuration and registers it under the chain name.
	Add(ctx context.Context, config *ChainConfig) error

	// Get retrieves a client from the registry by chain name.
	Get(chain string) HTLCClient

	// Remove closes a client and removes it from the registry by chain name.
	Remove(chain string)
}
