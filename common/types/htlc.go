package types

import (
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
)

// HTLCState is the normalized on-chain state of a hash time-locked contract.
// The encoding is shared by every chain implementation so the resolver can
// reason about contracts on any chain with the same enum.
type HTLCState uint8

const (
	// HTLCStateInvalid means the chain reports no contract under the given id.
	HTLCStateInvalid HTLCState = iota
	// HTLCStateOpen means the contract is funded and neither claimed nor refunded.
	HTLCStateOpen
	// HTLCStateClaimed means the beneficiary revealed the preimage and took the funds.
	HTLCStateClaimed
	// HTLCStateRefunded means the originator reclaimed the funds after expiry.
	HTLCStateRefunded
)

// String converts HTLCState to string representation.
func (s HTLCState) String() string {
	switch s {
	case HTLCStateOpen:
		return "OPEN"
	case HTLCStateClaimed:
		return "CLAIMED"
	case HTLCStateRefunded:
		return "REFUNDED"
	default:
		return "INVALID"
	}
}

// HashLockSize is the size of a hash lock and of a preimage in bytes.
// All chain implementations share a single digest algorithm (SHA-256) so a
// secret revealed on one chain is valid proof on every other.
const HashLockSize = sha256.Size

// ComputeHashLock returns the SHA-256 digest of the given preimage.
func ComputeHashLock(preimage []byte) [HashLockSize]byte {
	return sha256.Sum256(preimage)
}

// VerifyPreimage reports whether the SHA-256 digest of preimage equals hashLock.
func VerifyPreimage(preimage []byte, hashLock [HashLockSize]byte) bool {
	digest := sha256.Sum256(preimage)
	return subtle.ConstantTimeCompare(digest[:], hashLock[:]) == 1
}

// HTLCDetails holds the normalized view of an on-chain HTLC.
//
// Fields:
// - Token: the chain-qualified token identifier locked in the contract (address or denom).
// - Beneficiary: the address that may claim with the correct preimage.
// - Originator: the address that funded the contract and may refund after expiry.
// - HashLock: the SHA-256 commitment the preimage must satisfy.
// - Timelock: contract expiry as unix seconds.
// - Value: the locked amount in base units.
// - State: the normalized contract state.
type HTLCDetails struct {
	Token       string
	Beneficiary string
	Originator  string
	HashLock    [HashLockSize]byte
	Timelock    uint64
	Value       *big.Int
	State       HTLCState
}

// FundParams holds the parameters for creating a new HTLC lock on a chain.
type FundParams struct {
	ContractID  string
	Token       string
	Beneficiary string
	HashLock    [HashLockSize]byte
	Timelock    uint64
	Value       *big.Int
}
