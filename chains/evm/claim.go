package evm

import (
	"context"
	"math/big"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// Claim submits the preimage for the contract under the given id. The current
// contract state is checked first so terminal states surface as their precise
// errors instead of a bare revert.
func (e *evm) Claim(ctx context.Context, contractID string, preimage [types.HashLockSize]byte) (string, error) {
	id, err := contractIDToBytes32(contractID)
	if err != nil {
		return "", err
	}

	details, err := e.GetDetails(ctx, contractID)
	if err != nil {
		return "", err
	}
	switch details.State {
	case types.HTLCStateClaimed:
		return "", commonerrors.ErrAlreadyClaimed
	case types.HTLCStateRefunded:
		return "", commonerrors.ErrAlreadyRefunded
	}

	claimable, err := e.IsClaimable(ctx, contractID)
	if err != nil {
		return "", err
	}
	if !claimable {
		return "", commonerrors.ErrNotYetClaimable
	}

	if !types.VerifyPreimage(preimage[:], details.HashLock) {
		return "", errors.Wrapf(commonerrors.ErrPreimageMismatch, "contract %s", contractID)
	}

	e.logger.WithField("chain", e.config.Name).
		WithField("contractId", contractID).
		Info("Claiming HTLC")

	return e.submitTransaction(ctx, "claim", big.NewInt(0), id, preimage)
}
