package evm

import (
	"context"
	"math/big"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
)

// Refund returns an expired lock to its originator.
func (e *evm) Refund(ctx context.Context, contractID string) (string, error) {
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

	refundable, err := e.IsRefundable(ctx, contractID)
	if err != nil {
		return "", err
	}
	if !refundable {
		return "", commonerrors.ErrNotYetExpired
	}

	e.logger.WithField("chain", e.config.Name).
		WithField("contractId", contractID).
		Info("Refunding HTLC")

	return e.submitTransaction(ctx, "refund", big.NewInt(0), id)
}
