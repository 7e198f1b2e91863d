package cosmos

import (
	"context"
	"encoding/json"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// Refund returns an expired lock to its originator.
func (c *cosmos) Refund(ctx context.Context, contractID string) (string, error) {
	details, err := c.GetDetails(ctx, contractID)
	if err != nil {
		return "", err
	}
	switch details.State {
	case types.HTLCStateClaimed:
		return "", commonerrors.ErrAlreadyClaimed
	case types.HTLCStateRefunded:
		return "", commonerrors.ErrAlreadyRefunded
	}

	refundable, err := c.IsRefundable(ctx, contractID)
	if err != nil {
		return "", err
	}
	if !refundable {
		return "", commonerrors.ErrNotYetExpired
	}

	execMsg, err := json.Marshal(map[string]interface{}{
		"refund": map[string]string{"contract_id": contractID},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal refund msg")
	}

	c.logger.WithField("chain", c.config.Name).
		WithField("contractId", contractID).
		Info("Refunding HTLC")

	return c.executeContract(ctx, execMsg, nil)
}
