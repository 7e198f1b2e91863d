package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/json"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// Claim submits the preimage for the lock under the given id. Contract state
// is checked first so terminal states surface as their precise errors.
func (c *cosmos) Claim(ctx context.Context, contractID string, preimage [types.HashLockSize]byte) (string, error) {
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

	claimable, err := c.IsClaimable(ctx, contractID)
	if err != nil {
		return "", err
	}
	if !claimable {
		return "", commonerrors.ErrNotYetClaimable
	}

	if !types.VerifyPreimage(preimage[:], details.HashLock) {
		return "", errors.Wrapf(commonerrors.ErrPreimageMismatch, "contract %s", contractID)
	}

	execMsg, err := json.Marshal(map[string]interface{}{
		"claim": map[string]string{
			"contract_id": contractID,
			"preimage":    base64.StdEncoding.EncodeToString(preimage[:]),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal claim msg")
	}

	c.logger.WithField("chain", c.config.Name).
		WithField("contractId", contractID).
		Info("Claiming HTLC")

	return c.executeContract(ctx, execMsg, nil)
}
