package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// cw20Prefix marks token identifiers that are CW20 contract addresses rather
// than native denoms.
const cw20Prefix = "cw20:"

// Fund creates a new lock on the hub contract. Native denoms travel as
// attached funds; CW20 tokens assume the pool granted the hub contract an
// allowance.
func (c *cosmos) Fund(ctx context.Context, params *types.FundParams) (string, error) {
	if params.Value == nil || params.Value.Sign() <= 0 {
		return "", errors.New("fund value must be positive")
	}
	if params.Timelock <= uint64(time.Now().Unix()) {
		return "", errors.Wrap(commonerrors.ErrInvalidTimelock, "timelock not in the future")
	}

	fundMsg := map[string]interface{}{
		"contract_id": params.ContractID,
		"beneficiary": params.Beneficiary,
		"hash_lock":   base64.StdEncoding.EncodeToString(params.HashLock[:]),
		"timelock":    params.Timelock,
		"value":       params.Value.String(),
	}

	var funds sdk.Coins
	if strings.HasPrefix(params.Token, cw20Prefix) {
		fundMsg["token"] = strings.TrimPrefix(params.Token, cw20Prefix)
	} else {
		funds = sdk.NewCoins(sdk.NewCoin(params.Token, sdkmath.NewIntFromBigInt(params.Value)))
	}

	execMsg, err := json.Marshal(map[string]interface{}{"fund": fundMsg})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal fund msg")
	}

	c.logger.WithFields(logrus.Fields{
		"chain":      c.config.Name,
		"contractId": params.ContractID,
		"value":      params.Value.String(),
		"timelock":   params.Timelock,
	}).Info("Funding HTLC")

	return c.executeContract(ctx, execMsg, funds)
}
