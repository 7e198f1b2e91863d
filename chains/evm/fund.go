package evm

import (
	"context"
	"math/big"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Fund creates a new lock on the hub contract. For the native asset the value
// travels as msg.value; ERC-20 locks assume the pool granted the hub contract
// an allowance, the contract pulls via transferFrom.
func (e *evm) Fund(ctx context.Context, params *types.FundParams) (string, error) {
	if params.Value == nil || params.Value.Sign() <= 0 {
		return "", errors.New("fund value must be positive")
	}
	if params.Timelock <= uint64(time.Now().Unix()) {
		return "", errors.Wrap(commonerrors.ErrInvalidTimelock, "timelock not in the future")
	}

	id, err := contractIDToBytes32(params.ContractID)
	if err != nil {
		return "", err
	}

	msgValue := big.NewInt(0)
	if params.Token == ZeroAddress {
		msgValue = params.Value
	}

	e.logger.WithFields(logrus.Fields{
		"chain":      e.config.Name,
		"contractId": params.ContractID,
		"value":      params.Value.String(),
		"timelock":   params.Timelock,
	}).Info("Funding HTLC")

	return e.submitTransaction(ctx, "fund", msgValue,
		id,
		common.HexToAddress(params.Token),
		common.HexToAddress(params.Beneficiary),
		params.HashLock,
		new(big.Int).SetUint64(params.Timelock),
		params.Value,
	)
}
