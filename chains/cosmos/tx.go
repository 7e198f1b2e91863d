package cosmos

import (
	"context"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	signingtypes "github.com/cosmos/cosmos-sdk/types/tx/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/pkg/errors"
)

// accountInfo returns the pool account's number and sequence.
func (c *cosmos) accountInfo(ctx context.Context) (uint64, uint64, error) {
	resp, err := c.authClient.Account(ctx, &authtypes.QueryAccountRequest{Address: c.address})
	if err != nil {
		return 0, 0, errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}

	var account authtypes.BaseAccount
	if err := account.Unmarshal(resp.Account.Value); err != nil {
		return 0, 0, errors.Wrap(err, "failed to unmarshal account")
	}

	return account.AccountNumber, account.Sequence, nil
}

// executeContract signs and broadcasts one MsgExecuteContract against the hub
// contract and waits for inclusion. Exactly one chain transaction is
// submitted per call; the confirmed hash is returned.
func (c *cosmos) executeContract(ctx context.Context, execMsg []byte, funds sdk.Coins) (string, error) {
	accNum, sequence, err := c.accountInfo(ctx)
	if err != nil {
		return "", err
	}

	msg := &wasmtypes.MsgExecuteContract{
		Sender:   c.address,
		Contract: c.config.HTLCContract,
		Msg:      execMsg,
		Funds:    funds,
	}

	anyMsg, err := codectypes.NewAnyWithValue(msg)
	if err != nil {
		return "", errors.Wrap(err, "failed to pack execute msg")
	}

	body := &txtypes.TxBody{Messages: []*codectypes.Any{anyMsg}}
	bodyBytes, err := body.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tx body")
	}

	anyPubKey, err := codectypes.NewAnyWithValue(c.privKey.PubKey())
	if err != nil {
		return "", errors.Wrap(err, "failed to pack public key")
	}

	// Fee is priced at the configured gas price ceiling so submissions never
	// exceed MaxGasPrice.
	gasPrice := sdkmath.ZeroInt()
	if c.config.MaxGasPrice != nil {
		gasPrice = sdkmath.NewIntFromBigInt(c.config.MaxGasPrice)
	}
	feeAmount := gasPrice.Mul(sdkmath.NewIntFromUint64(c.config.GasLimit))

	authInfo := &txtypes.AuthInfo{
		SignerInfos: []*txtypes.SignerInfo{{
			PublicKey: anyPubKey,
			ModeInfo: &txtypes.ModeInfo{
				Sum: &txtypes.ModeInfo_Single_{
					Single: &txtypes.ModeInfo_Single{Mode: signingtypes.SignMode_SIGN_MODE_DIRECT},
				},
			},
			Sequence: sequence,
		}},
		Fee: &txtypes.Fee{
			Amount:   sdk.NewCoins(sdk.NewCoin(c.config.FeeDenom, feeAmount)),
			GasLimit: c.config.GasLimit,
		},
	}
	authInfoBytes, err := authInfo.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal auth info")
	}

	signDoc := &txtypes.SignDoc{
		BodyBytes:     bodyBytes,
		AuthInfoBytes: authInfoBytes,
		ChainId:       c.config.ChainID,
		AccountNumber: accNum,
	}
	signBytes, err := signDoc.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal sign doc")
	}

	signature, err := c.privKey.Sign(signBytes)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	txRaw := &txtypes.TxRaw{
		BodyBytes:     bodyBytes,
		AuthInfoBytes: authInfoBytes,
		Signatures:    [][]byte{signature},
	}
	txBytes, err := txRaw.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal raw tx")
	}

	resp, err := c.txClient.BroadcastTx(ctx, &txtypes.BroadcastTxRequest{
		TxBytes: txBytes,
		Mode:    txtypes.BroadcastMode_BROADCAST_MODE_SYNC,
	})
	if err != nil {
		return "", errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}
	if resp.TxResponse.Code != 0 {
		return "", classifyTxError(resp.TxResponse.RawLog)
	}

	return c.waitInclusion(ctx, resp.TxResponse.TxHash)
}

// waitInclusion polls for the transaction until it is included in a block.
// A timeout is reported as ErrTxNotConfirmed: the submission is ambiguous and
// the caller must re-check chain state before deciding.
func (c *cosmos) waitInclusion(ctx context.Context, txHash string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()

	ticker := time.NewTicker(inclusionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			c.logger.WithField("chain", c.config.Name).
				WithField("txHash", txHash).
				Warn("Timed out waiting for transaction inclusion")
			return txHash, errors.Wrapf(commonerrors.ErrTxNotConfirmed, "tx %s", txHash)

		case <-ticker.C:
			resp, err := c.txClient.GetTx(waitCtx, &txtypes.GetTxRequest{Hash: txHash})
			if err != nil {
				// Not yet indexed; keep polling until the deadline.
				continue
			}

			if resp.TxResponse.Code != 0 {
				return txHash, classifyTxError(resp.TxResponse.RawLog)
			}
			return txHash, nil
		}
	}
}

// classifyTxError maps contract error strings onto the shared error taxonomy.
// The strings match the hub contract's StdError messages.
func classifyTxError(rawLog string) error {
	msg := strings.ToLower(rawLog)
	switch {
	case strings.Contains(msg, "invalid preimage"):
		return errors.Wrap(commonerrors.ErrPreimageMismatch, rawLog)
	case strings.Contains(msg, "timelock has expired"):
		return errors.Wrap(commonerrors.ErrNotYetClaimable, rawLog)
	case strings.Contains(msg, "timelock has not expired"):
		return errors.Wrap(commonerrors.ErrNotYetExpired, rawLog)
	case strings.Contains(msg, "timelock must be in the future"):
		return errors.Wrap(commonerrors.ErrInvalidTimelock, rawLog)
	case strings.Contains(msg, "insufficient funds"):
		return errors.Wrap(commonerrors.ErrInsufficientFunds, rawLog)
	default:
		return errors.Wrap(commonerrors.ErrChainRejected, rawLog)
	}
}
