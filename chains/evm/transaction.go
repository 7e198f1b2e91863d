package evm

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// submitTransaction packs, signs, sends and confirms one state-changing call
// against the hub contract. Exactly one chain transaction is submitted per
// call; the confirmed hash is returned for audit and idempotency persistence.
func (e *evm) submitTransaction(ctx context.Context, method string, value *big.Int, args ...interface{}) (string, error) {
	client, err := e.getClient()
	if err != nil {
		return "", err
	}

	data, err := e.htlcAbi.Pack(method, args...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to pack %s call", method)
	}

	e.nonceMutex.Lock()
	nonce, err := client.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		e.nonceMutex.Unlock()
		return "", errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}

	tx, err := e.prepareTransaction(ctx, nonce, value, data)
	if err != nil {
		e.nonceMutex.Unlock()
		return "", err
	}

	signedTx, err := e.signer.SignTx(tx, e.chainID)
	if err != nil {
		e.nonceMutex.Unlock()
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	err = client.SendTransaction(ctx, signedTx)
	e.nonceMutex.Unlock()
	if err != nil {
		return "", classifySendError(err)
	}

	return e.waitReceipt(ctx, signedTx)
}

// prepareTransaction builds an unsigned transaction with the configured gas
// limit and a gas price capped at MaxGasPrice.
func (e *evm) prepareTransaction(ctx context.Context, nonce uint64, value *big.Int, data []byte) (*ethtypes.Transaction, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, err
	}

	gasLimit := e.config.GasLimit
	if gasLimit == 0 {
		estimated, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:  e.signer.Address(),
			To:    &e.htlcAddr,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return nil, classifySendError(err)
		}
		gasLimit = estimated + estimated/10
	}

	if e.config.TxType == TxTypeEIP1559 {
		tipCap, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
		}

		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
		}
		if header.BaseFee == nil {
			return nil, errors.New("base fee is nil on EIP-1559 chain")
		}

		baseFeeBuf := new(big.Int).Mul(header.BaseFee, big.NewInt(130))
		baseFeeBuf.Div(baseFeeBuf, big.NewInt(100))
		feeCap := new(big.Int).Add(baseFeeBuf, tipCap)
		feeCap = e.capGasPrice(feeCap)
		if tipCap.Cmp(feeCap) > 0 {
			tipCap = feeCap
		}

		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   e.chainID,
			Nonce:     nonce,
			GasFeeCap: feeCap,
			GasTipCap: tipCap,
			Gas:       gasLimit,
			To:        &e.htlcAddr,
			Value:     value,
			Data:      data,
		}), nil
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}
	gasPrice = e.capGasPrice(gasPrice)

	return ethtypes.NewTransaction(nonce, e.htlcAddr, value, gasLimit, gasPrice, data), nil
}

// capGasPrice enforces the configured MaxGasPrice ceiling.
func (e *evm) capGasPrice(price *big.Int) *big.Int {
	if e.config.MaxGasPrice != nil && price.Cmp(e.config.MaxGasPrice) > 0 {
		return new(big.Int).Set(e.config.MaxGasPrice)
	}
	return price
}

// waitReceipt polls for the transaction receipt. A timeout is reported as
// ErrTxNotConfirmed: the submission is ambiguous, not failed, and the caller
// must re-check chain state before reusing resources tied to it.
func (e *evm) waitReceipt(ctx context.Context, tx *ethtypes.Transaction) (string, error) {
	client, err := e.getClient()
	if err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	txHash := tx.Hash()
	for {
		select {
		case <-waitCtx.Done():
			e.logger.WithField("chain", e.config.Name).
				WithField("txHash", txHash.Hex()).
				Warn("Timed out waiting for transaction receipt")
			return txHash.Hex(), errors.Wrapf(commonerrors.ErrTxNotConfirmed, "tx %s", txHash.Hex())

		case <-ticker.C:
			receipt, err := client.TransactionReceipt(waitCtx, txHash)
			if err != nil {
				// The transaction is already broadcast, so RPC errors here
				// must not look retryable; keep polling until the timeout
				// reports the submission as ambiguous.
				if !errors.Is(err, ethereum.NotFound) {
					e.logger.WithField("txHash", txHash.Hex()).
						WithError(err).
						Debug("Receipt lookup failed, retrying")
				}
				continue
			}

			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return txHash.Hex(), errors.Wrapf(commonerrors.ErrChainRejected, "tx %s reverted", txHash.Hex())
			}
			return txHash.Hex(), nil
		}
	}
}

// classifySendError maps node errors onto the shared error taxonomy.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return errors.Wrap(commonerrors.ErrInsufficientFunds, err.Error())
	case strings.Contains(msg, "execution reverted"):
		return errors.Wrap(commonerrors.ErrChainRejected, err.Error())
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "replacement transaction underpriced"):
		return errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	default:
		return errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}
}
