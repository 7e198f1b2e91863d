package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// callView executes a read-only contract call and returns the unpacked outputs.
func (e *evm) callView(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, err
	}

	data, err := e.htlcAbi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", method)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &e.htlcAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}

	outs, err := e.htlcAbi.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", method)
	}

	return outs, nil
}

// GetDetails returns the normalized details of the contract under the given id.
func (e *evm) GetDetails(ctx context.Context, contractID string) (*types.HTLCDetails, error) {
	id, err := contractIDToBytes32(contractID)
	if err != nil {
		return nil, err
	}

	outs, err := e.callView(ctx, "getDetails", id)
	if err != nil {
		return nil, err
	}
	if len(outs) != 7 {
		return nil, errors.Errorf("unexpected getDetails output arity %d", len(outs))
	}

	token, ok := outs[0].(common.Address)
	if !ok {
		return nil, errors.New("unexpected token type in getDetails output")
	}
	beneficiary, _ := outs[1].(common.Address)
	originator, _ := outs[2].(common.Address)
	hashLock, _ := outs[3].([32]byte)
	timelock, ok := outs[4].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected timelock type in getDetails output")
	}
	value, ok := outs[5].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected value type in getDetails output")
	}
	state, _ := outs[6].(uint8)

	if types.HTLCState(state) == types.HTLCStateInvalid {
		return nil, commonerrors.ErrHTLCNotFound
	}

	return &types.HTLCDetails{
		Token:       token.Hex(),
		Beneficiary: beneficiary.Hex(),
		Originator:  originator.Hex(),
		HashLock:    hashLock,
		Timelock:    timelock.Uint64(),
		Value:       value,
		State:       types.HTLCState(state),
	}, nil
}

// IsClaimable reports whether the contract can currently be claimed,
// computed chain-side against current block time.
func (e *evm) IsClaimable(ctx context.Context, contractID string) (bool, error) {
	return e.callBoolView(ctx, "isClaimable", contractID)
}

// IsRefundable reports whether the contract can currently be refunded.
func (e *evm) IsRefundable(ctx context.Context, contractID string) (bool, error) {
	return e.callBoolView(ctx, "isRefundable", contractID)
}

func (e *evm) callBoolView(ctx context.Context, method, contractID string) (bool, error) {
	id, err := contractIDToBytes32(contractID)
	if err != nil {
		return false, err
	}

	outs, err := e.callView(ctx, method, id)
	if err != nil {
		return false, err
	}
	if len(outs) != 1 {
		return false, errors.Errorf("unexpected %s output arity %d", method, len(outs))
	}

	result, ok := outs[0].(bool)
	if !ok {
		return false, errors.Errorf("unexpected %s output type", method)
	}
	return result, nil
}

// GetPreimage returns the preimage recorded by the contract after a claim.
func (e *evm) GetPreimage(ctx context.Context, contractID string) ([types.HashLockSize]byte, error) {
	var preimage [types.HashLockSize]byte

	id, err := contractIDToBytes32(contractID)
	if err != nil {
		return preimage, err
	}

	outs, err := e.callView(ctx, "getPreimage", id)
	if err != nil {
		return preimage, err
	}
	if len(outs) != 1 {
		return preimage, errors.Errorf("unexpected getPreimage output arity %d", len(outs))
	}

	preimage, _ = outs[0].([32]byte)
	if preimage == [types.HashLockSize]byte{} {
		return preimage, errors.New("no preimage recorded for contract")
	}

	return preimage, nil
}
