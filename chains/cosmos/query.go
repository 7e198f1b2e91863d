package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// swapResponse mirrors the hub contract's get_swap query response.
type swapResponse struct {
	Sender      string  `json:"sender"`
	Beneficiary string  `json:"beneficiary"`
	HashLock    string  `json:"hash_lock"`
	Timelock    uint64  `json:"timelock"`
	Amount      string  `json:"amount"`
	Token       *string `json:"token"`
	State       string  `json:"state"`
}

// smartQuery executes a smart contract query against the hub contract and
// unmarshals the response into out.
func (c *cosmos) smartQuery(ctx context.Context, query, out interface{}) error {
	queryData, err := json.Marshal(query)
	if err != nil {
		return errors.Wrap(err, "failed to marshal query")
	}

	resp, err := c.wasmClient.SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   c.config.HTLCContract,
		QueryData: queryData,
	})
	if err != nil {
		// Contract-level rejections come back as gRPC errors too; a query
		// for an id the contract never saw must not look like an outage.
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return errors.Wrap(commonerrors.ErrHTLCNotFound, err.Error())
		}
		return errors.Wrap(commonerrors.ErrChainUnavailable, err.Error())
	}

	return errors.Wrap(json.Unmarshal(resp.Data, out), "failed to unmarshal query response")
}

// GetDetails returns the normalized details of the lock under the given id.
func (c *cosmos) GetDetails(ctx context.Context, contractID string) (*types.HTLCDetails, error) {
	var resp swapResponse
	query := map[string]interface{}{
		"get_swap": map[string]string{"contract_id": contractID},
	}
	if err := c.smartQuery(ctx, query, &resp); err != nil {
		return nil, err
	}

	state := parseState(resp.State)
	if state == types.HTLCStateInvalid {
		return nil, commonerrors.ErrHTLCNotFound
	}

	rawHashLock, err := base64.StdEncoding.DecodeString(resp.HashLock)
	if err != nil || len(rawHashLock) != types.HashLockSize {
		return nil, errors.New("invalid hash lock in query response")
	}
	var hashLock [types.HashLockSize]byte
	copy(hashLock[:], rawHashLock)

	value, ok := new(big.Int).SetString(resp.Amount, 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q in query response", resp.Amount)
	}

	token := c.config.FeeDenom
	if resp.Token != nil {
		token = *resp.Token
	}

	return &types.HTLCDetails{
		Token:       token,
		Beneficiary: resp.Beneficiary,
		Originator:  resp.Sender,
		HashLock:    hashLock,
		Timelock:    resp.Timelock,
		Value:       value,
		State:       state,
	}, nil
}

// IsClaimable reports whether the lock can currently be claimed, computed
// contract-side against current block time.
func (c *cosmos) IsClaimable(ctx context.Context, contractID string) (bool, error) {
	return c.boolQuery(ctx, "is_claimable", contractID)
}

// IsRefundable reports whether the lock can currently be refunded.
func (c *cosmos) IsRefundable(ctx context.Context, contractID string) (bool, error) {
	return c.boolQuery(ctx, "is_refundable", contractID)
}

func (c *cosmos) boolQuery(ctx context.Context, name, contractID string) (bool, error) {
	var result bool
	query := map[string]interface{}{
		name: map[string]string{"contract_id": contractID},
	}
	if err := c.smartQuery(ctx, query, &result); err != nil {
		return false, err
	}
	return result, nil
}

// GetPreimage returns the preimage recorded by the contract after a claim.
func (c *cosmos) GetPreimage(ctx context.Context, contractID string) ([types.HashLockSize]byte, error) {
	var preimage [types.HashLockSize]byte

	var encoded string
	query := map[string]interface{}{
		"get_preimage": map[string]string{"contract_id": contractID},
	}
	if err := c.smartQuery(ctx, query, &encoded); err != nil {
		return preimage, err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != types.HashLockSize {
		return preimage, errors.New("invalid preimage in query response")
	}

	copy(preimage[:], raw)
	return preimage, nil
}

func parseState(state string) types.HTLCState {
	switch state {
	case "open":
		return types.HTLCStateOpen
	case "claimed":
		return types.HTLCStateClaimed
	case "refunded":
		return types.HTLCStateRefunded
	default:
		return types.HTLCStateInvalid
	}
}
