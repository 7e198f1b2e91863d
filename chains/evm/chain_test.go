package evm

import (
	"strings"
	"testing"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractIDToBytes32(t *testing.T) {
	hexID := strings.Repeat("ab", 32)

	id, err := contractIDToBytes32(hexID)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), id[0])

	withPrefix, err := contractIDToBytes32("0x" + hexID)
	require.NoError(t, err)
	assert.Equal(t, id, withPrefix)

	_, err = contractIDToBytes32("abcd")
	assert.Error(t, err, "short ids are rejected")

	_, err = contractIDToBytes32("not-hex")
	assert.Error(t, err)
}

func TestHTLCABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(htlcABI))
	require.NoError(t, err)

	for _, method := range []string{"fund", "claim", "refund", "getDetails", "isClaimable", "isRefundable", "getPreimage"} {
		_, ok := parsed.Methods[method]
		assert.True(t, ok, "method %s missing from ABI", method)
	}
}

func TestClassifySendError(t *testing.T) {
	assert.True(t, errors.Is(
		classifySendError(errors.New("insufficient funds for gas * price + value")),
		commonerrors.ErrInsufficientFunds,
	))
	assert.True(t, errors.Is(
		classifySendError(errors.New("execution reverted: timelock has expired")),
		commonerrors.ErrChainRejected,
	))
	assert.True(t, errors.Is(
		classifySendError(errors.New("connection refused")),
		commonerrors.ErrChainUnavailable,
	))
	assert.NoError(t, classifySendError(nil))
}
