package chains

import (
	"context"
	"testing"

	commontypes "github.com/crosspool/resolver-lib/common/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a minimal HTLC client that records whether it was closed.
type stubClient struct {
	closed bool
}

func (s *stubClient) GetDetails(context.Context, string) (*commontypes.HTLCDetails, error) {
	return nil, nil
}
func (s *stubClient) IsClaimable(context.Context, string) (bool, error)  { return false, nil }
func (s *stubClient) IsRefundable(context.Context, string) (bool, error) { return false, nil }
func (s *stubClient) GetPreimage(context.Context, string) ([commontypes.HashLockSize]byte, error) {
	return [commontypes.HashLockSize]byte{}, nil
}
func (s *stubClient) Fund(context.Context, *commontypes.FundParams) (string, error) {
	return "", nil
}
func (s *stubClient) Claim(context.Context, string, [commontypes.HashLockSize]byte) (string, error) {
	return "", nil
}
func (s *stubClient) Refund(context.Context, string) (string, error) { return "", nil }
func (s *stubClient) PoolAddress() string                            { return "" }
func (s *stubClient) Close()                                         { s.closed = true }

func TestRegistryRemoveClosesClient(t *testing.T) {
	stub := &stubClient{}

	factory := NewChainFactory()
	factory.RegisterConstructor("STUB", func(context.Context, *commontypes.ChainConfig, *logrus.Logger) (commontypes.HTLCClient, error) {
		return stub, nil
	})

	registry := NewChainRegistry(factory, logrus.New())
	config := &commontypes.ChainConfig{Name: "stub-chain", ChainType: commontypes.ChainType("STUB")}
	require.NoError(t, registry.Add(context.Background(), config))
	require.NotNil(t, registry.Get("stub-chain"))

	registry.Remove("stub-chain")

	assert.Nil(t, registry.Get("stub-chain"))
	assert.True(t, stub.closed, "removing a chain must release its connection")
}

func TestRegistryRemoveUnknownChain(t *testing.T) {
	registry := NewChainRegistry(NewChainFactory(), logrus.New())
	registry.Remove("never-added")
	assert.Nil(t, registry.Get("never-added"))
}
