package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainsYAML = `
chains:
  - name: sepolia
    type: EVM
    chain_id: "11155111"
    rpc_url: https://rpc.sepolia.example
    htlc_contract: "0x1111111111111111111111111111111111111111"
    private_key: "0xdeadbeef"
    tx_type: 2
    gas_limit: 300000
    max_gas_price: "50000000000"
    processing_interval: 5s
    max_batch_size: 25
    timelock_safety_margin: 15m
  - name: neutron-testnet
    type: COSMOS
    chain_id: pion-1
    grpc_url: grpc.pion.example:9090
    htlc_contract: neutron1contract
    private_key: "deadbeef"
    address_prefix: neutron
    fee_denom: untrn
    gas_limit: 500000
    max_gas_price: "25"
`

func writeChainsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadChains(t *testing.T) {
	cfg := &Config{ChainsFile: writeChainsFile(t, chainsYAML)}

	chains, err := cfg.LoadChains()
	require.NoError(t, err)
	require.Len(t, chains, 2)

	sepolia := chains[0]
	assert.Equal(t, "sepolia", sepolia.Name)
	assert.Equal(t, types.EVM, sepolia.ChainType)
	assert.Equal(t, "11155111", sepolia.ChainID)
	assert.Equal(t, uint64(2), sepolia.TxType)
	assert.Equal(t, "50000000000", sepolia.MaxGasPrice.String())
	assert.Equal(t, 5*time.Second, sepolia.ProcessingInterval)
	assert.Equal(t, 25, sepolia.MaxBatchSize)
	assert.Equal(t, 15*time.Minute, sepolia.TimelockSafetyMargin)
	// Unset fields fall back to defaults.
	assert.Equal(t, defaultMaxRetries, sepolia.MaxRetries)
	assert.Equal(t, 3*sepolia.ProcessingInterval, sepolia.PendingFundTimeout)

	neutron := chains[1]
	assert.Equal(t, types.COSMOS, neutron.ChainType)
	assert.Equal(t, "neutron", neutron.AddressPrefix)
	assert.Equal(t, "untrn", neutron.FeeDenom)
	assert.Equal(t, defaultProcessingInterval, neutron.ProcessingInterval)
	assert.Equal(t, defaultMaxBatchSize, neutron.MaxBatchSize)
	assert.Equal(t, defaultTimelockSafetyMargin, neutron.TimelockSafetyMargin)
}

func TestLoadChainsRejectsUnknownType(t *testing.T) {
	cfg := &Config{ChainsFile: writeChainsFile(t, `
chains:
  - name: mystery
    type: SOLANA
`)}

	_, err := cfg.LoadChains()
	assert.ErrorIs(t, err, commonerrors.ErrInvalidChainType)
}

func TestLoadChainsRejectsBadGasPrice(t *testing.T) {
	cfg := &Config{ChainsFile: writeChainsFile(t, `
chains:
  - name: sepolia
    type: EVM
    max_gas_price: "fifty gwei"
`)}

	_, err := cfg.LoadChains()
	assert.ErrorIs(t, err, commonerrors.ErrInvalidConfig)
}

func TestLoadChainsRejectsEmptyFile(t *testing.T) {
	cfg := &Config{ChainsFile: writeChainsFile(t, "chains: []\n")}

	_, err := cfg.LoadChains()
	assert.ErrorIs(t, err, commonerrors.ErrInvalidConfig)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.PostgresURL)
	assert.Equal(t, uint32(4), cfg.LogLevel)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.Equal(t, "chains.yaml", cfg.ChainsFile)
}
