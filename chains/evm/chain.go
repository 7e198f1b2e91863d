package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/crosspool/resolver-lib/chains/evm/signer"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/crosspool/resolver-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TxTypeLegacy represents the legacy transaction type.
	TxTypeLegacy = 0
	// TxTypeEIP1559 represents the EIP-1559 transaction type.
	TxTypeEIP1559 = 2
	// ZeroAddress marks the native asset in token fields.
	ZeroAddress = "0x0000000000000000000000000000000000000000"
	// receiptTimeout bounds how long a state-changing call waits for its
	// receipt before the submission is reported as unconfirmed.
	receiptTimeout = 90 * time.Second
)

// evm implements types.HTLCClient against an HTLC hub contract on an
// EVM-style chain.
type evm struct {
	config   *types.ChainConfig
	logger   *logrus.Logger
	htlcAddr common.Address
	htlcAbi  abi.ABI
	chainID  *big.Int
	signer   signer.Signer

	// Protected fields with their own mutexes.
	clientMutex sync.RWMutex
	client      *ethclient.Client

	nonceMutex sync.Mutex // serializes nonce fetch + send per client

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor
}

// NewHTLCClient creates a new EVM HTLC client from the chain configuration.
func NewHTLCClient(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.HTLCClient, error) {
	client, err := ethclient.Dial(config.RpcUrl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	parsedAbi, err := abi.JSON(strings.NewReader(htlcABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse htlc ABI")
	}

	chainID, ok := new(big.Int).SetString(config.ChainID, 10)
	if !ok {
		return nil, errors.Errorf("invalid EVM chain id %q", config.ChainID)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	sgn, err := signer.NewSigner(privKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}

	chain := &evm{
		config:   config,
		logger:   logger,
		htlcAddr: common.HexToAddress(config.HTLCContract),
		htlcAbi:  parsedAbi,
		chainID:  chainID,
		signer:   sgn,
		client:   client,
	}

	if err := chain.initMonitor(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	return chain, nil
}

// PoolAddress returns the pool's signing address on this chain.
func (e *evm) PoolAddress() string {
	return e.signer.Address().Hex()
}

// Close stops the connection monitor and closes the client.
func (e *evm) Close() {
	e.monitorMutex.Lock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
	e.monitorMutex.Unlock()

	e.clientMutex.Lock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.clientMutex.Unlock()
}

func (e *evm) getClient() (*ethclient.Client, error) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	if e.client == nil {
		return nil, errors.New("client not initialized")
	}
	return e.client, nil
}

// contractIDToBytes32 parses a hex contract id into the bytes32 key used by
// the hub contract.
func contractIDToBytes32(contractID string) ([32]byte, error) {
	var id [32]byte

	raw, err := hex.DecodeString(strings.TrimPrefix(contractID, "0x"))
	if err != nil {
		return id, errors.Wrap(err, "invalid contract id hex")
	}
	if len(raw) != 32 {
		return id, errors.Errorf("invalid contract id length %d", len(raw))
	}

	copy(id[:], raw)
	return id, nil
}
