package cosmos

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// broadcastTimeout bounds how long a state-changing call waits for its
	// transaction to be included in a block.
	broadcastTimeout = 90 * time.Second
	// inclusionPollInterval is how often the client polls for tx inclusion.
	inclusionPollInterval = 2 * time.Second
)

// cosmos implements types.HTLCClient against a CosmWasm HTLC hub contract on
// a Cosmos SDK chain. Queries and broadcasts go over the chain's gRPC
// endpoint; transactions are built and signed manually in SIGN_MODE_DIRECT.
type cosmos struct {
	config  *types.ChainConfig
	logger  *logrus.Logger
	privKey *secp256k1.PrivKey
	address string

	connMutex sync.RWMutex
	conn      *grpc.ClientConn

	wasmClient wasmtypes.QueryClient
	txClient   txtypes.ServiceClient
	authClient authtypes.QueryClient
}

// NewHTLCClient creates a new Cosmos HTLC client from the chain configuration.
func NewHTLCClient(_ context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.HTLCClient, error) {
	conn, err := grpc.NewClient(
		config.GrpcUrl,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create grpc client")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	privKey := &secp256k1.PrivKey{Key: keyBytes}

	address, err := bech32.ConvertAndEncode(config.AddressPrefix, privKey.PubKey().Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive pool address")
	}

	return &cosmos{
		config:     config,
		logger:     logger,
		privKey:    privKey,
		address:    address,
		conn:       conn,
		wasmClient: wasmtypes.NewQueryClient(conn),
		txClient:   txtypes.NewServiceClient(conn),
		authClient: authtypes.NewQueryClient(conn),
	}, nil
}

// PoolAddress returns the pool's signing address on this chain.
func (c *cosmos) PoolAddress() string {
	return c.address
}

// Close closes the gRPC connection.
func (c *cosmos) Close() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
