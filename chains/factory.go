package chains

import (
	"context"
	"sync"

	"github.com/crosspool/resolver-lib/chains/cosmos"
	"github.com/crosspool/resolver-lib/chains/evm"
	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	commontypes "github.com/crosspool/resolver-lib/common/types"
	"github.com/sirupsen/logrus"
)

// ChainConstructor represents a function that constructs a new HTLC client
// instance for one chain.
type ChainConstructor func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.HTLCClient, error)

// ChainFactory defines the interface for HTLC client creation.
type ChainFactory interface {
	// RegisterConstructor registers a new client constructor for a chain type.
	RegisterConstructor(chainType string, constructor ChainConstructor)

	// CreateChain creates a new HTLC client based on the configuration.
	CreateChain(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.HTLCClient, error)
}

type chainFactory struct {
	constructors      map[string]ChainConstructor
	constructorsMutex sync.RWMutex
}

// NewChainFactory creates a new instance of the chain factory with the
// default chain family constructors registered.
func NewChainFactory() ChainFactory {
	factory := &chainFactory{
		constructors: make(map[string]ChainConstructor),
	}

	factory.registerConstructors()

	return factory
}

// RegisterConstructor registers a new client constructor.
func (f *chainFactory) RegisterConstructor(chainType string, constructor ChainConstructor) {
	f.constructorsMutex.Lock()
	defer f.constructorsMutex.Unlock()

	f.constructors[chainType] = constructor
}

// CreateChain creates a new HTLC client based on the configuration.
func (f *chainFactory) CreateChain(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.HTLCClient, error) {
	f.constructorsMutex.RLock()
	constructor, exists := f.constructors[config.ChainType.String()]
	f.constructorsMutex.RUnlock()

	if !exists {
		return nil, commonerrors.ErrInvalidChainType
	}

	return constructor(ctx, config, logger)
}

// registerConstructors registers the chain family constructors.
func (f *chainFactory) registerConstructors() {
	f.RegisterConstructor(commontypes.EVM.String(), func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.HTLCClient, error) {
		return evm.NewHTLCClient(ctx, config, logger)
	})

	f.RegisterConstructor(commontypes.COSMOS.String(), func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.HTLCClient, error) {
		return cosmos.NewHTLCClient(ctx, config, logger)
	})
}
