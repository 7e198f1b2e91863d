package chains

import (
	"context"
	"sync"

	commontypes "github.com/crosspool/resolver-lib/common/types"
	"github.com/sirupsen/logrus"
)

type chainRegistry struct {
	logger      *logrus.Logger
	chains      map[string]commontypes.HTLCClient
	chainsMutex sync.RWMutex

	factory      ChainFactory
	factoryMutex sync.RWMutex
}

// NewChainRegistry creates a registry that builds HTLC clients through the
// given factory and indexes them by chain name.
func NewChainRegistry(factory ChainFactory, logger *logrus.Logger) commontypes.ChainRegistry {
	return &chainRegistry{
		chains:  make(map[string]commontypes.HTLCClient),
		factory: factory,
		logger:  logger,
	}
}

func (r *chainRegistry) Add(ctx context.Context, config *commontypes.ChainConfig) error {
	// Lock factory for reading to prevent changes during client creation.
	r.factoryMutex.RLock()
	client, err := r.factory.CreateChain(ctx, config, r.logger)
	r.factoryMutex.RUnlock()

	if err != nil {
		return err
	}

	r.chainsMutex.Lock()
	r.chains[config.Name] = client
	r.chainsMutex.Unlock()

	return nil
}

func (r *chainRegistry) Get(chain string) commontypes.HTLCClient {
	r.chainsMutex.RLock()
	client := r.chains[chain]
	r.chainsMutex.RUnlock()
	return client
}

func (r *chainRegistry) Remove(chain string) {
	r.chainsMutex.Lock()
	client := r.chains[chain]
	delete(r.chains, chain)
	r.chainsMutex.Unlock()

	// Closing outside the lock: Close may block on connection teardown.
	if client != nil {
		client.Close()
	}
}
