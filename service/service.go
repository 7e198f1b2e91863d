package service

import (
	"context"
	"sync"

	"github.com/crosspool/resolver-lib/chains"
	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/crosspool/resolver-lib/dbstore"
	"github.com/crosspool/resolver-lib/liquidity"
	"github.com/crosspool/resolver-lib/resolver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultEventBuffer = 64

// Config holds the service-level configuration.
type Config struct {
	// PostgresURL is the connection string of the resolver database.
	PostgresURL string

	// EventBuffer is the capacity of the operational event channel. Events
	// are dropped, never blocked on, once the buffer is full.
	EventBuffer int

	// Chains lists every chain the resolver operates on. One engine runs per
	// entry, processing the swaps that originate on that chain.
	Chains []*types.ChainConfig
}

// Service owns the full resolver runtime: the database store, the liquidity
// ledger, one chain client per configured chain and one engine per source
// chain.
type Service struct {
	config *Config
	logger *logrus.Logger

	registry types.ChainRegistry
	store    *dbstore.DBStore
	ledger   *liquidity.Ledger
	events   chan types.ResolverEvent

	mu      sync.Mutex
	cancel  context.CancelFunc
	engines *errgroup.Group
}

// New validates the configuration and creates an unstarted service.
func New(config *Config, logger *logrus.Logger) (*Service, error) {
	if config.PostgresURL == "" {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "postgres url is required")
	}
	if len(config.Chains) == 0 {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "at least one chain is required")
	}
	for _, chainConfig := range config.Chains {
		if chainConfig.Name == "" {
			return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "chain name is required")
		}
		if chainConfig.ProcessingInterval <= 0 {
			return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "chain %s has no processing interval", chainConfig.Name)
		}
		if chainConfig.MaxBatchSize <= 0 {
			return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "chain %s has no max batch size", chainConfig.Name)
		}
	}

	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	return &Service{
		config: config,
		logger: logger,
		events: make(chan types.ResolverEvent, buffer),
	}, nil
}

// Start connects to the database, builds a client for every configured chain
// and launches one resolver engine per source chain. It returns once all
// engines are running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("service already started")
	}

	store, err := dbstore.NewDBStore(s.config.PostgresURL)
	if err != nil {
		return err
	}
	s.store = store
	s.ledger = liquidity.NewLedger(store, s.logger)

	s.registry = chains.NewChainRegistry(chains.NewChainFactory(), s.logger)
	for _, chainConfig := range s.config.Chains {
		if err := s.registry.Add(ctx, chainConfig); err != nil {
			store.Close()
			return errors.Wrapf(err, "failed to add chain %s", chainConfig.Name)
		}
		s.logger.WithField("chain", chainConfig.Name).
			WithField("chainType", chainConfig.ChainType.String()).
			Info("Chain client registered")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	group, groupCtx := errgroup.WithContext(runCtx)
	s.engines = group
	for _, chainConfig := range s.config.Chains {
		engine := resolver.NewEngine(chainConfig, s.registry, store, s.ledger, s.events, s.logger)
		group.Go(func() error {
			engine.Run(groupCtx)
			return nil
		})
	}

	s.logger.WithField("chains", len(s.config.Chains)).Info("Resolver service started")
	return nil
}

// Stop cancels all engines, waits for in-flight cycles to finish and closes
// the database connection.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil

	_ = s.engines.Wait()

	for _, chainConfig := range s.config.Chains {
		s.registry.Remove(chainConfig.Name)
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close database connection")
	}

	s.logger.Info("Resolver service stopped")
}

// Events exposes the operational event stream. The channel is never closed;
// consumers stop reading after Stop returns.
func (s *Service) Events() <-chan types.ResolverEvent {
	return s.events
}
