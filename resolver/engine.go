package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/crosspool/resolver-lib/common/types"
	"github.com/crosspool/resolver-lib/liquidity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// batchConcurrency bounds how many swaps of one batch are processed at once.
// Swaps for the same (chain, token) still serialize on the ledger's token lock.
const batchConcurrency = 4

// Store combines swap persistence with the operation audit log. The engine is
// written against this interface only, never against a concrete database.
type Store interface {
	types.SwapRepository
	types.OperationLog
}

// Engine drives all swaps originating on one source chain through the
// fulfillment state machine. It is the only writer that advances a swap past
// PENDING. Progress comes from repeated polling, not event push, because chain
// confirmation is asynchronous and must be re-checked on every cycle.
type Engine struct {
	config   *types.ChainConfig
	registry types.ChainRegistry
	store    Store
	ledger   *liquidity.Ledger
	events   chan<- types.ResolverEvent
	logger   *logrus.Logger
}

// NewEngine creates an engine for the source chain described by config.
// Destination chain clients are resolved through the registry per swap.
func NewEngine(
	config *types.ChainConfig,
	registry types.ChainRegistry,
	store Store,
	ledger *liquidity.Ledger,
	events chan<- types.ResolverEvent,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		config:   config,
		registry: registry,
		store:    store,
		ledger:   ledger,
		events:   events,
		logger:   logger,
	}
}

// Run executes the polling loop until ctx is cancelled. Cycles never overlap:
// the next tick is consumed only after the previous cycle returns.
func (e *Engine) Run(ctx context.Context) {
	e.logger.WithField("chain", e.config.Name).
		WithField("interval", e.config.ProcessingInterval.String()).
		Info("Resolver engine started")
	e.emit(types.ResolverEvent{Type: types.EventStarted})

	ticker := time.NewTicker(e.config.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.WithField("chain", e.config.Name).Info("Resolver engine stopped")
			e.emit(types.ResolverEvent{Type: types.EventStopped})
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	e.processBatch(ctx, "pending", e.store.ListPendingSwaps, e.processPending)
	e.processBatch(ctx, "fulfilled", e.store.ListFulfilledSwaps, e.processFulfilled)
	e.processBatch(ctx, "expired", e.store.ListExpiredSwaps, e.refundExpired)
}

// processBatch lists one status bucket and processes the swaps concurrently.
// A single swap's failure is logged and reported but never aborts the batch.
func (e *Engine) processBatch(
	ctx context.Context,
	stage string,
	list func(ctx context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error),
	handle func(ctx context.Context, swap *types.SwapRequest) error,
) {
	swaps, err := list(ctx, e.config.Name, e.config.MaxBatchSize)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).
			WithField("stage", stage).
			WithError(err).
			Error("Failed to list swaps")
		e.emit(types.ResolverEvent{Type: types.EventError, Err: err})
		return
	}
	if len(swaps) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)

	for _, swap := range swaps {
		swap := swap
		group.Go(func() error {
			if err := handle(groupCtx, swap); err != nil {
				e.logger.WithField("swapId", swap.ID).
					WithField("stage", stage).
					WithError(err).
					Error("Failed to process swap")
				e.emit(types.ResolverEvent{Type: types.EventError, SwapID: swap.ID, Err: err})
			}
			return nil
		})
	}

	_ = group.Wait()
}

// emit sends an operational event without ever blocking the processing loop.
func (e *Engine) emit(event types.ResolverEvent) {
	if event.Chain == "" {
		event.Chain = e.config.Name
	}
	event.Time = time.Now()

	select {
	case e.events <- event:
	default:
		e.logger.WithField("eventType", string(event.Type)).
			Debug("Event channel full, dropping event")
	}
}

// poolContractID derives the deterministic destination contract id for a swap.
// A restarted resolver re-derives the same id, so an in-flight funding can be
// found on-chain again instead of being funded twice.
func poolContractID(swapID string) string {
	digest := sha256.Sum256([]byte(swapID + ":pool-htlc"))
	return hex.EncodeToString(digest[:])
}
