package resolver

import (
	"context"
	"strings"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/crosspool/resolver-lib/liquidity"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// processPending advances one PENDING swap: validate the user's source lock,
// reserve destination liquidity, fund the destination lock and commit the
// reservation, transitioning the swap to POOL_FULFILLED.
func (e *Engine) processPending(ctx context.Context, swap *types.SwapRequest) error {
	log := e.logger.WithFields(logrus.Fields{
		"swapId":      swap.ID,
		"sourceChain": swap.SourceChain,
		"targetChain": swap.TargetChain,
	})

	// Idempotency guard. An existing IN_PROGRESS funding record means an
	// earlier cycle (or another instance) already submitted; reconcile it
	// instead of funding a second time.
	if op, err := e.store.GetInProgressOperation(ctx, swap.ID, types.OpFundPoolHTLC); err == nil {
		return e.reconcileFunding(ctx, swap, op)
	} else if !errors.Is(err, commonerrors.ErrOperationNotFound) {
		return errors.Wrap(err, "failed to check funding guard")
	}

	source := e.registry.Get(swap.SourceChain)
	target := e.registry.Get(swap.TargetChain)
	if source == nil || target == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "swap %s references an unconfigured chain", swap.ID)
	}

	details, err := source.GetDetails(ctx, swap.UserHTLCContract)
	if err != nil {
		if errors.Is(err, commonerrors.ErrHTLCNotFound) {
			e.recordFailedOperation(ctx, swap.ID, types.OpValidateSourceHTLC, "source htlc not found on chain")
			return e.failSwap(ctx, swap, types.SwapStatusPending, "source htlc not found on chain")
		}
		return errors.Wrap(err, "failed to load source htlc")
	}

	if reason := validateSourceHTLC(swap, details, source.PoolAddress()); reason != "" {
		e.recordFailedOperation(ctx, swap.ID, types.OpValidateSourceHTLC, reason)
		return e.failSwap(ctx, swap, types.SwapStatusPending, reason)
	}

	// Two independent chain clocks are involved. The destination timelock is
	// half of the remaining source window, so the pool can always claim the
	// source before it expires once the user has claimed the destination.
	now := time.Now().Unix()
	remaining := int64(details.Timelock) - now
	margin := int64(e.config.TimelockSafetyMargin / time.Second)
	if remaining < 2*margin {
		log.WithField("remainingSeconds", remaining).
			Warn("Source timelock too close to expiry, abandoning swap")
		e.recordFailedOperation(ctx, swap.ID, types.OpValidateSourceHTLC, "source timelock below safety margin")
		if err := e.store.UpdateSwapStatus(ctx, swap.ID, types.SwapStatusPending, types.SwapStatusExpired); err != nil {
			if errors.Is(err, commonerrors.ErrStatusConflict) {
				return nil
			}
			return err
		}
		e.emit(types.ResolverEvent{Type: types.EventSwapProcessed, SwapID: swap.ID})
		return nil
	}
	destTimelock := uint64(now + remaining/2)

	opID, err := e.store.InsertOperation(ctx, swap.ID, types.OpFundPoolHTLC)
	if err != nil {
		return errors.Wrap(err, "failed to record funding operation")
	}

	// Admission control: no destination fund call without a prior reservation.
	res, err := e.ledger.Reserve(ctx, swap.TargetChain, swap.TargetToken, swap.ExpectedAmount, swap.ID)
	if err != nil {
		_ = e.store.UpdateOperation(ctx, opID, types.OperationFailed, "", err.Error())
		if errors.Is(err, commonerrors.ErrInsufficientLiquidity) || errors.Is(err, commonerrors.ErrPoolNotFound) {
			e.emit(types.ResolverEvent{
				Type:  types.EventPoolLiquidityLow,
				Chain: swap.TargetChain,
				Token: swap.TargetToken,
			})
			return e.failSwap(ctx, swap, types.SwapStatusPending, "insufficient pool liquidity")
		}
		return errors.Wrap(err, "failed to reserve liquidity")
	}

	// The hold must be on the audit record before any chain submission:
	// reconciliation settles exactly what the record shows, so a record
	// without an amount is known to have never held liquidity.
	if err := e.store.SetOperationReservedAmount(ctx, opID, res.Amount); err != nil {
		if relErr := e.ledger.Release(ctx, res); relErr != nil {
			log.WithError(relErr).Error("Failed to release reservation after audit write failure")
		}
		_ = e.store.UpdateOperation(ctx, opID, types.OperationFailed, "", err.Error())
		return errors.Wrap(err, "failed to record reserved amount")
	}

	contractID := poolContractID(swap.ID)
	txRef, err := e.submitWithRetry(ctx, "fund", func() (string, error) {
		return target.Fund(ctx, &types.FundParams{
			ContractID:  contractID,
			Token:       swap.TargetToken,
			Beneficiary: swap.TargetAddress,
			HashLock:    swap.HashLock,
			Timelock:    destTimelock,
			Value:       res.Amount,
		})
	})
	if err != nil {
		if commonerrors.IsAmbiguous(err) {
			// The transaction may be on-chain. Keep the reservation and the
			// IN_PROGRESS record; the next cycle reconciles before deciding.
			log.WithField("txRef", txRef).WithError(err).
				Warn("Funding unconfirmed, deferring to reconciliation")
			_ = e.store.UpdateOperation(ctx, opID, types.OperationInProgress, txRef, err.Error())
			return nil
		}

		if relErr := e.ledger.Release(ctx, res); relErr != nil {
			log.WithError(relErr).Error("Failed to release reservation after funding failure")
		}
		_ = e.store.UpdateOperation(ctx, opID, types.OperationFailed, txRef, err.Error())
		if err := e.failSwap(ctx, swap, types.SwapStatusPending, "destination funding failed: "+err.Error()); err != nil {
			return err
		}
		return errors.Wrap(err, "failed to fund destination htlc")
	}

	if err := e.ledger.Commit(ctx, res); err != nil {
		return errors.Wrap(err, "failed to commit reservation after confirmed funding")
	}
	if err := e.store.MarkPoolFulfilled(ctx, swap.ID, contractID); err != nil {
		if !errors.Is(err, commonerrors.ErrStatusConflict) {
			return errors.Wrap(err, "failed to mark swap pool fulfilled")
		}
		log.Warn("Swap advanced concurrently after funding")
	}
	if err := e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, ""); err != nil {
		return errors.Wrap(err, "failed to complete funding operation")
	}

	log.WithFields(logrus.Fields{
		"poolContract": contractID,
		"txRef":        txRef,
		"amount":       res.Amount.String(),
	}).Info("Destination HTLC funded")
	e.emit(types.ResolverEvent{Type: types.EventSwapProcessed, SwapID: swap.ID, Token: swap.TargetToken})

	e.checkLiquidityHealth(ctx, swap.TargetChain, swap.TargetToken)

	return nil
}

// validateSourceHTLC checks the on-chain source lock against the swap request.
// A non-empty return value is the rejection reason.
func validateSourceHTLC(swap *types.SwapRequest, details *types.HTLCDetails, poolAddress string) string {
	switch details.State {
	case types.HTLCStateClaimed:
		return "source htlc already claimed"
	case types.HTLCStateRefunded:
		return "source htlc already refunded"
	case types.HTLCStateOpen:
	default:
		return "source htlc not open"
	}

	if details.HashLock != swap.HashLock {
		return "source hash lock does not match swap request"
	}
	if !strings.EqualFold(details.Beneficiary, poolAddress) {
		return "pool is not the source htlc beneficiary"
	}
	if details.Value == nil || swap.SourceAmount == nil || details.Value.Cmp(swap.SourceAmount) < 0 {
		return "source htlc value below requested amount"
	}
	if swap.TargetAddress == "" {
		return "swap request has no target address"
	}
	if swap.ExpectedAmount == nil || swap.ExpectedAmount.Sign() <= 0 {
		return "swap request has no positive expected amount"
	}
	return ""
}

// reconcileFunding decides the fate of an earlier funding attempt that was
// left IN_PROGRESS. Either the transaction landed, in which case the swap
// converges to the normal success path, or it is declared lost after
// PendingFundTimeout and the liquidity hold is given back.
func (e *Engine) reconcileFunding(ctx context.Context, swap *types.SwapRequest, op *types.ResolverOperation) error {
	target := e.registry.Get(swap.TargetChain)
	if target == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "swap %s references an unconfigured chain", swap.ID)
	}

	contractID := poolContractID(swap.ID)
	log := e.logger.WithFields(logrus.Fields{
		"swapId":       swap.ID,
		"poolContract": contractID,
	})

	_, err := target.GetDetails(ctx, contractID)
	switch {
	case err == nil:
		// The funding landed after all. The in-memory reservation from the
		// original attempt is gone, so settle the hold the audit record shows.
		if op.ReservedAmount != nil {
			if err := e.ledger.CommitAmount(ctx, swap.TargetChain, swap.TargetToken, op.ReservedAmount); err != nil {
				if !errors.Is(err, commonerrors.ErrNoReservedBalance) {
					// A store failure here must not advance the swap, or the
					// hold would be stranded with no later path touching it.
					return errors.Wrap(err, "failed to commit reserved amount for landed funding")
				}
				log.Warn("Reserved amount already settled during reconciliation")
			}
		}
		if err := e.store.MarkPoolFulfilled(ctx, swap.ID, contractID); err != nil && !errors.Is(err, commonerrors.ErrStatusConflict) {
			return errors.Wrap(err, "failed to mark swap pool fulfilled")
		}
		txRef := ""
		if op.TxRef != nil {
			txRef = *op.TxRef
		}
		if err := e.store.UpdateOperation(ctx, op.ID, types.OperationCompleted, txRef, ""); err != nil {
			return errors.Wrap(err, "failed to complete reconciled funding operation")
		}

		log.Info("Reconciled unconfirmed funding as landed")
		e.emit(types.ResolverEvent{Type: types.EventSwapProcessed, SwapID: swap.ID, Token: swap.TargetToken})
		return nil

	case errors.Is(err, commonerrors.ErrHTLCNotFound):
		if time.Since(op.StartedAt) < e.pendingFundTimeout() {
			log.Debug("Funding still unconfirmed, waiting")
			return nil
		}

		// Declared lost. Release only the hold the audit record shows and
		// fail the operation; the swap stays PENDING and is retried from
		// scratch next cycle. A record without an amount never reserved
		// anything, so releasing would steal another swap's hold.
		if op.ReservedAmount != nil {
			if err := e.ledger.ReleaseAmount(ctx, swap.TargetChain, swap.TargetToken, op.ReservedAmount); err != nil {
				return errors.Wrap(err, "failed to release reservation for lost funding")
			}
		}
		if err := e.store.UpdateOperation(ctx, op.ID, types.OperationFailed, "", "funding not confirmed within pending fund timeout"); err != nil {
			return errors.Wrap(err, "failed to fail lost funding operation")
		}

		log.Warn("Released reservation for lost funding transaction")
		return nil

	default:
		return errors.Wrap(err, "failed to reconcile funding")
	}
}

func (e *Engine) pendingFundTimeout() time.Duration {
	if e.config.PendingFundTimeout > 0 {
		return e.config.PendingFundTimeout
	}
	return 3 * e.config.ProcessingInterval
}

// failSwap transitions the swap to FAILED. A status conflict means another
// instance got there first and is not treated as an error.
func (e *Engine) failSwap(ctx context.Context, swap *types.SwapRequest, expected types.SwapStatus, reason string) error {
	e.logger.WithField("swapId", swap.ID).
		WithField("reason", reason).
		Warn("Marking swap failed")

	if err := e.store.UpdateSwapStatus(ctx, swap.ID, expected, types.SwapStatusFailed); err != nil {
		if errors.Is(err, commonerrors.ErrStatusConflict) {
			return nil
		}
		return errors.Wrap(err, "failed to mark swap failed")
	}

	e.emit(types.ResolverEvent{Type: types.EventError, SwapID: swap.ID, Err: errors.New(reason)})
	return nil
}

// recordFailedOperation appends a FAILED audit record in one step, for
// rejections that never had an IN_PROGRESS phase.
func (e *Engine) recordFailedOperation(ctx context.Context, swapID string, opType types.OperationType, reason string) {
	opID, err := e.store.InsertOperation(ctx, swapID, opType)
	if err != nil {
		e.logger.WithField("swapId", swapID).WithError(err).Warn("Failed to record operation")
		return
	}
	if err := e.store.UpdateOperation(ctx, opID, types.OperationFailed, "", reason); err != nil {
		e.logger.WithField("swapId", swapID).WithError(err).Warn("Failed to finalize operation record")
	}
}

func (e *Engine) checkLiquidityHealth(ctx context.Context, chain, token string) {
	health, err := e.ledger.HealthStatus(ctx, chain, token)
	if err != nil {
		e.logger.WithField("chain", chain).
			WithField("token", token).
			WithError(err).
			Warn("Failed to check pool liquidity health")
		return
	}
	if health == liquidity.HealthLow {
		e.emit(types.ResolverEvent{Type: types.EventPoolLiquidityLow, Chain: chain, Token: token})
	}
}
