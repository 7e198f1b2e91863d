package resolver

import (
	"context"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// processFulfilled advances one POOL_FULFILLED swap: watch the destination
// lock for the user's claim, extract and verify the revealed preimage, then
// claim the source lock with it.
func (e *Engine) processFulfilled(ctx context.Context, swap *types.SwapRequest) error {
	if swap.PoolHTLCContract == nil {
		return errors.Errorf("swap %s is fulfilled without a pool contract", swap.ID)
	}

	if op, err := e.store.GetInProgressOperation(ctx, swap.ID, types.OpClaimSourceHTLC); err == nil {
		return e.reconcileClaim(ctx, swap, op)
	} else if !errors.Is(err, commonerrors.ErrOperationNotFound) {
		return errors.Wrap(err, "failed to check claim guard")
	}

	source := e.registry.Get(swap.SourceChain)
	target := e.registry.Get(swap.TargetChain)
	if source == nil || target == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "swap %s references an unconfigured chain", swap.ID)
	}

	log := e.logger.WithFields(logrus.Fields{
		"swapId":       swap.ID,
		"poolContract": *swap.PoolHTLCContract,
	})

	// The preimage either arrives through the API layer with the swap row or
	// is read back from the destination contract once the user claims it.
	var preimage [types.HashLockSize]byte
	haveSecret := len(swap.Preimage) == types.HashLockSize
	if haveSecret {
		copy(preimage[:], swap.Preimage)
	} else {
		details, err := target.GetDetails(ctx, *swap.PoolHTLCContract)
		if err != nil {
			return errors.Wrap(err, "failed to load destination htlc")
		}

		switch details.State {
		case types.HTLCStateOpen:
			return e.checkSourceWindow(ctx, swap, source)
		case types.HTLCStateRefunded:
			log.Warn("Destination HTLC refunded before user claim")
			return e.expireSwap(ctx, swap)
		case types.HTLCStateClaimed:
			preimage, err = target.GetPreimage(ctx, *swap.PoolHTLCContract)
			if err != nil {
				return errors.Wrap(err, "failed to read revealed preimage")
			}
		default:
			return errors.Errorf("destination htlc for swap %s in unexpected state %s", swap.ID, details.State)
		}
	}

	// Never claim with a secret that was not verified against the stored
	// commitment, regardless of where it came from.
	if !types.VerifyPreimage(preimage[:], swap.HashLock) {
		e.recordFailedOperation(ctx, swap.ID, types.OpClaimSourceHTLC, "revealed preimage does not match hash lock")
		return e.failSwap(ctx, swap, types.SwapStatusPoolFulfilled, "revealed preimage does not match hash lock")
	}

	// Re-check the source window; an expired lock gets no doomed transaction.
	claimable, err := source.IsClaimable(ctx, swap.UserHTLCContract)
	if err != nil {
		return errors.Wrap(err, "failed to check source claimability")
	}
	if !claimable {
		return e.resolveUnclaimable(ctx, swap, source)
	}

	opID, err := e.store.InsertOperation(ctx, swap.ID, types.OpClaimSourceHTLC)
	if err != nil {
		return errors.Wrap(err, "failed to record claim operation")
	}

	txRef, err := e.submitWithRetry(ctx, "claim", func() (string, error) {
		return source.Claim(ctx, swap.UserHTLCContract, preimage)
	})
	if err != nil {
		if commonerrors.IsAmbiguous(err) {
			log.WithField("txRef", txRef).WithError(err).
				Warn("Claim unconfirmed, deferring to reconciliation")
			_ = e.store.UpdateOperation(ctx, opID, types.OperationInProgress, txRef, err.Error())
			return nil
		}
		if errors.Is(err, commonerrors.ErrAlreadyClaimed) {
			// An earlier attempt landed before a crash. Converge.
			_ = e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, "")
			return e.markClaimed(ctx, swap, preimage)
		}

		// The swap stays POOL_FULFILLED; the next cycle re-attempts from the
		// last confirmed state, never from scratch.
		_ = e.store.UpdateOperation(ctx, opID, types.OperationFailed, txRef, err.Error())
		return errors.Wrap(err, "failed to claim source htlc")
	}

	if err := e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, ""); err != nil {
		return errors.Wrap(err, "failed to complete claim operation")
	}

	log.WithField("txRef", txRef).Info("Source HTLC claimed")
	return e.markClaimed(ctx, swap, preimage)
}

// checkSourceWindow handles a fulfilled swap whose destination lock is still
// untouched: either keep waiting for the user, or expire the swap once the
// source timelock has run out.
func (e *Engine) checkSourceWindow(ctx context.Context, swap *types.SwapRequest, source types.HTLCClient) error {
	details, err := source.GetDetails(ctx, swap.UserHTLCContract)
	if err != nil {
		return errors.Wrap(err, "failed to load source htlc")
	}

	switch details.State {
	case types.HTLCStateOpen:
		if time.Now().Unix() < int64(details.Timelock) {
			return nil
		}
		e.logger.WithField("swapId", swap.ID).
			Warn("Source timelock expired before user claim")
		return e.expireSwap(ctx, swap)

	case types.HTLCStateClaimed:
		// Landed earlier than our bookkeeping knows. Recover the secret from
		// the source contract and converge.
		preimage, err := source.GetPreimage(ctx, swap.UserHTLCContract)
		if err != nil {
			return errors.Wrap(err, "failed to recover preimage from claimed source")
		}
		return e.markClaimed(ctx, swap, preimage)

	default:
		e.logger.WithField("swapId", swap.ID).
			WithField("state", details.State.String()).
			Warn("Source HTLC no longer open")
		return e.expireSwap(ctx, swap)
	}
}

// resolveUnclaimable handles the case where the preimage is known but the
// source lock reports not claimable.
func (e *Engine) resolveUnclaimable(ctx context.Context, swap *types.SwapRequest, source types.HTLCClient) error {
	details, err := source.GetDetails(ctx, swap.UserHTLCContract)
	if err != nil {
		return errors.Wrap(err, "failed to load source htlc")
	}

	if details.State == types.HTLCStateClaimed {
		preimage, err := source.GetPreimage(ctx, swap.UserHTLCContract)
		if err != nil {
			return errors.Wrap(err, "failed to recover preimage from claimed source")
		}
		return e.markClaimed(ctx, swap, preimage)
	}

	e.logger.WithField("swapId", swap.ID).
		Warn("Source HTLC expired with preimage in hand")
	return e.expireSwap(ctx, swap)
}

// reconcileClaim decides the fate of a claim attempt left IN_PROGRESS.
func (e *Engine) reconcileClaim(ctx context.Context, swap *types.SwapRequest, op *types.ResolverOperation) error {
	source := e.registry.Get(swap.SourceChain)
	if source == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "swap %s references an unconfigured chain", swap.ID)
	}

	details, err := source.GetDetails(ctx, swap.UserHTLCContract)
	if err != nil {
		return errors.Wrap(err, "failed to reconcile claim")
	}

	if details.State == types.HTLCStateClaimed {
		preimage, err := source.GetPreimage(ctx, swap.UserHTLCContract)
		if err != nil {
			return errors.Wrap(err, "failed to recover preimage from claimed source")
		}
		txRef := ""
		if op.TxRef != nil {
			txRef = *op.TxRef
		}
		if err := e.store.UpdateOperation(ctx, op.ID, types.OperationCompleted, txRef, ""); err != nil {
			return errors.Wrap(err, "failed to complete reconciled claim operation")
		}
		e.logger.WithField("swapId", swap.ID).Info("Reconciled unconfirmed claim as landed")
		return e.markClaimed(ctx, swap, preimage)
	}

	if time.Since(op.StartedAt) >= e.pendingFundTimeout() {
		// Abandoned; clearing the guard lets the next cycle retry.
		if err := e.store.UpdateOperation(ctx, op.ID, types.OperationFailed, "", "claim not confirmed within timeout"); err != nil {
			return errors.Wrap(err, "failed to fail abandoned claim operation")
		}
	}
	return nil
}

// markClaimed finishes the happy path: the pool holds the source funds and
// the swap becomes USER_CLAIMED with the verified preimage on record.
func (e *Engine) markClaimed(ctx context.Context, swap *types.SwapRequest, preimage [types.HashLockSize]byte) error {
	if err := e.store.MarkUserClaimed(ctx, swap.ID, preimage[:]); err != nil {
		if errors.Is(err, commonerrors.ErrStatusConflict) {
			return nil
		}
		return errors.Wrap(err, "failed to mark swap user claimed")
	}

	e.emit(types.ResolverEvent{Type: types.EventSwapProcessed, SwapID: swap.ID, Token: swap.SourceToken})
	return nil
}

// expireSwap transitions a fulfilled swap to EXPIRED. The pool's destination
// lock is reclaimed by the expired maintenance pass afterwards.
func (e *Engine) expireSwap(ctx context.Context, swap *types.SwapRequest) error {
	if err := e.store.UpdateSwapStatus(ctx, swap.ID, types.SwapStatusPoolFulfilled, types.SwapStatusExpired); err != nil {
		if errors.Is(err, commonerrors.ErrStatusConflict) {
			return nil
		}
		return errors.Wrap(err, "failed to mark swap expired")
	}

	e.emit(types.ResolverEvent{Type: types.EventSwapProcessed, SwapID: swap.ID})
	return nil
}
