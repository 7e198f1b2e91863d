package resolver

import (
	"context"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// refundExpired reclaims the pool's destination lock for a swap that expired
// after the pool had already funded it. The swap's terminal status never
// changes here; this is pure fund recovery.
func (e *Engine) refundExpired(ctx context.Context, swap *types.SwapRequest) error {
	if swap.PoolHTLCContract == nil {
		return nil
	}

	done, err := e.store.HasCompletedOperation(ctx, swap.ID, types.OpRefundPoolHTLC)
	if err != nil {
		return errors.Wrap(err, "failed to check refund history")
	}
	if done {
		return nil
	}

	if op, err := e.store.GetInProgressOperation(ctx, swap.ID, types.OpRefundPoolHTLC); err == nil {
		if time.Since(op.StartedAt) >= e.pendingFundTimeout() {
			if err := e.store.UpdateOperation(ctx, op.ID, types.OperationFailed, "", "refund not confirmed within timeout"); err != nil {
				return errors.Wrap(err, "failed to fail abandoned refund operation")
			}
		}
		return nil
	} else if !errors.Is(err, commonerrors.ErrOperationNotFound) {
		return errors.Wrap(err, "failed to check refund guard")
	}

	target := e.registry.Get(swap.TargetChain)
	if target == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "swap %s references an unconfigured chain", swap.ID)
	}

	details, err := target.GetDetails(ctx, *swap.PoolHTLCContract)
	if err != nil {
		if errors.Is(err, commonerrors.ErrHTLCNotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to load destination htlc")
	}

	switch details.State {
	case types.HTLCStateClaimed:
		// The user claimed after the swap was already written off. The funds
		// are theirs; nothing to reclaim.
		e.logger.WithField("swapId", swap.ID).
			Warn("Destination HTLC claimed on an expired swap")
		e.recordCompletedOperation(ctx, swap.ID, types.OpRefundPoolHTLC, "")
		return nil

	case types.HTLCStateRefunded:
		e.recordCompletedOperation(ctx, swap.ID, types.OpRefundPoolHTLC, "")
		return nil
	}

	refundable, err := target.IsRefundable(ctx, *swap.PoolHTLCContract)
	if err != nil {
		return errors.Wrap(err, "failed to check destination refundability")
	}
	if !refundable {
		// Destination timelock still running; try again next cycle.
		return nil
	}

	opID, err := e.store.InsertOperation(ctx, swap.ID, types.OpRefundPoolHTLC)
	if err != nil {
		return errors.Wrap(err, "failed to record refund operation")
	}

	txRef, err := e.submitWithRetry(ctx, "refund", func() (string, error) {
		return target.Refund(ctx, *swap.PoolHTLCContract)
	})
	if err != nil {
		if commonerrors.IsAmbiguous(err) {
			_ = e.store.UpdateOperation(ctx, opID, types.OperationInProgress, txRef, err.Error())
			return nil
		}
		if errors.Is(err, commonerrors.ErrAlreadyRefunded) {
			_ = e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, "")
			return nil
		}
		_ = e.store.UpdateOperation(ctx, opID, types.OperationFailed, txRef, err.Error())
		return errors.Wrap(err, "failed to refund destination htlc")
	}

	if err := e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, ""); err != nil {
		return errors.Wrap(err, "failed to complete refund operation")
	}

	e.logger.WithField("swapId", swap.ID).
		WithField("txRef", txRef).
		Info("Reclaimed expired destination HTLC")
	return nil
}

// recordCompletedOperation appends a COMPLETED audit record in one step, for
// outcomes observed on-chain rather than submitted here.
func (e *Engine) recordCompletedOperation(ctx context.Context, swapID string, opType types.OperationType, txRef string) {
	opID, err := e.store.InsertOperation(ctx, swapID, opType)
	if err != nil {
		e.logger.WithField("swapId", swapID).WithError(err).Warn("Failed to record operation")
		return
	}
	if err := e.store.UpdateOperation(ctx, opID, types.OperationCompleted, txRef, ""); err != nil {
		e.logger.WithField("swapId", swapID).WithError(err).Warn("Failed to finalize operation record")
	}
}
