package dbstore

import (
	"context"
	"database/sql"
	"math/big"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// GetPool returns the liquidity ledger row for (chain, token).
func (s *DBStore) GetPool(ctx context.Context, chain, token string) (*types.LiquidityPool, error) {
	var total, available, reserved, minThreshold string

	err := s.db.QueryRowContext(ctx, `
		SELECT total_balance::text, available_balance::text, reserved_balance::text, min_threshold::text
		FROM pool_liquidity
		WHERE chain = $1 AND token = $2
	`, chain, token).Scan(&total, &available, &reserved, &minThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.ErrPoolNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get liquidity pool")
	}

	pool := &types.LiquidityPool{Chain: chain, Token: token}
	if pool.TotalBalance, err = parseAmount(total); err != nil {
		return nil, err
	}
	if pool.AvailableBalance, err = parseAmount(available); err != nil {
		return nil, err
	}
	if pool.ReservedBalance, err = parseAmount(reserved); err != nil {
		return nil, err
	}
	if pool.MinThreshold, err = parseAmount(minThreshold); err != nil {
		return nil, err
	}

	return pool, nil
}

// ReserveBalance atomically moves amount from available to reserved. The WHERE
// clause is the compare half of the compare-and-decrement: a pool with less
// available balance than amount matches no row.
func (s *DBStore) ReserveBalance(ctx context.Context, chain, token string, amount *big.Int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pool_liquidity
		SET available_balance = available_balance - $3::numeric,
		    reserved_balance = reserved_balance + $3::numeric,
		    updated_at = NOW()
		WHERE chain = $1 AND token = $2 AND available_balance >= $3::numeric
	`, chain, token, amount.String())
	if err != nil {
		return errors.Wrap(err, "failed to reserve balance")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		if _, err := s.GetPool(ctx, chain, token); err != nil {
			return err
		}
		return commonerrors.ErrInsufficientLiquidity
	}

	return nil
}

// ReleaseBalance atomically returns amount from reserved to available.
func (s *DBStore) ReleaseBalance(ctx context.Context, chain, token string, amount *big.Int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pool_liquidity
		SET available_balance = available_balance + $3::numeric,
		    reserved_balance = reserved_balance - $3::numeric,
		    updated_at = NOW()
		WHERE chain = $1 AND token = $2 AND reserved_balance >= $3::numeric
	`, chain, token, amount.String())
	if err != nil {
		return errors.Wrap(err, "failed to release balance")
	}

	return checkPoolAffected(result)
}

// CommitBalance atomically removes amount from reserved and total: the pool
// liquidity was actually sent on-chain.
func (s *DBStore) CommitBalance(ctx context.Context, chain, token string, amount *big.Int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pool_liquidity
		SET reserved_balance = reserved_balance - $3::numeric,
		    total_balance = total_balance - $3::numeric,
		    updated_at = NOW()
		WHERE chain = $1 AND token = $2 AND reserved_balance >= $3::numeric
	`, chain, token, amount.String())
	if err != nil {
		return errors.Wrap(err, "failed to commit balance")
	}

	return checkPoolAffected(result)
}

func checkPoolAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return commonerrors.ErrNoReservedBalance
	}
	return nil
}
