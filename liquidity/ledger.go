package liquidity

import (
	"context"
	"math/big"
	"sync"

	"github.com/crosspool/resolver-lib/common/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Store is the persistence backend of the liquidity ledger. Balance mutations
// are atomic compare-and-decrement operations keyed by (chain, token).
type Store interface {
	// GetPool returns the ledger row for (chain, token), or ErrPoolNotFound.
	GetPool(ctx context.Context, chain, token string) (*types.LiquidityPool, error)

	// ReserveBalance atomically moves amount from available to reserved.
	// Fails with ErrInsufficientLiquidity if available < amount.
	ReserveBalance(ctx context.Context, chain, token string, amount *big.Int) error

	// ReleaseBalance atomically moves amount from reserved back to available.
	ReleaseBalance(ctx context.Context, chain, token string, amount *big.Int) error

	// CommitBalance atomically removes amount from reserved and total.
	CommitBalance(ctx context.Context, chain, token string, amount *big.Int) error
}

// Health is the liquidity health of a (chain, token) pool.
type Health string

const (
	HealthHealthy Health = "HEALTHY"
	HealthLow     Health = "LOW"
)

type reservationState uint8

const (
	reservationActive reservationState = iota
	reservationReleased
	reservationCommitted
)

// Reservation is a temporary hold against available liquidity tied to one swap.
// No destination HTLC is ever funded without a prior successful reservation.
type Reservation struct {
	ID     string
	SwapID string
	Chain  string
	Token  string
	Amount *big.Int

	state reservationState // guarded by the ledger's per-token lock
}

// Ledger tracks pool liquidity per (chain, token) pair and enforces admission
// control before any pool-funded HTLC is created. All reserve, release and
// commit calls for the same token are serialized; different tokens do not
// block each other.
type Ledger struct {
	store  Store
	logger *logrus.Logger

	locksMutex sync.Mutex
	locks      map[string]*sync.Mutex
}

// NewLedger creates a new liquidity ledger backed by the given store.
func NewLedger(store Store, logger *logrus.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) tokenLock(chain, token string) *sync.Mutex {
	key := chain + ":" + token

	l.locksMutex.Lock()
	defer l.locksMutex.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Reserve places a hold of amount against the (chain, token) pool for the
// given swap. Fails with ErrInsufficientLiquidity if the available balance
// cannot cover the amount; the balance is left untouched in that case.
func (l *Ledger) Reserve(ctx context.Context, chain, token string, amount *big.Int, swapID string) (*Reservation, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("reservation amount must be positive")
	}

	lock := l.tokenLock(chain, token)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.ReserveBalance(ctx, chain, token, amount); err != nil {
		return nil, err
	}

	res := &Reservation{
		ID:     uuid.NewString(),
		SwapID: swapID,
		Chain:  chain,
		Token:  token,
		Amount: new(big.Int).Set(amount),
		state:  reservationActive,
	}

	l.logger.WithFields(logrus.Fields{
		"chain":  chain,
		"token":  token,
		"amount": amount.String(),
		"swapId": swapID,
	}).Debug("Reserved pool liquidity")

	return res, nil
}

// Release returns a reservation's amount to the available balance. Releasing
// an already released or committed reservation is a no-op, not an error, since
// failure-path cleanup may race.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}

	lock := l.tokenLock(res.Chain, res.Token)
	lock.Lock()
	defer lock.Unlock()

	if res.state != reservationActive {
		return nil
	}

	if err := l.store.ReleaseBalance(ctx, res.Chain, res.Token, res.Amount); err != nil {
		return errors.Wrap(err, "failed to release reservation")
	}
	res.state = reservationReleased

	l.logger.WithFields(logrus.Fields{
		"chain":  res.Chain,
		"token":  res.Token,
		"amount": res.Amount.String(),
		"swapId": res.SwapID,
	}).Debug("Released pool liquidity")

	return nil
}

// Commit consumes a reservation permanently: the pool liquidity was actually
// sent on-chain, so the amount leaves both reserved and total balances.
func (l *Ledger) Commit(ctx context.Context, res *Reservation) error {
	if res == nil {
		return errors.New("cannot commit nil reservation")
	}

	lock := l.tokenLock(res.Chain, res.Token)
	lock.Lock()
	defer lock.Unlock()

	if res.state != reservationActive {
		return errors.Errorf("cannot commit reservation %s in state %d", res.ID, res.state)
	}

	if err := l.store.CommitBalance(ctx, res.Chain, res.Token, res.Amount); err != nil {
		return errors.Wrap(err, "failed to commit reservation")
	}
	res.state = reservationCommitted

	return nil
}

// CommitAmount consumes reserved liquidity by raw amount. Reconciliation uses
// this after a restart, when the in-memory reservation for an in-flight
// funding no longer exists but the hold is still recorded in the store.
func (l *Ledger) CommitAmount(ctx context.Context, chain, token string, amount *big.Int) error {
	lock := l.tokenLock(chain, token)
	lock.Lock()
	defer lock.Unlock()

	return errors.Wrap(l.store.CommitBalance(ctx, chain, token, amount), "failed to commit reserved amount")
}

// ReleaseAmount returns reserved liquidity to the available balance by raw
// amount. Counterpart of CommitAmount for reconciliation.
func (l *Ledger) ReleaseAmount(ctx context.Context, chain, token string, amount *big.Int) error {
	lock := l.tokenLock(chain, token)
	lock.Lock()
	defer lock.Unlock()

	return errors.Wrap(l.store.ReleaseBalance(ctx, chain, token, amount), "failed to release reserved amount")
}

// HealthStatus compares the pool's available balance against its minimum
// threshold. The caller raises the poolLiquidityLow signal on HealthLow.
func (l *Ledger) HealthStatus(ctx context.Context, chain, token string) (Health, error) {
	pool, err := l.store.GetPool(ctx, chain, token)
	if err != nil {
		return "", err
	}

	if pool.MinThreshold != nil && pool.AvailableBalance.Cmp(pool.MinThreshold) < 0 {
		return HealthLow, nil
	}
	return HealthHealthy, nil
}
