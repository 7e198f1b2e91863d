package liquidity

import (
	"context"
	"math/big"
	"sync"
	"testing"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu    sync.Mutex
	pools map[string]*types.LiquidityPool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pools: make(map[string]*types.LiquidityPool)}
}

func (s *memoryStore) addPool(chain, token string, total, minThreshold *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[chain+":"+token] = &types.LiquidityPool{
		Chain:            chain,
		Token:            token,
		TotalBalance:     new(big.Int).Set(total),
		AvailableBalance: new(big.Int).Set(total),
		ReservedBalance:  new(big.Int),
		MinThreshold:     minThreshold,
	}
}

func (s *memoryStore) GetPool(_ context.Context, chain, token string) (*types.LiquidityPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return nil, commonerrors.ErrPoolNotFound
	}
	return &types.LiquidityPool{
		Chain:            pool.Chain,
		Token:            pool.Token,
		TotalBalance:     new(big.Int).Set(pool.TotalBalance),
		AvailableBalance: new(big.Int).Set(pool.AvailableBalance),
		ReservedBalance:  new(big.Int).Set(pool.ReservedBalance),
		MinThreshold:     pool.MinThreshold,
	}, nil
}

func (s *memoryStore) ReserveBalance(_ context.Context, chain, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return commonerrors.ErrPoolNotFound
	}
	if pool.AvailableBalance.Cmp(amount) < 0 {
		return commonerrors.ErrInsufficientLiquidity
	}
	pool.AvailableBalance.Sub(pool.AvailableBalance, amount)
	pool.ReservedBalance.Add(pool.ReservedBalance, amount)
	return nil
}

func (s *memoryStore) ReleaseBalance(_ context.Context, chain, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return commonerrors.ErrPoolNotFound
	}
	pool.ReservedBalance.Sub(pool.ReservedBalance, amount)
	pool.AvailableBalance.Add(pool.AvailableBalance, amount)
	return nil
}

func (s *memoryStore) CommitBalance(_ context.Context, chain, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return commonerrors.ErrPoolNotFound
	}
	pool.ReservedBalance.Sub(pool.ReservedBalance, amount)
	pool.TotalBalance.Sub(pool.TotalBalance, amount)
	return nil
}

func requireConservation(t *testing.T, store *memoryStore, chain, token string) {
	t.Helper()
	pool, err := store.GetPool(context.Background(), chain, token)
	require.NoError(t, err)
	sum := new(big.Int).Add(pool.AvailableBalance, pool.ReservedBalance)
	require.Zero(t, sum.Cmp(pool.TotalBalance), "available + reserved must equal total")
}

func TestReserveReleaseCommitConservation(t *testing.T) {
	store := newMemoryStore()
	store.addPool("ethereum", "0xToken", big.NewInt(1_000_000), nil)
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	resA, err := ledger.Reserve(ctx, "ethereum", "0xToken", big.NewInt(300_000), "swap-a")
	require.NoError(t, err)
	requireConservation(t, store, "ethereum", "0xToken")

	resB, err := ledger.Reserve(ctx, "ethereum", "0xToken", big.NewInt(200_000), "swap-b")
	require.NoError(t, err)
	requireConservation(t, store, "ethereum", "0xToken")

	require.NoError(t, ledger.Release(ctx, resA))
	requireConservation(t, store, "ethereum", "0xToken")

	require.NoError(t, ledger.Commit(ctx, resB))
	requireConservation(t, store, "ethereum", "0xToken")

	pool, err := store.GetPool(ctx, "ethereum", "0xToken")
	require.NoError(t, err)
	assert.Equal(t, "800000", pool.TotalBalance.String())
	assert.Equal(t, "800000", pool.AvailableBalance.String())
	assert.Equal(t, "0", pool.ReservedBalance.String())
}

func TestReserveInsufficientLiquidity(t *testing.T) {
	store := newMemoryStore()
	store.addPool("ethereum", "0xToken", big.NewInt(100), nil)
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "ethereum", "0xToken", big.NewInt(101), "swap-a")
	require.ErrorIs(t, err, commonerrors.ErrInsufficientLiquidity)
	require.Nil(t, res)

	pool, err := store.GetPool(ctx, "ethereum", "0xToken")
	require.NoError(t, err)
	assert.Equal(t, "100", pool.AvailableBalance.String(), "failed reservation must not touch the balance")
}

func TestReleaseIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.addPool("neutron", "untrn", big.NewInt(500), nil)
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "neutron", "untrn", big.NewInt(200), "swap-a")
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, res))
	require.NoError(t, ledger.Release(ctx, res))
	require.NoError(t, ledger.Release(ctx, nil))

	pool, err := store.GetPool(ctx, "neutron", "untrn")
	require.NoError(t, err)
	assert.Equal(t, "500", pool.AvailableBalance.String())
	assert.Equal(t, "0", pool.ReservedBalance.String())
	requireConservation(t, store, "neutron", "untrn")
}

func TestCommitReleasedReservationFails(t *testing.T) {
	store := newMemoryStore()
	store.addPool("neutron", "untrn", big.NewInt(500), nil)
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "neutron", "untrn", big.NewInt(200), "swap-a")
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, res))

	require.Error(t, ledger.Commit(ctx, res))
	requireConservation(t, store, "neutron", "untrn")
}

func TestConcurrentReservationsSameToken(t *testing.T) {
	store := newMemoryStore()
	store.addPool("ethereum", "0xToken", big.NewInt(10), nil)
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded sync.Map
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, "ethereum", "0xToken", big.NewInt(1), "swap"); err == nil {
				succeeded.Store(n, struct{}{})
			}
		}(i)
	}
	wg.Wait()

	count := 0
	succeeded.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 10, count, "exactly the available balance may be reserved")
	requireConservation(t, store, "ethereum", "0xToken")
}

func TestHealthStatus(t *testing.T) {
	store := newMemoryStore()
	store.addPool("ethereum", "0xToken", big.NewInt(1000), big.NewInt(100))
	ledger := NewLedger(store, logrus.New())
	ctx := context.Background()

	health, err := ledger.HealthStatus(ctx, "ethereum", "0xToken")
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, health)

	_, err = ledger.Reserve(ctx, "ethereum", "0xToken", big.NewInt(950), "swap-a")
	require.NoError(t, err)

	health, err = ledger.HealthStatus(ctx, "ethereum", "0xToken")
	require.NoError(t, err)
	assert.Equal(t, HealthLow, health)

	_, err = ledger.HealthStatus(ctx, "ethereum", "0xOther")
	require.ErrorIs(t, err, commonerrors.ErrPoolNotFound)
}
