package resolver

import (
	"context"
	"math/big"
	"sync"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	"github.com/pkg/errors"
)

// fakeChain is an in-memory HTLC client. State-changing calls mutate the
// contract map so follow-up reads observe the effect, like a real chain would.
type fakeChain struct {
	mu          sync.Mutex
	poolAddress string
	details     map[string]*types.HTLCDetails
	claimable   map[string]bool
	refundable  map[string]bool
	preimages   map[string][types.HashLockSize]byte

	fundErr   error
	claimErr  error
	refundErr error

	fundCalls   []*types.FundParams
	claimCalls  int
	refundCalls int
}

func newFakeChain(poolAddress string) *fakeChain {
	return &fakeChain{
		poolAddress: poolAddress,
		details:     make(map[string]*types.HTLCDetails),
		claimable:   make(map[string]bool),
		refundable:  make(map[string]bool),
		preimages:   make(map[string][types.HashLockSize]byte),
	}
}

func (f *fakeChain) PoolAddress() string { return f.poolAddress }

func (f *fakeChain) Close() {}

func (f *fakeChain) GetDetails(_ context.Context, contractID string) (*types.HTLCDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	details, ok := f.details[contractID]
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrHTLCNotFound, "contract %s", contractID)
	}
	copied := *details
	return &copied, nil
}

func (f *fakeChain) IsClaimable(_ context.Context, contractID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimable[contractID], nil
}

func (f *fakeChain) IsRefundable(_ context.Context, contractID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refundable[contractID], nil
}

func (f *fakeChain) GetPreimage(_ context.Context, contractID string) ([types.HashLockSize]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	preimage, ok := f.preimages[contractID]
	if !ok {
		return [types.HashLockSize]byte{}, errors.Errorf("no preimage recorded for %s", contractID)
	}
	return preimage, nil
}

func (f *fakeChain) Fund(_ context.Context, params *types.FundParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fundErr != nil {
		return "", f.fundErr
	}

	f.fundCalls = append(f.fundCalls, params)
	f.details[params.ContractID] = &types.HTLCDetails{
		Token:       params.Token,
		Beneficiary: params.Beneficiary,
		Originator:  f.poolAddress,
		HashLock:    params.HashLock,
		Timelock:    params.Timelock,
		Value:       new(big.Int).Set(params.Value),
		State:       types.HTLCStateOpen,
	}
	f.claimable[params.ContractID] = true
	return "0xfundtx", nil
}

func (f *fakeChain) Claim(_ context.Context, contractID string, preimage [types.HashLockSize]byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claimErr != nil {
		return "", f.claimErr
	}

	f.claimCalls++
	if details, ok := f.details[contractID]; ok {
		details.State = types.HTLCStateClaimed
	}
	f.preimages[contractID] = preimage
	f.claimable[contractID] = false
	return "0xclaimtx", nil
}

func (f *fakeChain) Refund(_ context.Context, contractID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refundErr != nil {
		return "", f.refundErr
	}

	f.refundCalls++
	if details, ok := f.details[contractID]; ok {
		details.State = types.HTLCStateRefunded
	}
	f.refundable[contractID] = false
	return "0xrefundtx", nil
}

func (f *fakeChain) setDetails(contractID string, details *types.HTLCDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[contractID] = details
}

// markClaimed simulates the user claiming a contract with the given preimage.
func (f *fakeChain) markClaimed(contractID string, preimage [types.HashLockSize]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if details, ok := f.details[contractID]; ok {
		details.State = types.HTLCStateClaimed
	}
	f.preimages[contractID] = preimage
	f.claimable[contractID] = false
}

type fakeRegistry struct {
	chains map[string]types.HTLCClient
}

func (r *fakeRegistry) Add(context.Context, *types.ChainConfig) error { return nil }
func (r *fakeRegistry) Get(chain string) types.HTLCClient             { return r.chains[chain] }
func (r *fakeRegistry) Remove(string)                                 {}

// memStore is an in-memory Store with the same optimistic concurrency
// semantics as the database implementation.
type memStore struct {
	mu     sync.Mutex
	order  []string
	swaps  map[string]*types.SwapRequest
	ops    []*types.ResolverOperation
	nextOp int64
}

func newMemStore() *memStore {
	return &memStore{swaps: make(map[string]*types.SwapRequest)}
}

func (s *memStore) addSwap(swap *types.SwapRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, swap.ID)
	s.swaps[swap.ID] = swap
}

func (s *memStore) listByStatus(sourceChain string, status types.SwapStatus, limit int) []*types.SwapRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.SwapRequest
	for _, id := range s.order {
		swap := s.swaps[id]
		if swap.SourceChain != sourceChain || swap.Status != status {
			continue
		}
		copied := *swap
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *memStore) ListPendingSwaps(_ context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	return s.listByStatus(sourceChain, types.SwapStatusPending, limit), nil
}

func (s *memStore) ListFulfilledSwaps(_ context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	return s.listByStatus(sourceChain, types.SwapStatusPoolFulfilled, limit), nil
}

func (s *memStore) ListExpiredSwaps(_ context.Context, sourceChain string, limit int) ([]*types.SwapRequest, error) {
	return s.listByStatus(sourceChain, types.SwapStatusExpired, limit), nil
}

func (s *memStore) GetSwapByID(_ context.Context, id string) (*types.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.swaps[id]
	if !ok {
		return nil, commonerrors.ErrSwapNotFound
	}
	copied := *swap
	return &copied, nil
}

func (s *memStore) UpdateSwapStatus(_ context.Context, id string, expected, next types.SwapStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.swaps[id]
	if !ok || swap.Status != expected {
		return commonerrors.ErrStatusConflict
	}
	swap.Status = next
	swap.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkPoolFulfilled(_ context.Context, id, poolContract string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.swaps[id]
	if !ok || swap.Status != types.SwapStatusPending {
		return commonerrors.ErrStatusConflict
	}
	swap.Status = types.SwapStatusPoolFulfilled
	swap.PoolHTLCContract = &poolContract
	swap.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkUserClaimed(_ context.Context, id string, preimage []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.swaps[id]
	if !ok || swap.Status != types.SwapStatusPoolFulfilled {
		return commonerrors.ErrStatusConflict
	}
	now := time.Now()
	swap.Status = types.SwapStatusUserClaimed
	swap.Preimage = append([]byte(nil), preimage...)
	swap.PoolClaimedAt = &now
	swap.UpdatedAt = now
	return nil
}

func (s *memStore) InsertOperation(_ context.Context, swapID string, opType types.OperationType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOp++
	s.ops = append(s.ops, &types.ResolverOperation{
		ID:        s.nextOp,
		SwapID:    swapID,
		Type:      opType,
		Status:    types.OperationInProgress,
		StartedAt: time.Now(),
	})
	return s.nextOp, nil
}

func (s *memStore) UpdateOperation(_ context.Context, id int64, status types.OperationStatus, txRef, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.ID != id {
			continue
		}
		op.Status = status
		if txRef != "" {
			ref := txRef
			op.TxRef = &ref
		}
		if errMsg != "" {
			msg := errMsg
			op.ErrorMessage = &msg
		}
		if status != types.OperationInProgress {
			now := time.Now()
			op.CompletedAt = &now
		}
		return nil
	}
	return commonerrors.ErrOperationNotFound
}

func (s *memStore) SetOperationReservedAmount(_ context.Context, id int64, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.ID == id {
			op.ReservedAmount = new(big.Int).Set(amount)
			return nil
		}
	}
	return commonerrors.ErrOperationNotFound
}

func (s *memStore) GetInProgressOperation(_ context.Context, swapID string, opType types.OperationType) (*types.ResolverOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.SwapID == swapID && op.Type == opType && op.Status == types.OperationInProgress {
			copied := *op
			return &copied, nil
		}
	}
	return nil, commonerrors.ErrOperationNotFound
}

func (s *memStore) HasCompletedOperation(_ context.Context, swapID string, opType types.OperationType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.SwapID == swapID && op.Type == opType && op.Status == types.OperationCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) operationsOfType(opType types.OperationType) []*types.ResolverOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.ResolverOperation
	for _, op := range s.ops {
		if op.Type == opType {
			copied := *op
			out = append(out, &copied)
		}
	}
	return out
}

func (s *memStore) backdateOperation(id int64, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.ID == id {
			op.StartedAt = startedAt
		}
	}
}

// memPoolStore is an in-memory liquidity.Store.
type memPoolStore struct {
	mu    sync.Mutex
	pools map[string]*types.LiquidityPool

	commitErr error
}

func newMemPoolStore() *memPoolStore {
	return &memPoolStore{pools: make(map[string]*types.LiquidityPool)}
}

func (s *memPoolStore) add(chain, token string, available, threshold int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[chain+":"+token] = &types.LiquidityPool{
		Chain:            chain,
		Token:            token,
		TotalBalance:     big.NewInt(available),
		AvailableBalance: big.NewInt(available),
		ReservedBalance:  big.NewInt(0),
		MinThreshold:     big.NewInt(threshold),
	}
}

func (s *memPoolStore) get(chain, token string) *types.LiquidityPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[chain+":"+token]
}

func (s *memPoolStore) GetPool(_ context.Context, chain, token string) (*types.LiquidityPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return nil, commonerrors.ErrPoolNotFound
	}
	copied := *pool
	copied.TotalBalance = new(big.Int).Set(pool.TotalBalance)
	copied.AvailableBalance = new(big.Int).Set(pool.AvailableBalance)
	copied.ReservedBalance = new(big.Int).Set(pool.ReservedBalance)
	copied.MinThreshold = new(big.Int).Set(pool.MinThreshold)
	return &copied, nil
}

func (s *memPoolStore) ReserveBalance(_ context.Context, chain, token string, amount *big.Int) error {
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

func (s *memPoolStore) ReleaseBalance(_ context.Context, chain, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return commonerrors.ErrPoolNotFound
	}
	if pool.ReservedBalance.Cmp(amount) < 0 {
		return commonerrors.ErrNoReservedBalance
	}
	pool.ReservedBalance.Sub(pool.ReservedBalance, amount)
	pool.AvailableBalance.Add(pool.AvailableBalance, amount)
	return nil
}

func (s *memPoolStore) CommitBalance(_ context.Context, chain, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}
	pool, ok := s.pools[chain+":"+token]
	if !ok {
		return commonerrors.ErrPoolNotFound
	}
	if pool.ReservedBalance.Cmp(amount) < 0 {
		return commonerrors.ErrNoReservedBalance
	}
	pool.ReservedBalance.Sub(pool.ReservedBalance, amount)
	pool.TotalBalance.Sub(pool.TotalBalance, amount)
	return nil
}
