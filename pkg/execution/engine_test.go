package execution

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/broadcast"
	"github.com/relaymatch/matchcore/pkg/kv"
	"github.com/relaymatch/matchcore/pkg/marketplace"
	"github.com/relaymatch/matchcore/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	collection   = common.HexToAddress("0x1")
	complication = common.HexToAddress("0xc0")
	weth         = common.HexToAddress("0xweth")
	exchangeAddr = common.HexToAddress("0xe0")
	account      = common.HexToAddress("0xacct")
)

type fixedAllocator struct{ n int64 }

func (f *fixedAllocator) GetNonce() (*big.Int, error) {
	f.n++
	return big.NewInt(f.n), nil
}

type fakeBroadcaster struct {
	result broadcast.Result
	err    error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction, target broadcast.Target) (broadcast.Result, error) {
	return f.result, f.err
}

func newOrder(side order.Side, scope order.Scope, tokenID int64, price float64, signer string) *order.Order {
	o := &order.Order{
		ChainID:       1,
		Side:          side,
		Scope:         scope,
		Collection:    collection,
		Complication:  complication,
		Currency:      weth,
		StartPriceEth: big.NewFloat(price),
		StartTime:     0,
		EndTime:       1_000_000,
		Signer:        common.HexToAddress(signer),
		RawPayload:    []byte(signer),
		Marketplace:   string(marketplace.Seaport),
		Kind:          string(marketplace.SingleTokenKind),
		Status:        order.Active,
	}
	if scope == order.SingleToken {
		o.TokenID = big.NewInt(tokenID)
	}
	o.ID = order.CanonicalID(o)
	return o
}

func setupMatch(t *testing.T) (*kv.Store, *order.Match, *order.Order, *order.Order) {
	t.Helper()
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(buy))

	id, lo, hi := order.MatchID(sell.ID, buy.ID)
	m := &order.Match{ID: id, OrderA: lo, OrderB: hi, MaxGasPrice: big.NewFloat(0)}
	store.PersistMatch(m)
	return store, m, sell, buy
}

func stubBuilder(ctx context.Context, m *order.Match, a, b *order.Order) (*types.Transaction, error) {
	return types.NewTx(&types.LegacyTx{To: &exchangeAddr, Gas: 200000}), nil
}

func TestExecuteMatches_SubmitsAndMarksExecuted(t *testing.T) {
	store, m, sell, buy := setupMatch(t)

	registry := marketplace.NewRegistry()
	require.NoError(t, registry.Register(marketplace.Seaport, marketplace.SingleTokenKind, stubBuilder))

	bcaster := &fakeBroadcaster{result: broadcast.Result{Status: broadcast.StatusSubmitted, TxHash: common.HexToHash("0x1")}}
	allocators := map[common.Address]NonceAllocator{exchangeAddr: &fixedAllocator{}}
	resolve := func(name marketplace.Name) (common.Address, bool) { return exchangeAddr, true }

	eng := NewEngine(store, registry, allocators, nil, bcaster, resolve, zap.NewNop())
	subs, err := eng.ExecuteMatches(context.Background(), []*order.Match{m}, account, 1000)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, broadcast.StatusSubmitted, subs[0].Status)
	assert.Equal(t, uint64(1002), subs[0].TargetBlock)

	status := store.GetExecutionStatus(sell.ID)
	assert.Equal(t, kv.StateExecuted, status.State)
	status = store.GetExecutionStatus(buy.ID)
	assert.Equal(t, kv.StateExecuted, status.State)
}

func TestExecuteMatches_UnregisteredBuilderRejectsWithoutConsumingNonce(t *testing.T) {
	store, m, _, _ := setupMatch(t)

	registry := marketplace.NewRegistry() // nothing registered
	bcaster := &fakeBroadcaster{result: broadcast.Result{Status: broadcast.StatusSubmitted}}
	allocator := &fixedAllocator{}
	allocators := map[common.Address]NonceAllocator{exchangeAddr: allocator}
	resolve := func(name marketplace.Name) (common.Address, bool) { return exchangeAddr, true }

	eng := NewEngine(store, registry, allocators, nil, bcaster, resolve, zap.NewNop())
	subs, err := eng.ExecuteMatches(context.Background(), []*order.Match{m}, account, 1000)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, broadcast.StatusRejected, subs[0].Status)
	var rejected *ExecutionRejected
	assert.ErrorAs(t, subs[0].Err, &rejected)
	assert.Equal(t, int64(0), allocator.n, "unsupported marketplace must not consume a nonce")
}

func TestExecutePendingMatches_SourcesFromStoreRankedByGasPrice(t *testing.T) {
	store, m, sell, buy := setupMatch(t)

	registry := marketplace.NewRegistry()
	require.NoError(t, registry.Register(marketplace.Seaport, marketplace.SingleTokenKind, stubBuilder))

	bcaster := &fakeBroadcaster{result: broadcast.Result{Status: broadcast.StatusSubmitted, TxHash: common.HexToHash("0x1")}}
	allocators := map[common.Address]NonceAllocator{exchangeAddr: &fixedAllocator{}}
	resolve := func(name marketplace.Name) (common.Address, bool) { return exchangeAddr, true }

	eng := NewEngine(store, registry, allocators, nil, bcaster, resolve, zap.NewNop())
	subs, err := eng.ExecutePendingMatches(context.Background(), account, 1000)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, m.ID, subs[0].Match.ID)
	assert.Equal(t, broadcast.StatusSubmitted, subs[0].Status)
	assert.Equal(t, kv.StateExecuted, store.GetExecutionStatus(sell.ID).State)
	assert.Equal(t, kv.StateExecuted, store.GetExecutionStatus(buy.ID).State)
}

func TestExecuteMatches_BroadcastRejectionLeavesOrdersQueueable(t *testing.T) {
	store, m, sell, buy := setupMatch(t)

	registry := marketplace.NewRegistry()
	require.NoError(t, registry.Register(marketplace.Seaport, marketplace.SingleTokenKind, stubBuilder))

	bcaster := &fakeBroadcaster{result: broadcast.Result{Status: broadcast.StatusRejected}}
	allocators := map[common.Address]NonceAllocator{exchangeAddr: &fixedAllocator{}}
	resolve := func(name marketplace.Name) (common.Address, bool) { return exchangeAddr, true }

	eng := NewEngine(store, registry, allocators, nil, bcaster, resolve, zap.NewNop())
	subs, err := eng.ExecuteMatches(context.Background(), []*order.Match{m}, account, 1000)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, broadcast.StatusRejected, subs[0].Status)

	assert.Equal(t, order.Active, sell.Status)
	status := store.GetExecutionStatus(sell.ID)
	assert.Equal(t, kv.StateActive, status.State)
	_ = buy
}
