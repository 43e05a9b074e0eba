package matching

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/kv"
	"github.com/relaymatch/matchcore/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	collection   = common.HexToAddress("0x1")
	complication = common.HexToAddress("0xc0")
	weth         = common.HexToAddress("0xweth")
)

func fixedClock(t int64) func() int64 {
	return func() int64 { return t }
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
		Marketplace:   "seaport",
		Kind:          "single-token",
		Status:        order.Active,
	}
	if scope == order.SingleToken {
		o.TokenID = big.NewInt(tokenID)
	}
	o.ID = order.CanonicalID(o)
	return o
}

// Scenario 1: equal-priced sell+buy on the same token match with zero gas slack.
func TestMatchOrder_SameTokenEqualPrice(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(buy))

	eng := NewEngine(store, fixedClock(500))
	matches, err := eng.MatchOrder(context.Background(), sell)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	gas, _ := matches[0].MaxGasPrice.Float64()
	assert.InDelta(t, 0, gas, 1e-9)
}

// Scenario 2: ask above bid on the same asset produces no match.
func TestMatchOrder_AskAboveBid_NoMatch(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.2, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(buy))

	eng := NewEngine(store, fixedClock(500))
	matches, err := eng.MatchOrder(context.Background(), sell)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// Scenario 3: a collection-wide bid above a token listing's ask matches with
// the price slack as gas budget.
func TestMatchOrder_CollectionWideBid(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	bid := newOrder(order.Buy, order.CollectionWide, 0, 0.15, "0xb")
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(bid))

	eng := NewEngine(store, fixedClock(500))
	matches, err := eng.MatchOrder(context.Background(), sell)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	gas, _ := matches[0].MaxGasPrice.Float64()
	assert.InDelta(t, 0.05, gas, 1e-9)
}

func TestMatchOrder_ExpiredCandidateSkipped(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	buy.EndTime = 10
	buy.ID = order.CanonicalID(buy)
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(buy))

	eng := NewEngine(store, fixedClock(500))
	matches, err := eng.MatchOrder(context.Background(), sell)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchOrder_CandidateScanLimiterRejectsOnCanceledContext(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(buy))

	eng := NewEngine(store, fixedClock(500)).WithCandidateScanLimiter(rate.NewLimiter(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.MatchOrder(ctx, sell)
	assert.Error(t, err, "a canceled context must abort the candidate scan's limiter wait")
}

func TestMatchOrder_AllowListFiltersCollectionBid(t *testing.T) {
	store := kv.NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	bid := newOrder(order.Buy, order.CollectionWide, 0, 0.2, "0xb")
	bid.AllowList = []*big.Int{big.NewInt(99)}
	bid.ID = order.CanonicalID(bid)
	require.NoError(t, store.Save(sell))
	require.NoError(t, store.Save(bid))

	eng := NewEngine(store, fixedClock(500))
	matches, err := eng.MatchOrder(context.Background(), sell)
	require.NoError(t, err)
	assert.Empty(t, matches, "bid's allow-list excludes tokenId 1")
}
