package kv

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	collection   = common.HexToAddress("0x1")
	complication = common.HexToAddress("0xc0")
	weth         = common.HexToAddress("0xweth")
)

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

func TestSave_IdempotentOnRepeat(t *testing.T) {
	s := NewStore(1, nil)
	o := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")

	require.NoError(t, s.Save(o))
	require.NoError(t, s.Save(o))

	assert.True(t, s.Has(o.ID))
	page := s.IndexSetPage(TokenListingsKey(complication, weth, collection, big.NewInt(1)), 10)
	assert.Len(t, page, 1)
}

func TestSave_ActiveThenCancelled_LeavesNoResidue(t *testing.T) {
	s := NewStore(1, nil)
	o := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")

	require.NoError(t, s.Save(o))
	assert.True(t, s.Has(o.ID))

	cancelled := *o
	cancelled.Status = order.Cancelled
	require.NoError(t, s.Save(&cancelled))

	assert.False(t, s.Has(o.ID))
	_, ok := s.GetOrder(o.ID)
	assert.False(t, ok)
	page := s.IndexSetPage(TokenListingsKey(complication, weth, collection, big.NewInt(1)), 10)
	assert.Empty(t, page)
}

func TestCascadeDelete_RemovesMatchFromCounterpart(t *testing.T) {
	s := NewStore(1, nil)
	sell := newOrder(order.Sell, order.SingleToken, 1, 0.1, "0xa")
	buy := newOrder(order.Buy, order.SingleToken, 1, 0.1, "0xb")
	require.NoError(t, s.Save(sell))
	require.NoError(t, s.Save(buy))

	id, lo, hi := order.MatchID(sell.ID, buy.ID)
	m := &order.Match{ID: id, OrderA: lo, OrderB: hi, MaxGasPrice: big.NewFloat(0)}
	s.PersistMatch(m)

	status := s.GetExecutionStatus(buy.ID)
	require.Len(t, status.Matches, 1)

	cancelled := *sell
	cancelled.Status = order.Cancelled
	require.NoError(t, s.Save(&cancelled))

	status = s.GetExecutionStatus(buy.ID)
	assert.Empty(t, status.Matches)
	_, ok := s.GetMatch(id)
	assert.False(t, ok)
}

func TestHas_MembershipInOrdersSet(t *testing.T) {
	s := NewStore(1, nil)
	o := newOrder(order.Buy, order.CollectionWide, 0, 0.2, "0xa")
	assert.False(t, s.Has(o.ID))
	require.NoError(t, s.Save(o))
	assert.True(t, s.Has(o.ID))
}
