package order

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder(side Side, scope Scope) *Order {
	o := &Order{
		ChainID:       1,
		Side:          side,
		Scope:         scope,
		Collection:    common.HexToAddress("0x1"),
		Complication:  common.HexToAddress("0xc"),
		Currency:      common.HexToAddress("0xccc"),
		StartPriceEth: big.NewFloat(0.1),
		StartTime:     100,
		EndTime:       200,
		Signer:        common.HexToAddress("0xdead"),
		RawPayload:    []byte("payload"),
		Marketplace:   "seaport",
		Kind:          "single-token",
	}
	if scope == SingleToken {
		o.TokenID = big.NewInt(1)
	}
	o.ID = CanonicalID(o)
	return o
}

func TestValidate_RejectsNegativePrice(t *testing.T) {
	o := sampleOrder(Sell, SingleToken)
	o.StartPriceEth = big.NewFloat(-1)
	assert.Error(t, o.Validate())
}

func TestValidate_RejectsInvertedWindow(t *testing.T) {
	o := sampleOrder(Sell, SingleToken)
	o.StartTime, o.EndTime = 200, 100
	assert.Error(t, o.Validate())
}

func TestValidate_RejectsCollectionWideSell(t *testing.T) {
	o := sampleOrder(Sell, CollectionWide)
	assert.Error(t, o.Validate())
}

func TestValidate_RejectsSingleTokenWithoutTokenID(t *testing.T) {
	o := sampleOrder(Buy, SingleToken)
	o.TokenID = nil
	assert.Error(t, o.Validate())
}

func TestCanonicalID_Deterministic(t *testing.T) {
	a := sampleOrder(Buy, SingleToken)
	b := sampleOrder(Buy, SingleToken)
	assert.Equal(t, CanonicalID(a), CanonicalID(b))
}

func TestCanonicalID_DiffersOnPrice(t *testing.T) {
	a := sampleOrder(Buy, SingleToken)
	b := sampleOrder(Buy, SingleToken)
	b.StartPriceEth = big.NewFloat(0.2)
	assert.NotEqual(t, CanonicalID(a), CanonicalID(b))
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, Active.CanTransitionTo(Filled))
	require.True(t, Active.CanTransitionTo(Cancelled))
	require.True(t, Active.CanTransitionTo(Expired))
	require.False(t, Filled.CanTransitionTo(Active))
	require.True(t, Filled.Terminal())
	require.False(t, Active.Terminal())
}

func TestMatchID_OrderIndependent(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	id1, lo1, hi1 := MatchID(a, b)
	id2, lo2, hi2 := MatchID(b, a)
	assert.Equal(t, id1, id2)
	assert.Equal(t, lo1, lo2)
	assert.Equal(t, hi1, hi2)
	assert.Equal(t, a, lo1)
	assert.Equal(t, b, hi1)
}

func TestMatch_Counterpart(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	id, lo, hi := MatchID(a, b)
	m := &Match{ID: id, OrderA: lo, OrderB: hi}

	cp, ok := m.Counterpart(a)
	require.True(t, ok)
	assert.Equal(t, b, cp)

	_, ok = m.Counterpart(common.HexToHash("0x03"))
	assert.False(t, ok)
}
