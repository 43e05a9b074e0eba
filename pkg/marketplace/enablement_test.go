package marketplace

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_SeaportSingleTokenEnabled(t *testing.T) {
	tbl := DefaultTable()
	assert.True(t, tbl.IsEnabled(Seaport, SingleTokenKind))
	assert.False(t, tbl.IsEnabled(Seaport, ContractWideKind))
}

func TestDefaultTable_InfinityPresentButDisabled(t *testing.T) {
	tbl := DefaultTable()
	_, ok := tbl[Infinity]
	require.True(t, ok)
	assert.False(t, tbl.IsEnabled(Infinity, SingleTokenKind))
}

func TestDefaultTable_UnlistedMarketplaceRejected(t *testing.T) {
	tbl := DefaultTable()
	err := tbl.Validate(Blur, SingleTokenKind)
	require.Error(t, err)
	var uok *UnsupportedOrderKind
	require.ErrorAs(t, err, &uok)
}

func stubBuilder(context.Context, *order.Match, *order.Order, *order.Order) (*types.Transaction, error) {
	return nil, nil
}

func TestRegistry_CheckExhaustive(t *testing.T) {
	tbl := DefaultTable()
	r := NewRegistry()

	err := r.CheckExhaustive(tbl)
	require.Error(t, err, "seaport/single-token is enabled but unregistered")

	require.NoError(t, r.Register(Seaport, SingleTokenKind, stubBuilder))
	require.NoError(t, r.CheckExhaustive(tbl))
}

func TestRegistry_DuplicateRegisterRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Seaport, SingleTokenKind, stubBuilder))
	err := r.Register(Seaport, SingleTokenKind, stubBuilder)
	assert.Error(t, err)
}
