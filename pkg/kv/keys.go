package kv

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/order"
)

// Key layout follows spec.md §6: every key in a Store is implicitly
// prefixed with orderbook:v1:chain:{chainId}: by the Store itself: these
// helpers build the unprefixed suffixes.

const (
	keyOrders       = "orders"
	keyActive       = "order-status:active"
	keyExecuted     = "order-status:executed"
	keyMatchesByGas = "order-matches:by-gas-price"
)

func fullOrderKey(id string) string {
	return fmt.Sprintf("orders:%s:full", id)
}

func orderMatchesKey(orderID string) string {
	return fmt.Sprintf("order-matches:%s", orderID)
}

func fullMatchKey(matchID string) string {
	return fmt.Sprintf("order-matches:%s:full", matchID)
}

// indexKey builds the per-asset index-set key for one (complication,
// currency, side, collection[, tokenId]) tuple. The currency segment is
// not spelled out in spec.md §6's literal pattern
// (`scope:{scope}:complication:{c}:side:{s}:collection:{col}[:tokenId:{t}]`)
// but is required for correctness by the index-sets table in §4.1, whose
// tuple explicitly includes currency; see DESIGN.md.
//
// includeTokenID distinguishes the fully-scoped per-token set
// (token-offers / token-listings) from its per-collection rollup
// (collection-token-offers / collection-token-listings): both share scope
// single-token, only the tokenId segment differs.
func indexKey(scope order.Scope, complication, currency, collection common.Address, side order.Side, tokenID *big.Int, includeTokenID bool) string {
	k := fmt.Sprintf("scope:%s:complication:%s:currency:%s:side:%s:collection:%s",
		scope, complication.Hex(), currency.Hex(), side, collection.Hex())
	if includeTokenID && tokenID != nil {
		k += fmt.Sprintf(":tokenId:%s", tokenID.String())
	}
	return k
}

// IndexSets returns the set(s) an order belongs to given its (side, scope),
// per the table in spec.md §4.1:
//
//	buy + single-token      -> token-offers, collection-token-offers
//	buy + collection-wide   -> collection-wide-offers
//	sell + single-token     -> token-listings, collection-token-listings
//	sell + collection-wide  -> rejected by order.Validate, never reached here
func IndexSets(o *order.Order) []string {
	switch {
	case o.Side == order.Buy && o.Scope == order.SingleToken:
		return []string{
			TokenOffersKey(o.Complication, o.Currency, o.Collection, o.TokenID),
			CollectionTokenOffersKey(o.Complication, o.Currency, o.Collection),
		}
	case o.Side == order.Buy && o.Scope == order.CollectionWide:
		return []string{
			CollectionWideOffersKey(o.Complication, o.Currency, o.Collection),
		}
	case o.Side == order.Sell && o.Scope == order.SingleToken:
		return []string{
			TokenListingsKey(o.Complication, o.Currency, o.Collection, o.TokenID),
			CollectionTokenListingsKey(o.Complication, o.Currency, o.Collection),
		}
	default:
		return nil // sell + collection-wide: unsupported, rejected at ingestion
	}
}

// TokenOffersKey, CollectionTokenOffersKey, CollectionWideOffersKey,
// TokenListingsKey and CollectionTokenListingsKey expose the individual
// set keys the Matching Engine queries for a given trigger order's
// opposite side.
func TokenOffersKey(complication, currency, collection common.Address, tokenID *big.Int) string {
	return indexKey(order.SingleToken, complication, currency, collection, order.Buy, tokenID, true)
}

func CollectionTokenOffersKey(complication, currency, collection common.Address) string {
	return indexKey(order.SingleToken, complication, currency, collection, order.Buy, nil, false)
}

func CollectionWideOffersKey(complication, currency, collection common.Address) string {
	return indexKey(order.CollectionWide, complication, currency, collection, order.Buy, nil, false)
}

func TokenListingsKey(complication, currency, collection common.Address, tokenID *big.Int) string {
	return indexKey(order.SingleToken, complication, currency, collection, order.Sell, tokenID, true)
}

func CollectionTokenListingsKey(complication, currency, collection common.Address) string {
	return indexKey(order.SingleToken, complication, currency, collection, order.Sell, nil, false)
}
