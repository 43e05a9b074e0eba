// Package seaport implements the marketplace.OrderBuilder for the
// seaport/single-token variant, the only cell DefaultTable ships enabled.
package seaport

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/order"
)

// Build encodes a single-token match as a transaction to the listing's
// complication address. The listing's and bid's raw signed payloads
// (opaque, marketplace-specific bytes per spec.md §3) are concatenated,
// listing first, as calldata; no function selector is prepended. Full
// ABI-accurate Seaport encoding (e.g. a fulfillOrder call) is out of
// scope here since the third-party marketplace SDK that knows Seaport's
// actual order-fulfillment calldata shape is an explicit external
// collaborator (spec.md §1), not something this core re-implements.
func Build(ctx context.Context, m *order.Match, a, b *order.Order) (*types.Transaction, error) {
	listing, bid := a, b
	if listing.Side != order.Sell {
		listing, bid = b, a
	}
	if listing.Side != order.Sell || bid.Side != order.Buy {
		return nil, fmt.Errorf("match %s: expected one sell and one buy order", m.ID.Hex())
	}

	data := append(append([]byte{}, listing.RawPayload...), bid.RawPayload...)
	to := listing.Complication
	return types.NewTx(&types.LegacyTx{
		To:   &to,
		Data: data,
		Gas:  300_000,
	}), nil
}
