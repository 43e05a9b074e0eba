package broadcast

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DirectBroadcaster submits over a standard JSON-RPC endpoint. It is the
// Forked/Direct variant of spec.md §4.5, used in fork/dev mode or when no
// relay signer is configured (spec.md §9, second Open Question).
type DirectBroadcaster struct {
	client *ethclient.Client
}

// NewDirectBroadcaster wires a DirectBroadcaster to an ethclient connection.
func NewDirectBroadcaster(client *ethclient.Client) *DirectBroadcaster {
	return &DirectBroadcaster{client: client}
}

// Broadcast submits tx and reports it submitted on acceptance by the node;
// target is advisory only on this path, since a public mempool gives no
// inclusion guarantee.
func (b *DirectBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction, target Target) (Result, error) {
	if err := b.client.SendTransaction(ctx, tx); err != nil {
		return Result{}, fmt.Errorf("send transaction: %w", err)
	}
	return Result{Status: StatusSubmitted, TxHash: tx.Hash()}, nil
}
