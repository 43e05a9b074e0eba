// Package broadcast implements the Broadcaster of spec.md §4.5: delivery
// of a signed transaction to the network with a target inclusion window,
// either directly over JSON-RPC or as a private-relay bundle.
package broadcast

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the outcome of one broadcast attempt.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRejected  Status = "rejected"
)

// Target is the inclusion window a submission asks for.
type Target struct {
	Block uint64
}

// Result is the broadcaster's reply to one broadcast call.
type Result struct {
	Status Status
	TxHash common.Hash
}

// Broadcaster delivers a signed transaction with a target block. Retries
// are the caller's policy; implementations are stateless per call.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *types.Transaction, target Target) (Result, error)
}
