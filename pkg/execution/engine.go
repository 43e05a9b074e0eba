// Package execution implements the Execution Engine of spec.md §4.3:
// convert proposed matches into on-chain transactions and hand them to a
// Broadcaster, maintaining at-most-one in-flight transaction per nonce.
// The engine sets the allocated nonce on each built transaction but does
// not sign it; the Broadcaster receives the transaction unsigned.
package execution

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/broadcast"
	"github.com/relaymatch/matchcore/pkg/kv"
	"github.com/relaymatch/matchcore/pkg/marketplace"
	"github.com/relaymatch/matchcore/pkg/nonce"
	"github.com/relaymatch/matchcore/pkg/order"
	"go.uber.org/zap"
)

// DefaultTargetBlockOffset is the number of blocks ahead of the current
// head a submission targets, per spec.md §4.3 step 5.
const DefaultTargetBlockOffset = 2

// ExecutionRejected is returned for a match whose (marketplace, kind)
// resolves to no registered builder. It does not consume a nonce, per
// spec.md §4.3 step 4.
type ExecutionRejected struct {
	Marketplace marketplace.Name
	Kind        marketplace.Kind
	MatchID     common.Hash
}

func (e *ExecutionRejected) Error() string {
	return fmt.Sprintf("execution rejected for match %s: no builder for %s/%s", e.MatchID.Hex(), e.Marketplace, e.Kind)
}

// Submission is the outcome of handing one match's transaction to the
// Broadcaster.
type Submission struct {
	Match       *order.Match
	Status      broadcast.Status
	TxHash      common.Hash
	TargetBlock uint64
	Err         error
}

// NonceAllocator is the subset of nonce.Provider the Execution Engine
// consumes, so it can be wired to a per-exchange provider without
// depending on the provider's lifecycle methods.
type NonceAllocator interface {
	GetNonce() (*big.Int, error)
}

// ExchangeResolver maps an order's marketplace to the on-chain exchange
// contract address that settles it. Not named explicitly in spec.md's
// Data Model; added because "group matches by target exchange contract"
// (spec.md §4.3 step 1) requires one. See DESIGN.md.
type ExchangeResolver func(m marketplace.Name) (common.Address, bool)

// Engine wires storage, the marketplace builder registry, per-exchange
// nonce allocators, a watermark reader, and a broadcaster into the
// executeMatches protocol.
type Engine struct {
	store           *kv.Store
	registry        *marketplace.Registry
	nonces          map[common.Address]NonceAllocator
	watermark       nonce.WatermarkReader
	broadcaster     broadcast.Broadcaster
	resolveExchange ExchangeResolver
	targetOffset    uint64
	log             *zap.Logger
}

// NewEngine wires an Engine. nonces must carry one allocator per exchange
// contract address the resolver can return.
func NewEngine(store *kv.Store, registry *marketplace.Registry, nonces map[common.Address]NonceAllocator, watermark nonce.WatermarkReader, broadcaster broadcast.Broadcaster, resolveExchange ExchangeResolver, log *zap.Logger) *Engine {
	return &Engine{
		store:           store,
		registry:        registry,
		nonces:          nonces,
		watermark:       watermark,
		broadcaster:     broadcaster,
		resolveExchange: resolveExchange,
		targetOffset:    DefaultTargetBlockOffset,
		log:             log,
	}
}

// PendingMatchLimit bounds how many ranked pending matches
// ExecutePendingMatches pulls from the store per call.
const PendingMatchLimit = 500

// ExecutePendingMatches sources every match the store currently holds,
// already ranked by descending maxGasPriceEth via MatchesByGasPriceDesc,
// and runs them through ExecuteMatches. This is how a freshly started
// process picks up matches the Matching Engine proposed before it last
// shut down, rather than requiring a caller to have kept its own list.
func (e *Engine) ExecutePendingMatches(ctx context.Context, account common.Address, currentBlock uint64) ([]Submission, error) {
	ids := e.store.MatchesByGasPriceDesc(PendingMatchLimit)
	matches := make([]*order.Match, 0, len(ids))
	for _, id := range ids {
		if m, ok := e.store.GetMatch(common.HexToHash(id)); ok {
			matches = append(matches, m)
		}
	}
	return e.ExecuteMatches(ctx, matches, account, currentBlock)
}

// ExecuteMatches runs spec.md §4.3's protocol over matches, which must
// already be ordered by descending maxGasPriceEth (the Matching Engine's
// contract).
func (e *Engine) ExecuteMatches(ctx context.Context, matches []*order.Match, account common.Address, currentBlock uint64) ([]Submission, error) {
	groups, err := e.groupByExchange(matches)
	if err != nil {
		return nil, err
	}

	var submissions []Submission
	for exchange, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].MaxGasPrice.Cmp(group[j].MaxGasPrice) > 0
		})

		watermark := big.NewInt(-1)
		if e.watermark != nil {
			w, err := e.watermark.UserMinOrderNonce(ctx, exchange, account)
			if err != nil {
				e.log.Warn("watermark read failed, executing without filtering", zap.Error(err))
			} else {
				watermark = w
			}
		}

		allocator, ok := e.nonces[exchange]
		if !ok {
			return nil, fmt.Errorf("no nonce allocator configured for exchange %s", exchange.Hex())
		}

		for _, m := range group {
			submissions = append(submissions, e.executeOne(ctx, m, exchange, watermark, allocator, currentBlock))
		}
	}
	return submissions, nil
}

func (e *Engine) executeOne(ctx context.Context, m *order.Match, exchange common.Address, watermark *big.Int, allocator NonceAllocator, currentBlock uint64) Submission {
	a, okA := e.store.GetOrder(m.OrderA)
	b, okB := e.store.GetOrder(m.OrderB)
	if !okA || !okB {
		return Submission{Match: m, Status: broadcast.StatusRejected, Err: fmt.Errorf("match %s: constituent order missing", m.ID.Hex())}
	}

	if belowWatermark(a, watermark) || belowWatermark(b, watermark) {
		return Submission{Match: m, Status: broadcast.StatusRejected, Err: fmt.Errorf("match %s: below userMinOrderNonce watermark", m.ID.Hex())}
	}

	builder, ok := e.registry.BuilderFor(marketplace.Name(a.Marketplace), marketplace.Kind(a.Kind))
	if !ok {
		return Submission{Match: m, Status: broadcast.StatusRejected, Err: &ExecutionRejected{Marketplace: marketplace.Name(a.Marketplace), Kind: marketplace.Kind(a.Kind), MatchID: m.ID}}
	}

	tx, err := builder(ctx, m, a, b)
	if err != nil {
		return Submission{Match: m, Status: broadcast.StatusRejected, Err: fmt.Errorf("build transaction for match %s: %w", m.ID.Hex(), err)}
	}

	n, err := allocator.GetNonce()
	if err != nil {
		return Submission{Match: m, Status: broadcast.StatusRejected, Err: fmt.Errorf("allocate nonce for match %s: %w", m.ID.Hex(), err)}
	}
	tx = withNonce(tx, n.Uint64())

	target := currentBlock + e.targetOffset
	result, err := e.broadcaster.Broadcast(ctx, tx, broadcast.Target{Block: target})
	if err != nil {
		e.requeue(a, b)
		return Submission{Match: m, Status: broadcast.StatusRejected, TargetBlock: target, Err: fmt.Errorf("broadcast match %s: %w", m.ID.Hex(), err)}
	}
	if result.Status == broadcast.StatusRejected {
		e.requeue(a, b)
	} else {
		e.store.MarkExecuted(m.OrderA)
		e.store.MarkExecuted(m.OrderB)
	}
	return Submission{Match: m, Status: result.Status, TxHash: result.TxHash, TargetBlock: target}
}

// requeue marks a match's parent orders as re-queueable on rejection: the
// orders' status remains active, so no store mutation is needed beyond
// what Save already guarantees for an untouched active order.
func (e *Engine) requeue(a, b *order.Order) {
	e.log.Info("match rejected, parent orders remain queueable", zap.String("orderA", a.ID.Hex()), zap.String("orderB", b.ID.Hex()))
}

// belowWatermark reports whether o's signer-order nonce is at or below the
// exchange's userMinOrderNonce cancellation watermark, per spec.md §4.3
// step 2. An order with no embedded nonce is never filtered by this check.
func belowWatermark(o *order.Order, watermark *big.Int) bool {
	if o.SignerOrderNonce == nil || watermark.Sign() < 0 {
		return false
	}
	return o.SignerOrderNonce.Cmp(watermark) <= 0
}

func (e *Engine) groupByExchange(matches []*order.Match) (map[common.Address][]*order.Match, error) {
	groups := make(map[common.Address][]*order.Match)
	for _, m := range matches {
		a, ok := e.store.GetOrder(m.OrderA)
		if !ok {
			continue
		}
		exchange, ok := e.resolveExchange(marketplace.Name(a.Marketplace))
		if !ok {
			return nil, fmt.Errorf("no exchange contract configured for marketplace %s", a.Marketplace)
		}
		groups[exchange] = append(groups[exchange], m)
	}
	return groups, nil
}

func withNonce(tx *types.Transaction, n uint64) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    n,
		To:       tx.To(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Data:     tx.Data(),
	})
}
