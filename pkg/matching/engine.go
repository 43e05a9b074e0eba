// Package matching implements the counterparty-matching core of
// spec.md §4.2: given a trigger order, enumerate opposing-side
// candidates from the orderbook index, filter for compatibility, and
// propose matches.
package matching

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/kv"
	"github.com/relaymatch/matchcore/pkg/order"
	"golang.org/x/time/rate"
)

// DefaultCandidateCap bounds how many opposing candidates one matchOrder
// call examines, per spec.md §4.2.
const DefaultCandidateCap = 50

// Engine proposes matches for a trigger order against the orderbook index
// held in a kv.Store.
type Engine struct {
	store   *kv.Store
	now     func() int64
	cap     int
	limiter *rate.Limiter
}

// NewEngine wires an Engine to store. now supplies the current instant
// used for time-window and price-curve evaluation; pass time.Now().Unix
// in production, a fixed stub in tests. The candidate scan is unthrottled
// by default; call WithCandidateScanLimiter to bound it.
func NewEngine(store *kv.Store, now func() int64) *Engine {
	return &Engine{store: store, now: now, cap: DefaultCandidateCap, limiter: rate.NewLimiter(rate.Inf, 0)}
}

// WithCandidateCap overrides the default per-call candidate cap.
func (e *Engine) WithCandidateCap(n int) *Engine {
	e.cap = n
	return e
}

// WithCandidateScanLimiter throttles how fast loadCandidates pulls orders
// out of the store, so one matchOrder call against a hot collection can't
// starve the store's lock out from under other callers.
func (e *Engine) WithCandidateScanLimiter(l *rate.Limiter) *Engine {
	e.limiter = l
	return e
}

type candidate struct {
	id common.Hash
	o  *order.Order
}

// MatchOrder runs the five-step algorithm of spec.md §4.2 and returns the
// proposed matches ordered by descending maxGasPriceEth. ctx bounds the
// candidate scan's rate-limiter waits; pass context.Background() where no
// caller deadline applies.
func (e *Engine) MatchOrder(ctx context.Context, trigger *order.Order) ([]*order.Match, error) {
	var candidates []candidate
	var err error
	switch {
	case trigger.Side == order.Sell && trigger.Scope == order.SingleToken:
		candidates, err = e.loadCandidates(ctx,
			e.store.IndexSetPage(kv.TokenOffersKey(trigger.Complication, trigger.Currency, trigger.Collection, trigger.TokenID), e.cap),
			e.store.IndexSetPage(kv.CollectionWideOffersKey(trigger.Complication, trigger.Currency, trigger.Collection), e.cap),
		)
		sortDescByPrice(candidates)
	case trigger.Side == order.Buy && trigger.Scope == order.SingleToken:
		candidates, err = e.loadCandidates(ctx,
			e.store.IndexSetAscPage(kv.TokenListingsKey(trigger.Complication, trigger.Currency, trigger.Collection, trigger.TokenID), e.cap),
		)
		sortAscByPrice(candidates)
	case trigger.Side == order.Buy && trigger.Scope == order.CollectionWide:
		candidates, err = e.collectionWideBidCandidates(ctx, trigger)
		sortAscByPrice(candidates)
	default:
		return nil, nil // sell + collection-wide: unsupported, never indexed
	}
	if err != nil {
		return nil, err
	}

	if len(candidates) > e.cap {
		candidates = candidates[:e.cap]
	}

	now := e.now()
	var matches []*order.Match
	for _, c := range candidates {
		if c.o.Status != order.Active {
			continue
		}
		if !windowsOverlap(trigger, c.o, now) {
			continue
		}

		var bid, ask *order.Order
		if trigger.Side == order.Buy {
			bid, ask = trigger, c.o
		} else {
			bid, ask = c.o, trigger
		}
		if !bid.AllowsToken(ask.TokenID) {
			continue
		}
		if bid.EffectivePrice(now).Cmp(ask.EffectivePrice(now)) < 0 {
			break // sorted order guarantees no later candidate satisfies it either
		}

		m := buildMatch(trigger.ID, c.id, bid, ask, now)
		e.store.PersistMatch(m)
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MaxGasPrice.Cmp(matches[j].MaxGasPrice) > 0
	})
	return matches, nil
}

func (e *Engine) collectionWideBidCandidates(ctx context.Context, bid *order.Order) ([]candidate, error) {
	var ids []string
	if len(bid.AllowList) > 0 {
		for _, tokenID := range bid.AllowList {
			ids = append(ids, e.store.IndexSetAscPage(kv.TokenListingsKey(bid.Complication, bid.Currency, bid.Collection, tokenID), e.cap)...)
		}
	} else {
		ids = e.store.CollectionTokenListingsUnion(bid.Complication, bid.Currency, bid.Collection, e.cap)
	}

	loaded, err := e.loadCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}
	filtered := loaded[:0]
	for _, c := range loaded {
		if bid.AllowsToken(c.o.TokenID) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// loadCandidates pulls orders for idLists out of the store, deduplicating
// across lists. Each lookup waits on the candidate-scan limiter first, so a
// collection with many listings can't monopolize the store's lock.
func (e *Engine) loadCandidates(ctx context.Context, idLists ...[]string) ([]candidate, error) {
	seen := make(map[common.Hash]struct{})
	var out []candidate
	for _, ids := range idLists {
		for _, idHex := range ids {
			id := common.HexToHash(idHex)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			o, ok := e.store.GetOrder(id)
			if !ok {
				continue
			}
			out = append(out, candidate{id: id, o: o})
		}
	}
	return out, nil
}

// sortDescByPrice orders candidates by descending price; ties break by
// earlier startTime, then lexicographically smaller id, per spec.md §4.2.
func sortDescByPrice(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return tieBreakLess(c[i], c[j], false)
	})
}

// sortAscByPrice orders candidates by ascending price with the same
// tie-break rule.
func sortAscByPrice(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return tieBreakLess(c[i], c[j], true)
	})
}

// tieBreakLess reports whether a sorts before b. Price compares ascending
// when ascending is true, descending otherwise; an exact price tie always
// breaks by earlier startTime, then lexicographically smaller id.
func tieBreakLess(a, b candidate, ascending bool) bool {
	cmp := a.o.StartPriceEth.Cmp(b.o.StartPriceEth)
	if cmp != 0 {
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	if a.o.StartTime != b.o.StartTime {
		return a.o.StartTime < b.o.StartTime
	}
	return a.id.Hex() < b.id.Hex()
}

func windowsOverlap(a, b *order.Order, now int64) bool {
	return a.ActiveAt(now) && b.ActiveAt(now)
}

func buildMatch(triggerID, candidateID common.Hash, bid, ask *order.Order, now int64) *order.Match {
	id, lo, hi := order.MatchID(triggerID, candidateID)
	gas := new(big.Float).Sub(bid.EffectivePrice(now), ask.EffectivePrice(now))
	if gas.Sign() < 0 {
		gas = big.NewFloat(0)
	}
	return &order.Match{
		ID:            id,
		OrderA:        lo,
		OrderB:        hi,
		MaxGasPrice:   gas,
		ProposedAtSec: now,
	}
}
