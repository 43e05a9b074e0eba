// Package kv implements the orderbook storage component of spec.md §4.1:
// an in-process key/value + sorted-set index over active orders and their
// match candidates, with atomic multi-key writes per save() call. It
// stands in for the "low-latency in-memory store with atomic multi-key
// transactions" spec.md describes, the same role cockroachdb/pebble plays
// in the teacher's pkg/storage, generalized here to the Redis-shaped
// primitives (set, sorted set, string) spec.md §6 names.
package kv

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/order"
	"go.uber.org/zap"
)

// StorageTransactionError wraps a failure while applying one entry of a
// batch write. Per spec.md §7 the containing batch continues past it.
type StorageTransactionError struct {
	Entry string
	Err   error
}

func (e *StorageTransactionError) Error() string {
	return fmt.Sprintf("storage transaction error on %q: %v", e.Entry, e.Err)
}

func (e *StorageTransactionError) Unwrap() error { return e.Err }

// ExecutionStatus is the composite view spec.md §4.1's getExecutionStatus
// returns: the order's coarse lifecycle bucket plus every match it is
// currently a party to.
type ExecutionStatus struct {
	State   string
	Matches []string
}

const (
	StateActive   = "active"
	StateExecuted = "executed"
	StateInactive = "inactive"
)

// Store is the chain-scoped orderbook index. All keys it exposes are
// logically prefixed orderbook:v1:chain:{chainId}: per spec.md §6; the
// prefix is implicit since one Store instance serves exactly one chain.
type Store struct {
	mu      sync.Mutex
	chainID uint64
	log     *zap.Logger

	orders   *IDSet
	active   *SortedSet // sentinel score -1 for every member, per spec.md §4.1
	executed *SortedSet

	fullOrders map[string]*order.Order
	fullMatches map[string]*order.Match

	orderMatches map[string]*IDSet // orderID -> set of matchIDs it is party to
	byGasPrice   *SortedSet         // matchID scored by maxGasPriceEth

	indexSets map[string]*SortedSet // per-asset index key -> sorted set of order ids
}

// NewStore returns an empty store scoped to chainID.
func NewStore(chainID uint64, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		chainID:      chainID,
		log:          log,
		orders:       NewIDSet(),
		active:       NewSortedSet(false),
		executed:     NewSortedSet(false),
		fullOrders:   make(map[string]*order.Order),
		fullMatches:  make(map[string]*order.Match),
		orderMatches: make(map[string]*IDSet),
		byGasPrice:   NewSortedSet(true),
		indexSets:    make(map[string]*SortedSet),
	}
}

func idHex(id common.Hash) string { return id.Hex() }

// Has reports membership in the `orders` set — the set of currently
// tracked (i.e. not yet removed by a non-active save) order ids.
func (s *Store) Has(id common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.Contains(idHex(id))
}

func (s *Store) indexSet(key string) *SortedSet {
	set, ok := s.indexSets[key]
	if !ok {
		set = NewSortedSet(true) // score-descending: IndexSetPage reads from the high end; IndexSetAscPage takes the low end and reverses it for asks
		s.indexSets[key] = set
	}
	return set
}

// Save applies the full spec.md §4.1 save() semantics for a single order
// as one atomic in-process critical section.
func (s *Store) Save(o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(o)
}

func (s *Store) save(o *order.Order) error {
	id := idHex(o.ID)
	price, _ := o.StartPriceEth.Float64()

	if o.Status == order.Active {
		s.orders.Add(id)
		s.active.Add(id, -1)
		s.fullOrders[id] = o
		for _, key := range IndexSets(o) {
			s.indexSet(key).Add(id, price)
		}
		return nil
	}

	s.orders.Remove(id)
	s.active.Remove(id)
	delete(s.fullOrders, id)
	for _, key := range IndexSets(o) {
		if set, ok := s.indexSets[key]; ok {
			set.Remove(id)
		}
	}

	s.cascadeDeleteMatches(id)
	return nil
}

// cascadeDeleteMatches implements spec.md §4.1's non-active save cleanup:
// for every match the order is a party to, drop the match payload, its
// global gas-price ranking entry, and the reverse pointer on its
// counterpart order — then drop the order's own match set. The ordered
// pair stored on the match payload (spec.md §9, first Open Question)
// drives the counterpart lookup instead of re-deriving it from the match
// id alone.
func (s *Store) cascadeDeleteMatches(orderID string) {
	set, ok := s.orderMatches[orderID]
	if !ok {
		return
	}
	for _, matchID := range set.Members() {
		m, ok := s.fullMatches[matchID]
		if !ok {
			continue
		}
		delete(s.fullMatches, matchID)
		s.byGasPrice.Remove(matchID)

		oh := common.HexToHash(orderID)
		if cp, ok := m.Counterpart(oh); ok {
			if cpSet, ok := s.orderMatches[cp.Hex()]; ok {
				cpSet.Remove(matchID)
			}
		}
	}
	delete(s.orderMatches, orderID)
}

// BatchSave applies Save to every order in orders, logging and skipping
// individual failures so the rest of the batch still lands — spec.md §7's
// StorageTransactionError policy.
func (s *Store) BatchSave(orders []*order.Order) {
	for _, o := range orders {
		if err := s.Save(o); err != nil {
			s.log.Warn("storage transaction error", zap.Error(&StorageTransactionError{Entry: o.ID.Hex(), Err: err}))
			continue
		}
	}
}

// GetOrder returns the full stored payload for id, if still tracked.
func (s *Store) GetOrder(id common.Hash) (*order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.fullOrders[idHex(id)]
	return o, ok
}

// GetStatus returns the stored order's status.
func (s *Store) GetStatus(id common.Hash) (order.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.fullOrders[idHex(id)]
	if !ok {
		return 0, false
	}
	return o.Status, true
}

// GetExecutionStatus composes the active set, the order's match set, and
// the executed set into the state spec.md §4.1 describes.
func (s *Store) GetExecutionStatus(id common.Hash) ExecutionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	hex := idHex(id)
	var matches []string
	if set, ok := s.orderMatches[hex]; ok {
		matches = set.Members()
	}

	state := StateInactive
	switch {
	case s.executed.Contains(hex):
		state = StateExecuted
	case s.active.Contains(hex):
		state = StateActive
	}
	return ExecutionStatus{State: state, Matches: matches}
}

// MarkExecuted moves an order into the executed set, called by the
// Execution Engine once its submission is accepted.
func (s *Store) MarkExecuted(id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed.Add(idHex(id), -1)
}

// --- accessors used by the Matching Engine ---

// IndexSetPage returns up to limit order ids from the named per-asset
// index set, in the set's native iteration order (descending score).
func (s *Store) IndexSetPage(key string, limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.indexSets[key]
	if !ok {
		return nil
	}
	return set.Page(limit)
}

// IndexSetAscPage returns up to limit order ids from the named set in
// ascending score order (lowest ask first); used when the trigger order
// is a bid scanning the ask book.
func (s *Store) IndexSetAscPage(key string, limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.indexSets[key]
	if !ok {
		return nil
	}
	members := set.Members() // descending
	if len(members) <= limit {
		reverse(members)
		return members
	}
	tail := append([]string{}, members[len(members)-limit:]...)
	reverse(tail)
	return tail
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// CollectionTokenListingsUnion returns up to limit listing ids across every
// tokenId of a collection, used when a collection-wide bid carries no
// allow-list and must scan the per-collection listings rollup.
func (s *Store) CollectionTokenListingsUnion(complication, currency, collection common.Address, limit int) []string {
	return s.IndexSetAscPage(CollectionTokenListingsKey(complication, currency, collection), limit)
}

// PersistMatch adds matchID to both orders' order-matches sets, stores the
// full match payload, and ranks it in matches-by-gas-price — all inside
// the same critical section, so a match is either fully indexed or not
// present (spec.md §5).
func (s *Store) PersistMatch(m *order.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aHex, bHex := m.OrderA.Hex(), m.OrderB.Hex()
	matchHex := m.ID.Hex()

	s.matchSet(aHex).Add(matchHex)
	s.matchSet(bHex).Add(matchHex)
	s.fullMatches[matchHex] = m

	gas, _ := m.MaxGasPrice.Float64()
	s.byGasPrice.Add(matchHex, gas)
}

func (s *Store) matchSet(orderID string) *IDSet {
	set, ok := s.orderMatches[orderID]
	if !ok {
		set = NewIDSet()
		s.orderMatches[orderID] = set
	}
	return set
}

// GetMatch returns the stored match payload for matchID.
func (s *Store) GetMatch(id common.Hash) (*order.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.fullMatches[id.Hex()]
	return m, ok
}

// MatchesByGasPriceDesc returns up to limit match ids ranked by descending
// maxGasPriceEth, used by the Execution Engine to order submission.
func (s *Store) MatchesByGasPriceDesc(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byGasPrice.Page(limit)
}
