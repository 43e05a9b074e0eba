package kv

import (
	"strings"

	"github.com/huandu/skiplist"
)

// setKey is the composite skiplist key: (score, member). The member id is
// a tie-break so two members that share a score both get a stable slot,
// the same trick VictorVVedtion-perp-dex's orderbook_v2.go price levels
// rely on when multiple orders land on one price tick.
type setKey struct {
	score float64
	id    string
}

// ascComparator orders ascending by score then by id.
type ascComparator struct{}

func (ascComparator) Compare(lhs, rhs interface{}) int {
	a, b := lhs.(setKey), rhs.(setKey)
	switch {
	case a.score < b.score:
		return -1
	case a.score > b.score:
		return 1
	default:
		return strings.Compare(a.id, b.id)
	}
}

func (ascComparator) CalcScore(key interface{}) float64 {
	return key.(setKey).score
}

// descComparator orders descending by score then ascending by id.
type descComparator struct{}

func (descComparator) Compare(lhs, rhs interface{}) int {
	a, b := lhs.(setKey), rhs.(setKey)
	switch {
	case a.score > b.score:
		return -1
	case a.score < b.score:
		return 1
	default:
		return strings.Compare(a.id, b.id)
	}
}

func (descComparator) CalcScore(key interface{}) float64 {
	return -key.(setKey).score
}

// SortedSet is a Redis-ZSET-like structure: members scored by a float64,
// iterable in score order, O(log n) insert/remove. Backed by
// github.com/huandu/skiplist.
type SortedSet struct {
	list *skiplist.SkipList
	byID map[string]float64
}

// NewSortedSet creates an empty sorted set. Front()-to-back iteration
// yields ascending score order when descending is false, descending score
// order when true.
func NewSortedSet(descending bool) *SortedSet {
	var cmp skiplist.Comparable
	if descending {
		cmp = descComparator{}
	} else {
		cmp = ascComparator{}
	}
	return &SortedSet{
		list: skiplist.New(cmp),
		byID: make(map[string]float64),
	}
}

// Add inserts or re-scores member id. Re-adding the same id at the same
// score is a no-op (set-based idempotence, spec.md §8).
func (s *SortedSet) Add(id string, score float64) {
	if existing, ok := s.byID[id]; ok {
		if existing == score {
			return
		}
		s.list.Remove(setKey{existing, id})
	}
	s.list.Set(setKey{score, id}, struct{}{})
	s.byID[id] = score
}

// Remove deletes member id if present.
func (s *SortedSet) Remove(id string) {
	score, ok := s.byID[id]
	if !ok {
		return
	}
	s.list.Remove(setKey{score, id})
	delete(s.byID, id)
}

// Contains reports set membership.
func (s *SortedSet) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the member count.
func (s *SortedSet) Len() int {
	return s.list.Len()
}

// Members returns every member in the set's iteration order.
func (s *SortedSet) Members() []string {
	out := make([]string, 0, s.list.Len())
	for e := s.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Key().(setKey).id)
	}
	return out
}

// Page returns up to limit members starting from the front of the set's
// iteration order (descending score first if the set was built
// descending), used by the Matching Engine's bounded candidate scan.
func (s *SortedSet) Page(limit int) []string {
	out := make([]string, 0, limit)
	for e := s.list.Front(); e != nil && len(out) < limit; e = e.Next() {
		out = append(out, e.Key().(setKey).id)
	}
	return out
}
