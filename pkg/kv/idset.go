package kv

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// IDSet is a plain membership set (Redis `set` analogue) with deterministic,
// lexicographically ordered iteration — grounded on
// ccyyhlg-lightning-exchange's ShardedPriceTree use of an ordered
// red-black-tree map for its bucket index. Ordered iteration makes cascade
// cleanup and tests reproducible instead of depending on Go's randomized
// map order.
type IDSet struct {
	tree *rbt.Tree[string, struct{}]
}

// NewIDSet returns an empty id set.
func NewIDSet() *IDSet {
	return &IDSet{tree: rbt.New[string, struct{}]()}
}

// Add inserts id. Adding an id already present is a no-op.
func (s *IDSet) Add(id string) {
	s.tree.Put(id, struct{}{})
}

// Remove deletes id if present.
func (s *IDSet) Remove(id string) {
	s.tree.Remove(id)
}

// Contains reports set membership.
func (s *IDSet) Contains(id string) bool {
	_, ok := s.tree.Get(id)
	return ok
}

// Len returns the member count.
func (s *IDSet) Len() int {
	return s.tree.Size()
}

// Members returns every id in ascending lexicographic order.
func (s *IDSet) Members() []string {
	keys := s.tree.Keys()
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
