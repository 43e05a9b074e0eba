package marketplace

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/order"
)

// OrderBuilder encodes a winning match's constituent orders into an
// unsigned on-chain transaction against the exchange contract for one
// (marketplace, kind) variant. Builders never assign nonces themselves;
// the Execution Engine sets the nonce and hands the transaction to the
// Broadcaster without signing it.
type OrderBuilder func(ctx context.Context, m *order.Match, a, b *order.Order) (*types.Transaction, error)

// cell is one (marketplace, kind) builder slot.
type cell struct {
	marketplace Name
	kind        Kind
}

// Registry is a thread-safe mapping of (marketplace, kind) to the builder
// capability that can encode it, generalizing the teacher's single-key
// MarketRegistry (symbol -> market) to a two-dimensional closed variant.
type Registry struct {
	mu       sync.RWMutex
	builders map[cell]OrderBuilder
}

// NewRegistry returns an empty builder registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[cell]OrderBuilder)}
}

// Register adds a builder for (marketplace, kind). Returns an error if a
// builder is already registered for that pair.
func (r *Registry) Register(name Name, kind Kind, b OrderBuilder) error {
	if b == nil {
		return fmt.Errorf("cannot register nil builder for %s/%s", name, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cell{name, kind}
	if _, exists := r.builders[c]; exists {
		return fmt.Errorf("builder for %s/%s already registered", name, kind)
	}
	r.builders[c] = b
	return nil
}

// BuilderFor looks up the builder for (marketplace, kind).
func (r *Registry) BuilderFor(name Name, kind Kind) (OrderBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.builders[cell{name, kind}]
	return b, ok
}

// CheckExhaustive verifies that every enabled cell of the enablement table
// resolves to a registered builder. Called once at startup; an unfilled
// enabled cell is a Fatal misconfiguration (spec.md §7), not a runtime
// ExecutionRejected, because it would otherwise surface only when a match
// happens to need that exact variant.
func (r *Registry) CheckExhaustive(t Table) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, mc := range t {
		if !mc.Enabled {
			continue
		}
		for kind, kc := range mc.Kinds {
			if !kc.Enabled {
				continue
			}
			if _, ok := r.builders[cell{name, kind}]; !ok {
				return fmt.Errorf("marketplace enablement gap: %s/%s enabled but no builder registered", name, kind)
			}
		}
	}
	return nil
}
