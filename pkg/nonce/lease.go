package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaymatch/matchcore/pkg/util"
)

// LeaseTTL is the hard lifetime of a nonce-provider lock before it must be
// renewed.
const LeaseTTL = 15 * time.Second

// Lease is a distributed mutex with a TTL, auto-renewed by the holder and
// released on loss or explicit release. The Nonce Provider only consumes
// this interface; the backing coordination service is an external
// collaborator.
type Lease interface {
	// Acquire blocks until the lease on key is held or ctx is cancelled.
	Acquire(ctx context.Context, key string) error
	// Renew extends the held lease. Returns an error if the lease was lost.
	Renew(ctx context.Context) error
	// Release gives up the lease voluntarily.
	Release(ctx context.Context) error
	// Lost closes when the lease is lost to expiry or a failed renewal.
	Lost() <-chan struct{}
}

// InProcessLease is the reference Lease used in tests and single-replica
// deployments: a single clock-driven TTL guarded by a mutex, with renewal
// modeled on pkg/consensus/pacemaker.go's clock.After deadline + signal
// channel idiom rather than a real network round trip.
type InProcessLease struct {
	clock util.Clock
	mu    sync.Mutex

	key    string
	held   bool
	lostCh chan struct{}
	timer  <-chan time.Time

	registry *inProcessRegistry
}

// LeaseRegistry arbitrates exclusive ownership of lease keys across every
// InProcessLease sharing it, standing in for the distributed coordination
// service spec.md §1 excludes as an external collaborator. Replicas that
// should contend with each other must share one LeaseRegistry; replicas
// under independent test cases should not.
type LeaseRegistry = inProcessRegistry

type inProcessRegistry struct {
	mu      sync.Mutex
	holders map[string]*InProcessLease
}

// NewLeaseRegistry returns an empty registry. Share one instance across
// every InProcessLease that represents a replica of the same fleet.
func NewLeaseRegistry() *LeaseRegistry {
	return &inProcessRegistry{holders: make(map[string]*InProcessLease)}
}

// NewInProcessLease returns a Lease with its own private registry, i.e. one
// that never contends with any other lease instance. Use
// NewInProcessLeaseWithRegistry to model multiple replicas racing for the
// same key.
func NewInProcessLease(clock util.Clock) *InProcessLease {
	return NewInProcessLeaseWithRegistry(clock, NewLeaseRegistry())
}

// NewInProcessLeaseWithRegistry returns a Lease that contends for keys
// through the shared registry reg.
func NewInProcessLeaseWithRegistry(clock util.Clock, reg *LeaseRegistry) *InProcessLease {
	return &InProcessLease{clock: clock, registry: reg}
}

func (l *InProcessLease) Acquire(ctx context.Context, key string) error {
	l.registry.mu.Lock()
	if existing, ok := l.registry.holders[key]; ok && existing != l {
		l.registry.mu.Unlock()
		return fmt.Errorf("lease %q: held by another owner", key)
	}
	l.registry.holders[key] = l
	l.registry.mu.Unlock()

	l.mu.Lock()
	l.key = key
	l.held = true
	l.lostCh = make(chan struct{})
	l.timer = l.clock.After(LeaseTTL)
	lost := l.lostCh
	timer := l.timer
	l.mu.Unlock()

	go l.watch(timer, lost)
	return nil
}

// watch fires the lease-lost signal if the TTL elapses without a Renew
// call replacing the timer channel in the meantime.
func (l *InProcessLease) watch(timer <-chan time.Time, lost chan struct{}) {
	select {
	case <-timer:
		l.expire(timer, lost)
	case <-lost:
	}
}

func (l *InProcessLease) expire(timer <-chan time.Time, lost chan struct{}) {
	l.mu.Lock()
	if !l.held || l.lostCh != lost || l.timer != timer {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	l.registry.mu.Lock()
	if l.registry.holders[l.key] == l {
		delete(l.registry.holders, l.key)
	}
	l.registry.mu.Unlock()

	close(lost)
}

func (l *InProcessLease) Renew(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return fmt.Errorf("lease %q: renew called after loss", l.key)
	}
	l.timer = l.clock.After(LeaseTTL)
	go l.watch(l.timer, l.lostCh)
	return nil
}

func (l *InProcessLease) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	lost := l.lostCh
	l.mu.Unlock()

	l.registry.mu.Lock()
	if l.registry.holders[l.key] == l {
		delete(l.registry.holders, l.key)
	}
	l.registry.mu.Unlock()

	close(lost)
	return nil
}

func (l *InProcessLease) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lostCh
}
