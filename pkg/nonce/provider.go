// Package nonce implements the Nonce Provider of spec.md §4.4: monotone
// allocation of transaction nonces for one (account, exchange) pair under
// a single-writer guarantee enforced by a distributed lease lock.
package nonce

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DebounceInterval is the default delay between a getNonce() call and its
// persisted save, per spec.md §4.4 step 3.
const DebounceInterval = 100 * time.Millisecond

// State is the Nonce Provider's lifecycle state.
type State uint8

const (
	Uninitialized State = iota
	Acquiring
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Acquiring:
		return "acquiring"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// LeaseExpiredError is returned by GetNonce once the lease has been lost
// or the provider closed.
type LeaseExpiredError struct {
	Account, Exchange common.Address
}

func (e *LeaseExpiredError) Error() string {
	return fmt.Sprintf("nonce provider lock expired for account %s exchange %s", e.Account.Hex(), e.Exchange.Hex())
}

// WatermarkReader reads the exchange contract's userMinOrderNonce
// cancellation watermark for an account.
type WatermarkReader interface {
	UserMinOrderNonce(ctx context.Context, exchange, account common.Address) (*big.Int, error)
}

// Provider owns the monotonic nonce for one (chainId, account, exchange)
// tuple, per spec.md §4.4.
type Provider struct {
	chainID  uint64
	account  common.Address
	exchange common.Address

	lease     Lease
	documents DocumentStore
	watermark WatermarkReader
	log       *zap.Logger

	debounce time.Duration

	mu    sync.Mutex
	state State
	value *big.Int

	saveTimer *time.Timer
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewProvider wires a Provider to its lease lock, persistence, and
// watermark reader. log must not be nil; pass zap.NewNop() in tests.
func NewProvider(chainID uint64, account, exchange common.Address, lease Lease, documents DocumentStore, watermark WatermarkReader, log *zap.Logger) *Provider {
	return &Provider{
		chainID:   chainID,
		account:   account,
		exchange:  exchange,
		lease:     lease,
		documents: documents,
		watermark: watermark,
		log:       log,
		debounce:  DebounceInterval,
		state:     Uninitialized,
		closeCh:   make(chan struct{}),
	}
}

func (p *Provider) lockKey() string {
	return fmt.Sprintf("nonce-provider:account:%s:exchange:%s:lock", p.account.Hex(), p.exchange.Hex())
}

// Run transitions Uninitialized -> Acquiring -> Running: it acquires the
// lease, reads the persisted record and the on-chain watermark, and seeds
// the in-memory nonce at the greater of the two.
func (p *Provider) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Uninitialized {
		p.mu.Unlock()
		return fmt.Errorf("nonce provider: run() called from state %s", p.state)
	}
	p.state = Acquiring
	p.mu.Unlock()

	if err := p.lease.Acquire(ctx, p.lockKey()); err != nil {
		p.mu.Lock()
		p.state = Closed
		p.mu.Unlock()
		return fmt.Errorf("acquire nonce lease: %w", err)
	}

	rec, err := p.documents.Load(p.account, p.exchange)
	if err != nil {
		return fmt.Errorf("load nonce record: %w", err)
	}
	persisted := big.NewInt(-1)
	if rec != nil {
		if n, ok := new(big.Int).SetString(rec.Nonce, 10); ok {
			persisted = n
		}
	}

	watermark := big.NewInt(-1)
	if p.watermark != nil {
		w, err := p.watermark.UserMinOrderNonce(ctx, p.exchange, p.account)
		if err != nil {
			p.log.Warn("watermark read failed, trusting persisted nonce", zap.Error(err))
		} else {
			watermark = w
		}
	}

	start := persisted
	if watermark.Cmp(start) > 0 {
		start = watermark
	}

	p.mu.Lock()
	p.value = new(big.Int).Set(start)
	p.state = Running
	p.mu.Unlock()

	go p.watchLeaseLoss()
	return nil
}

// watchLeaseLoss renews the lease every third of LeaseTTL until the lease
// is lost or the provider is closed.
func (p *Provider) watchLeaseLoss() {
	ticker := time.NewTicker(LeaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-p.lease.Lost():
			p.mu.Lock()
			p.state = Closed
			p.mu.Unlock()
			p.log.Warn("nonce provider lease lost", zap.String("account", p.account.Hex()), zap.String("exchange", p.exchange.Hex()))
			return
		case <-p.closeCh:
			return
		case <-ticker.C:
			if err := p.lease.Renew(context.Background()); err != nil {
				p.log.Warn("nonce provider lease renewal failed", zap.Error(err))
			}
		}
	}
}

// GetNonce atomically increments and returns the next nonce, scheduling a
// debounced persistence write. Fails once the lease is lost or the
// provider is closed.
func (p *Provider) GetNonce() (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Running {
		return nil, &LeaseExpiredError{Account: p.account, Exchange: p.exchange}
	}

	p.value = new(big.Int).Add(p.value, big.NewInt(1))
	next := new(big.Int).Set(p.value)

	if p.saveTimer == nil {
		p.saveTimer = time.AfterFunc(p.debounce, p.debouncedSave)
	} else {
		p.saveTimer.Reset(p.debounce)
	}

	return next, nil
}

func (p *Provider) debouncedSave() {
	p.mu.Lock()
	if p.state == Closed {
		p.mu.Unlock()
		return
	}
	value := new(big.Int).Set(p.value)
	p.mu.Unlock()

	rec := &Record{
		ChainID:              p.chainID,
		MatchExecutorAddress: p.account,
		ExchangeAddress:      p.exchange,
		Nonce:                value.String(),
		UpdatedAt:            time.Now().Unix(),
	}
	if err := p.documents.Merge(rec); err != nil {
		p.log.Warn("debounced nonce save failed", zap.Error(err))
	}
}

// Close releases the lease and transitions to Closed. Idempotent.
func (p *Provider) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.mu.Lock()
		p.state = Closed
		if p.saveTimer != nil {
			p.saveTimer.Stop()
		}
		p.mu.Unlock()
		err = p.lease.Release(ctx)
	})
	return err
}

// StateSnapshot returns the provider's current lifecycle state.
func (p *Provider) StateSnapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
