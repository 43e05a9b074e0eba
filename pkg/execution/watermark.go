package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ChainRPCError is the error surfaced when a chain RPC call fails outright
// or is rejected by an open circuit breaker, per spec.md §7.
type ChainRPCError struct {
	Call string
	Err  error
}

func (e *ChainRPCError) Error() string {
	return fmt.Sprintf("chain rpc error calling %s: %v", e.Call, e.Err)
}

func (e *ChainRPCError) Unwrap() error { return e.Err }

const userMinOrderNonceABI = `[{"constant":true,"inputs":[{"name":"user","type":"address"}],"name":"userMinOrderNonce","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// BreakerWatermarkReader reads userMinOrderNonce over ethclient, with one
// circuit breaker per exchange contract so a flaky RPC endpoint trips
// instead of failing every match in a batch — grounded on
// abdoElHodaky-tradSys's CircuitBreakerFactory (one named breaker per
// resource, lazily created, thread-safe lookup).
type BreakerWatermarkReader struct {
	client *ethclient.Client
	abi    abi.ABI
	log    *zap.Logger

	mu       sync.Mutex
	breakers map[common.Address]*gobreaker.CircuitBreaker
}

// NewBreakerWatermarkReader wires the reader to an ethclient connection.
func NewBreakerWatermarkReader(client *ethclient.Client, log *zap.Logger) (*BreakerWatermarkReader, error) {
	parsed, err := abi.JSON(strings.NewReader(userMinOrderNonceABI))
	if err != nil {
		return nil, fmt.Errorf("parse userMinOrderNonce abi: %w", err)
	}
	return &BreakerWatermarkReader{
		client:   client,
		abi:      parsed,
		log:      log,
		breakers: make(map[common.Address]*gobreaker.CircuitBreaker),
	}, nil
}

func (r *BreakerWatermarkReader) breakerFor(exchange common.Address) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[exchange]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("userMinOrderNonce:%s", exchange.Hex()),
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("watermark circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	r.breakers[exchange] = cb
	return cb
}

// UserMinOrderNonce implements nonce.WatermarkReader.
func (r *BreakerWatermarkReader) UserMinOrderNonce(ctx context.Context, exchange, account common.Address) (*big.Int, error) {
	cb := r.breakerFor(exchange)
	result, err := cb.Execute(func() (interface{}, error) {
		data, err := r.abi.Pack("userMinOrderNonce", account)
		if err != nil {
			return nil, err
		}
		out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &exchange, Data: data}, nil)
		if err != nil {
			return nil, err
		}
		results, err := r.abi.Unpack("userMinOrderNonce", out)
		if err != nil {
			return nil, err
		}
		return results[0].(*big.Int), nil
	})
	if err != nil {
		return nil, &ChainRPCError{Call: "userMinOrderNonce", Err: err}
	}
	return result.(*big.Int), nil
}
