// Command relayer wires the Orderbook Storage, Matching Engine, Execution
// Engine, and Nonce Provider & Broadcaster into one running process. The
// HTTP control surface that starts/stops per-collection pipelines and
// queries status is an external collaborator (spec.md §1) and is not
// implemented here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/relaymatch/matchcore/params"
	"github.com/relaymatch/matchcore/pkg/broadcast"
	"github.com/relaymatch/matchcore/pkg/crypto"
	"github.com/relaymatch/matchcore/pkg/execution"
	"github.com/relaymatch/matchcore/pkg/kv"
	"github.com/relaymatch/matchcore/pkg/marketplace"
	"github.com/relaymatch/matchcore/pkg/marketplace/seaport"
	"github.com/relaymatch/matchcore/pkg/matching"
	"github.com/relaymatch/matchcore/pkg/nonce"
	"github.com/relaymatch/matchcore/pkg/util"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := util.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	table := marketplace.DefaultTable()
	registry := marketplace.NewRegistry()
	if err := registry.Register(marketplace.Seaport, marketplace.SingleTokenKind, seaport.Build); err != nil {
		return &FatalStartupError{Err: err}
	}
	if err := registry.CheckExhaustive(table); err != nil {
		return &FatalStartupError{Err: err}
	}

	store := kv.NewStore(cfg.ChainID, log)
	engine := matching.NewEngine(store, func() int64 { return time.Now().Unix() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	execEngine, closeFn, err := wireExecution(ctx, cfg, store, registry, log)
	if err != nil {
		return fmt.Errorf("wire execution engine: %w", err)
	}
	defer closeFn()

	log.Info("relayer started",
		zap.Uint64("chainId", cfg.ChainID),
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("forking", cfg.EnableForking),
	)
	_ = engine
	_ = execEngine

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("relayer shutting down")
	return nil
}

// FatalStartupError aborts process startup per spec.md §7's Fatal error
// kind.
type FatalStartupError struct {
	Err error
}

func (e *FatalStartupError) Error() string { return fmt.Sprintf("fatal startup error: %v", e.Err) }
func (e *FatalStartupError) Unwrap() error  { return e.Err }

func wireExecution(ctx context.Context, cfg params.Config, store *kv.Store, registry *marketplace.Registry, log *zap.Logger) (*execution.Engine, func(), error) {
	var client *ethclient.Client
	var err error
	if cfg.HTTPRPCURL != "" {
		client, err = ethclient.DialContext(ctx, cfg.HTTPRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rpc: %w", err)
		}
	}

	docs, err := nonce.NewPebbleDocumentStore("./data/nonces")
	if err != nil {
		return nil, nil, err
	}

	var authSigner *crypto.Signer
	if cfg.FlashbotsAuthSignerKey != "" {
		authSigner, err = crypto.FromPrivateKeyHex(cfg.FlashbotsAuthSignerKey)
		if err != nil {
			return nil, nil, fmt.Errorf("parse flashbots signer key: %w", err)
		}
	}
	bcaster := broadcast.Select(client, cfg.FlashbotsRelayURL, authSigner)

	account := common.HexToAddress(cfg.MatchExecutorAddress)

	var watermark nonce.WatermarkReader
	if client != nil {
		watermark, err = execution.NewBreakerWatermarkReader(client, log)
		if err != nil {
			return nil, nil, err
		}
	}

	lease := nonce.NewInProcessLease(util.RealClock{})
	provider := nonce.NewProvider(cfg.ChainID, account, exchangeFromTable(), lease, docs, watermark, log)
	if err := provider.Run(ctx); err != nil {
		return nil, nil, fmt.Errorf("start nonce provider: %w", err)
	}

	allocators := map[common.Address]execution.NonceAllocator{exchangeFromTable(): provider}
	resolve := func(name marketplace.Name) (common.Address, bool) {
		return exchangeFromTable(), true
	}

	eng := execution.NewEngine(store, registry, allocators, watermark, bcaster, resolve, log)

	if client != nil {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			log.Warn("could not read chain head for startup match sweep", zap.Error(err))
		} else if _, err := eng.ExecutePendingMatches(ctx, account, head); err != nil {
			log.Warn("startup match sweep failed", zap.Error(err))
		}
	}

	closeFn := func() {
		_ = provider.Close(context.Background())
		_ = docs.Close()
	}
	return eng, closeFn, nil
}

// exchangeFromTable is a placeholder single-exchange resolution until a
// real per-marketplace exchange-contract configuration source is wired
// in; see DESIGN.md.
func exchangeFromTable() common.Address {
	return common.Address{}
}
