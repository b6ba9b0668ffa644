package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/aggregator"
	"evm-swap-bot/internal/config"
	"evm-swap-bot/internal/detection"
	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
	"evm-swap-bot/internal/execution"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/pipeline"
	"evm-swap-bot/internal/pricing"
	"evm-swap-bot/internal/quoting"
	"evm-swap-bot/internal/safety"
	"evm-swap-bot/internal/storage"
	"evm-swap-bot/internal/storage/clickhouse"
	"evm-swap-bot/internal/storage/memory"
	"evm-swap-bot/internal/storage/migrations"
	pgstore "evm-swap-bot/internal/storage/postgres"
	"evm-swap-bot/internal/telemetry"
	"evm-swap-bot/internal/tokencache"
	"evm-swap-bot/internal/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML trading configuration")
	useMemory := flag.Bool("use-memory", false, "Use in-memory stores even when POSTGRES_DSN is set")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "autoswap").
		Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.AutoSwapEnabled {
		logger.Fatal().Msg("autoswap_enabled is off in configuration")
	}

	if cfg.MetricsListen != "" {
		go serveMetrics(logger, cfg.MetricsListen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		select {
		case <-sigCh:
			logger.Error().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *useMemory)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("autoswap exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, logger zerolog.Logger, cfg *config.Config, useMemory bool) error {
	rpc := evm.NewHTTPClient(cfg.Secrets.RPCURL, evm.WithTimeout(cfg.APITimeout.Duration))

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		return fmt.Errorf("%w: rpc endpoint serves chain %s, config expects %d",
			domain.ErrInvalidConfig, chainID, cfg.ChainID)
	}

	signer, err := wallet.New(cfg.Secrets.PrivateKey, chainID)
	if err != nil {
		return fmt.Errorf("load wallet key: %w", err)
	}
	// Gas funds visibility: executions stall silently on an unfunded key.
	gasFunds, err := rpc.GetBalance(ctx, signer.Address())
	if err != nil {
		return fmt.Errorf("read wallet balance: %w", err)
	}
	logger.Info().
		Str("wallet", signer.Address().Hex()).
		Int64("chain_id", cfg.ChainID).
		Str("native_balance_wei", gasFunds.String()).
		Msg("wallet loaded")
	if gasFunds.Sign() == 0 {
		logger.Warn().Msg("wallet holds no native balance, transactions will fail")
	}

	// A failed push connection degrades to polling, never aborts startup.
	var subscriber detection.LogSubscriber
	if cfg.PushEnabled {
		ws, err := evm.NewWSClient(ctx, cfg.Secrets.WSURL, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("push channel unavailable, starting on polling alone")
		} else {
			defer ws.Close()
			subscriber = ws
		}
	}

	var (
		processed storage.ProcessedEventStore = memory.NewProcessedEventStore()
		receipts  storage.ReceiptStore       = memory.NewReceiptStore()
	)
	if !useMemory && cfg.Secrets.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Secrets.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
		processed = pgstore.NewProcessedEventStore(pool)
		receipts = pgstore.NewReceiptStore(pool)
	}

	recorders := []telemetry.Recorder{telemetry.NewLogRecorder(logger)}
	if cfg.Secrets.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Secrets.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("prepare clickhouse sink: %w", err)
		}
		defer conn.Close()
		sink := telemetry.NewStoreRecorder(clickhouse.NewExecutionEventStore(conn), logger)
		defer sink.Close()
		recorders = append(recorders, sink)
	}
	recorder := telemetry.NewMulti(recorders...)

	prices := pricing.NewDexScreener(common.HexToAddress(cfg.WrappedNative))

	var prober detection.MetadataReader = rpc
	if cfg.Secrets.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Secrets.RedisAddr})
		defer rdb.Close()
		prober = tokencache.New(rpc, rdb, uint64(cfg.ChainID), cfg.TokenCacheTTL.Duration, logger)
	}

	aggs, err := buildAggregators(cfg)
	if err != nil {
		return err
	}
	broker, err := quoting.New(aggs, rpc, logger,
		quoting.WithAPITimeout(cfg.APITimeout.Duration),
		quoting.WithRequoteAttempts(cfg.RequoteAttempts))
	if err != nil {
		return err
	}

	validator := safety.New(prices, prober, rpc, safety.Config{
		Blacklist:       parseAddresses(cfg.Blacklist),
		Whitelist:       parseAddresses(cfg.Whitelist),
		MinSellUSD:      decimal.NewFromFloat(cfg.MinSellUSD),
		MaxGasPrice:     domain.GweiToWei(cfg.MaxGasPriceGwei),
		MaxPoolShare:    decimal.NewFromFloat(cfg.MaxPoolShare),
		MinLiquidityUSD: decimal.NewFromFloat(cfg.MinLiquidityUSD),
		LiquidityCheck:  cfg.LiquidityCheckEnabled,
		SafeMode:        cfg.SafeMode,
	}, logger)

	registry := execution.NewRegistry()
	executor, err := execution.New(execution.Options{
		Client:              rpc,
		Venues:              broker,
		Signer:              signer,
		Registry:            registry,
		Logger:              logger,
		MaxRetries:          cfg.MaxRetries,
		GasMultiplier:       decimal.NewFromFloat(cfg.GasMultiplier),
		ConfirmTimeout:      cfg.ConfirmTimeout.Duration,
		ConfirmPollInterval: cfg.ConfirmPollInterval.Duration,
	})
	if err != nil {
		return err
	}

	source, err := detection.NewWalletSource(detection.WalletSourceConfig{
		Client:     rpc,
		Metadata:   prober,
		Subscriber: subscriber,
		Wallet:     signer.Address(),
		Watchlist:  parseAddresses(cfg.Watchlist),
		Interval:   cfg.MonitorInterval.Duration,
		Dedup:      detection.NewDedup(cfg.DedupWindow.Duration, registry),
		Recorder:   recorder,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	runner, err := pipeline.NewAutoSwap(pipeline.AutoSwapConfig{
		Validator:     validator,
		Quotes:        broker,
		Executor:      executor,
		Rate:          nativeRate(cfg, rpc),
		Processed:     processed,
		Receipts:      receipts,
		Recorder:      recorder,
		Logger:        logger,
		BaseAsset:     common.HexToAddress(cfg.BaseAsset),
		SlippagePct:   decimal.NewFromFloat(cfg.SlippagePct),
		MaxGasPrice:   domain.GweiToWei(cfg.MaxGasPriceGwei),
		DeferInterval: cfg.MonitorInterval.Duration,
	})
	if err != nil {
		return err
	}

	// Processed rows older than the dedup window can never suppress
	// anything again; prune them on schedule.
	if cfg.PruneSchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.PruneSchedule, func() {
			pruneCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := processed.Prune(pruneCtx, time.Now().Add(-cfg.DedupWindow.Duration))
			if err != nil {
				logger.Error().Err(err).Msg("processed-event prune failed")
				return
			}
			logger.Info().Int64("rows", n).Msg("processed events pruned")
		})
		if err != nil {
			return fmt.Errorf("%w: prune_schedule %q: %v", domain.ErrInvalidConfig, cfg.PruneSchedule, err)
		}
		c.Start()
		defer c.Stop()
	}

	logger.Info().Msg("starting auto-swap")
	runner.Run(ctx, source.Run(ctx))
	return ctx.Err()
}

// serveMetrics exposes prometheus metrics and a liveness probe.
func serveMetrics(logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}

// buildAggregators instantiates the enabled venues in configured priority
// order.
func buildAggregators(cfg *config.Config) ([]aggregator.Aggregator, error) {
	var aggs []aggregator.Aggregator
	for _, ac := range cfg.Aggregators {
		if !ac.Enabled {
			continue
		}
		agg, err := aggregator.New(ac.Name, aggregator.Config{
			BaseURL: ac.BaseURL,
			APIKey:  cfg.Secrets.APIKeys[ac.Name],
			ChainID: uint64(cfg.ChainID),
			Timeout: cfg.APITimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		aggs = append(aggs, agg)
	}
	if len(aggs) == 0 {
		return nil, fmt.Errorf("%w: zero aggregators enabled", domain.ErrInvalidConfig)
	}
	return aggs, nil
}

// nativeRate picks the gas-cost conversion for the configured base asset.
func nativeRate(cfg *config.Config, rpc *evm.HTTPClient) pipeline.NativeRater {
	if strings.EqualFold(cfg.BaseAsset, cfg.WrappedNative) {
		return pipeline.UnitRate{}
	}
	return pipeline.NewReferencePoolRate(rpc,
		common.HexToAddress(cfg.ReferencePool),
		common.HexToAddress(cfg.BaseAsset))
}

func parseAddresses(list []string) []common.Address {
	addrs := make([]common.Address, 0, len(list))
	for _, s := range list {
		if s == "" {
			continue
		}
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs
}
