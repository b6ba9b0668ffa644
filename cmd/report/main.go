package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"evm-swap-bot/internal/config"
	"evm-swap-bot/internal/reporting"
	pgstore "evm-swap-bot/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML trading configuration")
	dsn := flag.String("postgres-dsn", "", "Postgres DSN (overrides POSTGRES_DSN from the config environment)")
	walletHex := flag.String("wallet", "", "Restrict the report to one wallet address")
	from := flag.String("from", "", "Report window start, RFC3339 (default: 24h ago)")
	to := flag.String("to", "", "Report window end, RFC3339 (default: now)")
	format := flag.String("format", "md", "Output format: md or csv")
	out := flag.String("out", "", "Output file (default: stdout)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("service", "report").
		Logger()

	if *dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("load configuration")
		}
		*dsn = cfg.Secrets.PostgresDSN
	}
	if *dsn == "" {
		logger.Fatal().Msg("a postgres DSN is required, via -postgres-dsn or POSTGRES_DSN")
	}

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	var err error
	if *to != "" {
		end, err = time.Parse(time.RFC3339, *to)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse -to")
		}
	}
	if *from != "" {
		start, err = time.Parse(time.RFC3339, *from)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse -from")
		}
	}
	if !start.Before(end) {
		logger.Fatal().
			Time("from", start).
			Time("to", end).
			Msg("window start must precede window end")
	}

	var wallet common.Address
	if *walletHex != "" {
		if !common.IsHexAddress(*walletHex) {
			logger.Fatal().Str("wallet", *walletHex).Msg("invalid wallet address")
		}
		wallet = common.HexToAddress(*walletHex)
	}

	if err := run(logger, *dsn, wallet, start, end, *format, *out); err != nil {
		logger.Fatal().Err(err).Msg("report generation failed")
	}
}

func run(logger zerolog.Logger, dsn string, wallet common.Address, start, end time.Time, format, out string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	generator := reporting.NewGenerator(pgstore.NewReceiptStore(pool))
	var report *reporting.Report
	if wallet != (common.Address{}) {
		report, err = generator.GenerateForWallet(ctx, wallet, start, end)
	} else {
		report, err = generator.Generate(ctx, start, end)
	}
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	logger.Info().
		Int("orders", report.Summary.TotalOrders).
		Int("executed", report.Summary.Executed).
		Int("failed", report.Summary.Failed).
		Msg("report generated")

	var rendered string
	switch format {
	case "md":
		rendered = reporting.RenderMarkdown(report)
	case "csv":
		rendered = reporting.RenderCSV(report.Receipts)
	default:
		return fmt.Errorf("unknown format %q, want md or csv", format)
	}

	if out == "" {
		fmt.Print(rendered)
		return nil
	}
	if err := os.WriteFile(out, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info().Str("path", out).Msg("report written")
	return nil
}
