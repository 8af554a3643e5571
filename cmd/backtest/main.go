package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/backtest"
	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/logging"
	"github.com/pullback-bot/pkg/performance"
	"github.com/pullback-bot/pkg/scanner"
)

func main() {
	// Parse command-line flags
	tickerFlag := flag.String("ticker", "", "Single ticker symbol to backtest")
	daysFlag := flag.Int("days", 30, "Number of days to look back when downloading from Polygon")
	dataDirFlag := flag.String("data-dir", "", "Directory of <SYMBOL>.csv bar files (skips Polygon)")
	accountFlag := flag.Float64("account", 0, "Initial capital (default: ACCOUNT_SIZE)")
	outDirFlag := flag.String("out", "cmd/backtest/results", "Directory for the trade ledger CSV")
	metricsFlag := flag.String("metrics-json", "", "Also write metrics as JSON to this path")
	nameFlag := flag.String("name", "", "Run name stored with the SQL ledger")
	noScanFlag := flag.Bool("no-scan", false, "Replay every loaded symbol without the price/volume filter")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *accountFlag > 0 {
		cfg.AccountSize = *accountFlag
	}

	if err := cfg.Validate(false); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	scan := scanner.NewScanner(cfg, logger)

	// Get ticker list
	var tickers []string
	if *tickerFlag != "" {
		tickers = []string{*tickerFlag}
	} else {
		tickers = scan.Watchlist()
	}
	if len(tickers) == 0 && *dataDirFlag == "" {
		log.Fatal("No tickers specified. Use -ticker flag, -data-dir, or set BACKTEST_TICKERS in .env")
	}

	fmt.Printf("Starting backtest...\n")
	fmt.Printf("Tickers: %v\n", tickers)
	if *dataDirFlag != "" {
		fmt.Printf("Data Directory: %s\n", *dataDirFlag)
	} else {
		fmt.Printf("Days: %d\n", *daysFlag)
	}
	fmt.Printf("Initial Capital: $%.2f\n", cfg.AccountSize)
	fmt.Printf("Trade Size: $%.2f, Max Positions: %d\n", cfg.Strategy.TradeSizeDollars, cfg.Strategy.MaxConcurrentPositions)
	fmt.Printf("Slippage: %s, Commission: $%.3f/share (min $%.2f)\n", cfg.Slippage.Mode, cfg.Commission.PerShare, cfg.Commission.Minimum)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		tickers:     tickers,
		days:        *daysFlag,
		dataDir:     *dataDirFlag,
		outDir:      *outDirFlag,
		metricsPath: *metricsFlag,
		name:        *nameFlag,
		scan:        !*noScanFlag,
	}
	if err := runBacktest(ctx, cfg, scan, opts, logger); err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
}

// runBacktest loads history, replays it and reports the result
func runBacktest(ctx context.Context, cfg *config.Config, scan *scanner.Scanner, opts runOptions, logger *zap.Logger) error {
	fmt.Println("Loading historical data...")
	histories, err := loadHistories(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	if opts.scan {
		selected := scan.Select(histories)
		for symbol := range histories {
			if !contains(selected, symbol) {
				delete(histories, symbol)
			}
		}
	}
	if len(histories) == 0 {
		return fmt.Errorf("no symbols left to replay")
	}
	fmt.Printf("Replaying %d symbol(s)\n", len(histories))

	sim, err := backtest.NewSimulator(backtest.Config{
		Strategy:       cfg.Strategy,
		Slippage:       cfg.Slippage,
		Commission:     cfg.Commission,
		InitialCapital: cfg.AccountSize,
	}, logger)
	if err != nil {
		return err
	}

	result, err := sim.Run(ctx, histories)
	if err != nil {
		return err
	}

	printResults(result)
	metrics := performance.Analyze(result.Trades)
	if err := performance.WriteReport(os.Stdout, metrics); err != nil {
		return err
	}

	path, err := exportCSV(opts.outDir, result)
	if err != nil {
		return err
	}
	fmt.Printf("\nResults exported to: %s\n", path)

	if opts.metricsPath != "" {
		if err := performance.ExportJSON(metrics, opts.metricsPath); err != nil {
			return fmt.Errorf("failed to export metrics: %w", err)
		}
	}

	if cfg.DBDriver != "" {
		run, err := saveRun(ctx, cfg, opts.name, symbolsOf(histories), result)
		if err != nil {
			return err
		}
		fmt.Printf("Run stored as %s\n", run.ID)
	}
	return nil
}
