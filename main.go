package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/execution"
	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/logging"
	"github.com/pullback-bot/pkg/scanner"
	"github.com/pullback-bot/pkg/strategy"
)

func main() {
	paperFlag := flag.Bool("paper", false, "Fill orders locally with the slippage and commission models instead of SignalStack")
	flag.Parse()

	fmt.Println("Pullback Trading Bot - Starting...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Paper mode needs market data but no broker webhook
	if err := cfg.Validate(!*paperFlag); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}
	if cfg.PolygonAPIKey == "" {
		log.Fatal("POLYGON_API_KEY is required")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Printf("Account Size: $%.2f\n", cfg.AccountSize)
	fmt.Printf("Trade Size: $%.2f, Max Positions: %d\n", cfg.Strategy.TradeSizeDollars, cfg.Strategy.MaxConcurrentPositions)
	fmt.Printf("Account Close Limit: $%.2f\n", cfg.AccountCloseLimit)
	fmt.Printf("Max Daily Loss: $%.2f\n", cfg.MaxDailyLossLimit)
	fmt.Printf("Paper Trading: %v\n", *paperFlag)
	fmt.Println()

	// Create components
	polygonFeed := feed.NewPolygonFeed(cfg.PolygonAPIKey)
	scan := scanner.NewScanner(cfg, logger)

	var executor execution.Executor
	if *paperFlag {
		executor = execution.NewPaperExecutor(cfg.Slippage, cfg.Commission, logger)
	} else {
		executor = execution.NewSignalStackClient(cfg.SignalStackWebhookURL, cfg.Commission, logger)
	}

	engine, err := strategy.NewStrategyEngine(cfg.Strategy, strategy.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create strategy engine", zap.Error(err))
	}

	csvLedger, err := ledger.OpenCSV(cfg.LedgerPath)
	if err != nil {
		logger.Fatal("failed to open trade ledger", zap.Error(err))
	}

	bot := NewTradingBot(cfg, engine, executor, scan, csvLedger, logger)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchlist := scan.Watchlist()
	if len(watchlist) == 0 {
		logger.Fatal("watchlist is empty, set BACKTEST_TICKERS")
	}

	if cfg.DBDriver != "" {
		mode := "live"
		if *paperFlag {
			mode = "paper"
		}
		if err := attachStore(ctx, cfg, bot, mode, watchlist); err != nil {
			logger.Fatal("failed to open ledger store", zap.Error(err))
		}
	}

	if !scanner.InTradingHours(time.Now(), cfg.Strategy) {
		logger.Info("outside trading hours, entries resume at premarket start",
			zap.String("premarket_start", cfg.Strategy.PremarketStart.String()),
		)
	}

	symbols, last, err := bot.Warmup(ctx, polygonFeed, watchlist)
	if err != nil {
		logger.Fatal("warmup failed", zap.Error(err))
	}

	poller := feed.NewPoller(polygonFeed, symbols, cfg.PollInterval, cfg.Strategy.Location, logger)
	for symbol, t := range last {
		poller.Seed(symbol, t)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return bot.Run(gctx, poller.Bars()) })
	if err := g.Wait(); err != nil {
		logger.Error("bot error", zap.Error(err))
	}

	fmt.Println("\nShutting down, closing all positions...")
	if err := bot.Shutdown(30 * time.Second); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	fmt.Println("Bot stopped.")
}

// attachStore opens the SQL ledger and starts a run for this session
func attachStore(ctx context.Context, cfg *config.Config, bot *TradingBot, mode string, symbols []string) error {
	db, err := ledger.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	store := ledger.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	name := fmt.Sprintf("%s %s", mode, time.Now().In(cfg.Strategy.Location).Format("2006-01-02"))
	run, err := store.CreateRun(ctx, name, mode, symbols, cfg.AccountSize)
	if err != nil {
		return err
	}
	bot.UseStore(store, run.ID)
	return nil
}
