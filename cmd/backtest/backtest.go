package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pullback-bot/pkg/backtest"
	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/ledger"
)

// maxConcurrentFetches bounds parallel Polygon downloads
const maxConcurrentFetches = 4

type runOptions struct {
	tickers     []string
	days        int
	dataDir     string
	outDir      string
	metricsPath string
	name        string
	scan        bool
}

// loadHistories reads bars from a CSV directory, or downloads them from Polygon through the cache
func loadHistories(ctx context.Context, cfg *config.Config, opts runOptions, logger *zap.Logger) (map[string]feed.History, error) {
	if opts.dataDir != "" {
		histories, err := feed.LoadCSVDir(opts.dataDir)
		if err != nil {
			return nil, err
		}
		if len(opts.tickers) > 0 {
			for symbol := range histories {
				if !contains(opts.tickers, symbol) {
					delete(histories, symbol)
				}
			}
		}
		return histories, nil
	}

	if cfg.PolygonAPIKey == "" {
		return nil, fmt.Errorf("POLYGON_API_KEY is required without -data-dir")
	}

	polygonFeed := feed.NewPolygonFeed(cfg.PolygonAPIKey)
	cache := feed.NewCacheManager(cfg.CacheDir)
	location := cfg.Strategy.Location

	var mu sync.Mutex
	histories := make(map[string]feed.History, len(opts.tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, ticker := range opts.tickers {
		ticker := ticker
		g.Go(func() error {
			barsByDate, err := fetchTicker(gctx, polygonFeed, cache, ticker, opts.days, location, logger)
			if err != nil {
				return err
			}

			mu.Lock()
			histories[ticker] = feed.History{Fast: feed.FlattenDates(barsByDate)}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return histories, nil
}

// fetchTicker serves a ticker from today's cache, otherwise downloads and caches it
func fetchTicker(ctx context.Context, polygonFeed *feed.PolygonFeed, cache *feed.CacheManager, ticker string, days int, location *time.Location, logger *zap.Logger) (map[time.Time][]feed.Bar, error) {
	cached, _, err := cache.LoadCachedData(ticker, days, location)
	if err != nil {
		logger.Warn("cache read failed", zap.String("symbol", ticker), zap.Error(err))
	}
	if cached != nil {
		logger.Info("using cached bars", zap.String("symbol", ticker), zap.Int("days", len(cached)))
		return cached, nil
	}

	logger.Info("fetching bars", zap.String("symbol", ticker), zap.Int("days", days))
	barsByDate, err := polygonFeed.GetDaysOfBars(ctx, ticker, days, location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}

	if err := cache.SaveCachedData(ticker, days, barsByDate); err != nil {
		logger.Warn("cache write failed", zap.String("symbol", ticker), zap.Error(err))
	}
	return barsByDate, nil
}

// printResults prints backtest results
func printResults(result *backtest.Result) {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Bars Replayed: %d\n", result.Bars)
	fmt.Printf("Entry Signals: %d (skipped %d)\n", result.Signals, len(result.Skipped))
	fmt.Printf("Total Trades: %d\n", len(result.Trades))
	fmt.Printf("Final Account Balance: $%.2f\n", result.FinalCapital)
	fmt.Printf("Total P&L: $%.2f (%.2f%%)\n", result.FinalCapital-result.InitialCapital, result.TotalReturnPct)

	if len(result.Skipped) > 0 {
		reasons := make(map[string]int)
		for _, s := range result.Skipped {
			reasons[s.Reason]++
		}
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("Skipped Signals:")
		for _, k := range keys {
			fmt.Printf("  %-40s %d\n", k, reasons[k])
		}
	}
}

// exportCSV writes the trade ledger to backtest_YYYYMMDD_HHMMSS_Npct.csv in dir
func exportCSV(dir string, result *backtest.Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	filename := fmt.Sprintf("backtest_%s_%.1fpct.csv",
		time.Now().Format("20060102_150405"),
		result.TotalReturnPct,
	)
	path := filepath.Join(dir, filename)
	if err := ledger.WriteCSVFile(path, result.Trades); err != nil {
		return "", err
	}
	return path, nil
}

// saveRun stores the run and its trades in the SQL ledger
func saveRun(ctx context.Context, cfg *config.Config, name string, symbols []string, result *backtest.Result) (ledger.Run, error) {
	db, err := ledger.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return ledger.Run{}, err
	}
	store := ledger.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return ledger.Run{}, err
	}

	if name == "" {
		name = "backtest " + strings.Join(symbols, ",")
	}
	return store.SaveRun(ctx, name, "backtest", symbols, result.InitialCapital, result.FinalCapital, result.Trades)
}

func symbolsOf(histories map[string]feed.History) []string {
	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func contains(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
