package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/api"
	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/logging"
	"github.com/pullback-bot/pkg/performance"
	"github.com/pullback-bot/pkg/strategy"
)

func main() {
	// Parse command-line flags
	csvDirFlag := flag.String("csv-dir", "cmd/backtest/results", "Directory (or single file) of trade ledger CSVs")
	runFlag := flag.String("run", "", "Analyze a run from the SQL ledger instead of CSV files")
	outputFlag := flag.String("output", "", "Write metrics as JSON to this path (default: print report)")
	serveFlag := flag.Bool("serve", false, "Serve the SQL ledger over HTTP on API_ADDR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		store, err := openStore(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to open ledger store", zap.Error(err))
		}
		if err := serve(ctx, cfg.APIAddr, store, logger); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	var trades []strategy.Trade
	if *runFlag != "" {
		store, err := openStore(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to open ledger store", zap.Error(err))
		}
		trades, err = store.Trades(ctx, *runFlag)
		if err != nil {
			logger.Fatal("failed to load run", zap.String("run", *runFlag), zap.Error(err))
		}
		fmt.Printf("Analyzing run %s...\n", *runFlag)
	} else {
		fmt.Println("Analyzing backtest results...")
		fmt.Printf("CSV Directory: %s\n", *csvDirFlag)
		trades, err = loadTrades(*csvDirFlag, logger)
		if err != nil {
			log.Fatalf("Failed to load trades: %v", err)
		}
	}

	metrics := performance.Analyze(trades)
	if *outputFlag != "" {
		if err := performance.ExportJSON(metrics, *outputFlag); err != nil {
			log.Fatalf("Failed to export JSON: %v", err)
		}
		fmt.Printf("Report exported to: %s\n", *outputFlag)
		return
	}
	if err := performance.WriteReport(os.Stdout, metrics); err != nil {
		log.Fatalf("Failed to print report: %v", err)
	}
}

// loadTrades reads one ledger file, or every *.csv in a directory, ordered by close time
func loadTrades(path string, logger *zap.Logger) ([]strategy.Trade, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return ledger.ReadCSVFile(path)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list CSV files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", path)
	}

	var trades []strategy.Trade
	for _, file := range files {
		fileTrades, err := ledger.ReadCSVFile(file)
		if err != nil {
			logger.Warn("skipping ledger file", zap.String("file", file), zap.Error(err))
			continue
		}
		trades = append(trades, fileTrades...)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ClosedAt.Before(trades[j].ClosedAt)
	})
	return trades, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*ledger.Store, error) {
	if cfg.DBDriver == "" {
		return nil, errors.New("DB_DRIVER and DB_DSN must be set")
	}
	db, err := ledger.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	store := ledger.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// serve runs the read API until ctx is cancelled
func serve(ctx context.Context, addr string, store *ledger.Store, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.NewHandler(store, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
