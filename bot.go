package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/execution"
	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/risk"
	"github.com/pullback-bot/pkg/scanner"
	"github.com/pullback-bot/pkg/strategy"
)

// TradingBot manages the live trading bot. Bars and execution reports are handled
// on one goroutine; pending reports are applied before the next bar.
type TradingBot struct {
	cfg         *config.Config
	engine      *strategy.StrategyEngine
	executor    execution.Executor
	scanner     *scanner.Scanner
	buyingPower *risk.BuyingPowerManager
	guard       *risk.DailyLossGuard
	ledger      *ledger.CSVLedger
	store       *ledger.Store // optional
	runID       string
	logger      *zap.Logger

	now         func() time.Time
	maxBarAge   time.Duration // entries on older bars are rejected
	outstanding int           // submitted intents without a report
}

// NewTradingBot creates a new trading bot
func NewTradingBot(
	cfg *config.Config,
	engine *strategy.StrategyEngine,
	executor execution.Executor,
	scan *scanner.Scanner,
	csvLedger *ledger.CSVLedger,
	logger *zap.Logger,
) *TradingBot {
	return &TradingBot{
		cfg:         cfg,
		engine:      engine,
		executor:    executor,
		scanner:     scan,
		buyingPower: risk.NewBuyingPowerManager(cfg.AccountSize),
		guard:       risk.NewDailyLossGuard(cfg.AccountSize, cfg.MaxDailyLossLimit, cfg.AccountCloseLimit, cfg.Strategy.Location, logger),
		ledger:      csvLedger,
		logger:      logger,
		now:         time.Now,
		maxBarAge:   2*time.Minute + cfg.PollInterval,
	}
}

// UseStore records every closed trade under runID in the SQL ledger as well
func (tb *TradingBot) UseStore(store *ledger.Store, runID string) {
	tb.store = store
	tb.runID = runID
}

// Warmup replays today's bars so indicators and patterns are current before live polling.
// Entries on these bars are stale and get rejected. It returns the symbols to poll
// and the last bar time seen per symbol.
func (tb *TradingBot) Warmup(ctx context.Context, f feed.Feed, symbols []string) ([]string, map[string]time.Time, error) {
	now := tb.now().In(tb.cfg.Strategy.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var mu sync.Mutex
	histories := make(map[string]feed.History, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := f.GetHistoricalBars(gctx, symbol, day, day, "minute")
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				tb.logger.Warn("warmup fetch failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}

			completed := make([]feed.Bar, 0, len(bars))
			for _, bar := range bars {
				if !bar.Time.After(now) {
					completed = append(completed, bar)
				}
			}

			mu.Lock()
			histories[symbol] = feed.History{Fast: completed}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	last := make(map[string]time.Time, len(histories))
	for _, symbol := range symbols {
		bars := histories[symbol].Fast
		for _, bar := range bars {
			tb.handleBar(ctx, bar)
		}
		if len(bars) > 0 {
			last[symbol] = bars[len(bars)-1].Time
		}
	}

	// symbols without bars yet cannot be judged; keep them
	withBars := make(map[string]feed.History, len(histories))
	var selected []string
	for _, symbol := range symbols {
		if h := histories[symbol]; len(h.Fast) > 0 {
			withBars[symbol] = h
		} else {
			selected = append(selected, symbol)
		}
	}
	selected = append(selected, tb.scanner.Select(withBars)...)

	tb.logger.Info("warmup complete",
		zap.Int("watchlist", len(symbols)),
		zap.Strings("selected", selected),
	)
	return selected, last, nil
}

// Run handles bars and execution reports until ctx is cancelled or bars is closed
func (tb *TradingBot) Run(ctx context.Context, bars <-chan feed.Bar) error {
	tb.logger.Info("bot running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-tb.executor.Reports():
			tb.handleReport(ctx, r)
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			tb.drainReports(ctx)
			tb.handleBar(ctx, bar)
		}
	}
}

// Shutdown flattens every open position through the EOD path and waits for the fills
func (tb *TradingBot) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	// a pending entry may fill while the first round drains
	for round := 0; round < 2; round++ {
		tb.drainReports(ctx)
		intents := tb.engine.Flatten(strategy.ExitReasonEOD)
		for _, intent := range intents {
			tb.logger.Info("closing position", zap.String("symbol", intent.Symbol), zap.Float64("size", intent.Size))
			tb.submit(ctx, intent)
		}
		if waitErr := tb.waitOutstanding(ctx); waitErr != nil {
			err = waitErr
			break
		}
		if len(intents) == 0 {
			break
		}
	}

	if remaining := tb.engine.Positions(); len(remaining) > 0 {
		err = errors.Join(err, fmt.Errorf("%d position(s) still open at shutdown", len(remaining)))
	}
	if tb.ledger != nil {
		err = errors.Join(err, tb.ledger.Close())
	}
	return err
}

func (tb *TradingBot) waitOutstanding(ctx context.Context) error {
	for tb.outstanding > 0 {
		select {
		case r := <-tb.executor.Reports():
			tb.handleReport(ctx, r)
		case <-ctx.Done():
			return fmt.Errorf("%d order(s) unanswered: %w", tb.outstanding, ctx.Err())
		}
	}
	return nil
}

func (tb *TradingBot) drainReports(ctx context.Context) {
	for {
		select {
		case r := <-tb.executor.Reports():
			tb.handleReport(ctx, r)
		default:
			return
		}
	}
}

func (tb *TradingBot) handleBar(ctx context.Context, bar feed.Bar) {
	decision, err := tb.engine.OnBar(bar)
	if err != nil {
		tb.logger.Warn("bar rejected", zap.String("symbol", bar.Symbol), zap.Time("time", bar.Time), zap.Error(err))
		return
	}

	if decision.Skip != nil {
		tb.logger.Info("entry skipped",
			zap.String("symbol", decision.Skip.Symbol),
			zap.String("reason", decision.Skip.Reason),
		)
	}
	if decision.Exit != nil {
		tb.submit(ctx, *decision.Exit)
	}
	if decision.Entry != nil {
		intent := *decision.Entry
		if reason := tb.blockEntry(intent); reason != "" {
			tb.reject(intent, reason)
			return
		}
		tb.submit(ctx, intent)
	}
}

func (tb *TradingBot) blockEntry(intent strategy.OrderIntent) string {
	if tb.now().Sub(intent.CreatedAt) > tb.maxBarAge {
		return "stale bar"
	}
	if !tb.guard.CanTrade(intent.CreatedAt) {
		return "risk limit reached"
	}
	if !tb.buyingPower.CanAfford(intent.Size, intent.ReferencePrice) {
		return "insufficient buying power"
	}
	return ""
}

func (tb *TradingBot) submit(ctx context.Context, intent strategy.OrderIntent) {
	tb.outstanding++
	if err := tb.executor.Submit(ctx, intent); err != nil {
		tb.outstanding--
		tb.reject(intent, err.Error())
	}
}

func (tb *TradingBot) reject(intent strategy.OrderIntent, reason string) {
	if err := tb.engine.RejectIntent(intent.ID, reason); err != nil {
		tb.logger.Error("failed to reject intent", zap.String("intent", intent.ID), zap.Error(err))
	}
}

func (tb *TradingBot) handleReport(ctx context.Context, r execution.Report) {
	tb.outstanding--

	trade, err := execution.Apply(tb.engine, r)
	if err != nil {
		tb.logger.Error("failed to apply execution report",
			zap.String("symbol", r.Intent.Symbol),
			zap.String("intent", r.Intent.ID),
			zap.Error(err),
		)
		return
	}

	if !r.Rejected() && r.Intent.Side == strategy.SideBuy {
		tb.buyingPower.ReserveBuyingPower(r.Intent.Size, r.Fill.Price)
		tb.logger.Info("position opened",
			zap.String("symbol", r.Intent.Symbol),
			zap.Float64("price", r.Fill.Price),
			zap.Float64("stop", r.Intent.StopPrice),
			zap.Float64("target", r.Intent.TargetPrice),
		)
	}
	if trade != nil {
		tb.recordTrade(ctx, *trade)
	}
}

func (tb *TradingBot) recordTrade(ctx context.Context, trade strategy.Trade) {
	tb.buyingPower.ReleaseBuyingPower(trade.Size, trade.EntryPrice)
	tb.buyingPower.UpdateAccountBalance(trade.PnL)
	tb.guard.RecordTrade(trade.PnL, trade.ClosedAt)

	if tb.ledger != nil {
		if err := tb.ledger.Append(trade); err != nil {
			tb.logger.Error("failed to append trade to ledger", zap.Error(err))
		}
	}
	if tb.store != nil {
		if err := tb.store.AppendTrade(ctx, tb.runID, trade); err != nil {
			tb.logger.Error("failed to store trade", zap.Error(err))
		}
	}
}
