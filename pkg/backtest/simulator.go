// Package backtest replays historical bars through the strategy engine with simulated fills.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/risk"
	"github.com/pullback-bot/pkg/strategy"
)

// ErrUnsortedHistory is returned when a replay series is not strictly increasing in time
var ErrUnsortedHistory = errors.New("history not strictly time ordered")

// Config holds everything a replay depends on
type Config struct {
	Strategy       strategy.Config
	Slippage       strategy.SlippageModel
	Commission     strategy.CommissionModel
	InitialCapital float64
}

// Validate checks the replay configuration
func (c Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Slippage.Validate(); err != nil {
		return err
	}
	if err := c.Commission.Validate(); err != nil {
		return err
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be > 0")
	}
	return nil
}

// EquityPoint is account equity after a realized trade
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result is the outcome of one replay
type Result struct {
	Trades         []strategy.Trade
	Skipped        []strategy.SkipEvent
	EquityCurve    []EquityPoint
	InitialCapital float64
	FinalCapital   float64
	TotalReturnPct float64
	Signals        int // ENTRY signals, filled or skipped
	Bars           int // fast bars replayed
}

// Simulator replays history through a fresh StrategyEngine per run.
// Fills happen at the decided price adjusted by the slippage model; no fill ever uses a future bar.
type Simulator struct {
	cfg    Config
	logger *zap.Logger
}

// NewSimulator validates cfg and creates a simulator
func NewSimulator(cfg Config, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger}, nil
}

// run is the mutable state of one replay
type run struct {
	cfg    Config
	logger *zap.Logger
	engine *strategy.StrategyEngine
	cash   *risk.BuyingPowerManager
	result *Result
}

// Run replays histories keyed by symbol. Identical inputs produce identical results.
func (s *Simulator) Run(ctx context.Context, histories map[string]feed.History) (*Result, error) {
	if err := s.validateHistories(ctx, histories); err != nil {
		return nil, err
	}

	seq := 0
	engine, err := strategy.NewStrategyEngine(s.cfg.Strategy,
		strategy.WithLogger(s.logger),
		strategy.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("bt-%06d", seq)
		}),
	)
	if err != nil {
		return nil, err
	}

	r := &run{
		cfg:    s.cfg,
		logger: s.logger,
		engine: engine,
		cash:   risk.NewBuyingPowerManager(s.cfg.InitialCapital),
		result: &Result{InitialCapital: s.cfg.InitialCapital},
	}

	m := newMerger(s.cursors(histories))
	for i := 0; ; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ev, ok := m.next()
		if !ok {
			break
		}
		if err := r.replay(ev); err != nil {
			return nil, err
		}
	}

	for _, intent := range engine.Flatten(strategy.ExitReasonEndOfData) {
		if err := r.fillExit(intent); err != nil {
			return nil, err
		}
	}

	res := r.result
	res.FinalCapital = r.cash.GetAccountBalance()
	res.TotalReturnPct = (res.FinalCapital - res.InitialCapital) / res.InitialCapital * 100

	s.logger.Info("backtest complete",
		zap.Int("bars", res.Bars),
		zap.Int("signals", res.Signals),
		zap.Int("trades", len(res.Trades)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Float64("final_capital", res.FinalCapital),
	)
	return res, nil
}

// validateHistories checks every series up front so a replay never starts on bad data
func (s *Simulator) validateHistories(ctx context.Context, histories map[string]feed.History) error {
	g, _ := errgroup.WithContext(ctx)
	for symbol, h := range histories {
		symbol, h := symbol, h
		g.Go(func() error {
			if err := checkSeries(symbol, strategy.SeriesFast, h.Fast); err != nil {
				return err
			}
			if s.cfg.Strategy.SeparateVWAPBars {
				return checkSeries(symbol, strategy.SeriesVWAP, h.VWAP)
			}
			return nil
		})
	}
	return g.Wait()
}

func checkSeries(symbol string, series strategy.Series, bars []feed.Bar) error {
	for i, b := range bars {
		if b.Symbol != symbol {
			return fmt.Errorf("%s %s bar %d: %w: symbol %q", symbol, series, i, strategy.ErrSymbolMismatch, b.Symbol)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s %s bar %d: %w", symbol, series, i, err)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: %s %s bar %d at %s does not follow %s",
				ErrUnsortedHistory, symbol, series, i, b.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Simulator) cursors(histories map[string]feed.History) []*cursor {
	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var out []*cursor
	for _, symbol := range symbols {
		h := histories[symbol]
		out = append(out, &cursor{symbol: symbol, series: strategy.SeriesFast, bars: h.Fast})
		if s.cfg.Strategy.SeparateVWAPBars {
			out = append(out, &cursor{symbol: symbol, series: strategy.SeriesVWAP, bars: h.VWAP})
		}
	}
	return out
}

func (r *run) replay(ev event) error {
	if ev.series == strategy.SeriesVWAP {
		return r.engine.OnVWAPBar(ev.bar)
	}

	r.result.Bars++
	d, err := r.engine.OnBar(ev.bar)
	if err != nil {
		return err
	}

	if d.Exit != nil {
		if err := r.fillExit(*d.Exit); err != nil {
			return err
		}
	}
	if d.Signal.Kind == strategy.SignalEntry {
		r.result.Signals++
	}
	if d.Skip != nil {
		r.result.Skipped = append(r.result.Skipped, *d.Skip)
	}
	if d.Entry != nil {
		return r.fillEntry(*d.Entry, d.Signal)
	}
	return nil
}

func (r *run) fillEntry(intent strategy.OrderIntent, signal strategy.Signal) error {
	price := r.cfg.Slippage.FillPrice(intent.ReferencePrice, strategy.SideBuy)

	if !r.cash.CanAfford(intent.Size, price) {
		r.skip(intent, signal, "insufficient buying power", nil)
		return r.engine.RejectIntent(intent.ID, "insufficient buying power")
	}

	_, err := r.engine.ConfirmFill(strategy.Fill{
		IntentID:   intent.ID,
		Price:      price,
		FilledAt:   intent.CreatedAt,
		Commission: r.cfg.Commission.Commission(strategy.SideBuy, intent.Size, price),
	})
	if errors.Is(err, strategy.ErrFillOutsideBracket) {
		r.skip(intent, signal, "slipped fill outside stop/target", err)
		return nil
	}
	if err != nil {
		return err
	}

	r.cash.ReserveBuyingPower(intent.Size, price)
	return nil
}

func (r *run) fillExit(intent strategy.OrderIntent) error {
	price := r.cfg.Slippage.FillPrice(intent.ReferencePrice, strategy.SideSell)
	trade, err := r.engine.ConfirmFill(strategy.Fill{
		IntentID:   intent.ID,
		Price:      price,
		FilledAt:   intent.CreatedAt,
		Commission: r.cfg.Commission.Commission(strategy.SideSell, intent.Size, price),
	})
	if err != nil {
		return err
	}

	r.cash.ReleaseBuyingPower(trade.Size, trade.EntryPrice)
	r.cash.UpdateAccountBalance(trade.PnL)
	r.result.Trades = append(r.result.Trades, *trade)
	r.result.EquityCurve = append(r.result.EquityCurve, EquityPoint{Time: trade.ClosedAt, Equity: r.cash.GetAccountBalance()})
	return nil
}

func (r *run) skip(intent strategy.OrderIntent, signal strategy.Signal, reason string, err error) {
	r.result.Skipped = append(r.result.Skipped, strategy.SkipEvent{
		Symbol: intent.Symbol,
		Time:   intent.CreatedAt,
		Signal: signal,
		Reason: reason,
		Err:    err,
	})
	r.logger.Info("entry skipped", zap.String("symbol", intent.Symbol), zap.String("reason", reason))
}
