package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/feed"
)

// StrategyEngine is the decision core shared by the live bot and the backtest simulator.
// State is kept per symbol; bars of different symbols may be fed from different goroutines,
// bars of one symbol must arrive in timestamp order.
type StrategyEngine struct {
	cfg       Config
	logger    *zap.Logger
	newID     func() string
	signals   *SignalEngine
	exits     *ExitChecker
	positions *PositionManager

	mu      sync.RWMutex
	symbols map[string]*symbolState
	intents map[string]string // intent ID -> symbol
}

type symbolState struct {
	mu         sync.Mutex
	store      *BarStore
	indicators *IndicatorEngine
	detector   *PatternDetector
	day        time.Time
	haltedDay  time.Time // entries stop for the day after an EOD exit
	entry      *OrderIntent
	exit       *OrderIntent
}

// Option configures a StrategyEngine
type Option func(*StrategyEngine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(se *StrategyEngine) {
		if logger != nil {
			se.logger = logger
		}
	}
}

// WithIDGenerator replaces the random intent ID source
func WithIDGenerator(newID func() string) Option {
	return func(se *StrategyEngine) {
		if newID != nil {
			se.newID = newID
		}
	}
}

// NewStrategyEngine validates cfg and creates an engine
func NewStrategyEngine(cfg Config, opts ...Option) (*StrategyEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	se := &StrategyEngine{
		cfg:       cfg,
		logger:    zap.NewNop(),
		newID:     uuid.NewString,
		signals:   NewSignalEngine(cfg),
		exits:     NewExitChecker(cfg),
		positions: NewPositionManager(cfg),
		symbols:   make(map[string]*symbolState),
		intents:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se, nil
}

// Config returns the engine configuration
func (se *StrategyEngine) Config() Config {
	return se.cfg
}

func (se *StrategyEngine) state(symbol string) *symbolState {
	se.mu.RLock()
	st, ok := se.symbols[symbol]
	se.mu.RUnlock()
	if ok {
		return st
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	if st, ok = se.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{
		store:      NewBarStore(symbol, se.cfg.MaxBarsRetained),
		indicators: NewIndicatorEngine(se.cfg),
		detector:   NewPatternDetector(se.cfg),
	}
	se.symbols[symbol] = st
	return st
}

// OnVWAPBar feeds a VWAP-granularity bar
func (se *StrategyEngine) OnVWAPBar(bar feed.Bar) error {
	if !se.cfg.SeparateVWAPBars {
		return ErrVWAPSeriesDisabled
	}
	if err := bar.Validate(); err != nil {
		return err
	}

	st := se.state(bar.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.store.Append(SeriesVWAP, bar); err != nil {
		return err
	}
	st.indicators.UpdateVWAP(bar)
	return nil
}

// OnBar runs one fast bar through indicators, exits, pattern detection and signal evaluation.
// Returned intents must be answered with ConfirmFill or RejectIntent.
func (se *StrategyEngine) OnBar(bar feed.Bar) (Decision, error) {
	if err := bar.Validate(); err != nil {
		return Decision{}, err
	}

	st := se.state(bar.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	prev, hasPrev := st.store.Last(SeriesFast)
	if err := st.store.Append(SeriesFast, bar); err != nil {
		return Decision{}, err
	}

	if day := se.cfg.tradingDate(bar.Time); !day.Equal(st.day) {
		st.day = day
		st.detector.ResetSession()
	}

	d := Decision{
		Symbol:   bar.Symbol,
		Time:     bar.Time,
		Snapshot: st.indicators.UpdateFast(bar),
	}

	exited := false
	if position, ok := se.positions.GetPosition(bar.Symbol); ok && st.exit == nil {
		var prevBar *feed.Bar
		if hasPrev {
			prevBar = &prev
		}
		if exit, ok := se.exits.Check(position, bar, prevBar); ok {
			intent := se.newIntent(bar.Symbol, SideSell, position.Size, exit.Price, bar.Time)
			intent.Reason = exit.Reason
			st.exit = &intent
			d.Exit = &intent
			exited = true
			if exit.Reason == ExitReasonEOD {
				st.haltedDay = st.day
			}
			se.logger.Info("exit",
				zap.String("symbol", bar.Symbol),
				zap.String("reason", string(exit.Reason)),
				zap.Float64("price", exit.Price),
				zap.Time("time", bar.Time),
			)
		}
	}

	d.Pattern, d.Invalidation = st.detector.Update(bar)
	if d.Invalidation != InvalidationNone {
		se.logger.Debug("pattern invalidated", zap.String("symbol", bar.Symbol), zap.String("reason", string(d.Invalidation)))
	}

	d.Signal = se.signals.Evaluate(bar, st.detector, d.Snapshot, se.entryBlock(st, bar, exited))
	if d.Signal.Kind != SignalEntry {
		return d, nil
	}

	position, err := se.positions.Reserve(d.Signal)
	if err != nil {
		if errors.Is(err, ErrPositionExists) {
			return d, err
		}
		d.Skip = &SkipEvent{Symbol: bar.Symbol, Time: bar.Time, Signal: d.Signal, Reason: err.Error(), Err: err}
		se.logger.Info("entry skipped", zap.String("symbol", bar.Symbol), zap.Time("time", bar.Time), zap.Error(err))
		return d, nil
	}

	intent := se.newIntent(bar.Symbol, SideBuy, position.Size, d.Signal.ReferencePrice, bar.Time)
	intent.StopPrice = position.StopPrice
	intent.TargetPrice = position.TargetPrice
	st.entry = &intent
	d.Entry = &intent
	se.logger.Info("entry",
		zap.String("symbol", bar.Symbol),
		zap.Float64("price", d.Signal.ReferencePrice),
		zap.Float64("stop", position.StopPrice),
		zap.Float64("target", position.TargetPrice),
		zap.Float64("size", position.Size),
		zap.Time("time", bar.Time),
	)
	return d, nil
}

// entryBlock returns why a breakout on this bar may not become an entry, or ""
func (se *StrategyEngine) entryBlock(st *symbolState, bar feed.Bar, exited bool) string {
	switch {
	case exited:
		return "position exited on this bar"
	case se.positions.HasPosition(bar.Symbol):
		return "position already held"
	case st.haltedDay.Equal(st.day):
		return "trading halted after EOD exit"
	case !se.cfg.inEntryWindow(bar.Time):
		return "outside entry window"
	}
	return ""
}

func (se *StrategyEngine) newIntent(symbol string, side Side, size, price float64, at time.Time) OrderIntent {
	se.mu.Lock()
	defer se.mu.Unlock()

	intent := OrderIntent{
		ID:             se.newID(),
		Symbol:         symbol,
		Side:           side,
		Size:           size,
		ReferencePrice: price,
		CreatedAt:      at,
	}
	se.intents[intent.ID] = symbol
	return intent
}

func (se *StrategyEngine) takeIntent(id string) (string, bool) {
	se.mu.Lock()
	defer se.mu.Unlock()
	symbol, ok := se.intents[id]
	delete(se.intents, id)
	return symbol, ok
}

// ConfirmFill applies a fill. Entry fills open the position; exit fills close it and return the trade.
func (se *StrategyEngine) ConfirmFill(fill Fill) (*Trade, error) {
	symbol, ok := se.takeIntent(fill.IntentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, fill.IntentID)
	}

	st := se.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case st.entry != nil && st.entry.ID == fill.IntentID:
		st.entry = nil
		_, err := se.positions.Confirm(symbol, fill.Price, fill.FilledAt, fill.Commission)
		return nil, err

	case st.exit != nil && st.exit.ID == fill.IntentID:
		reason := st.exit.Reason
		st.exit = nil
		trade, err := se.positions.Close(symbol, fill.Price, fill.FilledAt, reason, fill.Commission)
		if err != nil {
			return nil, err
		}
		se.logger.Info("trade closed",
			zap.String("symbol", symbol),
			zap.String("reason", string(reason)),
			zap.Float64("pnl", trade.PnL),
		)
		return &trade, nil
	}
	return nil, fmt.Errorf("%w: %s is no longer outstanding for %s", ErrUnknownIntent, fill.IntentID, symbol)
}

// RejectIntent handles a rejected order. A rejected entry frees its reservation;
// after a rejected exit the position stays open and exits are re-checked on the next bar.
func (se *StrategyEngine) RejectIntent(id, reason string) error {
	symbol, ok := se.takeIntent(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, id)
	}

	st := se.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	se.logger.Warn("order rejected", zap.String("symbol", symbol), zap.String("intent", id), zap.String("reason", reason))

	switch {
	case st.entry != nil && st.entry.ID == id:
		st.entry = nil
		return se.positions.Cancel(symbol)
	case st.exit != nil && st.exit.ID == id:
		st.exit = nil
		return nil
	}
	return fmt.Errorf("%w: %s is no longer outstanding for %s", ErrUnknownIntent, id, symbol)
}

// Flatten emits exit intents for every open position without one, priced at the symbol's last close
func (se *StrategyEngine) Flatten(reason ExitReason) []OrderIntent {
	var intents []OrderIntent
	for _, position := range se.positions.GetAllPositions() {
		if position.Status != StatusOpen {
			continue
		}
		st := se.state(position.Symbol)
		st.mu.Lock()
		last, ok := st.store.Last(SeriesFast)
		if ok && st.exit == nil {
			intent := se.newIntent(position.Symbol, SideSell, position.Size, last.Close, last.Time)
			intent.Reason = reason
			st.exit = &intent
			intents = append(intents, intent)
		}
		st.mu.Unlock()
	}
	return intents
}

// Positions returns all OPEN and PENDING positions
func (se *StrategyEngine) Positions() []Position {
	return se.positions.GetAllPositions()
}

// Snapshot returns the latest indicator snapshot for symbol
func (se *StrategyEngine) Snapshot(symbol string) (IndicatorSnapshot, bool) {
	se.mu.RLock()
	st, ok := se.symbols[symbol]
	se.mu.RUnlock()
	if !ok {
		return IndicatorSnapshot{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.indicators.Snapshot(), true
}

// Pattern returns the current pattern state for symbol
func (se *StrategyEngine) Pattern(symbol string) (PatternState, bool) {
	se.mu.RLock()
	st, ok := se.symbols[symbol]
	se.mu.RUnlock()
	if !ok {
		return PatternState{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.detector.State(), true
}

// Symbols lists every symbol the engine has seen, sorted
func (se *StrategyEngine) Symbols() []string {
	se.mu.RLock()
	defer se.mu.RUnlock()
	out := make([]string, 0, len(se.symbols))
	for symbol := range se.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
