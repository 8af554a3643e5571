package backtest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/strategy"
)

// scenario is one session from 09:31: 40 flat bars, a 3% surge, a 2% pullback with two red
// candles, then a breakout bar closing at 10.28 (stop 9.94455, target 12.336)
func scenario(loc *time.Location, symbol string, day int) []feed.Bar {
	start := time.Date(2025, time.March, day, 9, 31, 0, 0, loc)
	var bars []feed.Bar
	add := func(o, h, l, c, v float64) {
		bars = append(bars, feed.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(len(bars)) * time.Minute),
			Open:   o, High: h, Low: l, Close: c, Volume: v,
		})
	}
	for j := 0; j < 40; j++ {
		add(10, 10.05, 9.95, 10, 1000)
	}
	add(10.00, 10.16, 9.99, 10.15, 1000)
	add(10.15, 10.25, 10.14, 10.24, 1000)
	add(10.24, 10.245, 10.12, 10.14, 1000)
	add(10.14, 10.15, 10.045, 10.06, 1000)
	add(10.06, 10.10, 10.05, 10.08, 1000)
	add(10.08, 10.30, 10.07, 10.28, 1800)
	return bars
}

// twoSessions stops out on day one and re-enters on day two, held to the end of data
func twoSessions(loc *time.Location, symbol string) []feed.Bar {
	day1 := scenario(loc, symbol, 3)
	last := day1[len(day1)-1]
	stop := feed.Bar{Symbol: symbol, Time: last.Time.Add(time.Minute), Open: 10.28, High: 10.29, Low: 9.90, Close: 9.95, Volume: 1000}
	return append(append(day1, stop), scenario(loc, symbol, 4)...)
}

func zeroCostConfig() Config {
	return Config{
		Strategy:       strategy.DefaultConfig(),
		Slippage:       strategy.SlippageModel{Mode: strategy.SlippageBPS},
		InitialCapital: 10000,
	}
}

func costConfig() Config {
	cfg := zeroCostConfig()
	cfg.Slippage = strategy.SlippageModel{Mode: strategy.SlippageBPS, BPS: 20}
	cfg.Commission = strategy.DefaultCommissionModel()
	return cfg
}

func runSim(t *testing.T, cfg Config, histories map[string]feed.History) *Result {
	t.Helper()
	sim, err := NewSimulator(cfg, nil)
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), histories)
	require.NoError(t, err)
	return res
}

func TestSimulator_StopThenReentryInSamePass(t *testing.T) {
	cfg := zeroCostConfig()
	bars := twoSessions(cfg.Strategy.Location, "ABCD")

	res := runSim(t, cfg, map[string]feed.History{"ABCD": {Fast: bars}})

	require.Len(t, res.Trades, 2)
	first, second := res.Trades[0], res.Trades[1]

	assert.Equal(t, strategy.ExitReasonStop, first.ExitReason)
	assert.Equal(t, 10.28, first.EntryPrice)
	assert.InDelta(t, 9.94455, first.ExitPrice, 1e-9)
	assert.InDelta(t, -3.263132295719843, first.PnL, 1e-9)

	assert.Equal(t, strategy.ExitReasonEndOfData, second.ExitReason)
	assert.Equal(t, 10.28, second.ExitPrice)
	assert.True(t, second.OpenedAt.After(first.ClosedAt))

	assert.Equal(t, 2, res.Signals)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, len(bars), res.Bars)
	assert.InDelta(t, 10000-3.263132295719843, res.FinalCapital, 1e-9)
	require.Len(t, res.EquityCurve, 2)
	assert.Equal(t, res.FinalCapital, res.EquityCurve[1].Equity)
}

func TestSimulator_AppliesCosts(t *testing.T) {
	cfg := costConfig()
	res := runSim(t, cfg, map[string]feed.History{"ABCD": {Fast: twoSessions(cfg.Strategy.Location, "ABCD")}})

	require.Len(t, res.Trades, 2)
	stop := res.Trades[0]
	assert.InDelta(t, 10.30056, stop.EntryPrice, 1e-9)
	assert.InDelta(t, 9.9246609, stop.ExitPrice, 1e-9)
	assert.Equal(t, 2.0, stop.Commission)
	assert.InDelta(t, -5.656606031128403, stop.PnL, 1e-9)

	assert.InDelta(t, -2.4, res.Trades[1].PnL, 1e-9)
	assert.InDelta(t, 9991.943393968872, res.FinalCapital, 1e-6)
	assert.InDelta(t, (9991.943393968872-10000)/10000*100, res.TotalReturnPct, 1e-6)
}

func TestSimulator_ByteIdenticalLedger(t *testing.T) {
	cfg := costConfig()
	loc := cfg.Strategy.Location
	histories := map[string]feed.History{
		"ABCD": {Fast: twoSessions(loc, "ABCD")},
		"WXYZ": {Fast: twoSessions(loc, "WXYZ")},
		"MNOP": {Fast: scenario(loc, "MNOP", 3)},
	}

	ledgers := make([][]byte, 3)
	for i := range ledgers {
		res := runSim(t, cfg, histories)
		var buf bytes.Buffer
		require.NoError(t, ledger.WriteCSV(&buf, res.Trades))
		ledgers[i] = buf.Bytes()
	}

	assert.Equal(t, ledgers[0], ledgers[1])
	assert.Equal(t, ledgers[0], ledgers[2])
	assert.Greater(t, bytes.Count(ledgers[0], []byte("\n")), 4)
}

func TestSimulator_InsufficientCashSkipsEntry(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.InitialCapital = 50

	res := runSim(t, cfg, map[string]feed.History{"ABCD": {Fast: scenario(cfg.Strategy.Location, "ABCD", 3)}})

	assert.Empty(t, res.Trades)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "insufficient buying power", res.Skipped[0].Reason)
	assert.Equal(t, 1, res.Signals)
	assert.Equal(t, 50.0, res.FinalCapital)
}

func TestSimulator_MaxPositionsAcrossSymbols(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.Strategy.MaxConcurrentPositions = 1
	loc := cfg.Strategy.Location

	res := runSim(t, cfg, map[string]feed.History{
		"WXYZ": {Fast: scenario(loc, "WXYZ", 3)},
		"ABCD": {Fast: scenario(loc, "ABCD", 3)},
	})

	// equal timestamps replay alphabetically, so ABCD takes the only slot
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "ABCD", res.Trades[0].Symbol)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "WXYZ", res.Skipped[0].Symbol)
	assert.ErrorIs(t, res.Skipped[0].Err, strategy.ErrMaxPositions)
}

func TestSimulator_RejectsUnsortedHistory(t *testing.T) {
	cfg := zeroCostConfig()
	bars := scenario(cfg.Strategy.Location, "ABCD", 3)
	bars[10], bars[11] = bars[11], bars[10]

	sim, err := NewSimulator(cfg, nil)
	require.NoError(t, err)

	_, err = sim.Run(context.Background(), map[string]feed.History{"ABCD": {Fast: bars}})
	assert.ErrorIs(t, err, ErrUnsortedHistory)

	bars = scenario(cfg.Strategy.Location, "ABCD", 3)
	_, err = sim.Run(context.Background(), map[string]feed.History{"WXYZ": {Fast: bars}})
	assert.ErrorIs(t, err, strategy.ErrSymbolMismatch)
}

func TestSimulator_SeparateVWAPSeries(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.Strategy.SeparateVWAPBars = true
	loc := cfg.Strategy.Location
	fast := scenario(loc, "ABCD", 3)

	// one VWAP bar per five minutes, typical price 10
	var vwap []feed.Bar
	for i := 4; i < len(fast); i += 5 {
		vwap = append(vwap, feed.Bar{Symbol: "ABCD", Time: fast[i].Time, Open: 10, High: 10.1, Low: 9.9, Close: 10, Volume: 5000})
	}

	res := runSim(t, cfg, map[string]feed.History{"ABCD": {Fast: fast, VWAP: vwap}})
	assert.Equal(t, 1, res.Signals)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, strategy.ExitReasonEndOfData, res.Trades[0].ExitReason)
}

func TestSimulator_ContextCancelled(t *testing.T) {
	cfg := zeroCostConfig()
	sim, err := NewSimulator(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx, map[string]feed.History{"ABCD": {Fast: scenario(cfg.Strategy.Location, "ABCD", 3)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSimulator_InvalidConfig(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.InitialCapital = 0
	_, err := NewSimulator(cfg, nil)
	assert.Error(t, err)

	cfg = zeroCostConfig()
	cfg.Slippage.Mode = "random"
	_, err = NewSimulator(cfg, nil)
	assert.Error(t, err)
}

func TestMerger_Order(t *testing.T) {
	t0 := time.Date(2025, 3, 3, 9, 31, 0, 0, time.UTC)
	b := func(sym string, min int) feed.Bar {
		return feed.Bar{Symbol: sym, Time: t0.Add(time.Duration(min) * time.Minute)}
	}

	m := newMerger([]*cursor{
		{symbol: "WXYZ", series: strategy.SeriesFast, bars: []feed.Bar{b("WXYZ", 0), b("WXYZ", 1)}},
		{symbol: "ABCD", series: strategy.SeriesFast, bars: []feed.Bar{b("ABCD", 0), b("ABCD", 2)}},
		{symbol: "WXYZ", series: strategy.SeriesVWAP, bars: []feed.Bar{b("WXYZ", 0)}},
		{symbol: "EMPTY", series: strategy.SeriesFast},
	})

	var got []string
	for {
		ev, ok := m.next()
		if !ok {
			break
		}
		got = append(got, ev.bar.Symbol+"/"+ev.series.String()+"/"+ev.bar.Time.Format("04"))
	}
	assert.Equal(t, []string{"WXYZ/vwap/31", "ABCD/fast/31", "WXYZ/fast/31", "WXYZ/fast/32", "ABCD/fast/33"}, got)
}
