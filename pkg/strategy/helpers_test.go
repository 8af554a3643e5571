package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pullback-bot/pkg/feed"
)

func testConfig() Config {
	return DefaultConfig()
}

// at returns h:m on 2025-03-<day> in the config's zone
func at(cfg Config, day, h, m int) time.Time {
	return time.Date(2025, time.March, day, h, m, 0, 0, cfg.Location)
}

func bar(symbol string, t time.Time, o, h, l, c, v float64) feed.Bar {
	return feed.Bar{Symbol: symbol, Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// flatBars are doji bars at 10 with a 1% range; they never form a surge
func flatBars(symbol string, start time.Time, n int) []feed.Bar {
	out := make([]feed.Bar, n)
	for i := range out {
		out[i] = bar(symbol, start.Add(time.Duration(i)*time.Minute), 10, 10.05, 9.95, 10, 1000)
	}
	return out
}

// entryScenario is one session of 1-minute bars from 09:31: 40 flat bars, a 3% surge over two bars,
// a 2% pullback over three bars with two red candles, then a green new-high bar on 1.8x volume.
// Only the last bar qualifies: MACD hist ~0.0197, VWAP ~10.022, stop 9.94455, target 12.336.
func entryScenario(cfg Config, symbol string, day int) []feed.Bar {
	start := at(cfg, day, 9, 31)
	bars := flatBars(symbol, start, 40)
	next := func(o, h, l, c, v float64) {
		bars = append(bars, bar(symbol, start.Add(time.Duration(len(bars))*time.Minute), o, h, l, c, v))
	}
	next(10.00, 10.16, 9.99, 10.15, 1000) // surge starts: (10.16-9.95)/9.95 = 2.1%
	next(10.15, 10.25, 10.14, 10.24, 1000) // surge high 10.25, 3.0%
	next(10.24, 10.245, 10.12, 10.14, 1000) // red, pullback begins
	next(10.14, 10.15, 10.045, 10.06, 1000) // red, pullback low 10.045 (2.0%)
	next(10.06, 10.10, 10.05, 10.08, 1000)
	next(10.08, 10.30, 10.07, 10.28, 1800) // breakout
	return bars
}

func newTestEngine(t *testing.T, cfg Config) *StrategyEngine {
	t.Helper()
	n := 0
	se, err := NewStrategyEngine(cfg, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("intent-%d", n)
	}))
	require.NoError(t, err)
	return se
}

func feedAll(t *testing.T, se *StrategyEngine, bars []feed.Bar) []Decision {
	t.Helper()
	out := make([]Decision, 0, len(bars))
	for _, b := range bars {
		d, err := se.OnBar(b)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}
