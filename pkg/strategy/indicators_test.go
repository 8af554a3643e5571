package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACD_Readiness(t *testing.T) {
	calc := NewMACDCalculator(12, 26, 9)
	for i := 1; i < 35; i++ {
		assert.False(t, calc.Update(10).Ready, "close %d", i)
	}
	m := calc.Update(10)
	assert.True(t, m.Ready)
	assert.Zero(t, m.Hist)
}

func TestMACD_DeterministicOverPrefix(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 10 + math.Sin(float64(i)/4)*0.5 + float64(i)*0.01
	}

	calc := NewMACDCalculator(12, 26, 9)
	for i, c := range closes {
		got := calc.Update(c)
		want := ComputeMACD(closes[:i+1], 12, 26, 9)
		require.Equal(t, want, got)
		if got.Ready {
			assert.False(t, math.IsNaN(got.Hist) || math.IsInf(got.Hist, 0))
			assert.InDelta(t, got.Line-got.Signal, got.Hist, 1e-12)
		}
	}
}

func TestMACD_BullishOnRally(t *testing.T) {
	closes := make([]float64, 0, 45)
	for j := 0; j < 40; j++ {
		closes = append(closes, 10)
	}
	closes = append(closes, 10.15, 10.24)

	m := ComputeMACD(closes, 12, 26, 9)
	assert.True(t, m.Bullish())
	assert.InDelta(t, 0.02079, m.Hist, 1e-5)

	assert.False(t, MACD{Line: 1, Signal: 0, Hist: 1}.Bullish(), "not ready is never bullish")
}

func TestVWAP_TypicalPriceAndSessionReset(t *testing.T) {
	cfg := testConfig()
	calc := NewVWAPCalculator()
	assert.False(t, calc.Value().Ready)

	pre := cfg.vwapSessionStart(at(cfg, 3, 9, 0))
	v := calc.Update(bar("ABCD", at(cfg, 3, 9, 0), 5, 6, 4, 5, 100), pre)
	require.True(t, v.Ready)
	assert.InDelta(t, 5.0, v.V, 1e-9)

	v = calc.Update(bar("ABCD", at(cfg, 3, 9, 1), 8, 9, 7, 8, 300), pre)
	assert.InDelta(t, (5*100+8*300)/400.0, v.V, 1e-9)

	// first regular-session bar starts a new segment
	open := cfg.vwapSessionStart(at(cfg, 3, 9, 31))
	v = calc.Update(bar("ABCD", at(cfg, 3, 9, 31), 20, 21, 19, 20, 50), open)
	assert.InDelta(t, 20.0, v.V, 1e-9)
	assert.Equal(t, open, calc.SessionStart())
}

func TestRelativeVolume(t *testing.T) {
	rv := NewRelativeVolume(3)

	for _, vol := range []float64{100, 200, 300} {
		assert.False(t, rv.Update(vol).Ready)
	}

	v := rv.Update(400)
	require.True(t, v.Ready)
	assert.InDelta(t, 2.0, v.V, 1e-9) // 400 / mean(100,200,300)

	v = rv.Update(300)
	assert.InDelta(t, 1.0, v.V, 1e-9) // 300 / mean(200,300,400)
}

func TestIndicatorEngine_SeparateVWAPSeries(t *testing.T) {
	cfg := testConfig()
	cfg.SeparateVWAPBars = true
	ie := NewIndicatorEngine(cfg)

	snap := ie.UpdateFast(bar("ABCD", at(cfg, 3, 9, 31), 10, 10.05, 9.95, 10, 1000))
	assert.False(t, snap.VWAP.Ready, "no VWAP bars yet")

	ie.UpdateVWAP(bar("ABCD", at(cfg, 3, 9, 31), 10, 11, 9, 10, 500))
	snap = ie.UpdateFast(bar("ABCD", at(cfg, 3, 9, 32), 10, 10.05, 9.95, 10, 1000))
	require.True(t, snap.VWAP.Ready)
	assert.InDelta(t, 10.0, snap.VWAP.V, 1e-9)

	// next day, yesterday's VWAP must not be reported
	snap = ie.UpdateFast(bar("ABCD", at(cfg, 4, 9, 31), 10, 10.05, 9.95, 10, 1000))
	assert.False(t, snap.VWAP.Ready)
	assert.Equal(t, snap, ie.Snapshot())
}
