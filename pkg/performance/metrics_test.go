package performance

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullback-bot/pkg/strategy"
)

func TestProfitFactor(t *testing.T) {
	tests := []struct {
		name        string
		pnls        []float64
		want        float64
		wantDefined bool
	}{
		{"winners and losers", []float64{10, 5, -20}, 0.75, true},
		{"no losers", []float64{10, 5}, 0, false},
		{"no trades", nil, 0, false},
		{"only losers", []float64{-3, -1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProfitFactor(tt.pnls)
			assert.Equal(t, tt.wantDefined, got.Defined)
			assert.InDelta(t, tt.want, got.Value, 1e-12)
			assert.False(t, math.IsInf(got.Value, 0))
		})
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name  string
		curve []float64
		want  float64
	}{
		{"peak 15 to trough 2", []float64{0, 10, 5, 15, 2}, -13},
		{"monotonic rise", []float64{0, 1, 2, 3}, 0},
		{"straight down", []float64{0, -4, -9}, -9},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxDrawdown(tt.curve))
		})
	}
}

func TestCumulativePnL(t *testing.T) {
	assert.Equal(t, []float64{0, 10, 5, 15, 2}, CumulativePnL([]float64{10, -5, 10, -13}))
	assert.Equal(t, []float64{0}, CumulativePnL(nil))
}

func TestSharpeRatio(t *testing.T) {
	got := SharpeRatio([]float64{0.01, 0.03})
	require.True(t, got.Defined)
	// mean 0.02, sample std 0.0141421
	assert.InDelta(t, 0.02/math.Sqrt(0.0002), got.Value, 1e-9)

	assert.False(t, SharpeRatio([]float64{0.01}).Defined)
	assert.False(t, SharpeRatio([]float64{0.01, 0.01, 0.01}).Defined)
}

func trade(symbol string, reason strategy.ExitReason, pnl float64) strategy.Trade {
	return strategy.Trade{Symbol: symbol, EntryPrice: 10, Size: 10, PnL: pnl, Commission: 2, ExitReason: reason}
}

func TestAnalyze(t *testing.T) {
	trades := []strategy.Trade{
		trade("ABCD", strategy.ExitReasonTarget, 10),
		trade("WXYZ", strategy.ExitReasonDynamic, 5),
		trade("ABCD", strategy.ExitReasonStop, -20),
	}

	m := Analyze(trades)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 2.0/3, m.WinRate, 1e-12)
	assert.Equal(t, -5.0, m.TotalPnL)
	assert.Equal(t, 6.0, m.Commission)
	assert.Equal(t, 7.5, m.AverageWin)
	assert.Equal(t, -20.0, m.AverageLoss)
	assert.Equal(t, Ratio{Value: 0.75, Defined: true}, m.ProfitFactor)
	assert.True(t, m.Sharpe.Defined)
	assert.Equal(t, -20.0, m.MaxDrawdown)
	assert.Equal(t, 10.0, m.BestTrade.PnL)
	assert.Equal(t, -20.0, m.WorstTrade.PnL)

	abcd := m.BySymbol["ABCD"]
	assert.Equal(t, Breakdown{Trades: 2, Wins: 1, Losses: 1, WinRate: 0.5, TotalPnL: -10}, abcd)
	assert.Equal(t, 1, m.ByExitReason["STOP"].Losses)
}

func TestAnalyze_Empty(t *testing.T) {
	m := Analyze(nil)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRate)
	assert.False(t, m.ProfitFactor.Defined)
	assert.Nil(t, m.BestTrade)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, m))
	assert.Contains(t, buf.String(), "Profit Factor: undefined")
}

func TestRatio_JSON(t *testing.T) {
	m := Analyze([]strategy.Trade{trade("ABCD", strategy.ExitReasonTarget, 10)})

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, ExportJSON(m, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["profit_factor"])
	assert.Nil(t, decoded["sharpe"])
	assert.Equal(t, 1.0, decoded["win_rate"])

	data, err := json.Marshal(Ratio{Value: 0.75, Defined: true})
	require.NoError(t, err)
	assert.Equal(t, "0.75", string(data))
	assert.Equal(t, "0.75", Ratio{Value: 0.75, Defined: true}.String())
}

func TestWriteReport(t *testing.T) {
	m := Analyze([]strategy.Trade{
		trade("ABCD", strategy.ExitReasonTarget, 10),
		trade("ABCD", strategy.ExitReasonStop, -20),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "Total Trades: 2")
	assert.Contains(t, out, "Profit Factor: 0.50")
	assert.Contains(t, out, "Max Drawdown: $-20.00")
	assert.Contains(t, out, "By Exit Reason:")
}
