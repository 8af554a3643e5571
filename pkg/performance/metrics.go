// Package performance computes trade statistics from a ledger. Every figure is derived
// from the trades passed in; nothing is accumulated between calls.
package performance

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/pullback-bot/pkg/strategy"
)

// Ratio is a statistic that may be undefined, such as a profit factor with no losing trades
type Ratio struct {
	Value   float64
	Defined bool
}

func (r Ratio) String() string {
	if !r.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(r.Value, 'f', 2, 64)
}

// MarshalJSON encodes an undefined ratio as null
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Breakdown summarizes a subset of trades
type Breakdown struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
}

func (b *Breakdown) add(pnl float64) {
	b.Trades++
	b.TotalPnL += pnl
	switch {
	case pnl > 0:
		b.Wins++
	case pnl < 0:
		b.Losses++
	}
	b.WinRate = float64(b.Wins) / float64(b.Trades)
}

// Metrics is the full statistics set for a ledger
type Metrics struct {
	TotalTrades  int                  `json:"total_trades"`
	Wins         int                  `json:"wins"`
	Losses       int                  `json:"losses"`
	WinRate      float64              `json:"win_rate"`
	TotalPnL     float64              `json:"total_pnl"`
	GrossProfit  float64              `json:"gross_profit"`
	GrossLoss    float64              `json:"gross_loss"`
	AverageWin   float64              `json:"average_win"`
	AverageLoss  float64              `json:"average_loss"`
	Commission   float64              `json:"commission"`
	ProfitFactor Ratio                `json:"profit_factor"`
	Sharpe       Ratio                `json:"sharpe"`
	MaxDrawdown  float64              `json:"max_drawdown"`
	BestTrade    *strategy.Trade      `json:"best_trade,omitempty"`
	WorstTrade   *strategy.Trade      `json:"worst_trade,omitempty"`
	BySymbol     map[string]Breakdown `json:"by_symbol"`
	ByExitReason map[string]Breakdown `json:"by_exit_reason"`
}

// Analyze computes Metrics over trades in ledger order
func Analyze(trades []strategy.Trade) Metrics {
	m := Metrics{
		TotalTrades:  len(trades),
		BySymbol:     make(map[string]Breakdown),
		ByExitReason: make(map[string]Breakdown),
	}

	pnls := make([]float64, len(trades))
	returns := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.PnL
		returns[i] = t.Return()

		m.TotalPnL += t.PnL
		m.Commission += t.Commission
		switch {
		case t.PnL > 0:
			m.Wins++
			m.GrossProfit += t.PnL
		case t.PnL < 0:
			m.Losses++
			m.GrossLoss += t.PnL
		}

		if m.BestTrade == nil || t.PnL > m.BestTrade.PnL {
			m.BestTrade = &trades[i]
		}
		if m.WorstTrade == nil || t.PnL < m.WorstTrade.PnL {
			m.WorstTrade = &trades[i]
		}

		sym := m.BySymbol[t.Symbol]
		sym.add(t.PnL)
		m.BySymbol[t.Symbol] = sym

		reason := m.ByExitReason[string(t.ExitReason)]
		reason.add(t.PnL)
		m.ByExitReason[string(t.ExitReason)] = reason
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	}
	if m.Wins > 0 {
		m.AverageWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.Losses)
	}

	m.ProfitFactor = ProfitFactor(pnls)
	m.Sharpe = SharpeRatio(returns)
	m.MaxDrawdown = MaxDrawdown(CumulativePnL(pnls))
	return m
}

// ProfitFactor is gross profit over gross loss; undefined when nothing was lost
func ProfitFactor(pnls []float64) Ratio {
	var gains, losses float64
	for _, p := range pnls {
		if p > 0 {
			gains += p
		} else {
			losses -= p
		}
	}
	if losses == 0 {
		return Ratio{}
	}
	return Ratio{Value: gains / losses, Defined: true}
}

// SharpeRatio is mean over sample standard deviation of per-trade returns, not annualized.
// It is undefined for fewer than two returns or zero dispersion.
func SharpeRatio(returns []float64) Ratio {
	n := len(returns)
	if n < 2 {
		return Ratio{}
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(n-1))
	if std == 0 {
		return Ratio{}
	}
	return Ratio{Value: mean / std, Defined: true}
}

// CumulativePnL returns the running P&L curve, starting at 0 before the first trade
func CumulativePnL(pnls []float64) []float64 {
	curve := make([]float64, 0, len(pnls)+1)
	curve = append(curve, 0)
	var total float64
	for _, p := range pnls {
		total += p
		curve = append(curve, total)
	}
	return curve
}

// MaxDrawdown is the largest peak-to-trough decline of curve, as a value <= 0
func MaxDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	var worst float64
	for _, v := range curve {
		peak = max(peak, v)
		worst = min(worst, v-peak)
	}
	return worst
}
