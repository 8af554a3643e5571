package performance

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// WriteReport prints a human-readable summary
func WriteReport(w io.Writer, m Metrics) error {
	var b strings.Builder

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	b.WriteString("PERFORMANCE REPORT\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Total Trades: %d\n", m.TotalTrades)
	fmt.Fprintf(&b, "Wins: %d, Losses: %d\n", m.Wins, m.Losses)
	fmt.Fprintf(&b, "Win Rate: %.2f%%\n", m.WinRate*100)
	fmt.Fprintf(&b, "Total P&L: $%.2f (commission $%.2f)\n", m.TotalPnL, m.Commission)
	fmt.Fprintf(&b, "Average Win: $%.2f\n", m.AverageWin)
	fmt.Fprintf(&b, "Average Loss: $%.2f\n", m.AverageLoss)
	fmt.Fprintf(&b, "Profit Factor: %s\n", m.ProfitFactor)
	fmt.Fprintf(&b, "Sharpe (per trade): %s\n", m.Sharpe)
	fmt.Fprintf(&b, "Max Drawdown: $%.2f\n", m.MaxDrawdown)

	writeBreakdown(&b, "By Symbol", m.BySymbol)
	writeBreakdown(&b, "By Exit Reason", m.ByExitReason)

	if m.BestTrade != nil {
		fmt.Fprintf(&b, "\nBest Trade: %s @ $%.2f, P&L: $%.2f\n", m.BestTrade.Symbol, m.BestTrade.EntryPrice, m.BestTrade.PnL)
	}
	if m.WorstTrade != nil {
		fmt.Fprintf(&b, "Worst Trade: %s @ $%.2f, P&L: $%.2f\n", m.WorstTrade.Symbol, m.WorstTrade.EntryPrice, m.WorstTrade.PnL)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBreakdown(b *strings.Builder, title string, stats map[string]Breakdown) {
	if len(stats) == 0 {
		return
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		s := stats[k]
		fmt.Fprintf(b, "  %-12s trades %3d  win rate %6.2f%%  P&L $%.2f\n", k, s.Trades, s.WinRate*100, s.TotalPnL)
	}
}

// ExportJSON writes metrics as indented JSON to path
func ExportJSON(m Metrics, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
