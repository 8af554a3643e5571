package strategy

import (
	"fmt"

	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/risk"
)

// SignalEngine turns a breakout plus confirming indicators into an entry signal
type SignalEngine struct {
	cfg  Config
	stop risk.StopParams
}

// NewSignalEngine creates a signal engine
func NewSignalEngine(cfg Config) *SignalEngine {
	return &SignalEngine{
		cfg: cfg,
		stop: risk.StopParams{
			Buffer:         cfg.StopBuffer,
			StrongBreakout: cfg.StrongBreakout,
			MinDistance:    cfg.MinStopDistance,
		},
	}
}

// Evaluate reads the detector after it has seen bar. A pending breakout is always
// consumed, so a second call for the same bar returns NONE.
// blocked, when non-empty, vetoes entry (position held, outside entry window).
func (se *SignalEngine) Evaluate(bar feed.Bar, detector *PatternDetector, snap IndicatorSnapshot, blocked string) Signal {
	none := func(reason string) Signal {
		return Signal{Symbol: bar.Symbol, Time: bar.Time, Kind: SignalNone, Reason: reason}
	}

	pattern, ok := detector.Consume()
	if !ok {
		return none("no breakout")
	}
	if blocked != "" {
		return none("breakout ignored: " + blocked)
	}

	switch {
	case !snap.MACD.Ready:
		return none("MACD insufficient history")
	case !snap.VWAP.Ready:
		return none("VWAP insufficient history")
	case !snap.RelVolume.Ready:
		return none("relative volume insufficient history")
	case !snap.MACD.Bullish():
		return none(fmt.Sprintf("MACD not bullish (line %.4f signal %.4f hist %.4f)", snap.MACD.Line, snap.MACD.Signal, snap.MACD.Hist))
	case bar.Close <= snap.VWAP.V:
		return none(fmt.Sprintf("close %.4f not above VWAP %.4f", bar.Close, snap.VWAP.V))
	case snap.RelVolume.V < se.cfg.MinRelativeVolume:
		return none(fmt.Sprintf("relative volume %.2f below %.2f", snap.RelVolume.V, se.cfg.MinRelativeVolume))
	}

	ref := bar.Close
	return Signal{
		Symbol:         bar.Symbol,
		Time:           bar.Time,
		Kind:           SignalEntry,
		ReferencePrice: ref,
		StopPrice:      risk.StructuralStop(ref, pattern.PullbackLow, pattern.SurgeHigh, se.stop),
		TargetPrice:    ref * (1 + se.cfg.ProfitTarget),
		Reason: fmt.Sprintf("breakout after %.2f%% surge and %.2f%% pullback, relvol %.2f",
			pattern.SurgePct, pattern.PullbackPct, snap.RelVolume.V),
	}
}
