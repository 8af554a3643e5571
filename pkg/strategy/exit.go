package strategy

import (
	"github.com/pullback-bot/pkg/feed"
)

// ExitSignal is a decided exit for an open position
type ExitSignal struct {
	Symbol string
	Reason ExitReason
	Price  float64
}

// ExitChecker applies the exit rules to open positions
type ExitChecker struct {
	cfg Config
}

// NewExitChecker creates a new exit checker
func NewExitChecker(cfg Config) *ExitChecker {
	return &ExitChecker{cfg: cfg}
}

// Check evaluates one bar against an open position, first match wins:
// EOD at close, STOP at stop, TARGET at target, then candle-under-candle at close.
// Stop is checked before target, so a bar spanning both is a loss.
func (ec *ExitChecker) Check(position Position, bar feed.Bar, prev *feed.Bar) (ExitSignal, bool) {
	if position.Status != StatusOpen {
		return ExitSignal{}, false
	}

	switch {
	case ec.cfg.atOrAfterEOD(bar.Time):
		return ExitSignal{Symbol: position.Symbol, Reason: ExitReasonEOD, Price: bar.Close}, true
	case bar.Low <= position.StopPrice:
		return ExitSignal{Symbol: position.Symbol, Reason: ExitReasonStop, Price: position.StopPrice}, true
	case bar.High >= position.TargetPrice:
		return ExitSignal{Symbol: position.Symbol, Reason: ExitReasonTarget, Price: position.TargetPrice}, true
	case prev != nil && bar.Low < prev.Low:
		return ExitSignal{Symbol: position.Symbol, Reason: ExitReasonDynamic, Price: bar.Close}, true
	}
	return ExitSignal{}, false
}
