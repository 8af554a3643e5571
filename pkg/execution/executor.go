// Package execution turns engine order intents into fills.
package execution

import (
	"context"

	"github.com/pullback-bot/pkg/strategy"
)

// Report is the outcome of one submitted intent: a fill, or a rejection with a reason
type Report struct {
	Intent strategy.OrderIntent
	Fill   *strategy.Fill
	Reason string
}

// Rejected reports whether the intent was not executed
func (r Report) Rejected() bool {
	return r.Fill == nil
}

// Executor executes order intents. Every accepted Submit call yields exactly one Report;
// when Submit itself returns an error no report is queued and the caller owns the rejection.
type Executor interface {
	Submit(ctx context.Context, intent strategy.OrderIntent) error
	Reports() <-chan Report
}

// Apply hands a report to the engine and returns the closed trade, if any
func Apply(engine *strategy.StrategyEngine, r Report) (*strategy.Trade, error) {
	if r.Rejected() {
		return nil, engine.RejectIntent(r.Intent.ID, r.Reason)
	}
	return engine.ConfirmFill(*r.Fill)
}

func deliver(ctx context.Context, out chan<- Report, r Report) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
