package execution

import (
	"context"

	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/strategy"
)

// PaperExecutor fills every intent immediately at the slipped reference price
type PaperExecutor struct {
	slippage   strategy.SlippageModel
	commission strategy.CommissionModel
	logger     *zap.Logger
	reports    chan Report
}

// NewPaperExecutor creates a simulated executor
func NewPaperExecutor(slippage strategy.SlippageModel, commission strategy.CommissionModel, logger *zap.Logger) *PaperExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExecutor{
		slippage:   slippage,
		commission: commission,
		logger:     logger,
		reports:    make(chan Report, 64),
	}
}

// Reports returns the fill stream
func (p *PaperExecutor) Reports() <-chan Report {
	return p.reports
}

// Submit fills intent at its creation time
func (p *PaperExecutor) Submit(ctx context.Context, intent strategy.OrderIntent) error {
	price := p.slippage.FillPrice(intent.ReferencePrice, intent.Side)
	fill := &strategy.Fill{
		IntentID:   intent.ID,
		Price:      price,
		FilledAt:   intent.CreatedAt,
		Commission: p.commission.Commission(intent.Side, intent.Size, price),
	}
	p.logger.Debug("paper fill",
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.Float64("price", price),
	)
	return deliver(ctx, p.reports, Report{Intent: intent, Fill: fill})
}
