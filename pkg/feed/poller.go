package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller turns a historical Feed into a bar stream by polling today's bars
// and emitting each completed bar exactly once, in timestamp order per symbol.
type Poller struct {
	feed     Feed
	symbols  []string
	interval time.Duration
	timespan string
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	last map[string]time.Time
	out  chan Bar
}

// NewPoller creates a poller over the given symbols
func NewPoller(f Feed, symbols []string, interval time.Duration, location *time.Location, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		feed:     f,
		symbols:  symbols,
		interval: interval,
		timespan: "minute",
		location: location,
		logger:   logger,
		now:      time.Now,
		last:     make(map[string]time.Time, len(symbols)),
		out:      make(chan Bar, 256),
	}
}

// Bars returns the output stream. It is closed when Run returns.
func (p *Poller) Bars() <-chan Bar {
	return p.out
}

// Seed marks bars up to last as already delivered for symbol. Call before Run.
func (p *Poller) Seed(symbol string, last time.Time) {
	p.last[symbol] = last
}

// Run polls until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll fetches each symbol once and emits bars newer than the last one emitted.
// Fetch errors are logged and retried on the next tick; only cancellation stops the poller.
func (p *Poller) poll(ctx context.Context) error {
	now := p.now().In(p.location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.location)

	for _, symbol := range p.symbols {
		bars, err := p.feed.GetHistoricalBars(ctx, symbol, day, day, p.timespan)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("poll failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		for _, bar := range bars {
			if bar.Time.After(now) || !bar.Time.After(p.last[symbol]) {
				continue
			}
			select {
			case p.out <- bar:
				p.last[symbol] = bar.Time
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}
