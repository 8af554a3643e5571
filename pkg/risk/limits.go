package risk

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DailyLossGuard stops new entries once realized losses for the trading day reach maxDailyLoss,
// or once the account balance falls to the floor. The daily figure resets on the first trade of a new day.
type DailyLossGuard struct {
	mu sync.Mutex

	maxDailyLoss float64 // 0 disables the daily limit
	accountFloor float64 // 0 disables the floor
	loc          *time.Location
	logger       *zap.Logger

	dailyPnL       float64
	tradeDate      time.Time
	accountBalance float64

	dailyLossHit  bool
	accountClosed bool
}

// NewDailyLossGuard creates a guard for an account starting at initialBalance
func NewDailyLossGuard(initialBalance, maxDailyLoss, accountFloor float64, loc *time.Location, logger *zap.Logger) *DailyLossGuard {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyLossGuard{
		maxDailyLoss:   maxDailyLoss,
		accountFloor:   accountFloor,
		loc:            loc,
		logger:         logger,
		accountBalance: initialBalance,
	}
}

// RecordTrade applies a closed trade's net P&L
func (g *DailyLossGuard) RecordTrade(pnl float64, closedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(closedAt)
	g.dailyPnL += pnl
	g.accountBalance += pnl

	if g.maxDailyLoss > 0 && g.dailyPnL <= -g.maxDailyLoss && !g.dailyLossHit {
		g.dailyLossHit = true
		g.logger.Warn("daily loss limit hit, entries stopped for the day",
			zap.Float64("daily_pnl", g.dailyPnL),
			zap.Float64("limit", g.maxDailyLoss),
		)
	}
	if g.accountFloor > 0 && g.accountBalance <= g.accountFloor && !g.accountClosed {
		g.accountClosed = true
		g.logger.Error("account balance at floor, trading stopped",
			zap.Float64("balance", g.accountBalance),
			zap.Float64("floor", g.accountFloor),
		)
	}
}

// CanTrade reports whether new entries are allowed at t
func (g *DailyLossGuard) CanTrade(t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(t)
	return !g.accountClosed && !g.dailyLossHit
}

func (g *DailyLossGuard) rollDay(t time.Time) {
	local := t.In(g.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
	if day.Equal(g.tradeDate) {
		return
	}
	g.tradeDate = day
	g.dailyPnL = 0
	g.dailyLossHit = false
}

// DailyPnL returns realized P&L for the current trading day
func (g *DailyLossGuard) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

// AccountBalance returns the balance after all recorded trades
func (g *DailyLossGuard) AccountBalance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accountBalance
}
