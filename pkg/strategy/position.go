package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pullback-bot/pkg/risk"
)

// PositionManager owns the account's positions, keyed by symbol.
// It is the only state shared across symbols, so it carries its own lock.
type PositionManager struct {
	mu        sync.Mutex
	cfg       Config
	positions map[string]*Position
}

// NewPositionManager creates a new position manager
func NewPositionManager(cfg Config) *PositionManager {
	return &PositionManager{
		cfg:       cfg,
		positions: make(map[string]*Position),
	}
}

// Reserve validates an entry signal and books a PENDING position sized at the reference price
func (pm *PositionManager) Reserve(signal Signal) (Position, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.positions[signal.Symbol]; exists {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionExists, signal.Symbol)
	}
	if len(pm.positions) >= pm.cfg.MaxConcurrentPositions {
		return Position{}, fmt.Errorf("%w: %d open", ErrMaxPositions, len(pm.positions))
	}
	if err := risk.ValidateStopLoss(signal.ReferencePrice, signal.StopPrice, pm.cfg.MinStopDistance); err != nil {
		return Position{}, err
	}

	size, err := risk.PositionSize(pm.cfg.TradeSizeDollars, signal.ReferencePrice, pm.cfg.FractionalShares)
	if err != nil {
		return Position{}, err
	}

	position := &Position{
		Symbol:      signal.Symbol,
		EntryPrice:  signal.ReferencePrice,
		Size:        size,
		StopPrice:   signal.StopPrice,
		TargetPrice: signal.TargetPrice,
		OpenedAt:    signal.Time,
		Status:      StatusPending,
	}
	pm.positions[signal.Symbol] = position
	return *position, nil
}

// Confirm opens a PENDING position at its fill price.
// A fill at or beyond the bracket drops the reservation and returns ErrFillOutsideBracket.
func (pm *PositionManager) Confirm(symbol string, price float64, at time.Time, commission float64) (Position, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	position, exists := pm.positions[symbol]
	if !exists || position.Status != StatusPending {
		return Position{}, fmt.Errorf("%w: no pending entry for %s", ErrNoPosition, symbol)
	}
	if price <= position.StopPrice || price >= position.TargetPrice {
		delete(pm.positions, symbol)
		return Position{}, fmt.Errorf("%w: %s filled at %.4f, stop %.4f target %.4f",
			ErrFillOutsideBracket, symbol, price, position.StopPrice, position.TargetPrice)
	}

	position.EntryPrice = price
	position.OpenedAt = at
	position.EntryCommission = commission
	position.Status = StatusOpen
	return *position, nil
}

// Cancel drops a PENDING reservation
func (pm *PositionManager) Cancel(symbol string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	position, exists := pm.positions[symbol]
	if !exists || position.Status != StatusPending {
		return fmt.Errorf("%w: no pending entry for %s", ErrNoPosition, symbol)
	}
	delete(pm.positions, symbol)
	return nil
}

// Close closes an OPEN position and returns its trade record; the symbol is free immediately
func (pm *PositionManager) Close(symbol string, price float64, at time.Time, reason ExitReason, commission float64) (Trade, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	position, exists := pm.positions[symbol]
	if !exists || position.Status != StatusOpen {
		return Trade{}, fmt.Errorf("%w: no open position for %s", ErrNoPosition, symbol)
	}
	delete(pm.positions, symbol)

	totalCommission := position.EntryCommission + commission
	return Trade{
		Symbol:     symbol,
		EntryPrice: position.EntryPrice,
		ExitPrice:  price,
		Size:       position.Size,
		Commission: totalCommission,
		PnL:        (price-position.EntryPrice)*position.Size - totalCommission,
		OpenedAt:   position.OpenedAt,
		ClosedAt:   at,
		ExitReason: reason,
	}, nil
}

// GetPosition returns a copy of the symbol's position
func (pm *PositionManager) GetPosition(symbol string) (Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	position, exists := pm.positions[symbol]
	if !exists {
		return Position{}, false
	}
	return *position, true
}

// HasPosition reports an OPEN or PENDING position for symbol
func (pm *PositionManager) HasPosition(symbol string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	_, exists := pm.positions[symbol]
	return exists
}

// GetAllPositions returns copies of all positions sorted by symbol
func (pm *PositionManager) GetAllPositions() []Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	positions := make([]Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions
}

// GetOpenPositionCount returns the number of OPEN and PENDING positions
func (pm *PositionManager) GetOpenPositionCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return len(pm.positions)
}
