package risk

// BuyingPowerManager tracks cash and the capital committed to open positions
type BuyingPowerManager struct {
	accountBalance     float64
	capitalInPositions float64
}

// NewBuyingPowerManager creates a new buying power manager
func NewBuyingPowerManager(initialBalance float64) *BuyingPowerManager {
	return &BuyingPowerManager{
		accountBalance: initialBalance,
	}
}

// GetAvailableBuyingPower returns account balance minus committed capital
func (bpm *BuyingPowerManager) GetAvailableBuyingPower() float64 {
	available := bpm.accountBalance - bpm.capitalInPositions
	if available < 0 {
		return 0
	}
	return available
}

// CanAfford checks if a long position of size at price fits in available buying power
func (bpm *BuyingPowerManager) CanAfford(size, price float64) bool {
	return bpm.GetAvailableBuyingPower() >= size*price
}

// ReserveBuyingPower commits capital for a new position
func (bpm *BuyingPowerManager) ReserveBuyingPower(size, entryPrice float64) {
	bpm.capitalInPositions += size * entryPrice
}

// ReleaseBuyingPower frees the capital committed at entry
func (bpm *BuyingPowerManager) ReleaseBuyingPower(size, entryPrice float64) {
	bpm.capitalInPositions -= size * entryPrice
	if bpm.capitalInPositions < 0 {
		bpm.capitalInPositions = 0
	}
}

// UpdateAccountBalance applies realized P&L
func (bpm *BuyingPowerManager) UpdateAccountBalance(pnl float64) {
	bpm.accountBalance += pnl
}

// GetAccountBalance returns current account balance
func (bpm *BuyingPowerManager) GetAccountBalance() float64 {
	return bpm.accountBalance
}
