package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CommissionModel is a per-order commission: max(PerShare × size, Minimum),
// plus a regulatory fee on sell proceeds. Amounts are rounded to cents.
type CommissionModel struct {
	PerShare   float64
	Minimum    float64
	SECFeeRate float64
}

// DefaultCommissionModel mirrors IBKR fixed pricing for US equities
func DefaultCommissionModel() CommissionModel {
	return CommissionModel{
		PerShare:   0.005,
		Minimum:    1.00,
		SECFeeRate: 0.0000278,
	}
}

// Validate checks the model parameters
func (m CommissionModel) Validate() error {
	if m.PerShare < 0 || m.Minimum < 0 || m.SECFeeRate < 0 {
		return fmt.Errorf("commission parameters must be >= 0")
	}
	return nil
}

// Commission returns the charge for one order
func (m CommissionModel) Commission(side Side, size, price float64) float64 {
	fee := decimal.NewFromFloat(m.PerShare).Mul(decimal.NewFromFloat(size))
	if minimum := decimal.NewFromFloat(m.Minimum); fee.LessThan(minimum) {
		fee = minimum
	}

	if side == SideSell {
		proceeds := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(size))
		fee = fee.Add(proceeds.Mul(decimal.NewFromFloat(m.SECFeeRate)))
	}

	return fee.Round(2).InexactFloat64()
}
