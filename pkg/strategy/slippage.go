package strategy

import (
	"fmt"
)

// SlippageMode selects how slippage is applied
type SlippageMode string

const (
	SlippageBPS    SlippageMode = "bps"
	SlippageOffset SlippageMode = "offset"
)

// SlippageModel moves simulated fills against the trader:
// buys fill higher, sells fill lower, by a fixed number of basis points or a fixed price offset.
type SlippageModel struct {
	Mode   SlippageMode
	BPS    float64
	Offset float64
}

// Validate checks the model parameters
func (m SlippageModel) Validate() error {
	switch m.Mode {
	case SlippageBPS:
		if m.BPS < 0 || m.BPS >= 10000 {
			return fmt.Errorf("slippage bps must be in [0, 10000), got %.2f", m.BPS)
		}
	case SlippageOffset:
		if m.Offset < 0 {
			return fmt.Errorf("slippage offset must be >= 0, got %.4f", m.Offset)
		}
	default:
		return fmt.Errorf("unknown slippage mode %q", m.Mode)
	}
	return nil
}

// FillPrice returns the simulated fill for an order decided at price
func (m SlippageModel) FillPrice(price float64, side Side) float64 {
	var slip float64
	switch m.Mode {
	case SlippageBPS:
		slip = price * m.BPS / 10000
	case SlippageOffset:
		slip = m.Offset
	}

	if side == SideBuy {
		return price + slip
	}

	fill := price - slip
	if fill <= 0 {
		// a sell cannot fill at or below zero; clamp to one cent
		fill = 0.01
	}
	return fill
}
