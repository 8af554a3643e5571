package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrStopTooClose is returned when the structural stop leaves too little room below entry
var ErrStopTooClose = errors.New("stop too close to entry")

// StopParams configures the structural stop
type StopParams struct {
	Buffer         float64 // fraction below the structural level, e.g. 0.01
	StrongBreakout float64 // breakout close above recentHigh by more than this fraction uses recentHigh
	MinDistance    float64 // stop must sit at least this fraction below entry
}

// StructuralStop places the stop just under the pullback low.
// On a strong breakout (close more than StrongBreakout above recentHigh) the stop moves up under recentHigh.
func StructuralStop(breakoutClose, pullbackLow, recentHigh float64, p StopParams) float64 {
	base := pullbackLow
	if recentHigh > 0 && breakoutClose > recentHigh*(1+p.StrongBreakout) {
		base = math.Max(pullbackLow, recentHigh)
	}
	return base * (1 - p.Buffer)
}

// ValidateStopLoss checks a long stop: below entry by at least minDistance.
// A stop exactly minDistance below entry is accepted.
func ValidateStopLoss(entryPrice, stopPrice, minDistance float64) error {
	if stopPrice <= 0 {
		return fmt.Errorf("%w: stop %.4f must be > 0", ErrStopTooClose, stopPrice)
	}
	if stopPrice > entryPrice*(1-minDistance) {
		return fmt.Errorf("%w: stop %.4f is within %.1f%% of entry %.4f", ErrStopTooClose, stopPrice, minDistance*100, entryPrice)
	}
	return nil
}

// PositionSize converts a dollar allocation into a share count.
// Whole-share sizing floors the count and buys at least one share.
func PositionSize(tradeDollars, entryPrice float64, fractional bool) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be > 0")
	}
	if tradeDollars <= 0 {
		return 0, fmt.Errorf("trade size must be > 0")
	}

	shares := tradeDollars / entryPrice
	if fractional {
		return shares, nil
	}

	shares = math.Floor(shares)
	if shares < 1 {
		shares = 1
	}
	return shares, nil
}
