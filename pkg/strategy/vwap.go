package strategy

import (
	"time"

	"github.com/pullback-bot/pkg/feed"
)

// VWAPCalculator calculates session Volume Weighted Average Price from typical prices
type VWAPCalculator struct {
	volumeSum      float64
	priceVolumeSum float64
	sessionStart   time.Time
}

// NewVWAPCalculator creates a new VWAP calculator
func NewVWAPCalculator() *VWAPCalculator {
	return &VWAPCalculator{}
}

// Reset starts a new session
func (v *VWAPCalculator) Reset(sessionStart time.Time) {
	v.volumeSum = 0
	v.priceVolumeSum = 0
	v.sessionStart = sessionStart
}

// Update adds a bar belonging to the session starting at sessionStart.
// A different session start resets the accumulators first.
func (v *VWAPCalculator) Update(bar feed.Bar, sessionStart time.Time) Value {
	if !sessionStart.Equal(v.sessionStart) {
		v.Reset(sessionStart)
	}

	v.volumeSum += bar.Volume
	v.priceVolumeSum += bar.TypicalPrice() * bar.Volume

	return v.Value()
}

// Value returns the current VWAP, not ready until the session has volume
func (v *VWAPCalculator) Value() Value {
	if v.volumeSum == 0 {
		return Value{}
	}
	return ReadyValue(v.priceVolumeSum / v.volumeSum)
}

// SessionStart returns the start of the session being accumulated
func (v *VWAPCalculator) SessionStart() time.Time {
	return v.sessionStart
}
