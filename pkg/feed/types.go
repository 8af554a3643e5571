package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBar is returned when a bar fails validation at ingestion.
var ErrInvalidBar = errors.New("invalid bar")

// Bar represents a single OHLCV bar for one symbol.
// Time is the bar's completion time; a bar may be acted on at Time without lookahead.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate rejects malformed bars instead of coercing them
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidBar)
	}
	if b.Time.IsZero() {
		return fmt.Errorf("%w: %s: missing timestamp", ErrInvalidBar, b.Symbol)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s at %s: non-finite value", ErrInvalidBar, b.Symbol, b.Time.Format(time.RFC3339))
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: %s at %s: non-positive price", ErrInvalidBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	if b.High < max(b.Open, b.Close) || b.Low > min(b.Open, b.Close) {
		return fmt.Errorf("%w: %s at %s: high/low do not bracket open/close", ErrInvalidBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	if b.Volume <= 0 {
		return fmt.Errorf("%w: %s at %s: non-positive volume", ErrInvalidBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	return nil
}

// IsGreen reports whether the bar closed above its open
func (b Bar) IsGreen() bool {
	return b.Close > b.Open
}

// IsRed reports whether the bar closed below its open
func (b Bar) IsRed() bool {
	return b.Close < b.Open
}

// TypicalPrice returns (high + low + close) / 3
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// History holds one symbol's bars at both granularities.
// VWAP is optional; when empty the fast bars also drive VWAP.
type History struct {
	Fast []Bar
	VWAP []Bar
}

// Feed is a source of historical bars
type Feed interface {
	// GetHistoricalBars fetches bars for [startDate, endDate] at the given timespan ("minute", "second")
	GetHistoricalBars(ctx context.Context, ticker string, startDate, endDate time.Time, timespan string) ([]Bar, error)
}
