package strategy

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("invalid strategy config")

// TimeOfDay is a local wall-clock time such as 09:30
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the instant of this time of day on t's local date in loc
func (td TimeOfDay) On(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), td.Hour, td.Minute, 0, 0, loc)
}

// Minutes returns minutes after midnight
func (td TimeOfDay) Minutes() int {
	return td.Hour*60 + td.Minute
}

func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", td.Hour, td.Minute)
}

// Config holds every strategy constant. It is validated once and then shared read-only.
// Percent fields (…Pct) are in percent units; the remaining ratios are fractions.
type Config struct {
	// Sessions
	Location       *time.Location
	SessionOpen    TimeOfDay // VWAP reset and start of regular hours
	PremarketStart TimeOfDay // earliest entry
	EODCutoff      TimeOfDay // forced exit and latest entry

	// Indicators
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	RelVolLookback   int  // bars in the relative-volume baseline
	SeparateVWAPBars bool // VWAP is fed by its own bar series instead of the fast bars

	// Pattern
	MinPatternBars       int
	SurgeLookback        int
	MinSurgePct          float64
	MinPullbackPct       float64
	MaxPullbackPct       float64
	RedCandleWindow      int
	MaxRedCandles        int
	VolumeToppingRatio   float64 // pullback bar volume > ratio × surge volume invalidates
	MaxDistanceFromHigh  float64 // breakout close must be within this fraction of the surge high
	RequireGreenBreakout bool

	// Signal
	MinRelativeVolume float64
	ProfitTarget      float64

	// Stops and sizing
	StopBuffer             float64
	StrongBreakout         float64
	MinStopDistance        float64
	TradeSizeDollars       float64
	FractionalShares       bool
	MaxConcurrentPositions int

	// MaxBarsRetained bounds each BarStore series
	MaxBarsRetained int
}

// DefaultConfig returns the standard momentum/pullback parameters
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Location:       loc,
		SessionOpen:    TimeOfDay{Hour: 9, Minute: 30},
		PremarketStart: TimeOfDay{Hour: 5, Minute: 0},
		EODCutoff:      TimeOfDay{Hour: 15, Minute: 50},

		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		RelVolLookback: 10,

		MinPatternBars:       10,
		SurgeLookback:        20,
		MinSurgePct:          2.0,
		MinPullbackPct:       0.3,
		MaxPullbackPct:       5.0,
		RedCandleWindow:      5,
		MaxRedCandles:        4,
		VolumeToppingRatio:   1.0,
		MaxDistanceFromHigh:  0.10,
		RequireGreenBreakout: true,

		MinRelativeVolume: 1.5,
		ProfitTarget:      0.20,

		StopBuffer:             0.01,
		StrongBreakout:         0.10,
		MinStopDistance:        0.02,
		TradeSizeDollars:       100,
		FractionalShares:       true,
		MaxConcurrentPositions: 3,

		MaxBarsRetained: 500,
	}
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	if c.Location == nil {
		return fmt.Errorf("%w: location is required", ErrInvalidConfig)
	}
	if c.PremarketStart.Minutes() > c.SessionOpen.Minutes() {
		return fmt.Errorf("%w: premarket start %s is after session open %s", ErrInvalidConfig, c.PremarketStart, c.SessionOpen)
	}
	if c.EODCutoff.Minutes() <= c.SessionOpen.Minutes() {
		return fmt.Errorf("%w: EOD cutoff %s must be after session open %s", ErrInvalidConfig, c.EODCutoff, c.SessionOpen)
	}
	if c.MACDFast <= 0 || c.MACDSlow <= 0 || c.MACDSignal <= 0 {
		return fmt.Errorf("%w: MACD periods must be > 0", ErrInvalidConfig)
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("%w: MACD fast period %d must be below slow period %d", ErrInvalidConfig, c.MACDFast, c.MACDSlow)
	}
	if c.RelVolLookback <= 0 {
		return fmt.Errorf("%w: relative volume lookback must be > 0", ErrInvalidConfig)
	}
	if c.SurgeLookback <= 0 || c.MinPatternBars < 0 {
		return fmt.Errorf("%w: surge lookback must be > 0", ErrInvalidConfig)
	}
	if c.MinSurgePct <= 0 {
		return fmt.Errorf("%w: min surge pct must be > 0", ErrInvalidConfig)
	}
	if c.MinPullbackPct < 0 || c.MinPullbackPct >= c.MaxPullbackPct {
		return fmt.Errorf("%w: min pullback %.2f%% must be below max pullback %.2f%%", ErrInvalidConfig, c.MinPullbackPct, c.MaxPullbackPct)
	}
	if c.RedCandleWindow <= 0 || c.MaxRedCandles <= 0 || c.MaxRedCandles > c.RedCandleWindow {
		return fmt.Errorf("%w: max red candles %d must be within window %d", ErrInvalidConfig, c.MaxRedCandles, c.RedCandleWindow)
	}
	if c.VolumeToppingRatio <= 0 {
		return fmt.Errorf("%w: volume topping ratio must be > 0", ErrInvalidConfig)
	}
	if c.MaxDistanceFromHigh <= 0 || c.MaxDistanceFromHigh >= 1 {
		return fmt.Errorf("%w: max distance from high must be in (0, 1)", ErrInvalidConfig)
	}
	if c.MinRelativeVolume <= 0 {
		return fmt.Errorf("%w: min relative volume must be > 0", ErrInvalidConfig)
	}
	if c.ProfitTarget <= 0 {
		return fmt.Errorf("%w: profit target must be > 0", ErrInvalidConfig)
	}
	if c.StopBuffer < 0 || c.StopBuffer >= 1 || c.MinStopDistance <= 0 || c.MinStopDistance >= 1 {
		return fmt.Errorf("%w: stop buffer and min stop distance must be fractions in [0, 1)", ErrInvalidConfig)
	}
	if c.StrongBreakout <= 0 {
		return fmt.Errorf("%w: strong breakout threshold must be > 0", ErrInvalidConfig)
	}
	if c.TradeSizeDollars <= 0 {
		return fmt.Errorf("%w: trade size must be > 0", ErrInvalidConfig)
	}
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("%w: max concurrent positions must be > 0", ErrInvalidConfig)
	}
	if c.MaxBarsRetained < c.SurgeLookback || c.MaxBarsRetained < c.RelVolLookback+1 {
		return fmt.Errorf("%w: max bars retained %d is smaller than the lookback windows", ErrInvalidConfig, c.MaxBarsRetained)
	}
	return nil
}

// tradingDate returns local midnight of t's date
func (c Config) tradingDate(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
}

// vwapSessionStart returns the start of the VWAP segment containing t.
// Bars completing after the session open belong to the regular session; earlier bars form the premarket segment.
func (c Config) vwapSessionStart(t time.Time) time.Time {
	open := c.SessionOpen.On(t, c.Location)
	if t.After(open) {
		return open
	}
	return c.tradingDate(t)
}

// inEntryWindow reports whether new entries are allowed at t
func (c Config) inEntryWindow(t time.Time) bool {
	local := t.In(c.Location)
	m := local.Hour()*60 + local.Minute()
	return m >= c.PremarketStart.Minutes() && m < c.EODCutoff.Minutes()
}

// atOrAfterEOD reports whether t is at or past the EOD cutoff
func (c Config) atOrAfterEOD(t time.Time) bool {
	local := t.In(c.Location)
	return !local.Before(c.EODCutoff.On(t, c.Location))
}
