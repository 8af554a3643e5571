package strategy

import (
	"errors"
	"time"
)

var (
	// ErrOutOfOrder is returned for a bar whose timestamp does not strictly follow the previous bar
	ErrOutOfOrder = errors.New("bar out of order")
	// ErrSymbolMismatch is returned when a bar is appended to another symbol's store
	ErrSymbolMismatch = errors.New("bar symbol mismatch")
	// ErrVWAPSeriesDisabled is returned when VWAP bars arrive but VWAP is driven by fast bars
	ErrVWAPSeriesDisabled = errors.New("separate VWAP bars are disabled")
	// ErrPositionExists is returned when a second position is requested for a symbol
	ErrPositionExists = errors.New("position already exists for symbol")
	// ErrMaxPositions is returned when the account is at its concurrent-position limit
	ErrMaxPositions = errors.New("max concurrent positions reached")
	// ErrNoPosition is returned when an operation needs a position that does not exist
	ErrNoPosition = errors.New("no position for symbol")
	// ErrUnknownIntent is returned for a fill or rejection that matches no outstanding intent
	ErrUnknownIntent = errors.New("unknown order intent")
	// ErrFillOutsideBracket is returned when an entry fills at or beyond its stop or target
	ErrFillOutsideBracket = errors.New("entry fill outside stop/target bracket")
)

// Value is a tri-state indicator reading: not ready, or ready with V
type Value struct {
	V     float64
	Ready bool
}

// ReadyValue wraps a computed value
func ReadyValue(v float64) Value {
	return Value{V: v, Ready: true}
}

// MACD is one MACD reading
type MACD struct {
	Line   float64
	Signal float64
	Hist   float64
	Ready  bool
}

// Bullish reports line above signal with a positive histogram
func (m MACD) Bullish() bool {
	return m.Ready && m.Line > m.Signal && m.Hist > 0
}

// IndicatorSnapshot is the indicator state as of one fast bar
type IndicatorSnapshot struct {
	Time      time.Time
	Close     float64
	MACD      MACD
	VWAP      Value
	RelVolume Value
}

// Phase is a pattern detector phase
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSurging
	PhasePullback
	PhaseBreakoutReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSurging:
		return "SURGING"
	case PhasePullback:
		return "PULLBACK"
	case PhaseBreakoutReady:
		return "BREAKOUT_READY"
	}
	return "UNKNOWN"
}

// PatternState is the per-symbol surge/pullback record
type PatternState struct {
	Phase          Phase
	SurgeLow       float64
	SurgeHigh      float64
	SurgePct       float64
	SurgeVolume    float64
	PullbackLow    float64
	PullbackHigh   float64
	PullbackPct    float64
	RedCandleCount int
	VolumeTopped   bool
}

// Invalidation names why a pattern was reset
type Invalidation string

const (
	InvalidationNone         Invalidation = ""
	InvalidationDeepPullback Invalidation = "pullback too deep"
	InvalidationRedCandles   Invalidation = "too many red candles"
	InvalidationVolumeTop    Invalidation = "volume topping"
)

// SignalKind is ENTRY or NONE
type SignalKind string

const (
	SignalNone  SignalKind = "NONE"
	SignalEntry SignalKind = "ENTRY"
)

// Signal is the entry decision for one bar
type Signal struct {
	Symbol         string
	Time           time.Time
	Kind           SignalKind
	ReferencePrice float64
	StopPrice      float64
	TargetPrice    float64
	Reason         string
}

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	StatusPending PositionStatus = "PENDING" // entry intent sent, fill outstanding
	StatusOpen    PositionStatus = "OPEN"
	StatusClosed  PositionStatus = "CLOSED"
)

// ExitReason represents why a position was closed
type ExitReason string

const (
	ExitReasonEOD       ExitReason = "EOD"
	ExitReasonStop      ExitReason = "STOP"
	ExitReasonTarget    ExitReason = "TARGET"
	ExitReasonDynamic   ExitReason = "DYNAMIC"
	ExitReasonEndOfData ExitReason = "END_OF_DATA"
)

// Position is a long position in one symbol
type Position struct {
	Symbol          string
	EntryPrice      float64
	Size            float64
	StopPrice       float64
	TargetPrice     float64
	OpenedAt        time.Time
	Status          PositionStatus
	ExitReason      ExitReason
	EntryCommission float64
}

// Trade is the immutable record of a closed position. PnL is net of Commission.
type Trade struct {
	Symbol     string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	Commission float64
	PnL        float64
	OpenedAt   time.Time
	ClosedAt   time.Time
	ExitReason ExitReason
}

// Return is PnL relative to the capital committed at entry
func (t Trade) Return() float64 {
	cost := t.EntryPrice * t.Size
	if cost == 0 {
		return 0
	}
	return t.PnL / cost
}

// Side is the order direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderIntent is the broker-agnostic order the engine asks a collaborator to execute
type OrderIntent struct {
	ID             string
	Symbol         string
	Side           Side
	Size           float64
	ReferencePrice float64
	StopPrice      float64
	TargetPrice    float64
	Reason         ExitReason // set on exits
	CreatedAt      time.Time
}

// Fill confirms execution of an intent
type Fill struct {
	IntentID   string
	Price      float64
	FilledAt   time.Time
	Commission float64
}

// SkipEvent reports an entry signal that did not become a position
type SkipEvent struct {
	Symbol string
	Time   time.Time
	Signal Signal
	Reason string
	Err    error
}

// Decision is everything the engine concluded from one fast bar
type Decision struct {
	Symbol       string
	Time         time.Time
	Snapshot     IndicatorSnapshot
	Pattern      PatternState
	Invalidation Invalidation
	Signal       Signal
	Exit         *OrderIntent
	Entry        *OrderIntent
	Skip         *SkipEvent
}
