package strategy

import (
	"fmt"
	"time"

	"github.com/pullback-bot/pkg/feed"
)

// Series selects one of a symbol's two bar sequences
type Series int

const (
	SeriesVWAP Series = iota
	SeriesFast
)

func (s Series) String() string {
	if s == SeriesVWAP {
		return "vwap"
	}
	return "fast"
}

// BarStore holds one symbol's append-only bar sequences.
// Only the most recent capacity bars of each series are retained.
type BarStore struct {
	symbol   string
	capacity int
	series   [2]barSeries
}

type barSeries struct {
	bars  []feed.Bar
	total int
}

// NewBarStore creates a store for symbol keeping up to capacity bars per series
func NewBarStore(symbol string, capacity int) *BarStore {
	if capacity < 1 {
		capacity = 1
	}
	return &BarStore{symbol: symbol, capacity: capacity}
}

// Append adds a bar to a series. Bars must strictly increase in time; nothing is reordered.
func (s *BarStore) Append(series Series, bar feed.Bar) error {
	if bar.Symbol != s.symbol {
		return fmt.Errorf("%w: %s bar appended to %s", ErrSymbolMismatch, bar.Symbol, s.symbol)
	}

	seq := &s.series[series]
	if n := len(seq.bars); n > 0 {
		last := seq.bars[n-1].Time
		if !bar.Time.After(last) {
			return fmt.Errorf("%w: %s %s bar at %s does not follow %s",
				ErrOutOfOrder, s.symbol, series, bar.Time.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
		}
	}

	seq.bars = append(seq.bars, bar)
	seq.total++

	// compact once the slice holds twice the retained window
	if len(seq.bars) >= 2*s.capacity {
		kept := make([]feed.Bar, s.capacity, 2*s.capacity)
		copy(kept, seq.bars[len(seq.bars)-s.capacity:])
		seq.bars = kept
	}
	return nil
}

// Last returns the most recent bar of a series
func (s *BarStore) Last(series Series) (feed.Bar, bool) {
	seq := s.series[series].bars
	if len(seq) == 0 {
		return feed.Bar{}, false
	}
	return seq[len(seq)-1], true
}

// Window returns a copy of the last n bars (fewer if not yet available)
func (s *BarStore) Window(series Series, n int) []feed.Bar {
	seq := s.series[series].bars
	if n > s.capacity {
		n = s.capacity
	}
	if n > len(seq) {
		n = len(seq)
	}
	out := make([]feed.Bar, n)
	copy(out, seq[len(seq)-n:])
	return out
}

// Count returns how many bars were ever appended to a series
func (s *BarStore) Count(series Series) int {
	return s.series[series].total
}
