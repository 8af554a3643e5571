package strategy

import (
	"github.com/pullback-bot/pkg/feed"
)

// RelativeVolume compares each bar's volume with the mean of the previous lookback bars
type RelativeVolume struct {
	lookback int
	window   []float64
}

// NewRelativeVolume creates a bar-count based relative volume tracker
func NewRelativeVolume(lookback int) *RelativeVolume {
	return &RelativeVolume{
		lookback: lookback,
		window:   make([]float64, 0, lookback),
	}
}

// Update returns volume / mean(previous lookback volumes) and then records volume
func (r *RelativeVolume) Update(volume float64) Value {
	out := Value{}
	if len(r.window) == r.lookback {
		var sum float64
		for _, v := range r.window {
			sum += v
		}
		if mean := sum / float64(r.lookback); mean > 0 {
			out = ReadyValue(volume / mean)
		}
		r.window = append(r.window[:0], r.window[1:]...)
	}
	r.window = append(r.window, volume)
	return out
}

// IndicatorEngine derives one IndicatorSnapshot per fast bar for a single symbol
type IndicatorEngine struct {
	cfg    Config
	macd   *MACDCalculator
	vwap   *VWAPCalculator
	relVol *RelativeVolume
	last   IndicatorSnapshot
}

// NewIndicatorEngine creates the per-symbol indicator set
func NewIndicatorEngine(cfg Config) *IndicatorEngine {
	return &IndicatorEngine{
		cfg:    cfg,
		macd:   NewMACDCalculator(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		vwap:   NewVWAPCalculator(),
		relVol: NewRelativeVolume(cfg.RelVolLookback),
	}
}

// UpdateFast advances MACD and relative volume, and VWAP too unless VWAP has its own series
func (ie *IndicatorEngine) UpdateFast(bar feed.Bar) IndicatorSnapshot {
	if !ie.cfg.SeparateVWAPBars {
		ie.vwap.Update(bar, ie.cfg.vwapSessionStart(bar.Time))
	}

	vwap := ie.vwap.Value()
	// a VWAP from an earlier session must not leak into this one
	if ie.cfg.SeparateVWAPBars && !ie.vwap.SessionStart().Equal(ie.cfg.vwapSessionStart(bar.Time)) {
		vwap = Value{}
	}

	ie.last = IndicatorSnapshot{
		Time:      bar.Time,
		Close:     bar.Close,
		MACD:      ie.macd.Update(bar.Close),
		VWAP:      vwap,
		RelVolume: ie.relVol.Update(bar.Volume),
	}
	return ie.last
}

// UpdateVWAP feeds a VWAP-granularity bar
func (ie *IndicatorEngine) UpdateVWAP(bar feed.Bar) Value {
	return ie.vwap.Update(bar, ie.cfg.vwapSessionStart(bar.Time))
}

// Snapshot returns the snapshot of the latest fast bar
func (ie *IndicatorEngine) Snapshot() IndicatorSnapshot {
	return ie.last
}
