package strategy

import (
	"github.com/pullback-bot/pkg/feed"
)

// PatternDetector tracks the surge -> pullback -> breakout pattern for one symbol.
// It only looks at bars of the current trading session.
type PatternDetector struct {
	cfg         Config
	state       PatternState
	lows        []float64 // last SurgeLookback lows, current bar included
	reds        []bool    // last RedCandleWindow candle colors
	sessionBars int
}

// NewPatternDetector creates a detector in the IDLE phase
func NewPatternDetector(cfg Config) *PatternDetector {
	return &PatternDetector{
		cfg:  cfg,
		lows: make([]float64, 0, cfg.SurgeLookback),
		reds: make([]bool, 0, cfg.RedCandleWindow),
	}
}

// State returns the current pattern state
func (d *PatternDetector) State() PatternState {
	return d.state
}

// ResetSession drops all session history and returns to IDLE
func (d *PatternDetector) ResetSession() {
	d.state = PatternState{}
	d.lows = d.lows[:0]
	d.reds = d.reds[:0]
	d.sessionBars = 0
}

// Consume returns the breakout state and resets to IDLE.
// ok is false when no breakout is pending.
func (d *PatternDetector) Consume() (PatternState, bool) {
	if d.state.Phase != PhaseBreakoutReady {
		return PatternState{}, false
	}
	s := d.state
	d.reset()
	return s, true
}

// Update advances the state machine by one bar
func (d *PatternDetector) Update(bar feed.Bar) (PatternState, Invalidation) {
	d.push(bar)
	d.state.VolumeTopped = false

	// an unread breakout does not carry over to the next bar
	if d.state.Phase == PhaseBreakoutReady {
		d.reset()
	}

	var inv Invalidation
	switch d.state.Phase {
	case PhaseIdle:
		d.checkSurge(bar)
	case PhaseSurging:
		inv = d.advanceSurge(bar)
	case PhasePullback:
		inv = d.advancePullback(bar)
	}
	return d.state, inv
}

func (d *PatternDetector) push(bar feed.Bar) {
	d.sessionBars++

	if len(d.lows) == d.cfg.SurgeLookback {
		d.lows = append(d.lows[:0], d.lows[1:]...)
	}
	d.lows = append(d.lows, bar.Low)

	if len(d.reds) == d.cfg.RedCandleWindow {
		d.reds = append(d.reds[:0], d.reds[1:]...)
	}
	d.reds = append(d.reds, bar.IsRed())

	count := 0
	for _, red := range d.reds {
		if red {
			count++
		}
	}
	d.state.RedCandleCount = count
}

func (d *PatternDetector) reset() {
	d.state = PatternState{RedCandleCount: d.state.RedCandleCount}
}

// invalidate returns to IDLE; VolumeTopped stays visible until the next bar
func (d *PatternDetector) invalidate(reason Invalidation) Invalidation {
	d.reset()
	d.state.VolumeTopped = reason == InvalidationVolumeTop
	return reason
}

// checkSurge looks for a low-to-high move of at least MinSurgePct ending at this bar's high
func (d *PatternDetector) checkSurge(bar feed.Bar) {
	if d.sessionBars < d.cfg.MinPatternBars {
		return
	}

	low := d.lows[0]
	for _, l := range d.lows[1:] {
		low = min(low, l)
	}

	pct := (bar.High - low) / low * 100
	if pct < d.cfg.MinSurgePct {
		return
	}

	d.state = PatternState{
		Phase:          PhaseSurging,
		SurgeLow:       low,
		SurgeHigh:      bar.High,
		SurgePct:       pct,
		SurgeVolume:    bar.Volume,
		RedCandleCount: d.state.RedCandleCount,
	}
}

// advanceSurge extends the surge on a new high; any other bar is measured as a retracement
func (d *PatternDetector) advanceSurge(bar feed.Bar) Invalidation {
	s := &d.state
	if bar.High > s.SurgeHigh {
		s.SurgeHigh = bar.High
		s.SurgePct = (s.SurgeHigh - s.SurgeLow) / s.SurgeLow * 100
		s.SurgeVolume = max(s.SurgeVolume, bar.Volume)
		return InvalidationNone
	}

	retrace := d.retracePct(bar.Low)
	if retrace > d.cfg.MaxPullbackPct {
		return d.invalidate(InvalidationDeepPullback)
	}
	if retrace < d.cfg.MinPullbackPct {
		return InvalidationNone
	}

	s.Phase = PhasePullback
	s.PullbackLow = bar.Low
	s.PullbackHigh = bar.High
	s.PullbackPct = retrace
	return d.checkPullbackHealth(bar)
}

// advancePullback promotes a breakout bar or folds the bar into the pullback
func (d *PatternDetector) advancePullback(bar feed.Bar) Invalidation {
	s := &d.state
	retrace := d.retracePct(bar.Low)
	if retrace > d.cfg.MaxPullbackPct {
		return d.invalidate(InvalidationDeepPullback)
	}

	if d.isBreakout(bar) {
		s.Phase = PhaseBreakoutReady
		return InvalidationNone
	}

	if bar.Low < s.PullbackLow {
		s.PullbackLow = bar.Low
		s.PullbackPct = retrace
	}
	s.PullbackHigh = max(s.PullbackHigh, bar.High)
	return d.checkPullbackHealth(bar)
}

func (d *PatternDetector) isBreakout(bar feed.Bar) bool {
	s := d.state
	if bar.High <= s.PullbackHigh {
		return false
	}
	if d.cfg.RequireGreenBreakout && !bar.IsGreen() {
		return false
	}
	return bar.Close >= s.SurgeHigh*(1-d.cfg.MaxDistanceFromHigh)
}

// checkPullbackHealth applies the red-candle and volume-topping rules to a pullback bar
func (d *PatternDetector) checkPullbackHealth(bar feed.Bar) Invalidation {
	if d.state.RedCandleCount >= d.cfg.MaxRedCandles {
		return d.invalidate(InvalidationRedCandles)
	}
	if bar.Volume > d.cfg.VolumeToppingRatio*d.state.SurgeVolume {
		return d.invalidate(InvalidationVolumeTop)
	}
	return InvalidationNone
}

func (d *PatternDetector) retracePct(low float64) float64 {
	return (d.state.SurgeHigh - low) / d.state.SurgeHigh * 100
}
