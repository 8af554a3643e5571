package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuralStop(t *testing.T) {
	p := StopParams{Buffer: 0.01, StrongBreakout: 0.10, MinDistance: 0.02}

	tests := []struct {
		name        string
		close       float64
		pullbackLow float64
		recentHigh  float64
		want        float64
	}{
		{"under pullback low", 10.28, 10.045, 10.25, 10.045 * 0.99},
		{"strong breakout moves under recent high", 12, 10, 10.5, 10.5 * 0.99},
		{"exactly at strong threshold stays on pullback low", 11, 10, 10, 10 * 0.99},
		{"no recent high", 12, 10, 0, 10 * 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StructuralStop(tt.close, tt.pullbackLow, tt.recentHigh, p), 1e-9)
		})
	}
}

func TestValidateStopLoss(t *testing.T) {
	tests := []struct {
		name    string
		entry   float64
		stop    float64
		wantErr bool
	}{
		{"valid", 10, 9.5, false},
		{"inside min distance", 10, 9.85, true},
		{"at min distance", 10, 9.8, false},
		{"at min distance, round entry", 100, 98, false},
		{"at min distance, half-cent stop", 25, 24.5, false},
		{"one cent inside min distance", 100, 98.01, true},
		{"above entry", 10, 10.5, true},
		{"zero stop", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStopLoss(tt.entry, tt.stop, 0.02)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrStopTooClose)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPositionSize(t *testing.T) {
	size, err := PositionSize(100, 8, true)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, size, 1e-9)

	size, err = PositionSize(100, 8, false)
	require.NoError(t, err)
	assert.Equal(t, 12.0, size)

	size, err = PositionSize(100, 150, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, size, "whole-share sizing buys at least one share")

	_, err = PositionSize(100, 0, true)
	assert.Error(t, err)
	_, err = PositionSize(0, 10, true)
	assert.Error(t, err)
}

func TestBuyingPowerManager(t *testing.T) {
	bpm := NewBuyingPowerManager(250)
	assert.True(t, bpm.CanAfford(10, 10))

	bpm.ReserveBuyingPower(10, 10)
	bpm.ReserveBuyingPower(10, 10)
	assert.InDelta(t, 50, bpm.GetAvailableBuyingPower(), 1e-9)
	assert.False(t, bpm.CanAfford(10, 10))

	bpm.ReleaseBuyingPower(10, 10)
	bpm.UpdateAccountBalance(-5)
	assert.InDelta(t, 245, bpm.GetAccountBalance(), 1e-9)
	assert.InDelta(t, 145, bpm.GetAvailableBuyingPower(), 1e-9)

	bpm.ReleaseBuyingPower(100, 100)
	assert.InDelta(t, 245, bpm.GetAvailableBuyingPower(), 1e-9)
}

func TestDailyLossGuard(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2025, time.March, d, h, 0, 0, 0, time.UTC) }
	g := NewDailyLossGuard(1000, 50, 900, time.UTC, nil)

	assert.True(t, g.CanTrade(day(3, 10)))
	g.RecordTrade(-30, day(3, 10))
	assert.True(t, g.CanTrade(day(3, 11)))
	g.RecordTrade(-25, day(3, 11))
	assert.False(t, g.CanTrade(day(3, 12)))
	assert.InDelta(t, -55, g.DailyPnL(), 1e-9)

	// next day resets the daily limit but not the balance
	assert.True(t, g.CanTrade(day(4, 10)))
	assert.Zero(t, g.DailyPnL())
	assert.InDelta(t, 945, g.AccountBalance(), 1e-9)

	g.RecordTrade(-46, day(4, 11))
	assert.False(t, g.CanTrade(day(5, 10)), "balance at the floor stops trading for good")
}
