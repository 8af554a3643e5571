package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarStore_RejectsOutOfOrder(t *testing.T) {
	cfg := testConfig()
	store := NewBarStore("ABCD", 10)
	t0 := at(cfg, 3, 9, 31)

	require.NoError(t, store.Append(SeriesFast, bar("ABCD", t0, 10, 10, 10, 10, 1)))

	tests := []struct {
		name string
		ts   time.Time
	}{
		{"duplicate timestamp", t0},
		{"earlier timestamp", t0.Add(-time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Append(SeriesFast, bar("ABCD", tt.ts, 10, 10, 10, 10, 1))
			assert.ErrorIs(t, err, ErrOutOfOrder)
		})
	}

	assert.Equal(t, 1, store.Count(SeriesFast))
	last, ok := store.Last(SeriesFast)
	require.True(t, ok)
	assert.Equal(t, t0, last.Time)
}

func TestBarStore_SeriesAreIndependent(t *testing.T) {
	cfg := testConfig()
	store := NewBarStore("ABCD", 10)
	t0 := at(cfg, 3, 9, 31)

	require.NoError(t, store.Append(SeriesFast, bar("ABCD", t0, 10, 10, 10, 10, 1)))
	// the VWAP series has its own ordering
	require.NoError(t, store.Append(SeriesVWAP, bar("ABCD", t0.Add(-time.Minute), 10, 10, 10, 10, 1)))

	_, ok := store.Last(SeriesVWAP)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Count(SeriesVWAP))
}

func TestBarStore_SymbolMismatch(t *testing.T) {
	cfg := testConfig()
	store := NewBarStore("ABCD", 10)
	err := store.Append(SeriesFast, bar("WXYZ", at(cfg, 3, 9, 31), 10, 10, 10, 10, 1))
	assert.ErrorIs(t, err, ErrSymbolMismatch)
}

func TestBarStore_RetainsWindow(t *testing.T) {
	cfg := testConfig()
	store := NewBarStore("ABCD", 3)
	for _, b := range flatBars("ABCD", at(cfg, 3, 9, 31), 10) {
		require.NoError(t, store.Append(SeriesFast, b))
	}

	window := store.Window(SeriesFast, 5)
	require.Len(t, window, 3)
	assert.Equal(t, at(cfg, 3, 9, 38), window[0].Time)
	assert.Equal(t, at(cfg, 3, 9, 40), window[2].Time)
	assert.Equal(t, 10, store.Count(SeriesFast))

	_, ok := store.Last(SeriesVWAP)
	assert.False(t, ok)
	assert.Empty(t, store.Window(SeriesVWAP, 3))
}
