package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheManager_SaveAndLoad(t *testing.T) {
	loc := time.UTC
	pulled := time.Date(2024, 3, 4, 18, 0, 0, 0, loc)

	cm := NewCacheManager(t.TempDir())
	cm.now = func() time.Time { return pulled }

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	barsByDate := map[time.Time][]Bar{
		date: {
			{Symbol: "ABCD", Time: date.Add(14*time.Hour + 31*time.Minute), Open: 10, High: 10.2, Low: 9.9, Close: 10.1, Volume: 1000},
		},
	}
	require.NoError(t, cm.SaveCachedData("ABCD", 5, barsByDate))

	loaded, meta, err := cm.LoadCachedData("ABCD", 5, loc)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 1, meta.DateCount)
	require.Contains(t, loaded, date)
	assert.Equal(t, "ABCD", loaded[date][0].Symbol)
	assert.Equal(t, 1000.0, loaded[date][0].Volume)
}

func TestCacheManager_Misses(t *testing.T) {
	loc := time.UTC
	pulled := time.Date(2024, 3, 4, 18, 0, 0, 0, loc)

	cm := NewCacheManager(t.TempDir())
	cm.now = func() time.Time { return pulled }

	loaded, meta, err := cm.LoadCachedData("NONE", 5, loc)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Nil(t, meta)

	require.NoError(t, cm.SaveCachedData("ABCD", 5, map[time.Time][]Bar{}))

	// more days than cached
	loaded, _, err = cm.LoadCachedData("ABCD", 10, loc)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// stale cache from a previous day
	cm.now = func() time.Time { return pulled.AddDate(0, 0, 1) }
	loaded, _, err = cm.LoadCachedData("ABCD", 5, loc)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
