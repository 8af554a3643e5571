package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	bars  map[string][]Bar
	err   error
	calls int
}

func (f *fakeFeed) GetHistoricalBars(ctx context.Context, ticker string, startDate, endDate time.Time, timespan string) ([]Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[ticker], nil
}

func drain(ch <-chan Bar) []Bar {
	var out []Bar
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestPoller_EmitsEachCompletedBarOnce(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)
	mk := func(minute int) Bar {
		return Bar{Symbol: "ABCD", Time: time.Date(2024, 3, 4, 9, minute, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	}

	f := &fakeFeed{bars: map[string][]Bar{"ABCD": {mk(58), mk(59)}}}
	p := NewPoller(f, []string{"ABCD"}, time.Minute, time.UTC, nil)
	p.now = func() time.Time { return now }

	require.NoError(t, p.poll(context.Background()))
	assert.Len(t, drain(p.out), 2)

	// same data again: nothing new
	require.NoError(t, p.poll(context.Background()))
	assert.Empty(t, drain(p.out))

	// a completed bar and one still forming
	f.bars["ABCD"] = append(f.bars["ABCD"],
		Bar{Symbol: "ABCD", Time: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		Bar{Symbol: "ABCD", Time: time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	)
	require.NoError(t, p.poll(context.Background()))
	got := drain(p.out)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].Time.Hour())
}

func TestPoller_FetchErrorsAreRetried(t *testing.T) {
	f := &fakeFeed{err: errors.New("boom")}
	p := NewPoller(f, []string{"ABCD", "WXYZ"}, time.Minute, time.UTC, nil)

	require.NoError(t, p.poll(context.Background()))
	assert.Equal(t, 2, f.calls)
	assert.Empty(t, drain(p.out))
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := &fakeFeed{}
	p := NewPoller(f, []string{"ABCD"}, time.Hour, time.UTC, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	_, open := <-p.Bars()
	assert.False(t, open)
}

func TestPoller_SeedSkipsDeliveredBars(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)
	mk := func(minute int) Bar {
		return Bar{Symbol: "ABCD", Time: time.Date(2024, 3, 4, 9, minute, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	}

	f := &fakeFeed{bars: map[string][]Bar{"ABCD": {mk(57), mk(58), mk(59)}}}
	p := NewPoller(f, []string{"ABCD"}, time.Minute, time.UTC, nil)
	p.now = func() time.Time { return now }
	p.Seed("ABCD", mk(58).Time)

	require.NoError(t, p.poll(context.Background()))
	got := drain(p.out)
	require.Len(t, got, 1)
	assert.Equal(t, mk(59).Time, got[0].Time)
}
