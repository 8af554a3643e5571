package backtest

import (
	"container/heap"

	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/strategy"
)

// event is one bar of the merged replay stream
type event struct {
	bar    feed.Bar
	series strategy.Series
}

// cursor walks one symbol's series
type cursor struct {
	symbol string
	series strategy.Series
	bars   []feed.Bar
	pos    int
}

func (c *cursor) head() feed.Bar {
	return c.bars[c.pos]
}

// cursorHeap orders cursors by (time, series, symbol): at equal timestamps VWAP bars replay
// before fast bars, and symbols replay alphabetically
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	if h[i].series != h[j].series {
		return h[i].series < h[j].series
	}
	return h[i].symbol < h[j].symbol
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// merger replays several time-ordered series as one time-ordered stream
type merger struct {
	h cursorHeap
}

func newMerger(cursors []*cursor) *merger {
	m := &merger{}
	for _, c := range cursors {
		if len(c.bars) > 0 {
			m.h = append(m.h, c)
		}
	}
	heap.Init(&m.h)
	return m
}

// next returns the earliest remaining bar; ok is false once every series is exhausted
func (m *merger) next() (event, bool) {
	if len(m.h) == 0 {
		return event{}, false
	}
	c := m.h[0]
	ev := event{bar: c.head(), series: c.series}
	c.pos++
	if c.pos == len(c.bars) {
		heap.Pop(&m.h)
	} else {
		heap.Fix(&m.h, 0)
	}
	return ev, true
}
