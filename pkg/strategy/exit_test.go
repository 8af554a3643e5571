package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pullback-bot/pkg/feed"
)

func TestExitChecker_Check(t *testing.T) {
	cfg := testConfig()
	ec := NewExitChecker(cfg)

	open := Position{Symbol: "ABCD", EntryPrice: 100, Size: 1, StopPrice: 96, TargetPrice: 120, Status: StatusOpen}
	prev := bar("ABCD", at(cfg, 3, 10, 0), 100, 101, 99, 100.5, 1000)

	tests := []struct {
		name       string
		position   Position
		bar        feed.Bar
		prev       *feed.Bar
		wantExit   bool
		wantReason ExitReason
		wantPrice  float64
	}{
		{
			name:       "stop before target on a bar spanning both",
			position:   open,
			bar:        bar("ABCD", at(cfg, 3, 10, 1), 100, 125, 95, 110, 1000),
			prev:       &prev,
			wantExit:   true,
			wantReason: ExitReasonStop,
			wantPrice:  96,
		},
		{
			name:       "target",
			position:   open,
			bar:        bar("ABCD", at(cfg, 3, 10, 1), 110, 121, 109, 118, 1000),
			prev:       &prev,
			wantExit:   true,
			wantReason: ExitReasonTarget,
			wantPrice:  120,
		},
		{
			name:       "candle under candle exits at close",
			position:   open,
			bar:        bar("ABCD", at(cfg, 3, 10, 1), 100.5, 101, 98.5, 99, 1000),
			prev:       &prev,
			wantExit:   true,
			wantReason: ExitReasonDynamic,
			wantPrice:  99,
		},
		{
			name:       "eod takes precedence over stop",
			position:   open,
			bar:        bar("ABCD", at(cfg, 3, 15, 50), 97, 97, 95, 95.5, 1000),
			prev:       &prev,
			wantExit:   true,
			wantReason: ExitReasonEOD,
			wantPrice:  95.5,
		},
		{
			name:     "higher low holds",
			position: open,
			bar:      bar("ABCD", at(cfg, 3, 10, 1), 100.5, 102, 99.5, 101.5, 1000),
			prev:     &prev,
		},
		{
			name:     "first bar has no previous",
			position: open,
			bar:      bar("ABCD", at(cfg, 3, 10, 1), 100.5, 102, 97, 101.5, 1000),
		},
		{
			name:     "pending positions are not managed",
			position: Position{Symbol: "ABCD", StopPrice: 96, TargetPrice: 120, Status: StatusPending},
			bar:      bar("ABCD", at(cfg, 3, 10, 1), 100, 125, 95, 110, 1000),
			prev:     &prev,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, ok := ec.Check(tt.position, tt.bar, tt.prev)
			assert.Equal(t, tt.wantExit, ok)
			if !tt.wantExit {
				return
			}
			assert.Equal(t, tt.wantReason, exit.Reason)
			assert.Equal(t, tt.wantPrice, exit.Price)
			assert.Equal(t, "ABCD", exit.Symbol)
		})
	}
}
