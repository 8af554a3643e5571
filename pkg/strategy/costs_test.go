package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlippageModel_FillPrice(t *testing.T) {
	tests := []struct {
		name  string
		model SlippageModel
		price float64
		side  Side
		want  float64
	}{
		{"bps buy pays up", SlippageModel{Mode: SlippageBPS, BPS: 20}, 10, SideBuy, 10.02},
		{"bps sell gives up", SlippageModel{Mode: SlippageBPS, BPS: 20}, 10, SideSell, 9.98},
		{"offset buy", SlippageModel{Mode: SlippageOffset, Offset: 0.01}, 5, SideBuy, 5.01},
		{"offset sell", SlippageModel{Mode: SlippageOffset, Offset: 0.01}, 5, SideSell, 4.99},
		{"sell clamps at a cent", SlippageModel{Mode: SlippageOffset, Offset: 1}, 0.5, SideSell, 0.01},
		{"zero slippage", SlippageModel{Mode: SlippageBPS}, 7.5, SideSell, 7.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.model.Validate())
			assert.InDelta(t, tt.want, tt.model.FillPrice(tt.price, tt.side), 1e-9)
		})
	}
}

func TestSlippageModel_Validate(t *testing.T) {
	assert.Error(t, SlippageModel{Mode: "pct"}.Validate())
	assert.Error(t, SlippageModel{Mode: SlippageBPS, BPS: -1}.Validate())
	assert.Error(t, SlippageModel{Mode: SlippageOffset, Offset: -0.01}.Validate())
}

func TestCommissionModel_Commission(t *testing.T) {
	m := DefaultCommissionModel()
	assert.NoError(t, m.Validate())

	tests := []struct {
		name  string
		side  Side
		size  float64
		price float64
		want  float64
	}{
		{"minimum applies", SideBuy, 100, 10, 1.00},
		{"per share above minimum", SideBuy, 1000, 10, 5.00},
		{"sell adds regulatory fee", SideSell, 1000, 10, 5.28},
		{"fractional sell rounds to minimum", SideSell, 9.7276, 10, 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Commission(tt.side, tt.size, tt.price))
		})
	}

	assert.Zero(t, CommissionModel{}.Commission(SideSell, 100, 10))
	assert.Error(t, CommissionModel{PerShare: -1}.Validate())
}
