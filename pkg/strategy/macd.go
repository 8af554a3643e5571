package strategy

// ema is an exponential moving average seeded with its first input
type ema struct {
	alpha  float64
	value  float64
	seeded bool
}

func newEMA(period int) ema {
	return ema{alpha: 2.0 / float64(period+1)}
}

func (e *ema) update(x float64) float64 {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return e.value
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

// MACDCalculator computes MACD incrementally over closes
type MACDCalculator struct {
	fast   ema
	slow   ema
	signal ema
	warmup int
	count  int
	last   MACD
}

// NewMACDCalculator creates a calculator; readings are ready after slow+signal closes
func NewMACDCalculator(fast, slow, signal int) *MACDCalculator {
	return &MACDCalculator{
		fast:   newEMA(fast),
		slow:   newEMA(slow),
		signal: newEMA(signal),
		warmup: slow + signal,
	}
}

// Update consumes the next close
func (m *MACDCalculator) Update(close float64) MACD {
	m.count++
	line := m.fast.update(close) - m.slow.update(close)
	sig := m.signal.update(line)
	m.last = MACD{
		Line:   line,
		Signal: sig,
		Hist:   line - sig,
		Ready:  m.count >= m.warmup,
	}
	return m.last
}

// Value returns the latest reading
func (m *MACDCalculator) Value() MACD {
	return m.last
}

// ComputeMACD evaluates MACD over a full close series
func ComputeMACD(closes []float64, fast, slow, signal int) MACD {
	calc := NewMACDCalculator(fast, slow, signal)
	var out MACD
	for _, c := range closes {
		out = calc.Update(c)
	}
	return out
}
