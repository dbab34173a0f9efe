package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMA(t *testing.T) {
	sma := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, sma.Valid)
	assert.InDelta(t, 4.0, sma.Float64, 1e-9)

	assert.False(t, SMA([]float64{1, 2}, 3).Valid)
	assert.False(t, SMA(nil, 0).Valid)
}

func TestEMA(t *testing.T) {
	flat := []float64{10, 10, 10, 10, 10, 10}
	ema := EMA(flat, 3)
	assert.True(t, ema.Valid)
	assert.InDelta(t, 10.0, ema.Float64, 1e-9)

	// seeded with SMA(1,2,3)=2, then 4: 4×0.5 + 2×0.5 = 3
	ema = EMA([]float64{1, 2, 3, 4}, 3)
	assert.InDelta(t, 3.0, ema.Float64, 1e-9)

	assert.False(t, EMA([]float64{1, 2}, 3).Valid)
}

func TestRSI(t *testing.T) {
	rsi := RSI(ramp(30), 14)
	assert.True(t, rsi.Valid)
	assert.InDelta(t, 100.0, rsi.Float64, 1e-9, "only gains")

	assert.False(t, RSI(ramp(14), 14).Valid)
}

func TestReturns(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0}, Returns([]float64{2, 3, 3}))
	assert.Equal(t, []float64{0}, Returns([]float64{0, 3}))
	assert.Nil(t, Returns([]float64{1}))
}

func TestBeta(t *testing.T) {
	market := make([]float64, 30)
	asset := make([]float64, 30)
	for i := range market {
		market[i] = float64(i%5) / 100
		asset[i] = 2 * market[i]
	}
	beta := Beta(asset, market)
	assert.True(t, beta.Valid)
	assert.InDelta(t, 2.0, beta.Float64, 1e-9)

	assert.False(t, Beta(asset[:10], market[:10]).Valid, "too few samples")
	assert.False(t, Beta(asset, make([]float64, 30)).Valid, "flat market")
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 25.0, PercentChange(8, 10).Float64, 1e-9)
	assert.False(t, PercentChange(0, 10).Valid)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}).Float64, 1e-9)
	assert.False(t, Mean(nil).Valid)
}
