// Package formulas holds the indicator and statistics formulas used by the
// technical summary.
package formulas

import (
	"math"

	"github.com/guregu/null/v6"
	"github.com/markcheno/go-talib"
)

// SMA returns the simple moving average of the last length closes, or null
// with fewer closes than that.
func SMA(closes []float64, length int) null.Float {
	if length <= 0 || len(closes) < length {
		return null.Float{}
	}
	return last(talib.Sma(closes, length))
}

// EMA returns the exponential moving average at the last close.
//
//	EMA_today = Price_today × k + EMA_yesterday × (1 − k), k = 2 / (length + 1)
//
// The series is seeded with the SMA of its first length closes, so fewer
// closes than length yield null.
func EMA(closes []float64, length int) null.Float {
	if length <= 0 || len(closes) < length {
		return null.Float{}
	}
	return last(talib.Ema(closes, length))
}

// RSI returns the Relative Strength Index at the last close.
//
//	RSI = 100 − 100 / (1 + RS), RS = average gain / average loss
func RSI(closes []float64, length int) null.Float {
	if length <= 0 || len(closes) < length+1 {
		return null.Float{}
	}
	return last(talib.Rsi(closes, length))
}

func last(series []float64) null.Float {
	if len(series) == 0 {
		return null.Float{}
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
