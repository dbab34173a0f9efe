package formulas

import (
	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"
)

// MinBetaSamples is the fewest paired returns Beta accepts.
const MinBetaSamples = 20

// Mean returns the arithmetic mean, or null for an empty slice.
func Mean(data []float64) null.Float {
	if len(data) == 0 {
		return null.Float{}
	}
	return null.FloatFrom(stat.Mean(data, nil))
}

// Returns converts prices to simple returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]; a zero price yields 0.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// Beta is Cov(asset, market) / Var(market) over paired returns.
func Beta(asset, market []float64) null.Float {
	if len(asset) != len(market) || len(asset) < MinBetaSamples {
		return null.Float{}
	}
	variance := stat.Variance(market, nil)
	if variance == 0 {
		return null.Float{}
	}
	return null.FloatFrom(stat.Covariance(asset, market, nil) / variance)
}

// PercentChange is 100 × (to − from) / from, null when from is zero.
func PercentChange(from, to float64) null.Float {
	if from == 0 {
		return null.Float{}
	}
	return null.FloatFrom(100 * (to - from) / from)
}
