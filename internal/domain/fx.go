package domain

import "time"

// FxRates are units of each foreign currency per one TTD.
type FxRates struct {
	USD       float64   `json:"usd"`
	JMD       float64   `json:"jmd"`
	BBD       float64   `json:"bbd"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Rate returns the TTD→c rate. TTD and unknown codes are 1.
func (r FxRates) Rate(c Currency) float64 {
	var rate float64
	switch c {
	case CurrencyUSD:
		rate = r.USD
	case CurrencyJMD:
		rate = r.JMD
	case CurrencyBBD:
		rate = r.BBD
	default:
		return 1
	}
	if rate <= 0 {
		return 1
	}
	return rate
}

// PriceFactor converts a TTD close into the listing currency so it can be
// compared with statement figures reported in that currency.
func (r FxRates) PriceFactor(c Currency) float64 {
	return r.Rate(c)
}

// DividendFactor converts a dividend paid in c into TTD.
func (r FxRates) DividendFactor(c Currency) float64 {
	return 1 / r.Rate(c)
}

// ToTTD converts an amount quoted in c into TTD.
func (r FxRates) ToTTD(amount float64, c Currency) float64 {
	return amount * r.DividendFactor(c)
}
