// Package stats provides significance math for click-through comparisons.
// A CTR is a binomial proportion (clicks over impressions), so standard
// two-proportion tests apply.
package stats

import "math"

// ClickStats holds the raw counts behind an observed click-through rate.
type ClickStats struct {
	Clicks      int64
	Impressions int64
}

// Rate returns the observed CTR as a fraction, 0 with no impressions.
func (s ClickStats) Rate() float64 {
	if s.Impressions == 0 {
		return 0
	}
	return float64(s.Clicks) / float64(s.Impressions)
}

// Confidence performs a two-proportion z-test and returns the confidence
// (0-1) that a's true click-through rate beats b's. 0.5 means the data
// cannot separate them.
func Confidence(a, b ClickStats) float64 {
	if a.Impressions == 0 || b.Impressions == 0 {
		return 0.5
	}

	pA := a.Rate()
	pB := b.Rate()

	// Pooled proportion under the null hypothesis pA == pB.
	pooled := float64(a.Clicks+b.Clicks) / float64(a.Impressions+b.Impressions)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Impressions) + 1/float64(b.Impressions)))
	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		}
		return 0.5
	}

	z := (pA - pB) / se
	return normalCDF(z)
}

// normalCDF approximates the cumulative distribution function of the
// standard normal distribution (Abramowitz and Stegun, formula 7.1.26).
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
