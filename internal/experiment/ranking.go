package experiment

import (
	"sort"

	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

// VariantResult pairs one test variant with the metrics fetched for it.
// HasValue is false when the ranking metric was not reported, which ranks
// the variant last but keeps it visible in the report. CILower and CIUpper
// are 95% Wilson bounds on the true click-through rate, present only on CTR
// tests for variants whose click and impression counts came back.
type VariantResult struct {
	Variant  store.TestVariant  `json:"variant"`
	Snapshot optimizer.Snapshot `json:"metrics"`
	Value    float64            `json:"metric_value"`
	HasValue bool               `json:"has_value"`
	Rank     int                `json:"rank"`
	CILower  *float64           `json:"ci_lower,omitempty"`
	CIUpper  *float64           `json:"ci_upper,omitempty"`
}

// Rank orders variant results by the chosen metric. Cost metrics (cpc, cpm,
// spend) rank ascending, volume and quality metrics descending. The sort is
// stable, so two variants with equal values keep their creation order and
// the earlier-created variant wins the tie, deterministically.
//
// Variants missing the metric sort after every defined one and can never
// become winner.
func Rank(results []VariantResult, metric optimizer.Metric) []VariantResult {
	ranked := make([]VariantResult, len(results))
	copy(ranked, results)

	lowerIsBetter := metric.LowerIsBetter()
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.HasValue != b.HasValue {
			return a.HasValue // defined values before missing ones
		}
		if !a.HasValue {
			return false // both missing: keep creation order
		}
		if lowerIsBetter {
			return a.Value < b.Value
		}
		return a.Value > b.Value
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// PickWinner returns the top-ranked variant with a defined metric value, or
// nil when no variant has one. Zero defined values is a defined empty
// outcome, not an error.
func PickWinner(ranked []VariantResult) *VariantResult {
	if len(ranked) == 0 || !ranked[0].HasValue {
		return nil
	}
	winner := ranked[0]
	return &winner
}
