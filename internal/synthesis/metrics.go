package synthesis

import (
	"math"
	"time"

	"claimguard/internal/claims/models"
)

// Benchmarks are the manual-review baselines used for business metrics.
type Benchmarks struct {
	ManualReviewCostUSD       float64
	HighValueSurchargeUSD     float64
	HighValueThresholdUSD     float64
	ManualReviewTime          time.Duration
	ManualConsistencyPct      float64
	MaxAccuracyImprovementPct float64
	MaxTimeReductionPct       float64
}

// DefaultBenchmarks returns the industry baselines the dashboard reports against.
func DefaultBenchmarks() Benchmarks {
	return Benchmarks{
		ManualReviewCostUSD:       20,
		HighValueSurchargeUSD:     15,
		HighValueThresholdUSD:     10000,
		ManualReviewTime:          96 * time.Hour,
		ManualConsistencyPct:      82.5,
		MaxAccuracyImprovementPct: 25,
		MaxTimeReductionPct:       99.9,
	}
}

// manualCost is what a human review of the claim would have cost.
func (b Benchmarks) manualCost(amount float64) float64 {
	if amount >= b.HighValueThresholdUSD {
		return b.ManualReviewCostUSD + b.HighValueSurchargeUSD
	}
	return b.ManualReviewCostUSD
}

// businessMetrics is a pure function of the claim amount, the review flag,
// the measured AI cost and time, and the benchmarks. A claim that still needs a
// human avoids no manual cost or time.
func (b Benchmarks) businessMetrics(amount, confidence, aiCost float64, elapsed time.Duration, review bool) (models.BusinessMetrics, float64) {
	manual := b.manualCost(amount)
	costReductionPct := clamp((manual-aiCost)/manual*100, 0, 100)

	m := models.BusinessMetrics{
		AccuracyImprovementPct: round2(clamp(confidence-b.ManualConsistencyPct, 0, b.MaxAccuracyImprovementPct)),
	}
	if !review {
		m.ManualReviewCostAvoided = round2(math.Max(0, manual-aiCost))
		reduction := float64(b.ManualReviewTime-elapsed) / float64(b.ManualReviewTime) * 100
		m.ProcessingTimeReductionPct = round2(clamp(reduction, 0, b.MaxTimeReductionPct))
	}
	return m, round2(costReductionPct)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
