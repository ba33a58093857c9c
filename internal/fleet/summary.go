package fleet

import (
	"time"

	"secbrief/internal/types"
)

// Summarize folds entity outcomes into a fleet summary. The fold is
// commutative: every statistic is a count, sum, or ratio over the whole
// set, so outcome order never changes the result.
func Summarize(runID string, outcomes []*types.EntityOutcome, elapsed time.Duration) *types.FleetSummary {
	summary := &types.FleetSummary{
		RunID:     runID,
		Total:     len(outcomes),
		TierStats: make(map[types.Tier]types.TierStats, len(types.AllTiers())),
		Elapsed:   elapsed,
	}

	type tierAccum struct {
		words   int
		retries int
		passed  int
		present int
	}
	accum := make(map[types.Tier]*tierAccum, len(types.AllTiers()))
	for _, tier := range types.AllTiers() {
		accum[tier] = &tierAccum{}
	}

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if o.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		for _, tr := range o.Tiers {
			acc, ok := accum[tr.Tier]
			if !ok {
				continue
			}
			acc.present++
			acc.words += tr.WordCount
			acc.retries += tr.Retries
			if tr.Verification.Status == types.VerificationPassed {
				acc.passed++
			}
		}
	}

	for tier, acc := range accum {
		stats := types.TierStats{TotalRetries: acc.retries}
		if acc.present > 0 {
			stats.AvgWordCount = float64(acc.words) / float64(acc.present)
			stats.PassRate = float64(acc.passed) / float64(acc.present)
		}
		summary.TierStats[tier] = stats
	}

	switch {
	case summary.Total == 0:
		summary.Status = types.RunSetupError
	case summary.Failed == 0:
		summary.Status = types.RunAllSucceeded
	default:
		summary.Status = types.RunPartialFailures
	}
	return summary
}
