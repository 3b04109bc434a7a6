// Package detect holds the pure deviation detectors. Each detector compares
// a pair of measurements against a resolved threshold set and returns a
// verdict. Detectors are pure and idempotent: the same inputs always yield
// the same verdict, so they are safe to re-invoke from both synchronous
// triggers and periodic sweeps.
package detect

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provanto/provanto/internal/database"
)

// Verdict is the outcome of comparing two measurements
type Verdict struct {
	WithinTolerance bool              `json:"within_tolerance"`
	Deviation       float64           `json:"deviation"`
	Severity        database.Severity `json:"severity"`
}

// CompareProgress compares two progress observations for the same milestone,
// one self-reported and one internally verified. Deviation is absolute
// percentage points. Severity is binary for this detector: the source data
// has no finer granularity, so any breach is medium.
func CompareProgress(selfReported, verified float64, t *database.Thresholds) Verdict {
	deviation := math.Abs(selfReported - verified)
	if deviation <= t.ProgressConflictPoints {
		return Verdict{WithinTolerance: true, Deviation: deviation}
	}
	return Verdict{Deviation: deviation, Severity: database.SeverityMedium}
}

// CompareQuantity compares a supplier-declared quantity against the quantity
// a site reported as received. Deviation is percent of the declared amount.
func CompareQuantity(declared, received decimal.Decimal, t *database.Thresholds) Verdict {
	var deviation float64
	if declared.IsZero() {
		// Nothing declared: anything received at all is a full deviation.
		if received.IsZero() {
			return Verdict{WithinTolerance: true}
		}
		deviation = 100
	} else {
		diff := received.Sub(declared).Abs()
		deviation, _ = diff.Div(declared).Mul(decimal.NewFromInt(100)).Float64()
	}

	if deviation <= t.VarianceTolerancePct {
		return Verdict{WithinTolerance: true, Deviation: deviation}
	}

	severity := database.SeverityMedium
	if deviation > t.HighVariancePct {
		severity = database.SeverityHigh
	}
	return Verdict{Deviation: deviation, Severity: severity}
}

// CompareSchedule compares a delivery-date estimate against a baseline date
// (logistics ETA vs supplier-declared arrival, or ETA vs required-on-site).
// Deviation is whole days, signed; only a positive delay beyond the
// tolerance is a conflict. Arriving early or on time is always fine.
func CompareSchedule(estimate, baseline time.Time, t *database.Thresholds) Verdict {
	delayDays := wholeDays(estimate.Sub(baseline))
	if delayDays <= t.DelayToleranceDays {
		return Verdict{WithinTolerance: true, Deviation: float64(delayDays)}
	}

	severity := database.SeverityMedium
	if delayDays > t.HighDelayDays {
		severity = database.SeverityHigh
	}
	return Verdict{Deviation: float64(delayDays), Severity: severity}
}

// wholeDays truncates a duration to whole days, keeping the sign
func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
