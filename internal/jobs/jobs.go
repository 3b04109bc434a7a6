// Package jobs contains the periodic batch processes of the engine: the
// escalation & SLA sweep, the auto-resolution sweep, and the forecast
// generator. Each job is stateless between runs, idempotent within a run,
// and isolates per-item failures: one bad conflict or milestone never aborts
// the batch.
package jobs

import (
	"time"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
)

// DefaultRunBudget bounds the wall-clock time of a single job run. When the
// budget is exceeded the run stops issuing new work and remaining items are
// picked up by the next scheduled trigger.
const DefaultRunBudget = 5 * time.Minute

// SweepResult summarizes one job run. Individual failures are diagnostic
// entries here, not end-user-facing errors.
type SweepResult struct {
	Processed   int      `json:"processed"`
	Reminders   int      `json:"reminders,omitempty"`
	Escalations int      `json:"escalations,omitempty"`
	Resolved    int      `json:"resolved,omitempty"`
	Forecasts   int      `json:"forecasts,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// RiskLevel classifies how urgent a conflict is based on how close the
// linked milestone is to its due date.
type RiskLevel string

const (
	RiskLevelHigh   RiskLevel = "high"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelLow    RiskLevel = "low"
)

// RiskFromDueDate derives the risk level from a due date: under 7 days out
// (or overdue) is high, 7-30 days is medium, beyond that low. With no date
// available the risk defaults to medium.
func RiskFromDueDate(dueDate *time.Time, now time.Time) RiskLevel {
	if dueDate == nil {
		return RiskLevelMedium
	}
	days := dueDate.Sub(now).Hours() / 24
	switch {
	case days < 7:
		return RiskLevelHigh
	case days <= 30:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// ReminderInterval returns how long to wait between reminder notifications
// for a given risk level.
func ReminderInterval(risk RiskLevel) time.Duration {
	switch risk {
	case RiskLevelHigh:
		return 24 * time.Hour
	case RiskLevelLow:
		return 168 * time.Hour
	default:
		return 84 * time.Hour // 3.5 days
	}
}

// thresholdCache memoizes resolved threshold sets per tenant for the
// duration of one run. The resolved set is read-only and never refreshed
// mid-run.
type thresholdCache map[string]*database.Thresholds

func (c thresholdCache) resolve(db *gorm.DB, tenantID string) (*database.Thresholds, error) {
	if t, ok := c[tenantID]; ok {
		return t, nil
	}
	t, err := database.ResolveThresholds(db, tenantID)
	if err != nil {
		return nil, err
	}
	c[tenantID] = t
	return t, nil
}
