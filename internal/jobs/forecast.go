package jobs

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
)

// ForecastGenerator synthesizes progress estimates for in-progress
// milestones that have gone quiet. Idleness is measured from the last real
// observation; generated forecasts never count as activity, so a stalled
// milestone keeps drifting upward week over week until fresh data arrives.
type ForecastGenerator struct {
	db        *gorm.DB
	runBudget time.Duration
}

// NewForecastGenerator creates the generator with the default run budget
func NewForecastGenerator(db *gorm.DB) *ForecastGenerator {
	return &ForecastGenerator{
		db:        db,
		runBudget: DefaultRunBudget,
	}
}

// SetRunBudget overrides the wall-clock budget for one run
func (j *ForecastGenerator) SetRunBudget(budget time.Duration) {
	j.runBudget = budget
}

// forecastWeeklyIncrement is how many percentage points each full idle week
// adds to the base observation.
const forecastWeeklyIncrement = 10.0

// Run executes one pass over all stale in-progress milestones
func (j *ForecastGenerator) Run() (SweepResult, error) {
	result := SweepResult{}
	deadline := time.Now().Add(j.runBudget)
	cache := thresholdCache{}

	// The candidate query uses the global idle window; the per-tenant window
	// is re-checked per milestone below. A tenant with a shorter window than
	// the global one gets its forecasts on the global schedule at worst.
	global, err := database.ResolveThresholds(j.db, "")
	if err != nil {
		return result, fmt.Errorf("failed to resolve global thresholds: %w", err)
	}
	cutoff := time.Now().Add(-global.IdleWindow())

	milestones, err := database.FindStaleMilestones(j.db, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to find stale milestones: %w", err)
	}

	for i := range milestones {
		if time.Now().After(deadline) {
			log.Printf("Forecast generator budget exceeded, deferring %d milestones to next run", len(milestones)-i)
			break
		}

		m := &milestones[i]
		created, err := j.forecastMilestone(m, cache)
		if err != nil {
			log.Printf("Forecast generator: milestone %d failed: %v", m.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("milestone %d: %v", m.ID, err))
		} else if created {
			result.Forecasts++
		}
		result.Processed++
	}

	return result, nil
}

// forecastMilestone computes and persists one forecast record, reporting
// whether a record was actually created.
func (j *ForecastGenerator) forecastMilestone(m *database.Milestone, cache thresholdCache) (bool, error) {
	var po database.PurchaseOrder
	if err := j.db.First(&po, m.PurchaseOrderID).Error; err != nil {
		return false, fmt.Errorf("purchase order %d not found: %w", m.PurchaseOrderID, err)
	}

	thresholds, err := cache.resolve(j.db, po.TenantID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	base := 0.0
	idleSince := m.CreatedAt
	last, err := database.LatestNonForecastProgress(j.db, m.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
	} else {
		base = last.Percent
		idleSince = last.ReportedAt
	}

	// A milestone sitting exactly at the idle window is not yet idle;
	// drift starts strictly beyond it.
	idle := now.Sub(idleSince)
	if idle <= thresholds.IdleWindow() {
		return false, nil
	}

	weeksIdle := int(idle.Hours() / (24 * 7))
	estimate := base + float64(weeksIdle)*forecastWeeklyIncrement
	if estimate > 100 {
		estimate = 100
	}
	if estimate <= base {
		return false, nil
	}

	// Forecasts only ever move forward. If the latest record already is a
	// forecast at or above this estimate, re-running the generator within
	// the same idle week is a no-op.
	latest, err := database.LatestProgress(j.db, m.ID)
	if err == nil && latest.Source == database.ProgressSourceForecast && latest.Percent >= estimate {
		return false, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	record := &database.ProgressRecord{
		MilestoneID: m.ID,
		Source:      database.ProgressSourceForecast,
		Percent:     estimate,
		ReportedBy:  "system",
		ReportedAt:  now,
		ForecastBasis: fmt.Sprintf("no observation for %d days; base %.1f%% + %d idle week(s) x %.0f points",
			int(idle.Hours()/24), base, weeksIdle, forecastWeeklyIncrement),
	}
	if err := database.AppendProgressRecord(j.db, record); err != nil {
		return false, fmt.Errorf("failed to create forecast record: %w", err)
	}

	log.Printf("Forecast generator: milestone %d (%s) forecast %.1f%% after %d idle week(s)",
		m.ID, m.Name, estimate, weeksIdle)
	return true, nil
}

// Start begins periodic forecast runs until the stop channel closes
func (j *ForecastGenerator) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := j.Run()
			if err != nil {
				log.Printf("Forecast generator error: %v", err)
			} else if result.Forecasts > 0 {
				log.Printf("Forecast generator: processed %d, forecasts %d, errors %d",
					result.Processed, result.Forecasts, len(result.Errors))
			}
		case <-stop:
			log.Println("Forecast generator stopped")
			return
		}
	}
}
