package jobs

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/conflict"
	"github.com/provanto/provanto/internal/database"
)

// AutoResolveSweep re-runs the originating detector for every open conflict
// with a re-checkable measurement pair and resolves those whose deviation
// has disappeared. It also refreshes the snapshot of conflicts that still
// breach. Already-resolved conflicts are skipped, so the sweep is safe to
// run on a timer alongside synchronous updates.
type AutoResolveSweep struct {
	db        *gorm.DB
	conflicts *conflict.Service
	runBudget time.Duration
}

// NewAutoResolveSweep creates the sweep with the default run budget
func NewAutoResolveSweep(db *gorm.DB, conflicts *conflict.Service) *AutoResolveSweep {
	return &AutoResolveSweep{
		db:        db,
		conflicts: conflicts,
		runBudget: DefaultRunBudget,
	}
}

// SetRunBudget overrides the wall-clock budget for one run
func (j *AutoResolveSweep) SetRunBudget(budget time.Duration) {
	j.runBudget = budget
}

// recheckableTypes are the conflict types with a measurement pair the
// engine can reload on its own. Evidence failures and NCR conflicts need a
// human to clear them.
var recheckableTypes = []database.ConflictType{
	database.ConflictTypeProgressMismatch,
	database.ConflictTypeQuantityMismatch,
	database.ConflictTypeDateVariance,
}

// Run executes one sweep over all re-checkable open conflicts
func (j *AutoResolveSweep) Run() (SweepResult, error) {
	result := SweepResult{}
	deadline := time.Now().Add(j.runBudget)
	cache := thresholdCache{}

	var conflicts []database.ConflictRecord
	err := j.db.Where("status IN ? AND type IN ?", []database.ConflictStatus{
		database.ConflictStatusOpen,
		database.ConflictStatusReview,
		database.ConflictStatusEscalated,
	}, recheckableTypes).Order("created_at ASC").Find(&conflicts).Error
	if err != nil {
		return result, fmt.Errorf("failed to load open conflicts: %w", err)
	}

	for i := range conflicts {
		if time.Now().After(deadline) {
			log.Printf("Auto-resolve sweep budget exceeded, deferring %d conflicts to next run", len(conflicts)-i)
			break
		}

		c := &conflicts[i]
		resolved, err := j.recheck(c, cache)
		if err != nil {
			log.Printf("Auto-resolve sweep: conflict %s failed: %v", c.UUID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("conflict %s: %v", c.UUID, err))
		} else if resolved {
			result.Resolved++
		}
		result.Processed++
	}

	return result, nil
}

// recheck re-invokes the originating detector against current data and
// reports whether the conflict ended up resolved.
func (j *AutoResolveSweep) recheck(c *database.ConflictRecord, cache thresholdCache) (bool, error) {
	thresholds, err := cache.resolve(j.db, c.TenantID)
	if err != nil {
		return false, err
	}

	var updated *database.ConflictRecord
	switch c.LinkedKind {
	case database.LinkedKindMilestone:
		updated, err = j.conflicts.CheckMilestoneProgress(c.LinkedID, thresholds)
	case database.LinkedKindDeliveryReceipt:
		updated, err = j.conflicts.CheckDeliveryReceipt(c.LinkedID, thresholds)
	case database.LinkedKindShipment:
		updated, err = j.conflicts.CheckShipmentSchedule(c.LinkedID, thresholds)
	default:
		// No reloadable pair for this linkage; leave it to humans.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return updated != nil && updated.AutoResolved, nil
}

// Start begins periodic sweeps until the stop channel closes
func (j *AutoResolveSweep) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := j.Run()
			if err != nil {
				log.Printf("Auto-resolve sweep error: %v", err)
			} else if result.Resolved > 0 {
				log.Printf("Auto-resolve sweep: processed %d, resolved %d, errors %d",
					result.Processed, result.Resolved, len(result.Errors))
			}
		case <-stop:
			log.Println("Auto-resolve sweep stopped")
			return
		}
	}
}
