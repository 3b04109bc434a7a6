package jobs

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/conflict"
	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/notify"
	"github.com/provanto/provanto/internal/utils"
)

// EscalationSweep periodically walks open and escalated conflicts, sends
// overdue reminders, and raises escalation levels once the critical-path or
// financial windows have elapsed. All steps are guarded by elapsed-time
// checks, so overlapping runs change nothing the second time.
type EscalationSweep struct {
	db        *gorm.DB
	conflicts *conflict.Service
	notifier  notify.Notifier
	runBudget time.Duration
}

// NewEscalationSweep creates the sweep with the default run budget
func NewEscalationSweep(db *gorm.DB, conflicts *conflict.Service, notifier notify.Notifier) *EscalationSweep {
	return &EscalationSweep{
		db:        db,
		conflicts: conflicts,
		notifier:  notifier,
		runBudget: DefaultRunBudget,
	}
}

// SetRunBudget overrides the wall-clock budget for one run
func (j *EscalationSweep) SetRunBudget(budget time.Duration) {
	j.runBudget = budget
}

// Run executes one sweep over all conflicts in OPEN or ESCALATED state.
// Per conflict it performs at most one state mutation and dispatches at
// most one notification.
func (j *EscalationSweep) Run() (SweepResult, error) {
	result := SweepResult{}
	deadline := time.Now().Add(j.runBudget)
	cache := thresholdCache{}

	var conflicts []database.ConflictRecord
	err := j.db.Where("status IN ?", []database.ConflictStatus{
		database.ConflictStatusOpen,
		database.ConflictStatusEscalated,
	}).Order("created_at ASC").Find(&conflicts).Error
	if err != nil {
		return result, fmt.Errorf("failed to load open conflicts: %w", err)
	}

	for i := range conflicts {
		if time.Now().After(deadline) {
			log.Printf("Escalation sweep budget exceeded, deferring %d conflicts to next run", len(conflicts)-i)
			break
		}

		c := &conflicts[i]
		if err := j.processConflict(c, cache, &result); err != nil {
			log.Printf("Escalation sweep: conflict %s failed: %v", c.UUID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("conflict %s: %v", c.UUID, err))
		}
		result.Processed++
	}

	return result, nil
}

func (j *EscalationSweep) processConflict(c *database.ConflictRecord, cache thresholdCache, result *SweepResult) error {
	thresholds, err := cache.resolve(j.db, c.TenantID)
	if err != nil {
		return err
	}

	now := time.Now()
	risk := j.riskLevel(c, now)
	interval := ReminderInterval(risk)

	// Reminder: dispatch when the interval has elapsed (or nothing was ever
	// sent). The stamp is only written on successful delivery so the next
	// run retries a failed notification naturally.
	if c.LastReminderAt == nil || now.Sub(*c.LastReminderAt) >= interval {
		title := fmt.Sprintf("Unresolved %s conflict (%s risk)", c.Type, risk)
		message := fmt.Sprintf("%s\n%s vs %s (deviation %.1f)\nSLA deadline: %s",
			utils.TruncateText(c.Description, 200), c.SourceValue, c.FieldValue, c.DeviationPercent,
			c.SLADeadline.Format(time.RFC3339))

		if err := j.notifier.Notify(c.Assignee, title, message, c.Severity); err != nil {
			log.Printf("Escalation sweep: notification for conflict %s failed: %v", c.UUID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("notify %s: %v", c.UUID, err))
		} else {
			result.Reminders++
			if err := j.conflicts.MarkReminded(c, now); err != nil {
				return err
			}
		}
	}

	// Time-based escalation. Critical-path and financial checks are
	// independent; the target level is the max of both outcomes and never
	// decreases.
	target := c.EscalationLevel
	reasons := ""
	elapsed := now.Sub(c.CreatedAt)

	if c.IsCriticalPath && elapsed >= thresholds.CriticalPathWindow() &&
		c.EscalationLevel < database.EscalationLevelManagement {
		target = database.EscalationLevelManagement
		reasons = fmt.Sprintf("critical-path conflict unresolved for %s", utils.FormatDuration(elapsed))
	}
	if c.IsFinancial && elapsed >= thresholds.FinancialWindow() &&
		c.EscalationLevel < database.EscalationLevelFinance {
		target = database.EscalationLevelFinance
		if reasons != "" {
			reasons += "; "
		}
		reasons += fmt.Sprintf("financial conflict unresolved for %s", utils.FormatDuration(elapsed))
	}

	if target > c.EscalationLevel {
		if err := j.conflicts.Escalate(c, target, conflict.SystemActor, reasons); err != nil {
			if errors.Is(err, conflict.ErrTerminalState) {
				return nil
			}
			return err
		}
		result.Escalations++
	}

	return nil
}

// riskLevel derives the conflict's urgency from the linked milestone's due
// date when one is available.
func (j *EscalationSweep) riskLevel(c *database.ConflictRecord, now time.Time) RiskLevel {
	if c.LinkedKind != database.LinkedKindMilestone {
		return RiskFromDueDate(nil, now)
	}

	var milestone database.Milestone
	if err := j.db.First(&milestone, c.LinkedID).Error; err != nil {
		log.Printf("Escalation sweep: milestone %d for conflict %s not found: %v", c.LinkedID, c.UUID, err)
		return RiskFromDueDate(nil, now)
	}
	return RiskFromDueDate(milestone.ExpectedDate, now)
}

// Start begins periodic sweeps until the stop channel closes
func (j *EscalationSweep) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := j.Run()
			if err != nil {
				log.Printf("Escalation sweep error: %v", err)
			} else if result.Processed > 0 {
				log.Printf("Escalation sweep: processed %d, reminders %d, escalations %d, errors %d",
					result.Processed, result.Reminders, result.Escalations, len(result.Errors))
			}
		case <-stop:
			log.Println("Escalation sweep stopped")
			return
		}
	}
}
