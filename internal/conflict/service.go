// Package conflict owns the conflict record state machine: creation,
// re-detection, escalation, and the resolution paths. All transitions append
// a structured event to the conflict's audit trail.
package conflict

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/detect"
)

// ErrTerminalState is returned when a transition is attempted on a resolved
// or closed conflict. The periodic sweeps treat it as a skip, not a failure:
// it is the correctness mechanism for races between overlapping job runs and
// human actions.
var ErrTerminalState = errors.New("conflict is in a terminal state")

// SystemActor is the actor recorded for engine-driven transitions
const SystemActor = "system"

// EventSink receives conflict events as they are recorded, e.g. for pushing
// to connected dashboard clients. Implementations must not block.
type EventSink interface {
	ConflictEvent(record *database.ConflictRecord, event *database.ConflictEvent)
}

// Service drives conflict state transitions against the repository
type Service struct {
	db   *gorm.DB
	sink EventSink
}

// NewService creates a conflict service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SetEventSink registers an optional sink for conflict events
func (s *Service) SetEventSink(sink EventSink) {
	s.sink = sink
}

// Observation describes a detected deviation and where it came from.
// Linkage fields are immutable once a conflict is created from them.
type Observation struct {
	TenantID        string
	ProjectID       string
	PurchaseOrderID uint
	Type            database.ConflictType
	LinkedKind      database.LinkedKind
	LinkedID        uint
	SourceValue     string
	FieldValue      string
	IsCriticalPath  bool
	IsFinancial     bool
	Assignee        string
	Description     string
}

// Report applies a detector verdict for an observation pair. Exactly one of
// four things happens:
//   - breach with no open conflict: a new conflict is created in OPEN
//   - breach with an open conflict: the existing record is updated in place
//     (re-detect), without resetting escalation level or SLA deadline
//   - within tolerance with an open conflict: the conflict auto-resolves
//   - within tolerance, nothing open: no-op
//
// The returned record is nil in the no-op case.
func (s *Service) Report(obs Observation, verdict detect.Verdict, thresholds *database.Thresholds) (*database.ConflictRecord, error) {
	existing, err := database.FindOpenConflict(s.db, obs.Type, obs.LinkedKind, obs.LinkedID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if verdict.WithinTolerance {
		if existing == nil {
			return nil, nil
		}
		reason := fmt.Sprintf("measurements realigned: %s vs %s (deviation %.1f within tolerance)",
			obs.SourceValue, obs.FieldValue, verdict.Deviation)
		if err := s.AutoResolve(existing, reason); err != nil {
			if errors.Is(err, ErrTerminalState) {
				return existing, nil
			}
			return nil, err
		}
		return existing, nil
	}

	if existing != nil {
		return s.redetect(existing, obs, verdict)
	}

	return s.open(obs, verdict, thresholds)
}

// open creates a fresh conflict in OPEN with escalation level 0 and an SLA
// deadline derived from the verdict severity.
func (s *Service) open(obs Observation, verdict detect.Verdict, thresholds *database.Thresholds) (*database.ConflictRecord, error) {
	now := time.Now()
	record := &database.ConflictRecord{
		UUID:             uuid.NewString(),
		TenantID:         obs.TenantID,
		ProjectID:        obs.ProjectID,
		PurchaseOrderID:  obs.PurchaseOrderID,
		Type:             obs.Type,
		Status:           database.ConflictStatusOpen,
		Severity:         verdict.Severity,
		LinkedKind:       obs.LinkedKind,
		LinkedID:         obs.LinkedID,
		SourceValue:      obs.SourceValue,
		FieldValue:       obs.FieldValue,
		DeviationPercent: verdict.Deviation,
		EscalationLevel:  database.EscalationLevelNone,
		SLADeadline:      now.Add(thresholds.SLAWindow(verdict.Severity)),
		IsCriticalPath:   obs.IsCriticalPath,
		IsFinancial:      obs.IsFinancial,
		Assignee:         obs.Assignee,
		Description:      obs.Description,
	}

	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create conflict: %w", err)
	}

	s.appendEvent(record, SystemActor, "created",
		fmt.Sprintf("%s detected: %s vs %s (deviation %.1f, severity %s)",
			record.Type, record.SourceValue, record.FieldValue, record.DeviationPercent, record.Severity))

	log.Printf("Opened %s conflict %s on %s %d (deviation %.1f, severity %s)",
		record.Type, record.UUID, record.LinkedKind, record.LinkedID, record.DeviationPercent, record.Severity)
	return record, nil
}

// redetect refreshes the measurement snapshot and severity of an open
// conflict. Escalation level and SLA deadline are left untouched so repeated
// detection never restarts the clock.
func (s *Service) redetect(record *database.ConflictRecord, obs Observation, verdict detect.Verdict) (*database.ConflictRecord, error) {
	unchanged := record.Severity == verdict.Severity &&
		record.DeviationPercent == verdict.Deviation &&
		record.SourceValue == obs.SourceValue &&
		record.FieldValue == obs.FieldValue
	if unchanged {
		return record, nil
	}

	updates := map[string]interface{}{
		"severity":          verdict.Severity,
		"deviation_percent": verdict.Deviation,
		"source_value":      obs.SourceValue,
		"field_value":       obs.FieldValue,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update conflict %s: %w", record.UUID, err)
	}
	record.Severity = verdict.Severity
	record.DeviationPercent = verdict.Deviation
	record.SourceValue = obs.SourceValue
	record.FieldValue = obs.FieldValue

	s.appendEvent(record, SystemActor, "re-detected",
		fmt.Sprintf("measurement updated: %s vs %s (deviation %.1f, severity %s)",
			record.SourceValue, record.FieldValue, record.DeviationPercent, record.Severity))
	return record, nil
}

// AutoResolve transitions an open conflict to RESOLVED because the
// underlying measurements realigned. On a terminal record it is a logged
// no-op surfaced as ErrTerminalState.
func (s *Service) AutoResolve(record *database.ConflictRecord, reason string) error {
	if record.Status.IsTerminal() {
		log.Printf("Skipping auto-resolve of conflict %s: already %s", record.UUID, record.Status)
		return ErrTerminalState
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":               database.ConflictStatusResolved,
		"auto_resolved":        true,
		"auto_resolved_reason": reason,
		"resolved_at":          now,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to auto-resolve conflict %s: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusResolved
	record.AutoResolved = true
	record.AutoResolvedReason = reason
	record.ResolvedAt = &now

	s.appendEvent(record, SystemActor, "auto-resolved", reason)
	log.Printf("Auto-resolved conflict %s: %s", record.UUID, reason)
	return nil
}

// Escalate raises a conflict to at least the given level and transitions it
// to ESCALATED. The level never decreases. On a terminal record it is a
// logged no-op surfaced as ErrTerminalState.
func (s *Service) Escalate(record *database.ConflictRecord, level int, actor, note string) error {
	if record.Status.IsTerminal() {
		log.Printf("Skipping escalation of conflict %s: already %s", record.UUID, record.Status)
		return ErrTerminalState
	}

	if level < record.EscalationLevel {
		level = record.EscalationLevel
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":           database.ConflictStatusEscalated,
		"escalation_level": level,
		"last_reminder_at": now,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to escalate conflict %s: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusEscalated
	record.EscalationLevel = level
	record.LastReminderAt = &now

	s.appendEvent(record, actor, "escalated", fmt.Sprintf("raised to level %d: %s", level, note))
	log.Printf("Escalated conflict %s to level %d (%s)", record.UUID, level, actor)
	return nil
}

// StartReview moves an OPEN conflict to REVIEW, recording who picked it up
func (s *Service) StartReview(record *database.ConflictRecord, actor string) error {
	if record.Status != database.ConflictStatusOpen {
		return fmt.Errorf("cannot start review of conflict %s in state %s", record.UUID, record.Status)
	}

	if err := s.db.Model(record).Update("status", database.ConflictStatusReview).Error; err != nil {
		return fmt.Errorf("failed to move conflict %s to review: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusReview

	s.appendEvent(record, actor, "review-started", "conflict under review")
	return nil
}

// HumanResolve records an explicit human decision that the conflict is
// settled. The acting identity is always stamped on the event.
func (s *Service) HumanResolve(record *database.ConflictRecord, actor, note string) error {
	if record.Status.IsTerminal() {
		return ErrTerminalState
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      database.ConflictStatusResolved,
		"resolved_at": now,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusResolved
	record.ResolvedAt = &now

	s.appendEvent(record, actor, "resolved", note)
	log.Printf("Conflict %s resolved by %s", record.UUID, actor)
	return nil
}

// HumanReject records a rejected resolution proposal: the conflict stays
// open and is re-escalated to at least management level.
func (s *Service) HumanReject(record *database.ConflictRecord, actor, note string) error {
	if record.Status.IsTerminal() {
		return ErrTerminalState
	}

	level := record.EscalationLevel
	if level < database.EscalationLevelManagement {
		level = database.EscalationLevelManagement
	}

	updates := map[string]interface{}{
		"status":           database.ConflictStatusOpen,
		"escalation_level": level,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to reject conflict %s: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusOpen
	record.EscalationLevel = level

	s.appendEvent(record, actor, "rejected", fmt.Sprintf("resolution rejected, re-escalated to level %d: %s", level, note))
	log.Printf("Conflict %s rejected by %s, re-escalated to level %d", record.UUID, actor, level)
	return nil
}

// HumanClose terminally closes a conflict without resolution, e.g. when it
// was raised on bad data. If the deviation reappears a fresh conflict is
// opened instead of reopening this one.
func (s *Service) HumanClose(record *database.ConflictRecord, actor, note string) error {
	if record.Status.IsTerminal() {
		return ErrTerminalState
	}

	if err := s.db.Model(record).Update("status", database.ConflictStatusClosed).Error; err != nil {
		return fmt.Errorf("failed to close conflict %s: %w", record.UUID, err)
	}
	record.Status = database.ConflictStatusClosed

	s.appendEvent(record, actor, "closed", note)
	log.Printf("Conflict %s closed by %s", record.UUID, actor)
	return nil
}

// MarkReminded stamps the reminder timestamp after a notification was
// dispatched. Not a state transition; escalation level is untouched.
func (s *Service) MarkReminded(record *database.ConflictRecord, at time.Time) error {
	if err := s.db.Model(record).Update("last_reminder_at", at).Error; err != nil {
		return fmt.Errorf("failed to stamp reminder on conflict %s: %w", record.UUID, err)
	}
	record.LastReminderAt = &at
	return nil
}

// appendEvent records an audit event. Event write failures are logged, not
// fatal: the state transition itself has already been persisted.
func (s *Service) appendEvent(record *database.ConflictRecord, actor, action, note string) {
	event := &database.ConflictEvent{
		ConflictID: record.ID,
		At:         time.Now(),
		Actor:      actor,
		Action:     action,
		Note:       note,
	}
	if err := s.db.Create(event).Error; err != nil {
		log.Printf("Failed to append %s event to conflict %s: %v", action, record.UUID, err)
		return
	}
	if s.sink != nil {
		s.sink.ConflictEvent(record, event)
	}
}
