package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/detect"
	"github.com/provanto/provanto/internal/testhelpers"
)

func testObservation() Observation {
	return Observation{
		TenantID:        "tenant-1",
		ProjectID:       "project-1",
		PurchaseOrderID: 1,
		Type:            database.ConflictTypeProgressMismatch,
		LinkedKind:      database.LinkedKindMilestone,
		LinkedID:        42,
		SourceValue:     "80.0% (self-reported)",
		FieldValue:      "60.0% (verified)",
		IsCriticalPath:  true,
		Assignee:        "pm@test",
		Description:     "progress mismatch on milestone \"Foundation\"",
	}
}

func breachVerdict(severity database.Severity, deviation float64) detect.Verdict {
	return detect.Verdict{Deviation: deviation, Severity: severity}
}

func withinVerdict(deviation float64) detect.Verdict {
	return detect.Verdict{WithinTolerance: true, Deviation: deviation}
}

func TestReportOpensConflict(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	thresholds, err := database.ResolveThresholds(db, "tenant-1")
	if err != nil {
		t.Fatalf("failed to resolve thresholds: %v", err)
	}

	before := time.Now()
	record, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected a conflict record")
	}

	if record.Status != database.ConflictStatusOpen {
		t.Errorf("Status = %s, want open", record.Status)
	}
	if record.EscalationLevel != database.EscalationLevelNone {
		t.Errorf("EscalationLevel = %d, want 0", record.EscalationLevel)
	}
	if record.UUID == "" {
		t.Error("UUID should be assigned")
	}
	if !record.IsCriticalPath {
		t.Error("critical-path flag should carry over from the observation")
	}

	// Medium severity gets the 72h SLA window.
	wantDeadline := before.Add(72 * time.Hour)
	if record.SLADeadline.Before(wantDeadline.Add(-time.Minute)) || record.SLADeadline.After(wantDeadline.Add(time.Minute)) {
		t.Errorf("SLADeadline = %v, want about %v", record.SLADeadline, wantDeadline)
	}

	events, err := database.ListConflictEvents(db, record.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 1 || events[0].Action != "created" {
		t.Errorf("expected one created event, got %+v", events)
	}
}

func TestReportDeduplicates(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	thresholds, _ := database.ResolveThresholds(db, "tenant-1")

	first, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds)
	if err != nil {
		t.Fatalf("first Report failed: %v", err)
	}

	// Same pair breaches again with a worse deviation: the open conflict is
	// updated, not duplicated, and the escalation clock is untouched.
	if err := svc.Escalate(first, database.EscalationLevelFirstLine, "ops@test", "taking a look"); err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	deadline := first.SLADeadline

	obs := testObservation()
	obs.SourceValue = "90.0% (self-reported)"
	second, err := svc.Report(obs, breachVerdict(database.SeverityHigh, 30), thresholds)
	if err != nil {
		t.Fatalf("second Report failed: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected the same conflict, got %d and %d", first.ID, second.ID)
	}
	if second.Severity != database.SeverityHigh || second.DeviationPercent != 30 {
		t.Errorf("snapshot not refreshed: %+v", second)
	}
	if second.EscalationLevel != database.EscalationLevelFirstLine {
		t.Errorf("EscalationLevel = %d, re-detection must not reset it", second.EscalationLevel)
	}
	if !second.SLADeadline.Equal(deadline) {
		t.Errorf("SLADeadline changed on re-detection: %v -> %v", deadline, second.SLADeadline)
	}

	var count int64
	db.Model(&database.ConflictRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("conflict count = %d, want 1", count)
	}
}

func TestReportUnchangedBreachIsQuiet(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	thresholds, _ := database.ResolveThresholds(db, "tenant-1")

	first, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds)
	if err != nil {
		t.Fatalf("first Report failed: %v", err)
	}
	if _, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds); err != nil {
		t.Fatalf("second Report failed: %v", err)
	}

	events, _ := database.ListConflictEvents(db, first.ID)
	if len(events) != 1 {
		t.Errorf("an identical breach should not append events, got %d", len(events))
	}
}

func TestReportAutoResolves(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	thresholds, _ := database.ResolveThresholds(db, "tenant-1")

	record, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	resolved, err := svc.Report(testObservation(), withinVerdict(3), thresholds)
	if err != nil {
		t.Fatalf("within-tolerance Report failed: %v", err)
	}
	if resolved == nil || resolved.ID != record.ID {
		t.Fatal("expected the open conflict back")
	}
	if resolved.Status != database.ConflictStatusResolved {
		t.Errorf("Status = %s, want resolved", resolved.Status)
	}
	if !resolved.AutoResolved {
		t.Error("AutoResolved should be set")
	}
	if resolved.AutoResolvedReason == "" {
		t.Error("AutoResolvedReason should explain the realignment")
	}
	if resolved.ResolvedAt == nil {
		t.Error("ResolvedAt should be stamped")
	}
}

func TestReportWithinToleranceNoConflictIsNoop(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	thresholds, _ := database.ResolveThresholds(db, "tenant-1")

	record, err := svc.Report(testObservation(), withinVerdict(1), thresholds)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}

	var count int64
	db.Model(&database.ConflictRecord{}).Count(&count)
	if count != 0 {
		t.Errorf("conflict count = %d, want 0", count)
	}
}

func TestEscalateIsMonotonic(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	record := testhelpers.NewConflictRecordBuilder().
		WithEscalationLevel(database.EscalationLevelManagement).
		Create(t, db)

	if err := svc.Escalate(record, database.EscalationLevelFirstLine, "ops@test", "trying to lower"); err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	if record.EscalationLevel != database.EscalationLevelManagement {
		t.Errorf("EscalationLevel = %d, must never decrease", record.EscalationLevel)
	}
	if record.Status != database.ConflictStatusEscalated {
		t.Errorf("Status = %s, want escalated", record.Status)
	}
}

func TestTerminalStatesFreezeTheRecord(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)

	for _, status := range []database.ConflictStatus{database.ConflictStatusResolved, database.ConflictStatusClosed} {
		record := testhelpers.NewConflictRecordBuilder().WithStatus(status).Create(t, db)

		if err := svc.Escalate(record, database.EscalationLevelFinance, "ops@test", ""); !errors.Is(err, ErrTerminalState) {
			t.Errorf("%s: Escalate error = %v, want ErrTerminalState", status, err)
		}
		if err := svc.AutoResolve(record, "late realignment"); !errors.Is(err, ErrTerminalState) {
			t.Errorf("%s: AutoResolve error = %v, want ErrTerminalState", status, err)
		}
		if err := svc.HumanResolve(record, "ops@test", ""); !errors.Is(err, ErrTerminalState) {
			t.Errorf("%s: HumanResolve error = %v, want ErrTerminalState", status, err)
		}
		if err := svc.HumanClose(record, "ops@test", ""); !errors.Is(err, ErrTerminalState) {
			t.Errorf("%s: HumanClose error = %v, want ErrTerminalState", status, err)
		}

		var reloaded database.ConflictRecord
		db.First(&reloaded, record.ID)
		if reloaded.Status != status {
			t.Errorf("terminal status changed from %s to %s", status, reloaded.Status)
		}
	}
}

func TestHumanRejectReescalates(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	record := testhelpers.NewConflictRecordBuilder().Create(t, db)

	if err := svc.HumanReject(record, "reviewer@test", "numbers do not add up"); err != nil {
		t.Fatalf("HumanReject failed: %v", err)
	}
	if record.Status != database.ConflictStatusOpen {
		t.Errorf("Status = %s, rejection keeps the conflict open", record.Status)
	}
	if record.EscalationLevel != database.EscalationLevelManagement {
		t.Errorf("EscalationLevel = %d, want management after rejection", record.EscalationLevel)
	}

	// Rejecting again from a higher level must not lower it.
	if err := svc.Escalate(record, database.EscalationLevelFinance, "ops@test", ""); err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	if err := svc.HumanReject(record, "reviewer@test", "still wrong"); err != nil {
		t.Fatalf("second HumanReject failed: %v", err)
	}
	if record.EscalationLevel != database.EscalationLevelFinance {
		t.Errorf("EscalationLevel = %d, rejection must not lower the level", record.EscalationLevel)
	}
}

func TestStartReviewRequiresOpen(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)

	record := testhelpers.NewConflictRecordBuilder().Create(t, db)
	if err := svc.StartReview(record, "reviewer@test"); err != nil {
		t.Fatalf("StartReview failed: %v", err)
	}
	if record.Status != database.ConflictStatusReview {
		t.Errorf("Status = %s, want review", record.Status)
	}

	escalated := testhelpers.NewConflictRecordBuilder().
		WithStatus(database.ConflictStatusEscalated).
		Create(t, db)
	if err := svc.StartReview(escalated, "reviewer@test"); err == nil {
		t.Error("StartReview from escalated should fail")
	}
}

// recordingSink captures events delivered to the event sink
type recordingSink struct {
	events []string
}

func (s *recordingSink) ConflictEvent(record *database.ConflictRecord, event *database.ConflictEvent) {
	s.events = append(s.events, event.Action)
}

func TestEventSinkReceivesTransitions(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewService(db)
	sink := &recordingSink{}
	svc.SetEventSink(sink)
	thresholds, _ := database.ResolveThresholds(db, "tenant-1")

	record, err := svc.Report(testObservation(), breachVerdict(database.SeverityMedium, 20), thresholds)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if err := svc.HumanResolve(record, "pm@test", "verified on site"); err != nil {
		t.Fatalf("HumanResolve failed: %v", err)
	}

	want := []string{"created", "resolved"}
	if len(sink.events) != len(want) {
		t.Fatalf("sink events = %v, want %v", sink.events, want)
	}
	for i := range want {
		if sink.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, sink.events[i], want[i])
		}
	}
}
