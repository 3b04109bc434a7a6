package database

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupThresholdDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&ThresholdSettings{}, &ThresholdOverride{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestGetOrCreateThresholdSettingsDefaults(t *testing.T) {
	db := setupThresholdDB(t)

	settings, err := GetOrCreateThresholdSettings(db)
	if err != nil {
		t.Fatalf("GetOrCreateThresholdSettings failed: %v", err)
	}

	if settings.ProgressConflictPoints != 10 {
		t.Errorf("ProgressConflictPoints = %v, want 10", settings.ProgressConflictPoints)
	}
	if settings.VarianceTolerancePct != 5 || settings.HighVariancePct != 10 {
		t.Errorf("variance thresholds = %v/%v, want 5/10", settings.VarianceTolerancePct, settings.HighVariancePct)
	}
	if settings.DelayToleranceDays != 2 || settings.HighDelayDays != 7 {
		t.Errorf("delay thresholds = %d/%d, want 2/7", settings.DelayToleranceDays, settings.HighDelayDays)
	}
	if settings.SLAHighHours != 48 || settings.SLAMediumHours != 72 || settings.SLALowHours != 120 {
		t.Errorf("SLA hours = %d/%d/%d, want 48/72/120",
			settings.SLAHighHours, settings.SLAMediumHours, settings.SLALowHours)
	}
	if settings.CriticalPathWindowHours != 8 || settings.FinancialWindowHours != 12 {
		t.Errorf("escalation windows = %d/%d, want 8/12", settings.CriticalPathWindowHours, settings.FinancialWindowHours)
	}
	if settings.IdleWindowDays != 7 {
		t.Errorf("IdleWindowDays = %d, want 7", settings.IdleWindowDays)
	}

	// A second call returns the persisted singleton, not a new row.
	again, err := GetOrCreateThresholdSettings(db)
	if err != nil {
		t.Fatalf("second GetOrCreateThresholdSettings failed: %v", err)
	}
	if again.ID != settings.ID {
		t.Errorf("settings IDs differ: %d vs %d", settings.ID, again.ID)
	}
}

func TestResolveThresholdsTenantOverlay(t *testing.T) {
	db := setupThresholdDB(t)

	overrides := []ThresholdOverride{
		{TenantID: "acme", Key: ThresholdVarianceTolerancePct, Value: 3},
		{TenantID: "acme", Key: ThresholdSLAHighHours, Value: 24},
		{TenantID: "acme", Key: "not_a_real_threshold", Value: 99},
		{TenantID: "other", Key: ThresholdVarianceTolerancePct, Value: 8},
	}
	for _, o := range overrides {
		if err := db.Create(&o).Error; err != nil {
			t.Fatalf("failed to seed override: %v", err)
		}
	}

	resolved, err := ResolveThresholds(db, "acme")
	if err != nil {
		t.Fatalf("ResolveThresholds failed: %v", err)
	}
	if resolved.VarianceTolerancePct != 3 {
		t.Errorf("VarianceTolerancePct = %v, want the tenant's 3", resolved.VarianceTolerancePct)
	}
	if resolved.SLAHighHours != 24 {
		t.Errorf("SLAHighHours = %d, want the tenant's 24", resolved.SLAHighHours)
	}
	// Everything not overridden keeps the global value. Unknown keys are
	// silently skipped.
	if resolved.ProgressConflictPoints != 10 {
		t.Errorf("ProgressConflictPoints = %v, want the global 10", resolved.ProgressConflictPoints)
	}

	global, err := ResolveThresholds(db, "")
	if err != nil {
		t.Fatalf("ResolveThresholds for global failed: %v", err)
	}
	if global.VarianceTolerancePct != 5 {
		t.Errorf("global VarianceTolerancePct = %v, overrides must not leak", global.VarianceTolerancePct)
	}

	unrelated, err := ResolveThresholds(db, "unknown-tenant")
	if err != nil {
		t.Fatalf("ResolveThresholds for unknown tenant failed: %v", err)
	}
	if unrelated.VarianceTolerancePct != 5 {
		t.Errorf("unknown tenant VarianceTolerancePct = %v, want the global 5", unrelated.VarianceTolerancePct)
	}
}

func TestThresholdDurationHelpers(t *testing.T) {
	resolved := &Thresholds{
		CriticalPathWindowHours: 8,
		FinancialWindowHours:    12,
		IdleWindowDays:          7,
		SLALowHours:             120,
		SLAMediumHours:          72,
		SLAHighHours:            48,
	}

	if h := resolved.SLAWindow(SeverityHigh).Hours(); h != 48 {
		t.Errorf("high SLA = %vh, want 48", h)
	}
	if h := resolved.SLAWindow(SeverityMedium).Hours(); h != 72 {
		t.Errorf("medium SLA = %vh, want 72", h)
	}
	if h := resolved.SLAWindow(SeverityLow).Hours(); h != 120 {
		t.Errorf("low SLA = %vh, want 120", h)
	}
	if h := resolved.CriticalPathWindow().Hours(); h != 8 {
		t.Errorf("critical path window = %vh, want 8", h)
	}
	if h := resolved.FinancialWindow().Hours(); h != 12 {
		t.Errorf("financial window = %vh, want 12", h)
	}
	if d := resolved.IdleWindow().Hours() / 24; d != 7 {
		t.Errorf("idle window = %v days, want 7", d)
	}
}

func TestLoadThresholdOverridesFile(t *testing.T) {
	db := setupThresholdDB(t)

	content := `tenants:
  acme:
    variance_tolerance_pct: 3
    sla_high_hours: 24
  globex:
    delay_tolerance_days: 1
`
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write override file: %v", err)
	}

	applied, err := LoadThresholdOverridesFile(db, path)
	if err != nil {
		t.Fatalf("LoadThresholdOverridesFile failed: %v", err)
	}
	if applied != 3 {
		t.Errorf("applied = %d, want 3", applied)
	}

	resolved, err := ResolveThresholds(db, "acme")
	if err != nil {
		t.Fatalf("ResolveThresholds failed: %v", err)
	}
	if resolved.VarianceTolerancePct != 3 || resolved.SLAHighHours != 24 {
		t.Errorf("acme thresholds not applied: %+v", resolved)
	}

	// Loading again upserts instead of duplicating rows.
	updated := `tenants:
  acme:
    variance_tolerance_pct: 4
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite override file: %v", err)
	}
	if _, err := LoadThresholdOverridesFile(db, path); err != nil {
		t.Fatalf("second load failed: %v", err)
	}

	var count int64
	db.Model(&ThresholdOverride{}).Where("tenant_id = ? AND key = ?", "acme", ThresholdVarianceTolerancePct).Count(&count)
	if count != 1 {
		t.Errorf("override row count = %d, want 1 after upsert", count)
	}

	resolved, _ = ResolveThresholds(db, "acme")
	if resolved.VarianceTolerancePct != 4 {
		t.Errorf("VarianceTolerancePct = %v, want the updated 4", resolved.VarianceTolerancePct)
	}

	if _, err := LoadThresholdOverridesFile(db, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loading a missing file should fail")
	}
}
