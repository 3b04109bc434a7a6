package database

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Threshold keys. Per-tenant overrides reference thresholds by these names;
// each conflict type reads a fixed subset of them.
const (
	ThresholdProgressConflictPoints  = "progress_conflict_points"
	ThresholdVarianceTolerancePct    = "variance_tolerance_pct"
	ThresholdHighVariancePct         = "high_variance_pct"
	ThresholdDelayToleranceDays      = "delay_tolerance_days"
	ThresholdHighDelayDays           = "high_delay_days"
	ThresholdCriticalPathWindowHours = "critical_path_window_hours"
	ThresholdFinancialWindowHours    = "financial_window_hours"
	ThresholdIdleWindowDays          = "idle_window_days"
	ThresholdSLALowHours             = "sla_low_hours"
	ThresholdSLAMediumHours          = "sla_medium_hours"
	ThresholdSLAHighHours            = "sla_high_hours"
)

// ThresholdSettings is the global singleton holding default detection and
// escalation thresholds. Per-tenant deviations live in ThresholdOverride.
type ThresholdSettings struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	ProgressConflictPoints  float64   `gorm:"default:10" json:"progress_conflict_points"`
	VarianceTolerancePct    float64   `gorm:"default:5" json:"variance_tolerance_pct"`
	HighVariancePct         float64   `gorm:"default:10" json:"high_variance_pct"`
	DelayToleranceDays      int       `gorm:"default:2" json:"delay_tolerance_days"`
	HighDelayDays           int       `gorm:"default:7" json:"high_delay_days"`
	CriticalPathWindowHours int       `gorm:"default:8" json:"critical_path_window_hours"`
	FinancialWindowHours    int       `gorm:"default:12" json:"financial_window_hours"`
	IdleWindowDays          int       `gorm:"default:7" json:"idle_window_days"`
	SLALowHours             int       `gorm:"default:120" json:"sla_low_hours"`
	SLAMediumHours          int       `gorm:"default:72" json:"sla_medium_hours"`
	SLAHighHours            int       `gorm:"default:48" json:"sla_high_hours"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (ThresholdSettings) TableName() string {
	return "threshold_settings"
}

// NewDefaultThresholdSettings returns settings with default values
func NewDefaultThresholdSettings() *ThresholdSettings {
	return &ThresholdSettings{
		ProgressConflictPoints:  10,
		VarianceTolerancePct:    5,
		HighVariancePct:         10,
		DelayToleranceDays:      2,
		HighDelayDays:           7,
		CriticalPathWindowHours: 8,
		FinancialWindowHours:    12,
		IdleWindowDays:          7,
		SLALowHours:             120,
		SLAMediumHours:          72,
		SLAHighHours:            48,
	}
}

// GetOrCreateThresholdSettings retrieves or creates the settings singleton.
// Accepts a db parameter to support transactions and testing.
func GetOrCreateThresholdSettings(db *gorm.DB) (*ThresholdSettings, error) {
	var settings ThresholdSettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultThresholdSettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// ThresholdOverride is a per-tenant override of a single threshold key
type ThresholdOverride struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_tenant_key" json:"tenant_id"`
	Key       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_tenant_key" json:"key"`
	Value     float64   `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ThresholdOverride) TableName() string {
	return "threshold_overrides"
}

// Thresholds is the resolved, read-only threshold set for one tenant.
// It is resolved once at the start of a batch run and passed by parameter
// into detectors and sweeps; it must not be mutated by the engine.
type Thresholds struct {
	ProgressConflictPoints  float64
	VarianceTolerancePct    float64
	HighVariancePct         float64
	DelayToleranceDays      int
	HighDelayDays           int
	CriticalPathWindowHours int
	FinancialWindowHours    int
	IdleWindowDays          int
	SLALowHours             int
	SLAMediumHours          int
	SLAHighHours            int
}

// SLAWindow returns the resolution window for a conflict of the given severity
func (t *Thresholds) SLAWindow(severity Severity) time.Duration {
	switch severity {
	case SeverityHigh:
		return time.Duration(t.SLAHighHours) * time.Hour
	case SeverityLow:
		return time.Duration(t.SLALowHours) * time.Hour
	default:
		return time.Duration(t.SLAMediumHours) * time.Hour
	}
}

// CriticalPathWindow returns how long a critical-path conflict may sit
// before automatic escalation to management.
func (t *Thresholds) CriticalPathWindow() time.Duration {
	return time.Duration(t.CriticalPathWindowHours) * time.Hour
}

// FinancialWindow returns how long a financial conflict may sit before
// automatic escalation to finance.
func (t *Thresholds) FinancialWindow() time.Duration {
	return time.Duration(t.FinancialWindowHours) * time.Hour
}

// IdleWindow returns the duration after which a milestone with no fresh
// progress observation counts as stalled.
func (t *Thresholds) IdleWindow() time.Duration {
	return time.Duration(t.IdleWindowDays) * 24 * time.Hour
}

// ResolveThresholds builds the effective threshold set for a tenant:
// global settings row, overlaid with any per-tenant overrides. A missing
// settings row falls back to compiled defaults rather than failing the run.
func ResolveThresholds(db *gorm.DB, tenantID string) (*Thresholds, error) {
	settings, err := GetOrCreateThresholdSettings(db)
	if err != nil {
		settings = NewDefaultThresholdSettings()
	}

	resolved := &Thresholds{
		ProgressConflictPoints:  settings.ProgressConflictPoints,
		VarianceTolerancePct:    settings.VarianceTolerancePct,
		HighVariancePct:         settings.HighVariancePct,
		DelayToleranceDays:      settings.DelayToleranceDays,
		HighDelayDays:           settings.HighDelayDays,
		CriticalPathWindowHours: settings.CriticalPathWindowHours,
		FinancialWindowHours:    settings.FinancialWindowHours,
		IdleWindowDays:          settings.IdleWindowDays,
		SLALowHours:             settings.SLALowHours,
		SLAMediumHours:          settings.SLAMediumHours,
		SLAHighHours:            settings.SLAHighHours,
	}

	if tenantID == "" {
		return resolved, nil
	}

	var overrides []ThresholdOverride
	if err := db.Where("tenant_id = ?", tenantID).Find(&overrides).Error; err != nil {
		return nil, fmt.Errorf("failed to load threshold overrides for tenant %s: %w", tenantID, err)
	}

	for _, o := range overrides {
		resolved.apply(o.Key, o.Value)
	}

	return resolved, nil
}

func (t *Thresholds) apply(key string, value float64) {
	switch key {
	case ThresholdProgressConflictPoints:
		t.ProgressConflictPoints = value
	case ThresholdVarianceTolerancePct:
		t.VarianceTolerancePct = value
	case ThresholdHighVariancePct:
		t.HighVariancePct = value
	case ThresholdDelayToleranceDays:
		t.DelayToleranceDays = int(value)
	case ThresholdHighDelayDays:
		t.HighDelayDays = int(value)
	case ThresholdCriticalPathWindowHours:
		t.CriticalPathWindowHours = int(value)
	case ThresholdFinancialWindowHours:
		t.FinancialWindowHours = int(value)
	case ThresholdIdleWindowDays:
		t.IdleWindowDays = int(value)
	case ThresholdSLALowHours:
		t.SLALowHours = int(value)
	case ThresholdSLAMediumHours:
		t.SLAMediumHours = int(value)
	case ThresholdSLAHighHours:
		t.SLAHighHours = int(value)
	}
	// Unknown keys are ignored so an override file from a newer deployment
	// does not break older engines.
}

// thresholdOverrideFile is the YAML shape of a threshold override file:
//
//	tenants:
//	  acme:
//	    variance_tolerance_pct: 3
type thresholdOverrideFile struct {
	Tenants map[string]map[string]float64 `yaml:"tenants"`
}

// LoadThresholdOverridesFile reads per-tenant overrides from a YAML file and
// upserts them into the threshold_overrides table. Returns the number of
// overrides applied.
func LoadThresholdOverridesFile(db *gorm.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read threshold overrides file: %w", err)
	}

	var file thresholdOverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse threshold overrides file: %w", err)
	}

	applied := 0
	for tenantID, overrides := range file.Tenants {
		for key, value := range overrides {
			var existing ThresholdOverride
			err := db.Where("tenant_id = ? AND key = ?", tenantID, key).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				row := ThresholdOverride{TenantID: tenantID, Key: key, Value: value}
				if err := db.Create(&row).Error; err != nil {
					return applied, err
				}
			} else if err != nil {
				return applied, err
			} else if existing.Value != value {
				if err := db.Model(&existing).Update("value", value).Error; err != nil {
					return applied, err
				}
			}
			applied++
		}
	}
	return applied, nil
}
