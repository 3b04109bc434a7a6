package testhelpers

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
)

// ========================================
// Purchase Order Builder
// ========================================

// PurchaseOrderBuilder builds PurchaseOrder rows for testing
type PurchaseOrderBuilder struct {
	po database.PurchaseOrder
}

// NewPurchaseOrderBuilder creates a builder with defaults
func NewPurchaseOrderBuilder() *PurchaseOrderBuilder {
	return &PurchaseOrderBuilder{
		po: database.PurchaseOrder{
			TenantID:     "tenant-1",
			ProjectID:    "project-1",
			Number:       fmt.Sprintf("PO-%s", uuid.NewString()[:8]),
			SupplierName: "Test Supplier",
			Status:       database.PurchaseOrderStatusActive,
			TotalValue:   decimal.NewFromInt(100000),
		},
	}
}

// WithTenant sets the tenant ID
func (b *PurchaseOrderBuilder) WithTenant(tenantID string) *PurchaseOrderBuilder {
	b.po.TenantID = tenantID
	return b
}

// WithProject sets the project ID
func (b *PurchaseOrderBuilder) WithProject(projectID string) *PurchaseOrderBuilder {
	b.po.ProjectID = projectID
	return b
}

// WithStatus sets the status
func (b *PurchaseOrderBuilder) WithStatus(status database.PurchaseOrderStatus) *PurchaseOrderBuilder {
	b.po.Status = status
	return b
}

// WithTotalValue sets the total value
func (b *PurchaseOrderBuilder) WithTotalValue(value int64) *PurchaseOrderBuilder {
	b.po.TotalValue = decimal.NewFromInt(value)
	return b
}

// Build returns the constructed purchase order
func (b *PurchaseOrderBuilder) Build() database.PurchaseOrder {
	return b.po
}

// Create persists the purchase order
func (b *PurchaseOrderBuilder) Create(t *testing.T, db *gorm.DB) *database.PurchaseOrder {
	t.Helper()
	po := b.po
	if err := db.Create(&po).Error; err != nil {
		t.Fatalf("failed to create purchase order: %v", err)
	}
	return &po
}

// ========================================
// Milestone Builder
// ========================================

// MilestoneBuilder builds Milestone rows for testing
type MilestoneBuilder struct {
	milestone database.Milestone
}

// NewMilestoneBuilder creates a builder with defaults
func NewMilestoneBuilder(purchaseOrderID uint) *MilestoneBuilder {
	return &MilestoneBuilder{
		milestone: database.Milestone{
			PurchaseOrderID:   purchaseOrderID,
			Name:              "Test Milestone",
			Status:            database.MilestoneStatusInProgress,
			PaymentPercentage: decimal.NewFromInt(25),
			Assignee:          "pm@test",
		},
	}
}

// WithName sets the milestone name
func (b *MilestoneBuilder) WithName(name string) *MilestoneBuilder {
	b.milestone.Name = name
	return b
}

// WithStatus sets the status
func (b *MilestoneBuilder) WithStatus(status database.MilestoneStatus) *MilestoneBuilder {
	b.milestone.Status = status
	return b
}

// WithExpectedDate sets the expected date
func (b *MilestoneBuilder) WithExpectedDate(d time.Time) *MilestoneBuilder {
	b.milestone.ExpectedDate = &d
	return b
}

// OnCriticalPath marks the milestone as critical-path
func (b *MilestoneBuilder) OnCriticalPath() *MilestoneBuilder {
	b.milestone.IsCriticalPath = true
	return b
}

// Create persists the milestone
func (b *MilestoneBuilder) Create(t *testing.T, db *gorm.DB) *database.Milestone {
	t.Helper()
	m := b.milestone
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("failed to create milestone: %v", err)
	}
	return &m
}

// ========================================
// Shipment Builder
// ========================================

// ShipmentBuilder builds Shipment rows for testing
type ShipmentBuilder struct {
	shipment database.Shipment
}

// NewShipmentBuilder creates a builder with defaults
func NewShipmentBuilder(purchaseOrderID uint) *ShipmentBuilder {
	return &ShipmentBuilder{
		shipment: database.Shipment{
			PurchaseOrderID: purchaseOrderID,
			Reference:       fmt.Sprintf("SH-%s", uuid.NewString()[:8]),
			Status:          database.ShipmentStatusInTransit,
		},
	}
}

// WithLogisticsETA sets the carrier ETA
func (b *ShipmentBuilder) WithLogisticsETA(d time.Time) *ShipmentBuilder {
	b.shipment.LogisticsETA = &d
	return b
}

// WithSupplierETA sets the supplier's declared arrival
func (b *ShipmentBuilder) WithSupplierETA(d time.Time) *ShipmentBuilder {
	b.shipment.SupplierETA = &d
	return b
}

// WithRequiredOnSite sets the need-by date
func (b *ShipmentBuilder) WithRequiredOnSite(d time.Time) *ShipmentBuilder {
	b.shipment.RequiredOnSite = &d
	return b
}

// Create persists the shipment
func (b *ShipmentBuilder) Create(t *testing.T, db *gorm.DB) *database.Shipment {
	t.Helper()
	s := b.shipment
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("failed to create shipment: %v", err)
	}
	return &s
}

// ========================================
// Progress Record Helper
// ========================================

// CreateProgressRecord persists one progress observation
func CreateProgressRecord(t *testing.T, db *gorm.DB, milestoneID uint, source database.ProgressSource, percent float64, reportedAt time.Time) *database.ProgressRecord {
	t.Helper()
	record := database.ProgressRecord{
		MilestoneID: milestoneID,
		Source:      source,
		Percent:     percent,
		ReportedBy:  "test",
		ReportedAt:  reportedAt,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to create progress record: %v", err)
	}
	return &record
}

// ========================================
// Conflict Record Builder
// ========================================

// ConflictRecordBuilder builds ConflictRecord rows for testing
type ConflictRecordBuilder struct {
	record database.ConflictRecord
}

// NewConflictRecordBuilder creates a builder with defaults: an open
// medium-severity progress mismatch at escalation level 0.
func NewConflictRecordBuilder() *ConflictRecordBuilder {
	return &ConflictRecordBuilder{
		record: database.ConflictRecord{
			UUID:             uuid.NewString(),
			TenantID:         "tenant-1",
			ProjectID:        "project-1",
			Type:             database.ConflictTypeProgressMismatch,
			Status:           database.ConflictStatusOpen,
			Severity:         database.SeverityMedium,
			LinkedKind:       database.LinkedKindMilestone,
			LinkedID:         1,
			DeviationPercent: 15,
			SLADeadline:      time.Now().Add(72 * time.Hour),
		},
	}
}

// WithTenant sets the tenant ID
func (b *ConflictRecordBuilder) WithTenant(tenantID string) *ConflictRecordBuilder {
	b.record.TenantID = tenantID
	return b
}

// WithType sets the conflict type
func (b *ConflictRecordBuilder) WithType(t database.ConflictType) *ConflictRecordBuilder {
	b.record.Type = t
	return b
}

// WithStatus sets the status
func (b *ConflictRecordBuilder) WithStatus(status database.ConflictStatus) *ConflictRecordBuilder {
	b.record.Status = status
	return b
}

// WithSeverity sets the severity
func (b *ConflictRecordBuilder) WithSeverity(severity database.Severity) *ConflictRecordBuilder {
	b.record.Severity = severity
	return b
}

// WithLink sets the linked entity
func (b *ConflictRecordBuilder) WithLink(kind database.LinkedKind, id uint) *ConflictRecordBuilder {
	b.record.LinkedKind = kind
	b.record.LinkedID = id
	return b
}

// WithPurchaseOrder sets the purchase order ID
func (b *ConflictRecordBuilder) WithPurchaseOrder(id uint) *ConflictRecordBuilder {
	b.record.PurchaseOrderID = id
	return b
}

// WithEscalationLevel sets the escalation level
func (b *ConflictRecordBuilder) WithEscalationLevel(level int) *ConflictRecordBuilder {
	b.record.EscalationLevel = level
	return b
}

// OnCriticalPath marks the conflict as critical-path
func (b *ConflictRecordBuilder) OnCriticalPath() *ConflictRecordBuilder {
	b.record.IsCriticalPath = true
	return b
}

// Financial marks the conflict as financially impactful
func (b *ConflictRecordBuilder) Financial() *ConflictRecordBuilder {
	b.record.IsFinancial = true
	return b
}

// WithAssignee sets the assignee
func (b *ConflictRecordBuilder) WithAssignee(assignee string) *ConflictRecordBuilder {
	b.record.Assignee = assignee
	return b
}

// Build returns the constructed record without persisting it
func (b *ConflictRecordBuilder) Build() database.ConflictRecord {
	return b.record
}

// Create persists the conflict record
func (b *ConflictRecordBuilder) Create(t *testing.T, db *gorm.DB) *database.ConflictRecord {
	t.Helper()
	record := b.record
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to create conflict record: %v", err)
	}
	return &record
}

// BackdateConflict rewrites a conflict's created_at, for tests exercising
// elapsed-time windows. gorm autofills created_at on insert, so it has to be
// updated after the fact.
func BackdateConflict(t *testing.T, db *gorm.DB, record *database.ConflictRecord, createdAt time.Time) {
	t.Helper()
	if err := db.Model(record).Update("created_at", createdAt).Error; err != nil {
		t.Fatalf("failed to backdate conflict: %v", err)
	}
	record.CreatedAt = createdAt
}
