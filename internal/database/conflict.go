package database

import (
	"time"

	"gorm.io/gorm"
)

// ConflictType classifies what kind of discrepancy a conflict tracks.
// Each type has a statically-known mapping to the thresholds that govern it.
type ConflictType string

const (
	ConflictTypeQuantityMismatch ConflictType = "quantity_mismatch"
	ConflictTypeProgressMismatch ConflictType = "progress_mismatch"
	ConflictTypeDateVariance     ConflictType = "date_variance"
	ConflictTypeEvidenceFailure  ConflictType = "evidence_failure"
	ConflictTypeNCR              ConflictType = "ncr_conflict"
)

// ConflictStatus represents the lifecycle state of a conflict record
type ConflictStatus string

const (
	ConflictStatusOpen      ConflictStatus = "open"
	ConflictStatusReview    ConflictStatus = "review"
	ConflictStatusEscalated ConflictStatus = "escalated"
	ConflictStatusResolved  ConflictStatus = "resolved"
	ConflictStatusClosed    ConflictStatus = "closed"
)

// IsTerminal reports whether no further transition may leave this status.
func (s ConflictStatus) IsTerminal() bool {
	return s == ConflictStatusResolved || s == ConflictStatusClosed
}

// LinkedKind identifies which narrower entity triggered a conflict.
// At most one (kind, id) pair is authoritative and it never changes.
type LinkedKind string

const (
	LinkedKindMilestone       LinkedKind = "milestone"
	LinkedKindShipment        LinkedKind = "shipment"
	LinkedKindDeliveryReceipt LinkedKind = "delivery_receipt"
	LinkedKindInvoice         LinkedKind = "invoice"
)

// Escalation levels form an authority chain. The level of an open conflict
// is monotonically non-decreasing; it freezes on resolution.
const (
	EscalationLevelNone       = 0
	EscalationLevelFirstLine  = 1
	EscalationLevelManagement = 2
	EscalationLevelFinance    = 3
)

// ConflictRecord tracks a discrepancy between two data sources until it is
// resolved by a human or by the data realigning.
type ConflictRecord struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UUID            string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	TenantID        string         `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	ProjectID       string         `gorm:"type:varchar(64);index" json:"project_id"`
	PurchaseOrderID uint           `gorm:"index" json:"purchase_order_id"`
	Type            ConflictType   `gorm:"type:varchar(32);not null;index" json:"type"`
	Status          ConflictStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Severity        Severity       `gorm:"type:varchar(10);not null" json:"severity"`

	// Linkage to the entity that triggered the conflict. Immutable.
	LinkedKind LinkedKind `gorm:"type:varchar(32);not null;index:idx_conflict_link" json:"linked_kind"`
	LinkedID   uint       `gorm:"not null;index:idx_conflict_link" json:"linked_id"`

	// Measurement snapshot for audit display.
	SourceValue      string  `gorm:"type:varchar(255)" json:"source_value"`
	FieldValue       string  `gorm:"type:varchar(255)" json:"field_value"`
	DeviationPercent float64 `json:"deviation_percent"`

	EscalationLevel int        `gorm:"default:0" json:"escalation_level"`
	LastReminderAt  *time.Time `json:"last_reminder_at,omitempty"`
	SLADeadline     time.Time  `json:"sla_deadline"`
	IsCriticalPath  bool       `gorm:"default:false" json:"is_critical_path"`
	IsFinancial     bool       `gorm:"default:false" json:"is_financial"`

	AutoResolved       bool       `gorm:"default:false" json:"auto_resolved"`
	AutoResolvedReason string     `gorm:"type:text" json:"auto_resolved_reason,omitempty"`
	Assignee           string     `gorm:"type:varchar(128)" json:"assignee"`
	Description        string     `gorm:"type:text" json:"description"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Events []ConflictEvent `gorm:"foreignKey:ConflictID" json:"events,omitempty"`
}

func (ConflictRecord) TableName() string {
	return "conflict_records"
}

// ConflictEvent is one entry in a conflict's append-only audit trail
type ConflictEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ConflictID uint      `gorm:"not null;index" json:"conflict_id"`
	At         time.Time `gorm:"not null" json:"at"`
	Actor      string    `gorm:"type:varchar(128);not null" json:"actor"`
	Action     string    `gorm:"type:varchar(64);not null" json:"action"`
	Note       string    `gorm:"type:text" json:"note"`
}

func (ConflictEvent) TableName() string {
	return "conflict_events"
}

// openStatuses are the states in which a conflict counts as open for the
// duplicate-open guard and the periodic sweeps.
var openStatuses = []ConflictStatus{
	ConflictStatusOpen,
	ConflictStatusReview,
	ConflictStatusEscalated,
}

// FindOpenConflict returns the single open conflict for a (type, link) pair,
// or gorm.ErrRecordNotFound if none exists.
func FindOpenConflict(db *gorm.DB, conflictType ConflictType, kind LinkedKind, linkedID uint) (*ConflictRecord, error) {
	var c ConflictRecord
	err := db.Where("type = ? AND linked_kind = ? AND linked_id = ? AND status IN ?",
		conflictType, kind, linkedID, openStatuses).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConflictFilter narrows ListOpenConflicts results. Zero values mean "any";
// a Limit of zero means no page window.
type ConflictFilter struct {
	TenantID  string
	ProjectID string
	Type      ConflictType
	Status    ConflictStatus
	Limit     int
	Offset    int
}

func openConflictQuery(db *gorm.DB, filter ConflictFilter) *gorm.DB {
	query := db.Model(&ConflictRecord{}).Where("status IN ?", openStatuses)
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.ProjectID != "" {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

// ListOpenConflicts returns non-terminal conflicts matching the filter,
// oldest first so long-waiting conflicts are processed before fresh ones.
// The page window is applied in SQL so large conflict tables are never
// materialized whole; the id tie-break keeps pages stable when records
// share a creation timestamp.
func ListOpenConflicts(db *gorm.DB, filter ConflictFilter) ([]ConflictRecord, error) {
	query := openConflictQuery(db, filter).Order("created_at ASC, id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var conflicts []ConflictRecord
	if err := query.Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

// CountOpenConflicts returns the total number of non-terminal conflicts
// matching the filter, ignoring its page window.
func CountOpenConflicts(db *gorm.DB, filter ConflictFilter) (int64, error) {
	var total int64
	if err := openConflictQuery(db, filter).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// GetConflictByUUID loads a conflict by its public UUID
func GetConflictByUUID(db *gorm.DB, uuid string) (*ConflictRecord, error) {
	var c ConflictRecord
	if err := db.Where("uuid = ?", uuid).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConflictEvents returns the audit trail for a conflict, oldest first
func ListConflictEvents(db *gorm.DB, conflictID uint) ([]ConflictEvent, error) {
	var events []ConflictEvent
	err := db.Where("conflict_id = ?", conflictID).Order("at ASC, id ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
