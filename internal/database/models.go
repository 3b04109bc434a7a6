package database

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Severity classifies the magnitude of a deviation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PurchaseOrderStatus represents the lifecycle status of a purchase order
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderStatusApproved  PurchaseOrderStatus = "approved"
	PurchaseOrderStatusActive    PurchaseOrderStatus = "active"
	PurchaseOrderStatusCompleted PurchaseOrderStatus = "completed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder represents a procurement purchase order
type PurchaseOrder struct {
	ID                  uint                `gorm:"primaryKey" json:"id"`
	TenantID            string              `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	ProjectID           string              `gorm:"type:varchar(64);index" json:"project_id"`
	Number              string              `gorm:"type:varchar(64);not null;uniqueIndex" json:"number"`
	SupplierName        string              `gorm:"type:varchar(255)" json:"supplier_name"`
	Status              PurchaseOrderStatus `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	TotalValue          decimal.Decimal     `gorm:"type:decimal(20,4)" json:"total_value"`
	RetentionPercentage decimal.Decimal     `gorm:"type:decimal(6,3)" json:"retention_percentage"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// MilestoneStatus represents the status of a delivery/payment milestone
type MilestoneStatus string

const (
	MilestoneStatusPlanned    MilestoneStatus = "planned"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusCompleted  MilestoneStatus = "completed"
)

// Milestone represents a payment/delivery milestone on a purchase order
type Milestone struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	PurchaseOrderID   uint            `gorm:"not null;index" json:"purchase_order_id"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	Status            MilestoneStatus `gorm:"type:varchar(20);not null;default:'planned'" json:"status"`
	ExpectedDate      *time.Time      `json:"expected_date,omitempty"`
	PaymentPercentage decimal.Decimal `gorm:"type:decimal(6,3)" json:"payment_percentage"`
	IsCriticalPath    bool            `gorm:"default:false" json:"is_critical_path"`
	Assignee          string          `gorm:"type:varchar(128)" json:"assignee"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	PurchaseOrder PurchaseOrder `gorm:"foreignKey:PurchaseOrderID" json:"-"`
}

// ShipmentStatus represents the logistics status of a shipment
type ShipmentStatus string

const (
	ShipmentStatusPreparing ShipmentStatus = "preparing"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Shipment represents a logistics shipment against a purchase order.
// LogisticsETA comes from carrier telemetry, SupplierETA is the supplier's
// self-declared arrival date, RequiredOnSite is the project's need-by date.
type Shipment struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	PurchaseOrderID    uint           `gorm:"not null;index" json:"purchase_order_id"`
	Reference          string         `gorm:"type:varchar(128)" json:"reference"`
	Status             ShipmentStatus `gorm:"type:varchar(20);not null;default:'preparing'" json:"status"`
	LogisticsETA       *time.Time     `json:"logistics_eta,omitempty"`
	SupplierETA        *time.Time     `json:"supplier_eta,omitempty"`
	RequiredOnSite     *time.Time     `json:"required_on_site,omitempty"`
	ActualDeliveryDate *time.Time     `json:"actual_delivery_date,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	PurchaseOrder PurchaseOrder `gorm:"foreignKey:PurchaseOrderID" json:"-"`
}

// DeliveryReceipt records what a site reported as received for a shipment
// against what the supplier declared was sent.
type DeliveryReceipt struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ShipmentID      uint            `gorm:"not null;index" json:"shipment_id"`
	PurchaseOrderID uint            `gorm:"not null;index" json:"purchase_order_id"`
	DeclaredQty     decimal.Decimal `gorm:"type:decimal(20,4)" json:"declared_qty"`
	ReceivedQty     decimal.Decimal `gorm:"type:decimal(20,4)" json:"received_qty"`
	Unit            string          `gorm:"type:varchar(32)" json:"unit"`
	ReceivedBy      string          `gorm:"type:varchar(128)" json:"received_by"`
	ReceivedAt      time.Time       `json:"received_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Shipment Shipment `gorm:"foreignKey:ShipmentID" json:"-"`
}

// InvoiceStatus represents the payment status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPendingApproval InvoiceStatus = "pending_approval"
	InvoiceStatusApproved        InvoiceStatus = "approved"
	InvoiceStatusPaid            InvoiceStatus = "paid"
	InvoiceStatusRejected        InvoiceStatus = "rejected"
)

// Invoice represents a supplier invoice against a purchase order
type Invoice struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	PurchaseOrderID uint            `gorm:"not null;index" json:"purchase_order_id"`
	Number          string          `gorm:"type:varchar(64);not null" json:"number"`
	Status          InvoiceStatus   `gorm:"type:varchar(20);not null;default:'pending_approval'" json:"status"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	InvoiceDate     time.Time       `json:"invoice_date"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	PurchaseOrder PurchaseOrder `gorm:"foreignKey:PurchaseOrderID" json:"-"`
}

// ProgressSource tags who reported a progress observation and how much it
// can be trusted. Forecast records are synthesized by the engine and are
// never compared against real reports.
type ProgressSource string

const (
	ProgressSourceSelfReported       ProgressSource = "self_reported"
	ProgressSourceInternallyVerified ProgressSource = "internally_verified"
	ProgressSourceForecast           ProgressSource = "forecast"
)

// ProgressRecord is an append-only progress observation for a milestone
type ProgressRecord struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	MilestoneID   uint           `gorm:"not null;index" json:"milestone_id"`
	Percent       float64        `gorm:"not null" json:"percent"`
	Source        ProgressSource `gorm:"type:varchar(32);not null;index" json:"source"`
	ReportedBy    string         `gorm:"type:varchar(128)" json:"reported_by"`
	ReportedAt    time.Time      `gorm:"not null;index" json:"reported_at"`
	ForecastBasis string         `gorm:"type:text" json:"forecast_basis,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`

	Milestone Milestone `gorm:"foreignKey:MilestoneID" json:"-"`
}

// BeforeCreate clamps the reported percent into the valid 0-100 range and
// defaults ReportedAt to now.
func (p *ProgressRecord) BeforeCreate(tx *gorm.DB) error {
	if p.Percent < 0 {
		p.Percent = 0
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	if p.ReportedAt.IsZero() {
		p.ReportedAt = time.Now()
	}
	return nil
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

func (Milestone) TableName() string {
	return "milestones"
}

func (Shipment) TableName() string {
	return "shipments"
}

func (DeliveryReceipt) TableName() string {
	return "delivery_receipts"
}

func (Invoice) TableName() string {
	return "invoices"
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}
