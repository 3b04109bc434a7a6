package api

import (
	"time"

	"github.com/provanto/provanto/internal/database"
)

// ========== Auth Types ==========

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for POST /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ========== Conflict Action Types ==========

// ResolveConflictRequest is the request body for POST /api/conflicts/:uuid/resolve.
type ResolveConflictRequest struct {
	Note string `json:"note" validate:"omitempty,max=2048"`
}

// RejectConflictRequest is the request body for POST /api/conflicts/:uuid/reject.
type RejectConflictRequest struct {
	Note string `json:"note" validate:"required,max=2048"`
}

// EscalateConflictRequest is the request body for POST /api/conflicts/:uuid/escalate.
type EscalateConflictRequest struct {
	Level int    `json:"level" validate:"required,min=1,max=3"`
	Note  string `json:"note" validate:"omitempty,max=2048"`
}

// CloseConflictRequest is the request body for POST /api/conflicts/:uuid/close.
type CloseConflictRequest struct {
	Note string `json:"note" validate:"required,max=2048"`
}

// ========== Ingestion Types ==========

// CreateProgressReportRequest is the request body for POST /api/progress-reports.
type CreateProgressReportRequest struct {
	MilestoneID uint    `json:"milestone_id" validate:"required"`
	Percent     float64 `json:"percent" validate:"min=0,max=100"`
	Source      string  `json:"source" validate:"required,oneof=self_reported internally_verified"`
	ReportedBy  string  `json:"reported_by" validate:"required,max=128"`
}

// CreateReceiptRequest is the request body for POST /api/receipts.
// Quantities arrive as decimal strings to avoid float rounding on the wire.
type CreateReceiptRequest struct {
	ShipmentID  uint   `json:"shipment_id" validate:"required"`
	DeclaredQty string `json:"declared_qty" validate:"required"`
	ReceivedQty string `json:"received_qty" validate:"required"`
	Unit        string `json:"unit" validate:"omitempty,max=32"`
	ReceivedBy  string `json:"received_by" validate:"omitempty,max=128"`
}

// UpdateShipmentETARequest is the request body for POST /api/shipments/:id/eta.
type UpdateShipmentETARequest struct {
	LogisticsETA *time.Time `json:"logistics_eta"`
	SupplierETA  *time.Time `json:"supplier_eta"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ========== Mapper Output Types ==========

// ConflictListItem is a compact representation of a conflict for list views.
// It omits the event trail and free-text fields to reduce response size.
type ConflictListItem struct {
	UUID             string                  `json:"uuid"`
	TenantID         string                  `json:"tenant_id"`
	ProjectID        string                  `json:"project_id"`
	PurchaseOrderID  uint                    `json:"purchase_order_id"`
	Type             database.ConflictType   `json:"type"`
	Status           database.ConflictStatus `json:"status"`
	Severity         database.Severity       `json:"severity"`
	LinkedKind       database.LinkedKind     `json:"linked_kind"`
	LinkedID         uint                    `json:"linked_id"`
	DeviationPercent float64                 `json:"deviation_percent"`
	EscalationLevel  int                     `json:"escalation_level"`
	SLADeadline      time.Time               `json:"sla_deadline"`
	IsCriticalPath   bool                    `json:"is_critical_path"`
	IsFinancial      bool                    `json:"is_financial"`
	Assignee         string                  `json:"assignee"`
	CreatedAt        time.Time               `json:"created_at"`
	ResolvedAt       *time.Time              `json:"resolved_at,omitempty"`
}
