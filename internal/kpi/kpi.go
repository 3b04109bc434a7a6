// Package kpi computes dashboard aggregates over purchase orders,
// milestones, shipments, invoices, and conflict records. All queries are
// plain SQL aggregates pushed into the database; the service holds no state.
package kpi

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
)

// Filter narrows KPI queries to a tenant and optionally one project and a
// purchase-order creation window.
type Filter struct {
	TenantID  string
	ProjectID string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// Service computes KPIs on demand
type Service struct {
	db *gorm.DB
}

// NewService creates a KPI service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// poFilter builds the purchase-order WHERE fragment shared by all KPI
// queries. The alias is always "po".
func (f Filter) poClause() (string, []interface{}) {
	clause := "po.tenant_id = ?"
	args := []interface{}{f.TenantID}
	if f.ProjectID != "" {
		clause += " AND po.project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.DateFrom != nil {
		clause += " AND po.created_at >= ?"
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		clause += " AND po.created_at <= ?"
		args = append(args, *f.DateTo)
	}
	return clause, args
}

// FinancialKPIs summarizes committed vs paid value
type FinancialKPIs struct {
	TotalCommitted float64 `json:"total_committed"`
	TotalPaid      float64 `json:"total_paid"`
	TotalUnpaid    float64 `json:"total_unpaid"`
	RetentionHeld  float64 `json:"retention_held"`
}

// Financial computes committed, paid, unpaid, and retention-held totals
func (s *Service) Financial(f Filter) (*FinancialKPIs, error) {
	clause, args := f.poClause()

	var po struct {
		TotalValue   float64
		RetentionPct float64
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COALESCE(SUM(po.total_value), 0) AS total_value,
		       COALESCE(AVG(po.retention_percentage), 0) AS retention_pct
		FROM purchase_orders po
		WHERE %s`, clause), args...).Scan(&po).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute financial KPIs: %w", err)
	}

	var paid struct{ Amount float64 }
	err = s.db.Raw(fmt.Sprintf(`
		SELECT COALESCE(SUM(inv.amount), 0) AS amount
		FROM invoices inv
		INNER JOIN purchase_orders po ON inv.purchase_order_id = po.id
		WHERE inv.status = ? AND %s`, clause),
		append([]interface{}{database.InvoiceStatusPaid}, args...)...).Scan(&paid).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute paid invoice total: %w", err)
	}

	return &FinancialKPIs{
		TotalCommitted: po.TotalValue,
		TotalPaid:      paid.Amount,
		TotalUnpaid:    po.TotalValue - paid.Amount,
		RetentionHeld:  paid.Amount * po.RetentionPct / 100,
	}, nil
}

// ProgressKPIs summarizes milestone completion across the portfolio
type ProgressKPIs struct {
	PhysicalProgress    float64 `json:"physical_progress"`
	MilestonesTotal     int     `json:"milestones_total"`
	MilestonesCompleted int     `json:"milestones_completed"`
	OnTrackCount        int     `json:"on_track_count"`
	AtRiskCount         int     `json:"at_risk_count"`
	DelayedCount        int     `json:"delayed_count"`
	ActivePOs           int     `json:"active_pos"`
	TotalPOs            int     `json:"total_pos"`
}

// Progress computes milestone completion KPIs. Physical progress is the sum
// of payment percentages of completed milestones; delayed means past the
// expected date, at-risk means due within seven days.
func (s *Service) Progress(f Filter) (*ProgressKPIs, error) {
	clause, args := f.poClause()
	now := time.Now()
	soon := now.Add(7 * 24 * time.Hour)

	var po struct {
		Total  int
		Active int
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN po.status IN (?, ?) THEN 1 ELSE 0 END), 0) AS active
		FROM purchase_orders po
		WHERE %s`, clause),
		append([]interface{}{database.PurchaseOrderStatusActive, database.PurchaseOrderStatusApproved}, args...)...).
		Scan(&po).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute purchase order counts: %w", err)
	}

	var ms struct {
		Total        int
		Completed    int
		Delayed      int
		AtRisk       int
		CompletedPct float64
	}
	err = s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN m.status = ? THEN 1 ELSE 0 END), 0) AS completed,
		       COALESCE(SUM(CASE WHEN m.status != ? AND m.expected_date < ? THEN 1 ELSE 0 END), 0) AS delayed,
		       COALESCE(SUM(CASE WHEN m.status != ? AND m.expected_date >= ? AND m.expected_date <= ? THEN 1 ELSE 0 END), 0) AS at_risk,
		       COALESCE(SUM(CASE WHEN m.status = ? THEN m.payment_percentage ELSE 0 END), 0) AS completed_pct
		FROM milestones m
		INNER JOIN purchase_orders po ON m.purchase_order_id = po.id
		WHERE %s`, clause),
		append([]interface{}{
			database.MilestoneStatusCompleted,
			database.MilestoneStatusCompleted, now,
			database.MilestoneStatusCompleted, now, soon,
			database.MilestoneStatusCompleted,
		}, args...)...).Scan(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute milestone KPIs: %w", err)
	}

	onTrack := ms.Total - ms.Completed - ms.Delayed - ms.AtRisk
	if onTrack < 0 {
		onTrack = 0
	}

	return &ProgressKPIs{
		PhysicalProgress:    ms.CompletedPct,
		MilestonesTotal:     ms.Total,
		MilestonesCompleted: ms.Completed,
		OnTrackCount:        onTrack,
		AtRiskCount:         ms.AtRisk,
		DelayedCount:        ms.Delayed,
		ActivePOs:           po.Active,
		TotalPOs:            po.Total,
	}, nil
}

// QualityKPIs summarizes the conflict workload
type QualityKPIs struct {
	TotalConflicts     int     `json:"total_conflicts"`
	OpenConflicts      int     `json:"open_conflicts"`
	EscalatedConflicts int     `json:"escalated_conflicts"`
	HighSeverity       int     `json:"high_severity"`
	AutoResolved       int     `json:"auto_resolved"`
	AutoResolveRate    float64 `json:"auto_resolve_rate"`
}

// Quality computes conflict-workload KPIs. The auto-resolve rate is the
// share of resolved conflicts that closed without human action.
func (s *Service) Quality(f Filter) (*QualityKPIs, error) {
	clause, args := f.poClause()

	var row struct {
		Total        int
		Open         int
		Escalated    int
		High         int
		Resolved     int
		AutoResolved int
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN c.status IN (?, ?) THEN 1 ELSE 0 END), 0) AS open,
		       COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0) AS escalated,
		       COALESCE(SUM(CASE WHEN c.severity = ? AND c.status NOT IN (?, ?) THEN 1 ELSE 0 END), 0) AS high,
		       COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0) AS resolved,
		       COALESCE(SUM(CASE WHEN c.status = ? AND c.auto_resolved THEN 1 ELSE 0 END), 0) AS auto_resolved
		FROM conflict_records c
		INNER JOIN purchase_orders po ON c.purchase_order_id = po.id
		WHERE %s`, clause),
		append([]interface{}{
			database.ConflictStatusOpen, database.ConflictStatusReview,
			database.ConflictStatusEscalated,
			database.SeverityHigh, database.ConflictStatusResolved, database.ConflictStatusClosed,
			database.ConflictStatusResolved,
			database.ConflictStatusResolved,
		}, args...)...).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute quality KPIs: %w", err)
	}

	rate := 0.0
	if row.Resolved > 0 {
		rate = float64(row.AutoResolved) / float64(row.Resolved) * 100
	}

	return &QualityKPIs{
		TotalConflicts:     row.Total,
		OpenConflicts:      row.Open,
		EscalatedConflicts: row.Escalated,
		HighSeverity:       row.High,
		AutoResolved:       row.AutoResolved,
		AutoResolveRate:    rate,
	}, nil
}

// PaymentKPIs summarizes invoice health
type PaymentKPIs struct {
	PendingInvoiceCount int     `json:"pending_invoice_count"`
	OverdueInvoiceCount int     `json:"overdue_invoice_count"`
	OverdueAmount       float64 `json:"overdue_amount"`
	AvgPaymentCycleDays float64 `json:"avg_payment_cycle_days"`
}

// Payments computes invoice pipeline KPIs
func (s *Service) Payments(f Filter) (*PaymentKPIs, error) {
	clause, args := f.poClause()
	now := time.Now()

	var row struct {
		Pending       int
		Overdue       int
		OverdueAmount float64
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COALESCE(SUM(CASE WHEN inv.status IN (?, ?) THEN 1 ELSE 0 END), 0) AS pending,
		       COALESCE(SUM(CASE WHEN inv.status != ? AND inv.due_date < ? THEN 1 ELSE 0 END), 0) AS overdue,
		       COALESCE(SUM(CASE WHEN inv.status != ? AND inv.due_date < ? THEN inv.amount ELSE 0 END), 0) AS overdue_amount
		FROM invoices inv
		INNER JOIN purchase_orders po ON inv.purchase_order_id = po.id
		WHERE %s`, clause),
		append([]interface{}{
			database.InvoiceStatusPendingApproval, database.InvoiceStatusApproved,
			database.InvoiceStatusPaid, now,
			database.InvoiceStatusPaid, now,
		}, args...)...).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute payment KPIs: %w", err)
	}

	// The paid-cycle average is computed in Go since date arithmetic differs
	// between postgres and sqlite.
	var paid []database.Invoice
	err = s.db.Joins("INNER JOIN purchase_orders po ON invoices.purchase_order_id = po.id").
		Where("invoices.status = ?", database.InvoiceStatusPaid).
		Where(clause, args...).
		Find(&paid).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load paid invoices: %w", err)
	}

	cycleDays := 0.0
	counted := 0
	for _, inv := range paid {
		if inv.PaidAt == nil {
			continue
		}
		cycleDays += inv.PaidAt.Sub(inv.InvoiceDate).Hours() / 24
		counted++
	}
	avgCycle := 0.0
	if counted > 0 {
		avgCycle = cycleDays / float64(counted)
	}

	return &PaymentKPIs{
		PendingInvoiceCount: row.Pending,
		OverdueInvoiceCount: row.Overdue,
		OverdueAmount:       row.OverdueAmount,
		AvgPaymentCycleDays: avgCycle,
	}, nil
}

// LogisticsKPIs summarizes shipment delivery performance
type LogisticsKPIs struct {
	TotalShipments int     `json:"total_shipments"`
	InTransit      int     `json:"in_transit"`
	Delivered      int     `json:"delivered"`
	OnTimeCount    int     `json:"on_time_count"`
	DelayedCount   int     `json:"delayed_count"`
	OnTimeRate     float64 `json:"on_time_rate"`
}

// Logistics computes shipment delivery KPIs. On-time means the actual
// delivery date did not exceed the carrier ETA.
func (s *Service) Logistics(f Filter) (*LogisticsKPIs, error) {
	clause, args := f.poClause()

	var row struct {
		Total     int
		InTransit int
		Delivered int
		OnTime    int
		Delayed   int
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN sh.status = ? THEN 1 ELSE 0 END), 0) AS in_transit,
		       COALESCE(SUM(CASE WHEN sh.status = ? THEN 1 ELSE 0 END), 0) AS delivered,
		       COALESCE(SUM(CASE WHEN sh.status = ? AND sh.actual_delivery_date <= sh.logistics_eta THEN 1 ELSE 0 END), 0) AS on_time,
		       COALESCE(SUM(CASE WHEN sh.status = ? AND sh.actual_delivery_date > sh.logistics_eta THEN 1 ELSE 0 END), 0) AS delayed
		FROM shipments sh
		INNER JOIN purchase_orders po ON sh.purchase_order_id = po.id
		WHERE %s`, clause),
		append([]interface{}{
			database.ShipmentStatusInTransit,
			database.ShipmentStatusDelivered,
			database.ShipmentStatusDelivered,
			database.ShipmentStatusDelivered,
		}, args...)...).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute logistics KPIs: %w", err)
	}

	rate := 0.0
	if row.Delivered > 0 {
		rate = float64(row.OnTime) / float64(row.Delivered) * 100
	}

	return &LogisticsKPIs{
		TotalShipments: row.Total,
		InTransit:      row.InTransit,
		Delivered:      row.Delivered,
		OnTimeCount:    row.OnTime,
		DelayedCount:   row.Delayed,
		OnTimeRate:     rate,
	}, nil
}

// Dashboard bundles all KPI groups in one response
type Dashboard struct {
	Financial *FinancialKPIs `json:"financial"`
	Progress  *ProgressKPIs  `json:"progress"`
	Quality   *QualityKPIs   `json:"quality"`
	Payments  *PaymentKPIs   `json:"payments"`
	Logistics *LogisticsKPIs `json:"logistics"`
	Timestamp time.Time      `json:"timestamp"`
}

// GetDashboard computes all KPI groups for one filter
func (s *Service) GetDashboard(f Filter) (*Dashboard, error) {
	financial, err := s.Financial(f)
	if err != nil {
		return nil, err
	}
	progress, err := s.Progress(f)
	if err != nil {
		return nil, err
	}
	quality, err := s.Quality(f)
	if err != nil {
		return nil, err
	}
	payments, err := s.Payments(f)
	if err != nil {
		return nil, err
	}
	logistics, err := s.Logistics(f)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Financial: financial,
		Progress:  progress,
		Quality:   quality,
		Payments:  payments,
		Logistics: logistics,
		Timestamp: time.Now(),
	}, nil
}
