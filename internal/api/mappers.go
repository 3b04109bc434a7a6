package api

import "github.com/provanto/provanto/internal/database"

// ConflictToListItem converts a conflict record to its compact list
// representation. The event trail and description are omitted; clients fetch
// the full record by UUID when they need them.
func ConflictToListItem(c database.ConflictRecord) ConflictListItem {
	return ConflictListItem{
		UUID:             c.UUID,
		TenantID:         c.TenantID,
		ProjectID:        c.ProjectID,
		PurchaseOrderID:  c.PurchaseOrderID,
		Type:             c.Type,
		Status:           c.Status,
		Severity:         c.Severity,
		LinkedKind:       c.LinkedKind,
		LinkedID:         c.LinkedID,
		DeviationPercent: c.DeviationPercent,
		EscalationLevel:  c.EscalationLevel,
		SLADeadline:      c.SLADeadline,
		IsCriticalPath:   c.IsCriticalPath,
		IsFinancial:      c.IsFinancial,
		Assignee:         c.Assignee,
		CreatedAt:        c.CreatedAt,
		ResolvedAt:       c.ResolvedAt,
	}
}

// ConflictsToListItems converts a slice of conflict records to list items.
func ConflictsToListItems(conflicts []database.ConflictRecord) []ConflictListItem {
	items := make([]ConflictListItem, len(conflicts))
	for i, c := range conflicts {
		items[i] = ConflictToListItem(c)
	}
	return items
}
