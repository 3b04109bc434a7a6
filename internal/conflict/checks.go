package conflict

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/detect"
)

// The Check* functions load the current measurement pair for an entity, run
// the matching detector, and report the verdict. They are invoked
// synchronously when new data arrives and again by the auto-resolution
// sweep, which is what lets conflicts close themselves once data realigns.
//
// A nil record with a nil error means the pair could not be checked (a side
// is missing) or nothing was open and nothing breached.

// CheckMilestoneProgress compares the two most recent non-forecast progress
// observations for a milestone, one self-reported and one internally
// verified. No conflict is raised if either side is missing.
func (s *Service) CheckMilestoneProgress(milestoneID uint, thresholds *database.Thresholds) (*database.ConflictRecord, error) {
	var milestone database.Milestone
	if err := s.db.Preload("PurchaseOrder").First(&milestone, milestoneID).Error; err != nil {
		return nil, fmt.Errorf("milestone %d not found: %w", milestoneID, err)
	}

	selfReported, err := database.LatestProgressBySource(s.db, milestoneID, database.ProgressSourceSelfReported)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	verified, err := database.LatestProgressBySource(s.db, milestoneID, database.ProgressSourceInternallyVerified)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	verdict := detect.CompareProgress(selfReported.Percent, verified.Percent, thresholds)
	return s.Report(Observation{
		TenantID:        milestone.PurchaseOrder.TenantID,
		ProjectID:       milestone.PurchaseOrder.ProjectID,
		PurchaseOrderID: milestone.PurchaseOrderID,
		Type:            database.ConflictTypeProgressMismatch,
		LinkedKind:      database.LinkedKindMilestone,
		LinkedID:        milestone.ID,
		SourceValue:     fmt.Sprintf("%.1f%% (self-reported)", selfReported.Percent),
		FieldValue:      fmt.Sprintf("%.1f%% (verified)", verified.Percent),
		IsCriticalPath:  milestone.IsCriticalPath,
		Assignee:        milestone.Assignee,
		Description:     fmt.Sprintf("progress mismatch on milestone %q", milestone.Name),
	}, verdict, thresholds)
}

// CheckDeliveryReceipt compares declared vs received quantities for a
// delivery receipt. Quantity mismatches carry a billing impact, so they are
// flagged financial.
func (s *Service) CheckDeliveryReceipt(receiptID uint, thresholds *database.Thresholds) (*database.ConflictRecord, error) {
	var receipt database.DeliveryReceipt
	if err := s.db.First(&receipt, receiptID).Error; err != nil {
		return nil, fmt.Errorf("delivery receipt %d not found: %w", receiptID, err)
	}

	var po database.PurchaseOrder
	if err := s.db.First(&po, receipt.PurchaseOrderID).Error; err != nil {
		return nil, fmt.Errorf("purchase order %d not found: %w", receipt.PurchaseOrderID, err)
	}

	verdict := detect.CompareQuantity(receipt.DeclaredQty, receipt.ReceivedQty, thresholds)
	return s.Report(Observation{
		TenantID:        po.TenantID,
		ProjectID:       po.ProjectID,
		PurchaseOrderID: po.ID,
		Type:            database.ConflictTypeQuantityMismatch,
		LinkedKind:      database.LinkedKindDeliveryReceipt,
		LinkedID:        receipt.ID,
		SourceValue:     fmt.Sprintf("%s %s declared", receipt.DeclaredQty.String(), receipt.Unit),
		FieldValue:      fmt.Sprintf("%s %s received", receipt.ReceivedQty.String(), receipt.Unit),
		IsFinancial:     true,
		Description:     fmt.Sprintf("quantity mismatch on delivery receipt for PO %s", po.Number),
	}, verdict, thresholds)
}

// CheckShipmentSchedule compares the best delivery-date estimate for a
// shipment (carrier ETA, falling back to the supplier's declared arrival)
// against the project's required-on-site date. The pair cannot be checked
// until both sides are known.
func (s *Service) CheckShipmentSchedule(shipmentID uint, thresholds *database.Thresholds) (*database.ConflictRecord, error) {
	var shipment database.Shipment
	if err := s.db.Preload("PurchaseOrder").First(&shipment, shipmentID).Error; err != nil {
		return nil, fmt.Errorf("shipment %d not found: %w", shipmentID, err)
	}

	estimate := shipment.LogisticsETA
	estimateLabel := "carrier ETA"
	if estimate == nil {
		estimate = shipment.SupplierETA
		estimateLabel = "supplier ETA"
	}
	if estimate == nil || shipment.RequiredOnSite == nil {
		return nil, nil
	}

	verdict := detect.CompareSchedule(*estimate, *shipment.RequiredOnSite, thresholds)
	return s.Report(Observation{
		TenantID:        shipment.PurchaseOrder.TenantID,
		ProjectID:       shipment.PurchaseOrder.ProjectID,
		PurchaseOrderID: shipment.PurchaseOrderID,
		Type:            database.ConflictTypeDateVariance,
		LinkedKind:      database.LinkedKindShipment,
		LinkedID:        shipment.ID,
		SourceValue:     fmt.Sprintf("%s %s", estimateLabel, estimate.Format("2006-01-02")),
		FieldValue:      fmt.Sprintf("required on site %s", shipment.RequiredOnSite.Format("2006-01-02")),
		Description:     fmt.Sprintf("delivery delay on shipment %s", shipment.Reference),
	}, verdict, thresholds)
}
