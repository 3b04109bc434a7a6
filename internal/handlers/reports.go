package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/api"
	"github.com/provanto/provanto/internal/database"
)

// The ingestion endpoints persist incoming data and run the matching
// detector synchronously, so the response already reflects any conflict the
// new data opened, updated, or auto-resolved.

// ingestResponse wraps a persisted entity together with the conflict the
// detection pass produced, if any.
type ingestResponse struct {
	Record   interface{}              `json:"record"`
	Conflict *database.ConflictRecord `json:"conflict,omitempty"`
}

// handleCreateProgressReport handles POST /api/progress-reports
func (h *APIHandler) handleCreateProgressReport(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProgressReportRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	db := database.GetDB()
	var milestone database.Milestone
	if err := db.Preload("PurchaseOrder").First(&milestone, req.MilestoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondError(w, http.StatusNotFound, "Milestone not found")
			return
		}
		log.Printf("Failed to load milestone %d: %v", req.MilestoneID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load milestone")
		return
	}

	record := &database.ProgressRecord{
		MilestoneID: milestone.ID,
		Percent:     req.Percent,
		Source:      database.ProgressSource(req.Source),
		ReportedBy:  req.ReportedBy,
		ReportedAt:  time.Now(),
	}
	if err := database.AppendProgressRecord(db, record); err != nil {
		log.Printf("Failed to store progress report for milestone %d: %v", milestone.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to store progress report")
		return
	}

	thresholds, err := database.ResolveThresholds(db, milestone.PurchaseOrder.TenantID)
	if err != nil {
		log.Printf("Failed to resolve thresholds for tenant %s: %v", milestone.PurchaseOrder.TenantID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve thresholds")
		return
	}

	conflictRecord, err := h.conflicts.CheckMilestoneProgress(milestone.ID, thresholds)
	if err != nil {
		// The report itself is stored; detection failures must not lose it.
		log.Printf("Progress check for milestone %d failed: %v", milestone.ID, err)
	}

	api.RespondJSON(w, http.StatusCreated, ingestResponse{Record: record, Conflict: conflictRecord})
}

// handleCreateReceipt handles POST /api/receipts. Quantities are decimal
// strings and are rejected before anything is persisted if unparseable.
func (h *APIHandler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req api.CreateReceiptRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	declared, err := decimal.NewFromString(req.DeclaredQty)
	if err != nil {
		api.RespondValidationError(w, map[string]string{"declared_qty": "must be a decimal number"})
		return
	}
	received, err := decimal.NewFromString(req.ReceivedQty)
	if err != nil {
		api.RespondValidationError(w, map[string]string{"received_qty": "must be a decimal number"})
		return
	}

	db := database.GetDB()
	var shipment database.Shipment
	if err := db.Preload("PurchaseOrder").First(&shipment, req.ShipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondError(w, http.StatusNotFound, "Shipment not found")
			return
		}
		log.Printf("Failed to load shipment %d: %v", req.ShipmentID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load shipment")
		return
	}

	receipt := &database.DeliveryReceipt{
		ShipmentID:      shipment.ID,
		PurchaseOrderID: shipment.PurchaseOrderID,
		DeclaredQty:     declared,
		ReceivedQty:     received,
		Unit:            req.Unit,
		ReceivedBy:      req.ReceivedBy,
		ReceivedAt:      time.Now(),
	}
	if err := db.Create(receipt).Error; err != nil {
		log.Printf("Failed to store delivery receipt for shipment %d: %v", shipment.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to store delivery receipt")
		return
	}

	thresholds, err := database.ResolveThresholds(db, shipment.PurchaseOrder.TenantID)
	if err != nil {
		log.Printf("Failed to resolve thresholds for tenant %s: %v", shipment.PurchaseOrder.TenantID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve thresholds")
		return
	}

	conflictRecord, err := h.conflicts.CheckDeliveryReceipt(receipt.ID, thresholds)
	if err != nil {
		log.Printf("Quantity check for receipt %d failed: %v", receipt.ID, err)
	}

	api.RespondJSON(w, http.StatusCreated, ingestResponse{Record: receipt, Conflict: conflictRecord})
}

// handleUpdateShipmentETA handles POST /api/shipments/{id}/eta. Either ETA
// side may be updated; at least one must be present.
func (h *APIHandler) handleUpdateShipmentETA(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid shipment ID")
		return
	}

	var req api.UpdateShipmentETARequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LogisticsETA == nil && req.SupplierETA == nil {
		api.RespondValidationError(w, map[string]string{"logistics_eta": "at least one ETA is required"})
		return
	}

	db := database.GetDB()
	var shipment database.Shipment
	if err := db.Preload("PurchaseOrder").First(&shipment, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondError(w, http.StatusNotFound, "Shipment not found")
			return
		}
		log.Printf("Failed to load shipment %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load shipment")
		return
	}

	updates := map[string]interface{}{}
	if req.LogisticsETA != nil {
		updates["logistics_eta"] = *req.LogisticsETA
		shipment.LogisticsETA = req.LogisticsETA
	}
	if req.SupplierETA != nil {
		updates["supplier_eta"] = *req.SupplierETA
		shipment.SupplierETA = req.SupplierETA
	}
	if err := db.Model(&shipment).Updates(updates).Error; err != nil {
		log.Printf("Failed to update ETA on shipment %d: %v", shipment.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update shipment")
		return
	}

	thresholds, err := database.ResolveThresholds(db, shipment.PurchaseOrder.TenantID)
	if err != nil {
		log.Printf("Failed to resolve thresholds for tenant %s: %v", shipment.PurchaseOrder.TenantID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve thresholds")
		return
	}

	conflictRecord, err := h.conflicts.CheckShipmentSchedule(shipment.ID, thresholds)
	if err != nil {
		log.Printf("Schedule check for shipment %d failed: %v", shipment.ID, err)
	}

	api.RespondJSON(w, http.StatusOK, ingestResponse{Record: &shipment, Conflict: conflictRecord})
}
