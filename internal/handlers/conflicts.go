package handlers

import (
	"errors"
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/provanto/provanto/internal/api"
	"github.com/provanto/provanto/internal/conflict"
	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/middleware"
)

// handleListConflicts handles GET /api/conflicts with optional tenant_id,
// project_id, type, and status filters. Results are oldest first so the
// longest-waiting conflicts surface at the top of work queues.
func (h *APIHandler) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	db := database.GetDB()
	q := r.URL.Query()

	filter := database.ConflictFilter{
		TenantID:  q.Get("tenant_id"),
		ProjectID: q.Get("project_id"),
		Type:      database.ConflictType(q.Get("type")),
		Status:    database.ConflictStatus(q.Get("status")),
	}

	if q.Get("page") != "" || q.Get("per_page") != "" {
		params := api.ParsePagination(r)

		total, err := database.CountOpenConflicts(db, filter)
		if err != nil {
			log.Printf("Failed to count conflicts: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to list conflicts")
			return
		}

		// The page window runs in SQL; only the requested page is loaded.
		filter.Limit = params.PerPage
		filter.Offset = params.Offset()
		conflicts, err := database.ListOpenConflicts(db, filter)
		if err != nil {
			log.Printf("Failed to list conflicts: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to list conflicts")
			return
		}

		api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
			Data: api.ConflictsToListItems(conflicts),
			Pagination: api.PaginationMeta{
				Page:       params.Page,
				PerPage:    params.PerPage,
				Total:      total,
				TotalPages: params.TotalPages(total),
			},
		})
		return
	}

	conflicts, err := database.ListOpenConflicts(db, filter)
	if err != nil {
		log.Printf("Failed to list conflicts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list conflicts")
		return
	}
	api.RespondJSON(w, http.StatusOK, api.ConflictsToListItems(conflicts))
}

// loadConflict resolves the {uuid} path value to a record, writing the error
// response itself when the record cannot be loaded.
func (h *APIHandler) loadConflict(w http.ResponseWriter, r *http.Request) *database.ConflictRecord {
	uuid := r.PathValue("uuid")
	record, err := database.GetConflictByUUID(database.GetDB(), uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondError(w, http.StatusNotFound, "Conflict not found")
		} else {
			log.Printf("Failed to load conflict %s: %v", uuid, err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to load conflict")
		}
		return nil
	}
	return record
}

// handleGetConflict handles GET /api/conflicts/{uuid}
func (h *APIHandler) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// handleGetConflictEvents handles GET /api/conflicts/{uuid}/events
func (h *APIHandler) handleGetConflictEvents(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	events, err := database.ListConflictEvents(database.GetDB(), record.ID)
	if err != nil {
		log.Printf("Failed to load events for conflict %s: %v", record.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load conflict events")
		return
	}
	api.RespondJSON(w, http.StatusOK, events)
}

// actor returns the acting identity for audit events, falling back to the
// system actor when auth is disabled.
func actor(r *http.Request) string {
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		return user
	}
	return conflict.SystemActor
}

// handleStartReview handles POST /api/conflicts/{uuid}/review
func (h *APIHandler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	if err := h.conflicts.StartReview(record, actor(r)); err != nil {
		api.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// handleResolveConflict handles POST /api/conflicts/{uuid}/resolve
func (h *APIHandler) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	var req api.ResolveConflictRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := h.conflicts.HumanResolve(record, actor(r), req.Note); err != nil {
		if errors.Is(err, conflict.ErrTerminalState) {
			api.RespondError(w, http.StatusConflict, "Conflict is already resolved or closed")
			return
		}
		log.Printf("Failed to resolve conflict %s: %v", record.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve conflict")
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// handleRejectConflict handles POST /api/conflicts/{uuid}/reject. A rejected
// resolution keeps the conflict open and escalates it to management.
func (h *APIHandler) handleRejectConflict(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	var req api.RejectConflictRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := h.conflicts.HumanReject(record, actor(r), req.Note); err != nil {
		if errors.Is(err, conflict.ErrTerminalState) {
			api.RespondError(w, http.StatusConflict, "Conflict is already resolved or closed")
			return
		}
		log.Printf("Failed to reject conflict %s: %v", record.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to reject conflict")
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// handleEscalateConflict handles POST /api/conflicts/{uuid}/escalate
func (h *APIHandler) handleEscalateConflict(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	var req api.EscalateConflictRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := h.conflicts.Escalate(record, req.Level, actor(r), req.Note); err != nil {
		if errors.Is(err, conflict.ErrTerminalState) {
			api.RespondError(w, http.StatusConflict, "Conflict is already resolved or closed")
			return
		}
		log.Printf("Failed to escalate conflict %s: %v", record.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to escalate conflict")
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// handleCloseConflict handles POST /api/conflicts/{uuid}/close
func (h *APIHandler) handleCloseConflict(w http.ResponseWriter, r *http.Request) {
	record := h.loadConflict(w, r)
	if record == nil {
		return
	}

	var req api.CloseConflictRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := h.conflicts.HumanClose(record, actor(r), req.Note); err != nil {
		if errors.Is(err, conflict.ErrTerminalState) {
			api.RespondError(w, http.StatusConflict, "Conflict is already resolved or closed")
			return
		}
		log.Printf("Failed to close conflict %s: %v", record.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to close conflict")
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}
