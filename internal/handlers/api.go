package handlers

import (
	"net/http"

	"github.com/provanto/provanto/internal/conflict"
	"github.com/provanto/provanto/internal/jobs"
	"github.com/provanto/provanto/internal/kpi"
)

// APIHandler handles API endpoints for dashboards and integrations
type APIHandler struct {
	conflicts   *conflict.Service
	kpis        *kpi.Service
	escalation  *jobs.EscalationSweep
	autoResolve *jobs.AutoResolveSweep
	forecast    *jobs.ForecastGenerator
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(conflicts *conflict.Service, kpis *kpi.Service, escalation *jobs.EscalationSweep, autoResolve *jobs.AutoResolveSweep, forecast *jobs.ForecastGenerator) *APIHandler {
	return &APIHandler{
		conflicts:   conflicts,
		kpis:        kpis,
		escalation:  escalation,
		autoResolve: autoResolve,
		forecast:    forecast,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Conflict views
	mux.HandleFunc("GET /api/conflicts", h.handleListConflicts)
	mux.HandleFunc("GET /api/conflicts/{uuid}", h.handleGetConflict)
	mux.HandleFunc("GET /api/conflicts/{uuid}/events", h.handleGetConflictEvents)

	// Conflict actions
	mux.HandleFunc("POST /api/conflicts/{uuid}/review", h.handleStartReview)
	mux.HandleFunc("POST /api/conflicts/{uuid}/resolve", h.handleResolveConflict)
	mux.HandleFunc("POST /api/conflicts/{uuid}/reject", h.handleRejectConflict)
	mux.HandleFunc("POST /api/conflicts/{uuid}/escalate", h.handleEscalateConflict)
	mux.HandleFunc("POST /api/conflicts/{uuid}/close", h.handleCloseConflict)

	// Data ingestion with synchronous detection
	mux.HandleFunc("POST /api/progress-reports", h.handleCreateProgressReport)
	mux.HandleFunc("POST /api/receipts", h.handleCreateReceipt)
	mux.HandleFunc("POST /api/shipments/{id}/eta", h.handleUpdateShipmentETA)

	// Manual job triggers
	mux.HandleFunc("POST /api/jobs/escalation/run", h.handleRunEscalation)
	mux.HandleFunc("POST /api/jobs/autoresolve/run", h.handleRunAutoResolve)
	mux.HandleFunc("POST /api/jobs/forecast/run", h.handleRunForecast)

	// KPI dashboard
	mux.HandleFunc("GET /api/kpis", h.handleGetKPIs)
}
