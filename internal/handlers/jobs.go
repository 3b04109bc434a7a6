package handlers

import (
	"log"
	"net/http"

	"github.com/provanto/provanto/internal/api"
	"github.com/provanto/provanto/internal/jobs"
)

// The job trigger endpoints run one sweep synchronously and return its
// result. The same code paths run on timers; manual triggers exist for
// operators and integration tests.

func (h *APIHandler) respondSweep(w http.ResponseWriter, name string, result jobs.SweepResult, err error) {
	if err != nil {
		log.Printf("Manual %s run failed: %v", name, err)
		api.RespondError(w, http.StatusInternalServerError, "Job run failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// handleRunEscalation handles POST /api/jobs/escalation/run
func (h *APIHandler) handleRunEscalation(w http.ResponseWriter, r *http.Request) {
	result, err := h.escalation.Run()
	h.respondSweep(w, "escalation sweep", result, err)
}

// handleRunAutoResolve handles POST /api/jobs/autoresolve/run
func (h *APIHandler) handleRunAutoResolve(w http.ResponseWriter, r *http.Request) {
	result, err := h.autoResolve.Run()
	h.respondSweep(w, "auto-resolve sweep", result, err)
}

// handleRunForecast handles POST /api/jobs/forecast/run
func (h *APIHandler) handleRunForecast(w http.ResponseWriter, r *http.Request) {
	result, err := h.forecast.Run()
	h.respondSweep(w, "forecast generator", result, err)
}
