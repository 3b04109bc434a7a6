package handlers

import (
	"net/http"

	"github.com/provanto/provanto/internal/api"
)

// HTTPHandler handles unauthenticated infrastructure endpoints
type HTTPHandler struct {
	version string
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(version string) *HTTPHandler {
	return &HTTPHandler{version: version}
}

// SetupRoutes configures infrastructure routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}
