package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       interface{}
		wantStatus int
		wantBody   string
	}{
		{
			name:       "200 with conflict summary",
			status:     http.StatusOK,
			data:       map[string]string{"status": "open"},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"open"}`,
		},
		{
			name:       "201 created record",
			status:     http.StatusCreated,
			data:       map[string]int{"milestone_id": 7},
			wantStatus: http.StatusCreated,
			wantBody:   `{"milestone_id":7}`,
		},
		{
			name:       "nil data",
			status:     http.StatusOK,
			data:       nil,
			wantStatus: http.StatusOK,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondJSON(w, tt.status, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.data != nil {
				ct := w.Header().Get("Content-Type")
				if ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
			}
			if tt.wantBody != "" {
				// json.Encoder appends a newline
				got := w.Body.String()
				if got != tt.wantBody+"\n" {
					t.Errorf("body = %q, want %q", got, tt.wantBody+"\n")
				}
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, http.StatusNotFound, "Conflict not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "Conflict not found" {
		t.Errorf("error = %q, want %q", resp.Error, "Conflict not found")
	}
	if resp.Code != "" {
		t.Errorf("code = %q, want empty", resp.Code)
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondErrorWithCode(w, http.StatusConflict, "conflict_terminal", "Conflict is already resolved or closed")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "Conflict is already resolved or closed" {
		t.Errorf("error = %q, want the terminal-state message", resp.Error)
	}
	if resp.Code != "conflict_terminal" {
		t.Errorf("code = %q, want %q", resp.Code, "conflict_terminal")
	}
}

func TestRespondValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondValidationError(w, map[string]string{
		"note":  "is required",
		"level": "must be at most 3",
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "Validation failed" {
		t.Errorf("error = %q, want %q", resp.Error, "Validation failed")
	}
	if resp.Code != "validation_error" {
		t.Errorf("code = %q, want %q", resp.Code, "validation_error")
	}
	if resp.Details["note"] != "is required" {
		t.Errorf("details[note] = %q, want %q", resp.Details["note"], "is required")
	}
	if resp.Details["level"] != "must be at most 3" {
		t.Errorf("details[level] = %q, want %q", resp.Details["level"], "must be at most 3")
	}
}

func TestRespondNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	RespondNoContent(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", w.Body.Len())
	}
}

func TestErrorResponse_OmitsEmptyFields(t *testing.T) {
	resp := ErrorResponse{Error: "Conflict not found"}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if _, ok := m["code"]; ok {
		t.Error("empty code should be omitted from JSON")
	}
	if _, ok := m["details"]; ok {
		t.Error("nil details should be omitted from JSON")
	}
}
