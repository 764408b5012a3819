package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"harvester/internal/core"
	"harvester/internal/log"
)

// warningHeader carries replica failures on responses whose change was
// applied anyway.
const warningHeader = "X-Harvester-Warning"

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// fail maps ledger errors onto status codes: 422 for validation, 404 for
// unknown ids, 500 for everything else.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found", "")
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

// warn reports a replica failure without failing the request.
func warn(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Change kept in memory but not fully persisted",
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
	w.Header().Set(warningHeader, strings.ReplaceAll(err.Error(), "\n", "; "))
}
