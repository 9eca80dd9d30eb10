package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexcrm/automation/internal/rule"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeRuleError maps registry errors onto HTTP status codes.
func writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rule.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rule.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
